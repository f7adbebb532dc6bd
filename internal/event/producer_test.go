package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authgate/internal/domain"
	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
	"github.com/utafrali/authgate/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, evt)
	return nil
}

func newTestProducer(pub Publisher) *Producer {
	return NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testUser() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Name:  "Alice",
		Email: "alice@example.com",
		Role:  domain.RoleCustomer,
	}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "authgate.user.registered", TopicUserRegistered)
	assert.Equal(t, "authgate.user.role_changed", TopicUserRoleChanged)
	assert.Equal(t, "authgate.user.password_reset", TopicUserPasswordReset)
}

func TestPublishUserRegistered(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)

	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	require.NoError(t, p.PublishUserRegistered(ctx, testUser()))

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.Equal(t, TopicUserRegistered, pub.topics[0])
	assert.Equal(t, TopicUserRegistered, evt.EventType)
	assert.Equal(t, "user-1", evt.AggregateID)
	assert.Equal(t, AggregateTypeUser, evt.AggregateType)
	assert.Equal(t, SourceAuthService, evt.Source)
	assert.Equal(t, "corr-42", evt.CorrelationID)

	var data UserData
	require.NoError(t, evt.UnmarshalData(&data))
	assert.Equal(t, "alice@example.com", data.Email)
	assert.Equal(t, "customer", data.Role)
}

func TestPublishUserRoleChanged(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)

	u := testUser()
	u.Role = domain.RoleModerator
	require.NoError(t, p.PublishUserRoleChanged(context.Background(), u, domain.RoleCustomer, "admin@example.com"))

	var data RoleChangedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "customer", data.OldRole)
	assert.Equal(t, "moderator", data.NewRole)
	assert.Equal(t, "admin@example.com", data.Actor)
}

func TestPublishUserLocked(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)

	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u := testUser()
	u.FailedLoginAttempts = 5
	u.AccountLocked = true
	u.AccountLockedUntil = &until
	require.NoError(t, p.PublishUserLocked(context.Background(), u))

	var data UserLockedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, 5, data.FailedAttempts)
	assert.Equal(t, "2026-01-02T03:04:05Z", data.LockedUntil)
}

func TestPublish_ErrorIsWrapped(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := newTestProducer(pub)

	err := p.PublishUserDeleted(context.Background(), testUser(), "root@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish authgate.user.deleted event")
	assert.ErrorIs(t, err, pub.err)
}

func TestNewProducer_NilPublisherDrops(t *testing.T) {
	p := newTestProducer(nil)
	assert.NoError(t, p.PublishUserVerified(context.Background(), testUser()))
	assert.NoError(t, p.PublishUserLoggedIn(context.Background(), testUser()))
	assert.NoError(t, p.PublishUserPasswordReset(context.Background(), testUser()))
}
