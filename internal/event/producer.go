package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/authgate/internal/domain"
	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
)

// Kafka topics for user lifecycle events.
var (
	TopicUserRegistered    = pkgkafka.Topic("user", "registered")
	TopicUserVerified      = pkgkafka.Topic("user", "verified")
	TopicUserLoggedIn      = pkgkafka.Topic("user", "logged_in")
	TopicUserLocked        = pkgkafka.Topic("user", "locked")
	TopicUserRoleChanged   = pkgkafka.Topic("user", "role_changed")
	TopicUserDeleted       = pkgkafka.Topic("user", "deleted")
	TopicUserPasswordReset = pkgkafka.Topic("user", "password_reset")
)

// AggregateTypeUser is the aggregate type of every user event.
const AggregateTypeUser = "user"

// SourceAuthService identifies events originating from the auth service.
const SourceAuthService = "authgate"

// Publisher writes an event envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// NopPublisher drops every event. It is used when EVENTS_ENABLED=false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// UserData is the payload shared by registered, verified and deleted events.
type UserData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
	Actor string `json:"actor,omitempty"`
}

// UserLoggedInData is the payload for a user.logged_in event.
type UserLoggedInData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	At    string `json:"at"`
}

// UserLockedData is the payload for a user.locked event.
type UserLockedData struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FailedAttempts int    `json:"failed_attempts"`
	LockedUntil    string `json:"locked_until"`
}

// RoleChangedData is the payload for a user.role_changed event.
type RoleChangedData struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	OldRole string `json:"old_role"`
	NewRole string `json:"new_role"`
	Actor   string `json:"actor"`
}

// Producer publishes user domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, UserData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role.String(),
	})
}

// PublishUserVerified publishes a user.verified event.
func (p *Producer) PublishUserVerified(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserVerified, user.ID, UserData{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role.String(),
	})
}

// PublishUserLoggedIn publishes a user.logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	data := UserLoggedInData{ID: user.ID, Email: user.Email}
	if user.LastLogin != nil {
		data.At = user.LastLogin.UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, TopicUserLoggedIn, user.ID, data)
}

// PublishUserLocked publishes a user.locked event.
func (p *Producer) PublishUserLocked(ctx context.Context, user *domain.User) error {
	data := UserLockedData{
		ID:             user.ID,
		Email:          user.Email,
		FailedAttempts: user.FailedLoginAttempts,
	}
	if user.AccountLockedUntil != nil {
		data.LockedUntil = user.AccountLockedUntil.UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, TopicUserLocked, user.ID, data)
}

// PublishUserRoleChanged publishes a user.role_changed event.
func (p *Producer) PublishUserRoleChanged(ctx context.Context, user *domain.User, oldRole domain.Role, actor string) error {
	return p.publish(ctx, TopicUserRoleChanged, user.ID, RoleChangedData{
		ID:      user.ID,
		Email:   user.Email,
		OldRole: oldRole.String(),
		NewRole: user.Role.String(),
		Actor:   actor,
	})
}

// PublishUserDeleted publishes a user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, user *domain.User, actor string) error {
	return p.publish(ctx, TopicUserDeleted, user.ID, UserData{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role.String(),
		Actor: actor,
	})
}

// PublishUserPasswordReset publishes a user.password_reset event.
func (p *Producer) PublishUserPasswordReset(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserPasswordReset, user.ID, UserData{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role.String(),
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithContext(ctx)

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
