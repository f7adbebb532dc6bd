package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authgate/internal/domain"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedisStore(client, 500*time.Millisecond, logger), mr
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func TestKeys_Layout(t *testing.T) {
	k := NewKeys("auth")

	assert.Equal(t, "auth:verification:jane@example.com", k.Verification("jane@example.com"))
	assert.Equal(t, "auth:reset:jane@example.com", k.Reset("jane@example.com"))
	assert.Equal(t, "auth:user:jane@example.com:accessToken", k.AccessToken("jane@example.com"))
	assert.Equal(t, "auth:user:jane@example.com:refreshToken", k.RefreshToken("jane@example.com"))
	assert.Equal(t, "auth:user:jane@example.com:*", k.UserTokens("jane@example.com"))
	assert.Equal(t, "auth:ratelimit:login:jane@example.com", k.RateLimit("login", "jane@example.com"))
	assert.Equal(t, "auth:ratelimit:login:jane@example.com:locked", k.RateLimitLock("login", "jane@example.com"))
}

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, EscapePattern("a*b?c[d]"))
	assert.Equal(t, "plain@example.com", EscapePattern("plain@example.com"))
}

// ---------------------------------------------------------------------------
// Put / Get
// ---------------------------------------------------------------------------

func TestRedisStore_PutGet_RoundTrip(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	in := domain.VerificationData{Code: "ABC123", ExpiresAt: 1700000000000}
	require.NoError(t, store.Put(ctx, "auth:verification:a@b.c", in, 10*time.Minute))

	var out domain.VerificationData
	found, err := store.Get(ctx, "auth:verification:a@b.c", &out)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
	assert.Equal(t, 10*time.Minute, mr.TTL("auth:verification:a@b.c"))
}

func TestRedisStore_Get_Miss(t *testing.T) {
	store, _ := setupTestStore(t)

	var out string
	found, err := store.Get(context.Background(), "missing", &out)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Get_ExpiresWithTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "token", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	var out string
	found, err := store.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Get_MalformedIsMiss(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, mr.Set("k", "{not json"))

	var out domain.ResetPasswordData
	found, err := store.Get(context.Background(), "k", &out)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Get_RedisDownIsMiss(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	var out string
	found, err := store.Get(context.Background(), "k", &out)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_Get_CallerCanceled(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out string
	_, err := store.Get(ctx, "k", &out)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore_Put_RedisDownReturnsError(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	err := store.Put(context.Background(), "k", "v", time.Minute)

	assert.Error(t, err)
}

func TestRedisStore_PutKeepTTL(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", domain.VerificationData{Attempts: 0}, 10*time.Minute))
	mr.FastForward(4 * time.Minute)

	require.NoError(t, store.PutKeepTTL(ctx, "k", domain.VerificationData{Attempts: 1}))

	var out domain.VerificationData
	found, err := store.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 6*time.Minute, mr.TTL("k"))
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	require.NoError(t, store.Delete(context.Background(), "a", "b", "absent"))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
	assert.NoError(t, store.Delete(context.Background()))
}

func TestRedisStore_DeleteMatching_ExactKey(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, mr.Set("auth:reset:a@b.c", "1"))

	deleted, err := store.DeleteMatching(context.Background(), "auth:reset:a@b.c")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteMatching(context.Background(), "auth:reset:a@b.c")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRedisStore_DeleteMatching_Pattern(t *testing.T) {
	store, mr := setupTestStore(t)
	keys := NewKeys("auth")
	require.NoError(t, mr.Set(keys.AccessToken("a@b.c"), "x"))
	require.NoError(t, mr.Set(keys.RefreshToken("a@b.c"), "y"))
	require.NoError(t, mr.Set(keys.AccessToken("other@b.c"), "z"))

	deleted, err := store.DeleteMatching(context.Background(), keys.UserTokens("a@b.c"))

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists(keys.AccessToken("a@b.c")))
	assert.False(t, mr.Exists(keys.RefreshToken("a@b.c")))
	assert.True(t, mr.Exists(keys.AccessToken("other@b.c")))
}
