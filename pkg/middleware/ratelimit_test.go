package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowAndRefill(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1})
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "k")
	assert.False(t, ok)

	// Other keys have their own bucket
	ok, _ = rl.Allow(ctx, "other")
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, _ = rl.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	now := time.Now()
	rl.now = func() time.Time { return now }
	_, _ = rl.Allow(context.Background(), "k")

	now = now.Add(3 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.buckets)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("test:user:1"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Reset(ctx, "user:1"))
	assert.False(t, mr.Exists("test:user:1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewDistributedRateLimiter(client, nil, "").Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	m := &RateLimitMiddleware{
		userLimiter:      NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}),
		serviceLimiter:   NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Hour}),
		anonymousLimiter: NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}),
		failOpen:         true,
	}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(p *Principal, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	user := &Principal{UserID: uuid.New()}
	assert.Equal(t, http.StatusOK, do(user, "1.1.1.1").Code)
	rec := do(user, "1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(nil, "2.2.2.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(nil, "2.2.2.2").Code)
	assert.Equal(t, http.StatusOK, do(nil, "3.3.3.3").Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(&Principal{Service: true}, "4.4.4.4").Code)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, assert.AnError
}

func (brokenLimiter) Config() *RateLimitConfig { return DefaultRateLimitConfig() }

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	m := &RateLimitMiddleware{userLimiter: brokenLimiter{}, serviceLimiter: brokenLimiter{}, anonymousLimiter: brokenLimiter{}, failOpen: true}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.SetFailOpen(false)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
