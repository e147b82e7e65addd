package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mediakit/pkg/clientip"
	"github.com/dmitrymomot/mediakit/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Limiter, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := ratelimiter.New(cfg, ratelimiter.WithClock(c.Now), ratelimiter.WithoutSweep())
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l, c
}

func TestLimiterBurstAndRefill(t *testing.T) {
	t.Parallel()

	l, c := newLimiter(t, ratelimiter.Config{Burst: 3, Rate: 1, Interval: time.Second})

	for i := range 3 {
		d := l.Allow("a")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}
	d := l.Allow("a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Second, d.RetryAfter(c.Now()))

	assert.True(t, l.Allow("b").Allowed, "keys are independent")

	c.Advance(time.Second)
	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)

	c.Advance(time.Hour)
	d = l.Allow("a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining, "refill is capped at burst")
}

func TestLimiterAllowN(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, ratelimiter.Config{Burst: 5, Rate: 5, Interval: time.Minute})

	d, err := l.AllowN("a", 4)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.AllowN("a", 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining, "a denied call takes nothing")

	_, err = l.AllowN("a", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokens)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ratelimiter.Config{
		{Burst: 0, Rate: 1, Interval: time.Second},
		{Burst: 1, Rate: 0, Interval: time.Second},
		{Burst: 1, Rate: 1},
	} {
		_, err := ratelimiter.New(cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}

	l, err := ratelimiter.New(ratelimiter.Config{Burst: 1, Rate: 1, Interval: time.Second})
	require.NoError(t, err)
	l.Close()
	l.Close()
}

func TestLimiterConcurrentUse(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, ratelimiter.Config{Burst: 50, Rate: 1, Interval: time.Hour})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), allowed.Load())
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, ratelimiter.Config{Burst: 1, Rate: 1, Interval: time.Minute})

	var denied atomic.Int32
	h := clientip.Middleware(false)(ratelimiter.Middleware(l, ratelimiter.ByClientIP,
		func(w http.ResponseWriter, _ *http.Request, d ratelimiter.Decision) {
			denied.Add(1)
			assert.False(t, d.Allowed)
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })))

	do := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/upload", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	rec := do("192.0.2.1:1000")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do("192.0.2.1:1001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, int32(1), denied.Load())

	assert.Equal(t, http.StatusNoContent, do("192.0.2.2:1000").Code)
}

func TestMiddlewareDefaultDenyAndEmptyKey(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, ratelimiter.Config{Burst: 1, Rate: 1, Interval: time.Minute})
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	h := ratelimiter.Middleware(l, func(*http.Request) string { return "k" }, nil)(next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	skip := ratelimiter.Middleware(l, func(*http.Request) string { return "" }, nil)(next)
	for range 3 {
		rec := httptest.NewRecorder()
		skip.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
