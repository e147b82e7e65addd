package ratelimiter

import (
	"fmt"
	"sync"
	"time"
)

// Config describes a bucket: Burst tokens at most, Rate tokens added every Interval.
type Config struct {
	Burst    int
	Rate     int
	Interval time.Duration
}

func (c Config) validate() error {
	if c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive, got %d", ErrInvalidConfig, c.Burst)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidConfig, c.Rate)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is zero for allowed calls.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	return max(d.ResetAt.Sub(now), 0)
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

const (
	staleAfter    = time.Hour
	sweepInterval = 5 * time.Minute
)

// Limiter holds one bucket per key. It is safe for concurrent use.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithoutSweep disables the background removal of idle buckets.
func WithoutSweep() Option {
	return func(l *Limiter) { l.stop = nil }
}

// New validates cfg and starts the idle bucket sweep.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.stop != nil {
		go l.sweep()
	}
	return l, nil
}

func (l *Limiter) Allow(key string) Decision {
	d, _ := l.AllowN(key, 1)
	return d
}

// AllowN takes n tokens from key's bucket. A denied call takes nothing.
func (l *Limiter) AllowN(key string, n int) (Decision, error) {
	if n <= 0 {
		return Decision{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokens, n)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Burst, lastRefill: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	// Cap the interval count so a long idle period cannot overflow.
	intervals := min(int64(now.Sub(b.lastRefill)/l.cfg.Interval), int64(l.cfg.Burst/l.cfg.Rate+1))
	if intervals > 0 {
		b.tokens = min(b.tokens+int(intervals)*l.cfg.Rate, l.cfg.Burst)
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.Interval)
		if now.Sub(b.lastRefill) >= l.cfg.Interval {
			b.lastRefill = now
		}
	}

	d := Decision{Limit: l.cfg.Burst, ResetAt: b.lastRefill.Add(l.cfg.Interval)}
	if b.tokens >= n {
		b.tokens -= n
		d.Allowed = true
	}
	d.Remaining = b.tokens
	return d, nil
}

// Close stops the sweep. Safe to call more than once.
func (l *Limiter) Close() {
	if l.stop == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.removeIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) removeIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, k)
		}
	}
}
