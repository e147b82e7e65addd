// Package ratelimiter is an in-memory token bucket keyed by caller, used to
// keep one client from spending the relay's upstream quota.
//
//	l, err := ratelimiter.New(ratelimiter.Config{Burst: 20, Rate: 30, Interval: time.Minute})
//	r.With(ratelimiter.Middleware(l, ratelimiter.ByClientIP, deny)).Post("/upload", h.Upload)
//
// Buckets idle for longer than an hour are dropped by a background sweep
// that stops on Close.
package ratelimiter
