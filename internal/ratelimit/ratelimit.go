// Package ratelimit provides an adaptive-backoff rate limiter, one
// instance per external service (Shazam fingerprint backend, Discogs,
// MusicBrainz), grounded on original_source/src/rate_limiter.rs.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between requests, widening the
// interval on failures and narrowing it back after a run of successes.
type Limiter struct {
	name string

	mu                sync.Mutex
	baseInterval      time.Duration
	maxInterval       time.Duration
	currentInterval   time.Duration
	successesToReduce int
	successCount      int
	lastRequest       time.Time
	hasLastRequest    bool

	// sleep is injectable for tests; defaults to time.Sleep.
	sleep func(time.Duration)
	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New creates a Limiter with an explicit base/max interval and success
// threshold. Pass successesToReduce=0 to disable adaptive reduction.
func New(name string, base, max time.Duration, successesToReduce int) *Limiter {
	return &Limiter{
		name:              name,
		baseInterval:      base,
		maxInterval:       max,
		currentInterval:   base,
		successesToReduce: successesToReduce,
		sleep:             time.Sleep,
		now:               time.Now,
	}
}

// NewFromInterval creates a Limiter with max = 16x base and a reduction
// threshold of 10 successes — AutoRec's standard convention, per spec.md
// §4.7, for all three external services.
func NewFromInterval(name string, base time.Duration) *Limiter {
	return New(name, base, base*16, 10)
}

// WaitIfNeeded blocks until at least currentInterval has elapsed since
// the previous call, then records now as the new last-request time. Call
// this immediately before issuing a request.
func (l *Limiter) WaitIfNeeded() {
	l.mu.Lock()
	var wait time.Duration
	if l.hasLastRequest {
		elapsed := l.now().Sub(l.lastRequest)
		if elapsed < l.currentInterval {
			wait = l.currentInterval - elapsed
		}
	}
	l.mu.Unlock()

	if wait > 0 {
		slog.Debug("rate limit wait", "service", l.name, "wait", wait)
		l.sleep(wait)
	}

	l.mu.Lock()
	l.lastRequest = l.now()
	l.hasLastRequest = true
	l.mu.Unlock()
}

// ReportSuccess records a successful request. Once successesToReduce
// consecutive successes have been seen, the interval is halved (floored
// at base) and the counter resets.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.successesToReduce == 0 {
		return
	}

	l.successCount++
	if l.successCount >= l.successesToReduce && l.currentInterval > l.baseInterval {
		next := l.currentInterval / 2
		if next < l.baseInterval {
			next = l.baseInterval
		}
		l.currentInterval = next
		l.successCount = 0
		slog.Debug("rate limit reduced", "service", l.name, "interval", l.currentInterval)
	}
}

// ReportFailure doubles the interval (capped at max) and resets the
// success counter.
func (l *Limiter) ReportFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.currentInterval * 2
	if next > l.maxInterval {
		next = l.maxInterval
	}
	l.currentInterval = next
	l.successCount = 0
	slog.Debug("rate limit increased", "service", l.name, "interval", l.currentInterval)
}

// CurrentInterval returns the limiter's present interval (test/inspection
// use).
func (l *Limiter) CurrentInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentInterval
}
