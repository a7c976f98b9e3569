package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive WaitIfNeeded without real sleeps.
type fakeClock struct {
	t       time.Time
	elapsed []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.elapsed = append(c.elapsed, d)
	c.t = c.t.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	l := NewFromInterval("test", time.Second)
	fc := &fakeClock{t: time.Unix(0, 0)}
	l.now = fc.now
	l.sleep = fc.sleep
	return l, fc
}

func TestBackoffSequence(t *testing.T) {
	// End-to-end scenario: base 1000ms, three consecutive failures, then
	// ten successes.
	l, _ := newTestLimiter()

	l.WaitIfNeeded()
	l.ReportFailure()
	l.ReportFailure()
	l.ReportFailure()

	require.Equal(t, 8*time.Second, l.CurrentInterval())

	for i := 0; i < 10; i++ {
		l.ReportSuccess()
	}
	require.Equal(t, 4*time.Second, l.CurrentInterval())
}

func TestReduceFloorsAtBase(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < 100; i++ {
		l.ReportSuccess()
	}
	require.Equal(t, time.Second, l.CurrentInterval())
}

func TestFailureCapsAtMax(t *testing.T) {
	l, _ := newTestLimiter()
	for i := 0; i < 10; i++ {
		l.ReportFailure()
	}
	require.Equal(t, 16*time.Second, l.CurrentInterval())
}

func TestWaitIfNeededSleepsRemainder(t *testing.T) {
	l, fc := newTestLimiter()

	l.WaitIfNeeded()
	require.Empty(t, fc.elapsed, "first call has no prior request to wait on")

	fc.t = fc.t.Add(400 * time.Millisecond)
	l.WaitIfNeeded()
	require.Len(t, fc.elapsed, 1)
	require.Equal(t, 600*time.Millisecond, fc.elapsed[0])
}

func TestDisabledReduction(t *testing.T) {
	l := New("test", time.Second, 16*time.Second, 0)
	l.ReportFailure()
	before := l.CurrentInterval()
	for i := 0; i < 50; i++ {
		l.ReportSuccess()
	}
	require.Equal(t, before, l.CurrentInterval())
}
