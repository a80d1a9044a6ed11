package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(threshold, timeout)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	require.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())

	*now = now.Add(time.Minute)
	assert.True(t, cb.Allow(), "cooldown elapsed, one trial call admitted")
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial call at a time")

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure()
	*now = now.Add(time.Minute)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())

	// A fresh cooldown applies after the failed trial.
	*now = now.Add(time.Minute)
	assert.True(t, cb.Allow())
}

func TestBreakerStatus(t *testing.T) {
	cb, _ := newTestBreaker(5, time.Minute)
	status := cb.Status()
	assert.Equal(t, BreakerClosed, status.State)
	assert.Zero(t, status.Failures)
	assert.Nil(t, status.LastFailure)

	cb.RecordFailure()
	status = cb.Status()
	assert.Equal(t, 1, status.Failures)
	require.NotNil(t, status.LastFailure)
}
