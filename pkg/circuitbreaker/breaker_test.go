package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.GetTripTime().IsZero())
}

func TestDisabledNeverTrips(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}

func TestResetClosesCircuit(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())

	failureCount, _, _, _ := cb.GetState()
	assert.Equal(t, 0, failureCount)
}

func TestResetTimeoutReopensForTraffic(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, 10*time.Millisecond, nil)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen())
}

func TestWindowExpiryClearsCount(t *testing.T) {
	cb := NewCircuitBreaker(true, 2, 10*time.Millisecond, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	time.Sleep(20 * time.Millisecond)

	// The earlier failure aged out of the window, so this one starts over.
	assert.False(t, cb.RecordFailure())

	failureCount, _, _, _ := cb.GetState()
	assert.Equal(t, 1, failureCount)
}
