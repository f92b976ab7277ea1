package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = &StatusError{Source: "arcgis", StatusCode: 503}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := NewBreaker("submarkets", cfg)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.Record(errUnavailable)
	}
	assert.Equal(t, Open, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrOpen))
	assert.Contains(t, err.Error(), "submarkets")
}

func TestBreaker_SuccessClearsFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3})

	b.Record(errUnavailable)
	b.Record(errUnavailable)
	assert.Equal(t, 2, b.Failures())

	b.Record(nil)
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_NonTransientDoesNotCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1})

	b.Record(&StatusError{Source: "arcgis", StatusCode: 400})
	b.Record(errors.New("invalid where clause"))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Second, Probes: 2})

	b.Record(errUnavailable)
	require.Error(t, b.Allow())

	*now = now.Add(10 * time.Second)
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Allow())

	b.Record(nil)
	assert.Equal(t, HalfOpen, b.State(), "one probe of two")
	b.Record(nil)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: 10 * time.Second})

	b.Record(errUnavailable)
	*now = now.Add(11 * time.Second)
	require.NoError(t, b.Allow())

	b.Record(errUnavailable)
	assert.Equal(t, Open, b.State())
	assert.Error(t, b.Allow())
}

func TestBreaker_OnChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cfg := BreakerConfig{
		Threshold: 1,
		Cooldown:  time.Second,
		OnChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}
	b, now := newTestBreaker(cfg)

	b.Record(errUnavailable)
	*now = now.Add(time.Second)
	require.NoError(t, b.Allow())
	b.Record(nil)
	b.Reset()

	assert.Equal(t, []string{
		"submarkets:closed->open",
		"submarkets:open->half-open",
		"submarkets:half-open->closed",
	}, transitions)
}

func TestBreakers_ForIsStable(t *testing.T) {
	r := NewBreakers(DefaultBreakerConfig())
	a := r.For("points")
	assert.Same(t, a, r.For("points"))
	assert.NotSame(t, a, r.For("parcels"))

	states := r.States()
	assert.Len(t, states, 2)
	assert.Equal(t, Closed, states["points"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
