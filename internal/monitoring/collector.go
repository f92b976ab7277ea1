package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-map/internal/resilience"
	"github.com/sells-group/property-map/internal/store"
)

// Snapshot holds a point-in-time view of submission health.
type Snapshot struct {
	// Submissions within the lookback window.
	SubmissionTotal   int     `json:"submission_total"`
	SubmissionCreated int     `json:"submission_created"`
	SubmissionFailed  int     `json:"submission_failed"`
	FailRate          float64 `json:"fail_rate"`

	// Created submissions whose lookup left warnings (partial aggregates).
	WithWarnings int     `json:"with_warnings"`
	WarningRate  float64 `json:"warning_rate"`

	// Lookup sources whose breaker is not closed.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SubmissionLister is the part of store.Store the collector reads.
type SubmissionLister interface {
	ListSubmissions(ctx context.Context, f store.Filter) ([]store.Submission, error)
}

// BreakerStates reports circuit breaker positions by source name.
type BreakerStates interface {
	States() map[string]resilience.State
}

// Collector gathers a Snapshot from the submission log and the lookup
// breakers.
type Collector struct {
	store    SubmissionLister
	breakers BreakerStates
	now      func() time.Time
}

// NewCollector creates a new collector. breakers may be nil.
func NewCollector(st SubmissionLister, breakers BreakerStates) *Collector {
	return &Collector{store: st, breakers: breakers, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	subs, err := c.store.ListSubmissions(ctx, store.Filter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        store.MaxListLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list submissions")
	}

	snap.SubmissionTotal = len(subs)
	for _, s := range subs {
		switch s.Status {
		case store.StatusCreated:
			snap.SubmissionCreated++
			if len(s.Warnings) > 0 {
				snap.WithWarnings++
			}
		case store.StatusFailed:
			snap.SubmissionFailed++
		}
	}
	if snap.SubmissionTotal > 0 {
		snap.FailRate = float64(snap.SubmissionFailed) / float64(snap.SubmissionTotal)
	}
	if snap.SubmissionCreated > 0 {
		snap.WarningRate = float64(snap.WithWarnings) / float64(snap.SubmissionCreated)
	}

	if c.breakers != nil {
		for name, st := range c.breakers.States() {
			if st != resilience.Closed {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
	}
	return snap, nil
}
