package resilience

import (
	"context"

	"github.com/sells-group/property-map/internal/model"
)

// Querier is the feature source being guarded.
type Querier interface {
	QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error)
}

// GuardedQuerier wraps a Querier with retries inside a per-layer breaker.
// A layer whose breaker is open fails fast with ErrOpen; the other layers of
// the same source keep working.
type GuardedQuerier struct {
	inner    Querier
	breakers *Breakers
	backoff  Backoff
}

// Guard wraps inner. A nil breakers registry gets the default config.
func Guard(inner Querier, breakers *Breakers, backoff Backoff) *GuardedQuerier {
	if breakers == nil {
		breakers = NewBreakers(DefaultBreakerConfig())
	}
	return &GuardedQuerier{inner: inner, breakers: breakers, backoff: backoff}
}

// Breakers exposes the per-layer breakers for status reporting.
func (g *GuardedQuerier) Breakers() *Breakers {
	return g.breakers
}

// QueryFeatures implements the feature source interface.
func (g *GuardedQuerier) QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error) {
	b := g.breakers.For(q.Layer)
	if err := b.Allow(); err != nil {
		return nil, err
	}
	features, err := Retry(ctx, g.backoff, "query "+q.Layer, func(ctx context.Context) ([]model.Feature, error) {
		return g.inner.QueryFeatures(ctx, q)
	})
	b.Record(err)
	return features, err
}
