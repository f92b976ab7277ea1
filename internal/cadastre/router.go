package cadastre

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-map/internal/model"
)

// LayerRouter dispatches each query to the querier registered for its layer,
// falling back to a default querier for unregistered layers.
type LayerRouter struct {
	routes   map[string]FeatureQuerier
	fallback FeatureQuerier
}

// NewLayerRouter creates a router. fallback may be nil, in which case queries
// against unrouted layers fail.
func NewLayerRouter(fallback FeatureQuerier) *LayerRouter {
	return &LayerRouter{
		routes:   make(map[string]FeatureQuerier),
		fallback: fallback,
	}
}

// Route registers q for layer, replacing any previous registration.
func (r *LayerRouter) Route(layer string, q FeatureQuerier) *LayerRouter {
	r.routes[layer] = q
	return r
}

// QueryFeatures implements FeatureQuerier.
func (r *LayerRouter) QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error) {
	if target, ok := r.routes[q.Layer]; ok {
		return target.QueryFeatures(ctx, q)
	}
	if r.fallback == nil {
		return nil, eris.Errorf("cadastre: no source for layer %q", q.Layer)
	}
	return r.fallback.QueryFeatures(ctx, q)
}
