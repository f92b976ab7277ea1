package cadastre

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/model"
)

func TestLayerRouter(t *testing.T) {
	remote := newFakeQuerier().on("points", returns(pointFeature()))
	local := newFakeQuerier().on("submarkets", returns(model.Feature{Attributes: model.Attributes{"name": "Noord"}}))

	r := NewLayerRouter(remote).Route("submarkets", local)

	got, err := r.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "submarkets"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Noord", got[0].Attributes["name"])
	assert.Empty(t, remote.callsFor("submarkets"))

	got, err = r.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "points"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLayerRouter_NoFallback(t *testing.T) {
	r := NewLayerRouter(nil)
	_, err := r.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "parcels"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"parcels"`)
}
