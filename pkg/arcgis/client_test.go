package arcgis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/resilience"
)

const pointsBody = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature", "id": 3001,
    "geometry": {"type": "Point", "coordinates": [4.4051, 51.2183]},
    "properties": {"id": "P1", "street_nl": "Meir", "number": "24", "building_id": 77}
  }]
}`

const submarketBody = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature", "id": 5,
    "geometry": {"type": "Polygon", "coordinates": [[[4.39,51.21],[4.42,51.21],[4.42,51.23],[4.39,51.23],[4.39,51.21]]]},
    "properties": {"name": "Antwerp CBD"}
  }]
}`

type capture struct {
	mu    sync.Mutex
	paths []string
	query []url.Values
}

func (c *capture) record(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, r.URL.Path)
	c.query = append(c.query, r.URL.Query())
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.record(r)
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, c
}

func newTestClient(ts *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(ts.Client()),
		WithLayer("points", ts.URL+"/arcgis/rest/services/Cadastre/MapServer/0/"),
		WithLayer("submarkets", ts.URL+"/arcgis/rest/services/Market/FeatureServer/2"),
		WithRateLimit(1000, 10),
	}
	return New(append(base, opts...)...)
}

func TestQueryFeatures_AttributeQuery(t *testing.T) {
	ts, c := newTestServer(t, http.StatusOK, pointsBody)
	client := newTestClient(ts, WithToken("secret"))

	got, err := client.QueryFeatures(context.Background(), model.FeatureQuery{
		Layer:          "points",
		Where:          []model.Condition{{Field: "id", Value: "P1"}},
		ReturnGeometry: true,
		Limit:          1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P1", got[0].Attributes["id"])
	assert.Equal(t, float64(77), got[0].Attributes["building_id"])
	require.NotNil(t, got[0].Location)
	assert.Equal(t, model.Point{Lon: 4.4051, Lat: 51.2183}, *got[0].Location)

	require.Len(t, c.query, 1)
	assert.Equal(t, "/arcgis/rest/services/Cadastre/MapServer/0/query", c.paths[0])
	q := c.query[0]
	assert.Equal(t, "id = 'P1'", q.Get("where"))
	assert.Equal(t, "*", q.Get("outFields"))
	assert.Equal(t, "true", q.Get("returnGeometry"))
	assert.Equal(t, "geojson", q.Get("f"))
	assert.Equal(t, "4326", q.Get("outSR"))
	assert.Equal(t, "1", q.Get("resultRecordCount"))
	assert.Equal(t, "secret", q.Get("token"))
	assert.Empty(t, q.Get("geometry"))
	assert.Empty(t, q.Get("spatialRel"))
}

func TestQueryFeatures_PointIntersects(t *testing.T) {
	ts, c := newTestServer(t, http.StatusOK, submarketBody)
	client := newTestClient(ts)

	got, err := client.QueryFeatures(context.Background(), model.FeatureQuery{
		Layer: "submarkets",
		Point: &model.Point{Lon: 4.4051, Lat: 51.2183},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Antwerp CBD", got[0].Attributes["name"])
	assert.Nil(t, got[0].Location)

	q := c.query[0]
	assert.Equal(t, "4.4051,51.2183", q.Get("geometry"))
	assert.Equal(t, "esriGeometryPoint", q.Get("geometryType"))
	assert.Equal(t, "esriSpatialRelIntersects", q.Get("spatialRel"))
	assert.Equal(t, "4326", q.Get("inSR"))
	assert.Equal(t, "1=1", q.Get("where"))
	assert.Equal(t, "false", q.Get("returnGeometry"))
}

func TestQueryFeatures_EnvelopeIntersects(t *testing.T) {
	ts, c := newTestServer(t, http.StatusOK, submarketBody)
	client := newTestClient(ts)

	env := model.Envelope{MinLon: 4.4, MinLat: 51.2, MaxLon: 4.41, MaxLat: 51.21}
	got, err := client.QueryFeatures(context.Background(), model.FeatureQuery{
		Layer:          "submarkets",
		Envelope:       &env,
		ReturnGeometry: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Location, "polygon centroid")
	assert.InDelta(t, 4.405, got[0].Location.Lon, 1e-9)
	assert.InDelta(t, 51.22, got[0].Location.Lat, 1e-9)

	q := c.query[0]
	assert.Equal(t, "4.4,51.2,4.41,51.21", q.Get("geometry"))
	assert.Equal(t, "esriGeometryEnvelope", q.Get("geometryType"))
}

func TestQueryFeatures_EmptyIsNotError(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK, `{"type":"FeatureCollection","features":[]}`)
	client := newTestClient(ts)

	got, err := client.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "submarkets"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryFeatures_ServiceErrorBody(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK,
		`{"error":{"code":400,"message":"Unable to complete operation.","details":["Invalid where clause"]}}`)
	client := newTestClient(ts)

	_, err := client.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "points"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid where clause")
	assert.False(t, resilience.IsTransient(err))
}

func TestQueryFeatures_HTTPError(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusServiceUnavailable, "maintenance")
	client := newTestClient(ts)

	_, err := client.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "points"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsTransient(err))
}

func TestQueryFeatures_MalformedBody(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK, "<html>proxy error</html>")
	client := newTestClient(ts)

	_, err := client.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "points"})
	require.Error(t, err)
}

func TestQueryFeatures_UnknownLayer(t *testing.T) {
	client := New()
	_, err := client.QueryFeatures(context.Background(), model.FeatureQuery{Layer: "parcels"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownLayer))
}

func TestQueryFeatures_CancelledContext(t *testing.T) {
	ts, _ := newTestServer(t, http.StatusOK, pointsBody)
	client := newTestClient(ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.QueryFeatures(ctx, model.FeatureQuery{Layer: "points"})
	require.Error(t, err)
}

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name  string
		conds []model.Condition
		want  string
	}{
		{"none", nil, "1=1"},
		{"single", []model.Condition{{Field: "ADRESID", Value: "3001"}}, "ADRESID = '3001'"},
		{"escaped", []model.Condition{{Field: "name", Value: "O'Brien"}}, "name = 'O''Brien'"},
		{
			"multiple",
			[]model.Condition{{Field: "a", Value: "1"}, {Field: "b", Value: "2"}},
			"a = '1' AND b = '2'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, whereClause(tt.conds))
		})
	}
}

func TestLayerURL(t *testing.T) {
	c := New(WithLayer("parcels", "https://example.com/MapServer/3/"))
	u, ok := c.LayerURL("parcels")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/MapServer/3", u)
}
