package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/monitoring"
	"github.com/sells-group/property-map/internal/property"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/resilience"
	"github.com/sells-group/property-map/internal/store"
)

func ptr[T any](v T) *T { return &v }

func testBuildings() []model.Building {
	return []model.Building{
		{ID: "B1", Name: "Meir Tower", Street: "Meir", HouseNumber: "24", City: "Antwerpen",
			CadastralRef: "11002A", Longitude: 4.4051, Latitude: 51.2183,
			Surface: ptr(12500.0), Tenants: ptr("Acme NV"), Owner: ptr("Meir Holding")},
		{ID: "B2", Name: "Kouter Offices", City: "Gent", CadastralRef: "44021C",
			Longitude: 3.7236, Latitude: 51.0506, Surface: ptr(4300.0), Tenants: ptr("Gentse Verzekeringen")},
		{ID: "B3", Name: "Dock Shed", CadastralRef: "", Longitude: 4.41, Latitude: 51.24},
		{Name: "Unlisted Hall", Longitude: 4.35, Latitude: 50.85},
	}
}

type fakeResolver map[string]*cadastre.Aggregate

func (f fakeResolver) Resolve(_ context.Context, pointID string) (*cadastre.Aggregate, error) {
	if pointID == "DOWN" {
		return nil, eris.Wrapf(resilience.ErrOpen, "resilience: %s", "points")
	}
	agg, ok := f[pointID]
	if !ok {
		return nil, eris.Wrapf(cadastre.ErrPointNotFound, "cadastre: point %s", pointID)
	}
	return agg, nil
}

func testResolver() fakeResolver {
	return fakeResolver{
		"P1": {
			PointID: "P1",
			Point: model.Attributes{
				"street_nl": "Meir", "number": "24",
				"longitude": 4.4051, "latitude": 51.2183,
			},
			Buildings: []model.Attributes{{"id": "B7", "area": 12500.0}},
			Errors:    []string{},
		},
	}
}

type memStore struct {
	subs []store.Submission
	err  error
}

func (m *memStore) SaveSubmission(_ context.Context, s *store.Submission) error {
	if m.err != nil {
		return m.err
	}
	if s.ID == "" {
		s.ID = "sub-" + string(rune('a'+len(m.subs)))
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	m.subs = append(m.subs, *s)
	return nil
}

func (m *memStore) GetSubmission(_ context.Context, id string) (*store.Submission, error) {
	for _, s := range m.subs {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "store: %s", id)
}

func (m *memStore) ListSubmissions(_ context.Context, f store.Filter) ([]store.Submission, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []store.Submission
	for _, s := range m.subs {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.PointID != "" && s.PointID != f.PointID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

type testEnv struct {
	handler http.Handler
	store   *memStore
	crmErr  error
	created []map[string]any
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: &memStore{}}

	src := building.NewSource(building.FetchFunc(func(context.Context) ([]model.Building, error) {
		return testBuildings(), nil
	}), building.WithFallback(false))
	cache := building.NewCache(src, nil)
	_, err := cache.Reload(context.Background())
	require.NoError(t, err)

	metrics, err := monitoring.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	catalog := record.DefaultCatalog()
	crm := property.CreatorFunc(func(_ context.Context, rec map[string]any) (string, error) {
		if env.crmErr != nil {
			return "", env.crmErr
		}
		env.created = append(env.created, rec)
		return "a0P000000000001", nil
	})
	svc := property.NewService(testResolver(), catalog, crm, property.WithSaver(env.store))

	env.handler = NewRouter(Deps{
		Buildings: cache,
		Resolver:  testResolver(),
		Catalog:   catalog,
		Submitter: svc,
		Store:     env.store,
		Metrics:   metrics,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(4), body["buildings"])
	assert.Equal(t, "crm", body["origin"])
}

func TestListTiers(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/tiers", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tiers := decode(t, rec)["tiers"].([]any)
	require.Len(t, tiers, 6)
	first := tiers[0].(map[string]any)
	assert.Equal(t, "excellent", first["tier"])
	assert.Equal(t, "#1b9e4b", first["color"])
}

func TestListBuildings(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    []string
		wantErr int
	}{
		{name: "default hides unregistered", target: "/api/buildings", want: []string{"Meir Tower", "Kouter Offices", "Dock Shed"}},
		{name: "all tiers", target: "/api/buildings?tiers=all", want: []string{"Meir Tower", "Kouter Offices", "Dock Shed", "Unlisted Hall"}},
		{name: "tier list", target: "/api/buildings?tiers=excellent,Good", want: []string{"Meir Tower", "Kouter Offices"}},
		{name: "search", target: "/api/buildings?q=gent", want: []string{"Kouter Offices"}},
		{name: "search by tenant", target: "/api/buildings?tiers=all&q=ACME", want: []string{"Meir Tower"}},
		{name: "no match", target: "/api/buildings?q=nowhere", want: []string{}},
		{name: "unknown tier", target: "/api/buildings?tiers=excellent,shiny", wantErr: http.StatusBadRequest},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, nil)
			if tt.wantErr != 0 {
				require.Equal(t, tt.wantErr, rec.Code)
				assert.Contains(t, decode(t, rec)["error"], "unknown tier")
				return
			}
			require.Equal(t, http.StatusOK, rec.Code)

			var resp buildingsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			names := make([]string, 0, len(resp.Buildings))
			for _, b := range resp.Buildings {
				names = append(names, b.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, 4, resp.Total)
			assert.Equal(t, len(tt.want), resp.Visible)
		})
	}
}

func TestBuildingHistogram(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/buildings/histogram?tiers=all", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode(t, rec)["histogram"].(map[string]any)
	assert.Equal(t, float64(1), hist["excellent"])
	assert.Equal(t, float64(1), hist["good"])
	assert.Equal(t, float64(1), hist["catastrophic"])
	assert.Equal(t, float64(1), hist["unregistered"])
}

func TestBuildingMarkers(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/buildings/markers?tiers=excellent", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "FeatureCollection", body["type"])
	features := body["features"].([]any)
	require.Len(t, features, 1)
	props := features[0].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "Meir Tower", props["name"])
	assert.Equal(t, "excellent", props["tier"])
}

func TestExportBuildings(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/buildings/export", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "buildings.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestBuildingsNotLoaded(t *testing.T) {
	src := building.NewSource(building.FetchFunc(func(context.Context) ([]model.Building, error) {
		return nil, eris.New("crm down")
	}), building.WithFallback(false))
	h := NewRouter(Deps{Buildings: building.NewCache(src, nil)})

	for _, target := range []string{"/api/buildings", "/api/buildings/markers"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/buildings/reload", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReloadBuildings(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/buildings/reload", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, "crm", body["origin"])
}

func TestResolvePoint(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want int
	}{
		{name: "found", id: "P1", want: http.StatusOK},
		{name: "unknown point", id: "NOPE", want: http.StatusNotFound},
		{name: "breaker open", id: "DOWN", want: http.StatusBadGateway},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/cadastre/points/"+tt.id, nil)
			require.Equal(t, tt.want, rec.Code)
			body := decode(t, rec)
			if tt.want != http.StatusOK {
				assert.NotEmpty(t, body["error"])
				return
			}
			assert.Equal(t, "Meir 24", body["name"])
			agg := body["aggregate"].(map[string]any)
			assert.Equal(t, "P1", agg["point_id"])
		})
	}
}

func TestListCategories(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/categories", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode(t, rec)["categories"].([]any)
	require.NotEmpty(t, cats)
	assert.Equal(t, "office", cats[0].(map[string]any)["id"])
}

func TestPreviewProperty(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "valid", body: property.Request{PointID: "P1", Primary: []string{"office"}, Sub: []string{"office_grade_a"}}, want: http.StatusOK},
		{name: "missing categories", body: property.Request{PointID: "P1"}, want: http.StatusBadRequest},
		{name: "sub without primary", body: property.Request{PointID: "P1", Primary: []string{"retail"}, Sub: []string{"office_grade_a"}}, want: http.StatusBadRequest},
		{name: "unknown point", body: property.Request{PointID: "NOPE", Primary: []string{"office"}, Sub: []string{"office_grade_a"}}, want: http.StatusNotFound},
		{name: "not json", body: "nope", want: http.StatusBadRequest},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/properties/preview", tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want != http.StatusOK {
				return
			}
			result := decode(t, rec)["result"].(map[string]any)
			assert.Equal(t, "Meir 24", result["name"])
			rec2 := result["record"].(map[string]any)
			assert.Equal(t, ";office;", rec2[record.FieldPrimary])
		})
	}
	assert.Empty(t, env.created, "preview never reaches the CRM")
}

func TestCreateProperty(t *testing.T) {
	env := newTestEnv(t)
	req := property.Request{PointID: "P1", Primary: []string{"office"}, Sub: []string{"office_grade_a"}}

	rec := env.do(t, http.MethodPost, "/api/properties", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "a0P000000000001", body["crm_id"])
	require.Len(t, env.created, 1)
	require.Len(t, env.store.subs, 1)

	env.crmErr = eris.New("salesforce: REQUIRED_FIELD_MISSING")
	rec = env.do(t, http.MethodPost, "/api/properties", req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body = decode(t, rec)
	assert.Contains(t, body["error"], "REQUIRED_FIELD_MISSING")
	sub := body["submission"].(map[string]any)
	assert.Equal(t, "failed", sub["status"])
	assert.Len(t, env.store.subs, 2)
}

func TestSubmissions(t *testing.T) {
	env := newTestEnv(t)
	req := property.Request{PointID: "P1", Primary: []string{"office"}, Sub: []string{"office_grade_a"}}
	rec := env.do(t, http.MethodPost, "/api/properties", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/properties?status=created&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/properties?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["submissions"])

	rec = env.do(t, http.MethodGet, "/api/properties/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "P1", decode(t, rec)["point_id"])

	rec = env.do(t, http.MethodGet, "/api/properties/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, target := range []string{"/api/properties?limit=x", "/api/properties?since=yesterday"} {
		rec = env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestUnconfiguredEndpoints(t *testing.T) {
	h := NewRouter(Deps{})
	tests := []struct {
		method, target string
	}{
		{http.MethodGet, "/api/cadastre/points/P1"},
		{http.MethodPost, "/api/properties/preview"},
		{http.MethodPost, "/api/properties"},
		{http.MethodGet, "/api/properties"},
		{http.MethodGet, "/api/properties/x"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, strings.NewReader("{}")))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tt.target)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/tiers", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `propmap_http_requests_total{code="200",method="GET",route="/api/tiers"}`)
}

func TestCORS(t *testing.T) {
	h := NewRouter(Deps{CORSOrigins: []string{"https://map.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/tiers", nil)
	req.Header.Set("Origin", "https://map.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://map.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{eris.Wrap(record.ErrValidation, "x"), http.StatusBadRequest},
		{eris.Wrap(cadastre.ErrPointNotFound, "x"), http.StatusNotFound},
		{eris.Wrap(store.ErrNotFound, "x"), http.StatusNotFound},
		{eris.Wrap(property.ErrCRM, "x"), http.StatusBadGateway},
		{eris.Wrap(resilience.ErrOpen, "x"), http.StatusBadGateway},
		{eris.Wrap(context.DeadlineExceeded, "x"), http.StatusGatewayTimeout},
		{errNoStore, http.StatusServiceUnavailable},
		{eris.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
