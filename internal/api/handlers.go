package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/export"
	"github.com/sells-group/property-map/internal/filter"
	"github.com/sells-group/property-map/internal/geo"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/property"
	"github.com/sells-group/property-map/internal/quality"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/resilience"
	"github.com/sells-group/property-map/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	errNoBuildings   = eris.New("api: building set not loaded")
	errNoSubmitter   = eris.New("api: property creation not configured")
	errNoStore       = eris.New("api: submission log not configured")
	errNoResolver    = eris.New("api: cadastral lookups not configured")
	errBadTierFilter = eris.New("api: unknown tier")
)

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	d Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Catalog == nil {
		d.Catalog = record.DefaultCatalog()
	}
	return &Handlers{d: d}
}

// buildingsResponse is the filtered building list.
type buildingsResponse struct {
	Buildings  []model.Building     `json:"buildings"`
	Histogram  map[quality.Tier]int `json:"histogram"`
	Total      int                  `json:"total"`
	Visible    int                  `json:"visible"`
	Origin     building.Origin      `json:"origin"`
	LoadedAt   time.Time            `json:"loaded_at"`
	FetchError string               `json:"fetch_error,omitempty"`
	State      filter.State         `json:"state"`
}

// Health reports liveness and whether a building set is loaded.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.d.Buildings != nil {
		if set := h.d.Buildings.Current(); set != nil {
			resp["buildings"] = len(set.Buildings)
			resp["origin"] = set.Origin
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListTiers returns the tier style table in display order.
func (h *Handlers) ListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": quality.Styles()})
}

// ListBuildings returns the buildings matching the tiers and q parameters.
func (h *Handlers) ListBuildings(w http.ResponseWriter, r *http.Request) {
	set, visible, st, ok := h.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildingsResponse{
		Buildings:  visible,
		Histogram:  filter.Histogram(visible),
		Total:      len(set.Buildings),
		Visible:    len(visible),
		Origin:     set.Origin,
		LoadedAt:   set.LoadedAt,
		FetchError: set.FetchError,
		State:      st,
	})
}

// BuildingHistogram returns per-tier counts of the filtered set.
func (h *Handlers) BuildingHistogram(w http.ResponseWriter, r *http.Request) {
	_, visible, _, ok := h.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"histogram": filter.Histogram(visible),
		"visible":   len(visible),
	})
}

// BuildingMarkers returns the filtered set as a GeoJSON FeatureCollection.
func (h *Handlers) BuildingMarkers(w http.ResponseWriter, r *http.Request) {
	_, visible, _, ok := h.filtered(w, r)
	if !ok {
		return
	}
	fc := geo.MarkerCollection(quality.Markers(visible))
	data, err := json.Marshal(fc)
	if err != nil {
		writeError(w, eris.Wrap(err, "api: encode markers"))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ExportBuildings streams the filtered set as an xlsx workbook.
func (h *Handlers) ExportBuildings(w http.ResponseWriter, r *http.Request) {
	_, visible, _, ok := h.filtered(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="buildings.xlsx"`)
	if err := export.WriteXLSX(w, visible); err != nil {
		// Headers are already sent; the client sees a truncated file.
		zap.L().Error("api: export failed", zap.String("component", "api"), zap.Error(err))
	}
}

// ReloadBuildings reloads the building set from its source.
func (h *Handlers) ReloadBuildings(w http.ResponseWriter, r *http.Request) {
	if h.d.Buildings == nil {
		writeError(w, errNoBuildings)
		return
	}
	set, err := h.d.Buildings.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(set.Buildings),
		"origin":      set.Origin,
		"loaded_at":   set.LoadedAt,
		"fetch_error": set.FetchError,
	})
}

// ResolvePoint resolves one cadastral point into its aggregate.
func (h *Handlers) ResolvePoint(w http.ResponseWriter, r *http.Request) {
	if h.d.Resolver == nil {
		writeError(w, errNoResolver)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, eris.Wrap(record.ErrValidation, "api: point id is required"))
		return
	}
	ctx, cancel := h.resolveContext(r.Context())
	defer cancel()

	agg, err := h.d.Resolver.Resolve(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"aggregate": agg,
		"name":      record.DisplayName(agg),
	})
}

// ListCategories returns the category catalog.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.d.Catalog.Categories()})
}

// PreviewProperty builds the CRM record for a point without sending it.
func (h *Handlers) PreviewProperty(w http.ResponseWriter, r *http.Request) {
	if h.d.Submitter == nil {
		writeError(w, errNoSubmitter)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.resolveContext(r.Context())
	defer cancel()

	p, err := h.d.Submitter.Preview(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProperty inserts a property into the CRM. A CRM failure answers 502
// with the logged submission attached.
func (h *Handlers) CreateProperty(w http.ResponseWriter, r *http.Request) {
	if h.d.Submitter == nil {
		writeError(w, errNoSubmitter)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.resolveContext(r.Context())
	defer cancel()

	sub, err := h.d.Submitter.Submit(ctx, req)
	if err != nil {
		if sub != nil {
			writeJSON(w, statusFor(err), map[string]any{
				"error":      err.Error(),
				"submission": sub,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubmissions lists logged submissions, newest first.
func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.d.Store == nil {
		writeError(w, errNoStore)
		return
	}
	q := r.URL.Query()
	f := store.Filter{
		PointID: strings.TrimSpace(q.Get("point_id")),
		Status:  store.Status(strings.TrimSpace(q.Get("status"))),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, eris.Wrapf(record.ErrValidation, "api: invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, eris.Wrapf(record.ErrValidation, "api: invalid since %q", v))
			return
		}
		f.CreatedAfter = t
	}

	subs, err := h.d.Store.ListSubmissions(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []store.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}

// GetSubmission returns one logged submission.
func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if h.d.Store == nil {
		writeError(w, errNoStore)
		return
	}
	sub, err := h.d.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// filtered applies the tiers and q query parameters to the current set.
// tiers is a comma list of tier names, or "all"; absent means the default
// selection.
func (h *Handlers) filtered(w http.ResponseWriter, r *http.Request) (*building.Set, []model.Building, filter.State, bool) {
	var set *building.Set
	if h.d.Buildings != nil {
		set = h.d.Buildings.Current()
	}
	if set == nil {
		writeError(w, errNoBuildings)
		return nil, nil, filter.State{}, false
	}

	q := r.URL.Query()
	st, err := parseState(q.Get("tiers"))
	if err != nil {
		writeError(w, err)
		return nil, nil, filter.State{}, false
	}
	st.Search = q.Get("q")
	return set, filter.Apply(set.Buildings, st), st, true
}

func (h *Handlers) resolveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.d.ResolveTimeout > 0 {
		return context.WithTimeout(ctx, h.d.ResolveTimeout)
	}
	return context.WithCancel(ctx)
}

func parseState(tiers string) (filter.State, error) {
	tiers = strings.TrimSpace(tiers)
	switch {
	case tiers == "":
		return filter.NewState(), nil
	case strings.EqualFold(tiers, "all"):
		return filter.AllTiers(), nil
	}

	st := filter.State{Tiers: make(map[quality.Tier]bool)}
	for _, name := range strings.Split(tiers, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, ok := quality.ParseTier(name)
		if !ok {
			return filter.State{}, eris.Wrapf(errBadTierFilter, "api: tiers %q", name)
		}
		st.Tiers[t] = true
	}
	return st, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (property.Request, bool) {
	var req property.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, eris.Wrap(record.ErrValidation, "api: invalid request body"))
		return req, false
	}
	return req, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, record.ErrValidation), eris.Is(err, errBadTierFilter):
		return http.StatusBadRequest
	case eris.Is(err, cadastre.ErrPointNotFound), eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, property.ErrCRM), eris.Is(err, resilience.ErrOpen):
		return http.StatusBadGateway
	case eris.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case eris.Is(err, errNoBuildings), eris.Is(err, errNoSubmitter), eris.Is(err, errNoStore),
		eris.Is(err, errNoResolver):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		zap.L().Error("api: handler error", zap.String("component", "api"), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
