// Package api serves the map and property creation endpoints over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/property-map/internal/building"
	"github.com/sells-group/property-map/internal/monitoring"
	"github.com/sells-group/property-map/internal/property"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/store"
)

// Deps are the components behind the handlers. Submitter and Store may be
// nil; the endpoints that need them then answer 503.
type Deps struct {
	Buildings   *building.Cache
	Resolver    property.Resolver
	Catalog     *record.Catalog
	Submitter   *property.Service
	Store       store.Store
	Metrics     *monitoring.Metrics
	CORSOrigins []string
	// ResolveTimeout bounds a single point resolution. Zero means no bound.
	ResolveTimeout time.Duration
}

// NewRouter creates and configures the chi router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Logger)
	r.Use(d.Metrics.Middleware)
	r.Use(monitoring.TraceMiddleware)
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	h := NewHandlers(d)

	r.Get("/health", h.Health)
	r.Handle("/metrics", d.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/tiers", h.ListTiers)
		r.Route("/buildings", func(r chi.Router) {
			r.Get("/", h.ListBuildings)
			r.Get("/histogram", h.BuildingHistogram)
			r.Get("/markers", h.BuildingMarkers)
			r.Get("/export", h.ExportBuildings)
			r.Post("/reload", h.ReloadBuildings)
		})
		r.Get("/cadastre/points/{id}", h.ResolvePoint)
		r.Get("/categories", h.ListCategories)
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.ListSubmissions)
			r.Post("/", h.CreateProperty)
			r.Post("/preview", h.PreviewProperty)
			r.Get("/{id}", h.GetSubmission)
		})
	})

	return r
}
