// Package cadastre resolves a clicked cadastral address point into the
// buildings, parcel and submarket around it.
package cadastre

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-map/internal/model"
)

const tracerName = "github.com/sells-group/property-map/internal/cadastre"

// Lookup stages, used in error messages and metric labels.
const (
	StagePoint     = "point"
	StageBuildings = "buildings"
	StageParcel    = "parcel"
	StageSubmarket = "submarket"
)

// ErrPointNotFound is returned when the requested point identifier has no
// record. No later stage is attempted.
var ErrPointNotFound = eris.New("cadastre: point not found")

// FeatureQuerier runs attribute and spatial queries against named feature
// layers. An empty result is not an error.
type FeatureQuerier interface {
	QueryFeatures(ctx context.Context, q model.FeatureQuery) ([]model.Feature, error)
}

// Recorder receives resolution metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveResolve(outcome string, d time.Duration)
	StageFailed(stage string)
	SubmarketFallback(found bool)
}

// Aggregate is the combined result of resolving one point. Point is nil only
// for aggregates that were never resolved.
type Aggregate struct {
	PointID           string             `json:"point_id"`
	Point             model.Attributes   `json:"point"`
	Buildings         []model.Attributes `json:"buildings"`
	Parcel            model.Attributes   `json:"parcel,omitempty"`
	Submarket         model.Attributes   `json:"submarket,omitempty"`
	SubmarketBuffered bool               `json:"submarket_buffered,omitempty"`
	Errors            []string           `json:"errors"`
}

// Resolved reports whether the aggregate carries a point and can be used.
func (a *Aggregate) Resolved() bool {
	return a != nil && a.Point != nil
}

// Coordinates returns the point location when both coordinates are numeric.
func (a *Aggregate) Coordinates() (model.Point, bool) {
	if a == nil {
		return model.Point{}, false
	}
	return pointCoordinates(a.Point)
}

// FirstBuilding returns the authoritative building record, or nil.
func (a *Aggregate) FirstBuilding() model.Attributes {
	if a == nil || len(a.Buildings) == 0 {
		return nil
	}
	return a.Buildings[0]
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConfig replaces the layer and key configuration.
func WithConfig(cfg Config) Option {
	return func(a *Aggregator) {
		a.cfg = cfg.withDefaults()
	}
}

// WithSubmarketBuffer overrides the half-width, in degrees, of the square used
// when the direct submarket lookup finds nothing.
func WithSubmarketBuffer(deg float64) Option {
	return func(a *Aggregator) {
		if deg > 0 {
			a.cfg.SubmarketBuffer = deg
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		a.rec = r
	}
}

// Aggregator runs the point → buildings → parcel chain and the independent
// point → submarket lookup.
type Aggregator struct {
	q   FeatureQuerier
	cfg Config
	rec Recorder
}

// NewAggregator creates an Aggregator over the given feature source.
func NewAggregator(q FeatureQuerier, opts ...Option) *Aggregator {
	a := &Aggregator{q: q, cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// chainResult is owned by the buildings/parcel goroutine until Wait returns.
type chainResult struct {
	buildings []model.Attributes
	parcel    model.Attributes
	errs      []string
}

// submarketResult is owned by the submarket goroutine until Wait returns.
type submarketResult struct {
	submarket model.Attributes
	buffered  bool
	errs      []string
}

// Resolve looks up pointID and everything attached to it. Secondary lookup
// failures are collected in Aggregate.Errors and never returned as errors;
// only a missing point (ErrPointNotFound) or a failed point query is.
func (a *Aggregator) Resolve(ctx context.Context, pointID string) (*Aggregate, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cadastre.Resolve",
		trace.WithAttributes(attribute.String("point_id", pointID)))
	defer span.End()

	log := zap.L().With(zap.String("component", "cadastre"), zap.String("point_id", pointID))

	point, err := a.lookupPoint(ctx, pointID)
	if err != nil {
		outcome := "error"
		if eris.Is(err, ErrPointNotFound) {
			outcome = "not_found"
		}
		a.observe(outcome, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	agg := &Aggregate{
		PointID:   pointID,
		Point:     point,
		Buildings: []model.Attributes{},
		Errors:    []string{},
	}

	var (
		chain chainResult
		sub   submarketResult
	)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chain = a.resolveChain(gCtx, point)
		return nil
	})

	if coords, ok := pointCoordinates(point); ok {
		g.Go(func() error {
			sub = a.resolveSubmarket(gCtx, coords)
			return nil
		})
	} else {
		log.Debug("cadastre: point has no coordinates, skipping submarket lookup")
	}

	_ = g.Wait()

	if chain.buildings != nil {
		agg.Buildings = chain.buildings
	}
	agg.Parcel = chain.parcel
	agg.Submarket = sub.submarket
	agg.SubmarketBuffered = sub.buffered
	agg.Errors = append(agg.Errors, chain.errs...)
	agg.Errors = append(agg.Errors, sub.errs...)

	outcome := "ok"
	if len(agg.Errors) > 0 {
		outcome = "partial"
		span.SetAttributes(attribute.Int("errors", len(agg.Errors)))
		log.Warn("cadastre: resolved with errors", zap.Strings("errors", agg.Errors))
	}
	a.observe(outcome, start)

	log.Debug("cadastre: resolved",
		zap.Int("buildings", len(agg.Buildings)),
		zap.Bool("parcel", agg.Parcel != nil),
		zap.Bool("submarket", agg.Submarket != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return agg, nil
}

func (a *Aggregator) lookupPoint(ctx context.Context, pointID string) (model.Attributes, error) {
	features, err := a.query(ctx, StagePoint, model.FeatureQuery{
		Layer:          a.cfg.Layers.Points,
		Where:          []model.Condition{{Field: a.cfg.Keys.PointID, Value: pointID}},
		ReturnGeometry: true,
		Limit:          1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "cadastre: query point %s", pointID)
	}
	if len(features) == 0 {
		return nil, eris.Wrapf(ErrPointNotFound, "cadastre: point %s", pointID)
	}
	return features[0].Flatten(), nil
}

// resolveChain runs the buildings stage and, when it yields a parcel
// reference, the parcel stage.
func (a *Aggregator) resolveChain(ctx context.Context, point model.Attributes) chainResult {
	var res chainResult

	buildingRef, ok := point.String(a.cfg.Keys.BuildingRef)
	if !ok {
		return res
	}

	features, err := a.query(ctx, StageBuildings, model.FeatureQuery{
		Layer:          a.cfg.Layers.Buildings,
		Where:          []model.Condition{{Field: a.cfg.Keys.BuildingID, Value: buildingRef}},
		ReturnGeometry: true,
	})
	if err != nil {
		res.errs = append(res.errs, a.stageError(StageBuildings, err))
		return res
	}
	res.buildings = flattenAll(features)
	if len(res.buildings) == 0 {
		return res
	}

	parcelRef, ok := res.buildings[0].String(a.cfg.Keys.ParcelRef)
	if !ok {
		return res
	}

	features, err = a.query(ctx, StageParcel, model.FeatureQuery{
		Layer:          a.cfg.Layers.Parcels,
		Where:          []model.Condition{{Field: a.cfg.Keys.ParcelID, Value: parcelRef}},
		ReturnGeometry: true,
		Limit:          1,
	})
	if err != nil {
		res.errs = append(res.errs, a.stageError(StageParcel, err))
		return res
	}
	if len(features) > 0 {
		res.parcel = features[0].Flatten()
	}
	return res
}

// resolveSubmarket intersects the point with the submarket layer and retries
// once with a small square around the point when the direct hit is empty.
func (a *Aggregator) resolveSubmarket(ctx context.Context, at model.Point) submarketResult {
	var res submarketResult

	features, err := a.query(ctx, StageSubmarket, model.FeatureQuery{
		Layer: a.cfg.Layers.Submarkets,
		Point: &at,
		Limit: 1,
	})
	if err != nil {
		res.errs = append(res.errs, a.stageError(StageSubmarket, err))
		return res
	}
	if len(features) > 0 {
		res.submarket = features[0].Flatten()
		return res
	}

	env := at.Buffer(a.cfg.SubmarketBuffer)
	zap.L().Debug("cadastre: no submarket at point, retrying with buffer",
		zap.Float64("lon", at.Lon), zap.Float64("lat", at.Lat),
		zap.Float64("buffer_deg", a.cfg.SubmarketBuffer),
	)
	features, err = a.query(ctx, StageSubmarket, model.FeatureQuery{
		Layer:    a.cfg.Layers.Submarkets,
		Envelope: &env,
		Limit:    1,
	})
	if err != nil {
		res.errs = append(res.errs, a.stageError(StageSubmarket, err))
		return res
	}
	found := len(features) > 0
	if a.rec != nil {
		a.rec.SubmarketFallback(found)
	}
	if found {
		res.submarket = features[0].Flatten()
		res.buffered = true
	}
	return res
}

func (a *Aggregator) query(ctx context.Context, stage string, q model.FeatureQuery) ([]model.Feature, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cadastre."+stage,
		trace.WithAttributes(
			attribute.String("layer", q.Layer),
			attribute.Bool("spatial", q.Point != nil || q.Envelope != nil),
		))
	defer span.End()

	features, err := a.q.QueryFeatures(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("features", len(features)))
	return features, nil
}

func (a *Aggregator) stageError(stage string, err error) string {
	zap.L().Warn("cadastre: stage lookup failed",
		zap.String("component", "cadastre"),
		zap.String("stage", stage),
		zap.Error(err),
	)
	if a.rec != nil {
		a.rec.StageFailed(stage)
	}
	return fmt.Sprintf("%s lookup failed: %v", stage, err)
}

func (a *Aggregator) observe(outcome string, start time.Time) {
	if a.rec != nil {
		a.rec.ObserveResolve(outcome, time.Since(start))
	}
}

func flattenAll(features []model.Feature) []model.Attributes {
	out := make([]model.Attributes, len(features))
	for i, f := range features {
		out[i] = f.Flatten()
	}
	return out
}

func pointCoordinates(attrs model.Attributes) (model.Point, bool) {
	lon, okLon := attrs.Float(model.AttrLongitude)
	lat, okLat := attrs.Float(model.AttrLatitude)
	if !okLon || !okLat {
		return model.Point{}, false
	}
	return model.Point{Lon: lon, Lat: lat}, true
}
