// Package property creates CRM properties from clicked cadastral points and
// keeps an audit trail of every attempt.
package property

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/monitoring"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/store"
)

// ErrCRM marks a rejected or failed CRM insert.
var ErrCRM = eris.New("property: crm insert failed")

// Resolver resolves a cadastral point into an aggregate.
type Resolver interface {
	Resolve(ctx context.Context, pointID string) (*cadastre.Aggregate, error)
}

// Creator inserts a property record into the CRM and returns its id.
type Creator interface {
	CreateProperty(ctx context.Context, rec map[string]any) (string, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, rec map[string]any) (string, error)

// CreateProperty calls f.
func (f CreatorFunc) CreateProperty(ctx context.Context, rec map[string]any) (string, error) {
	return f(ctx, rec)
}

// Saver persists submissions.
type Saver interface {
	SaveSubmission(ctx context.Context, s *store.Submission) error
}

// Request names the clicked point and the chosen categories.
type Request struct {
	PointID string   `json:"point_id"`
	Primary []string `json:"primary_categories"`
	Sub     []string `json:"sub_categories"`
}

// Preview is a built record that has not been sent.
type Preview struct {
	Aggregate *cadastre.Aggregate `json:"aggregate"`
	Result    *record.Result      `json:"result"`
}

// Option configures a Service.
type Option func(*Service)

// WithSaver logs every submission attempt.
func WithSaver(s Saver) Option {
	return func(svc *Service) {
		svc.saver = s
	}
}

// WithMetrics counts submissions.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithBuilder replaces the default record builder.
func WithBuilder(b *record.Builder) Option {
	return func(svc *Service) {
		svc.builder = b
	}
}

// Service runs the submit flow.
type Service struct {
	resolver Resolver
	catalog  *record.Catalog
	crm      Creator
	builder  *record.Builder
	saver    Saver
	metrics  *monitoring.Metrics
}

// NewService creates a Service. crm may be nil for preview-only use.
func NewService(r Resolver, catalog *record.Catalog, crm Creator, opts ...Option) *Service {
	s := &Service{
		resolver: r,
		catalog:  catalog,
		crm:      crm,
		builder:  record.NewBuilder(record.WithCatalog(catalog)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview validates req, resolves its point and builds the record without
// sending it. Errors wrap record.ErrValidation or cadastre.ErrPointNotFound
// for caller mistakes.
func (s *Service) Preview(ctx context.Context, req Request) (*Preview, error) {
	ctx, span := monitoring.StartSpan(ctx, "property.preview", attribute.String("point_id", req.PointID))
	p, err := s.preview(ctx, req)
	monitoring.EndSpan(span, err)
	return p, err
}

func (s *Service) preview(ctx context.Context, req Request) (*Preview, error) {
	pointID := strings.TrimSpace(req.PointID)
	if pointID == "" {
		return nil, eris.Wrap(record.ErrValidation, "property: point id is required")
	}
	sel, err := s.catalog.Select(req.Primary, req.Sub)
	if err != nil {
		return nil, err
	}
	primary, sub := sel.Primary(), sel.Sub()

	agg, err := s.resolver.Resolve(ctx, pointID)
	if err != nil {
		return nil, eris.Wrapf(err, "property: resolve %s", pointID)
	}
	if err := record.Validate(agg, primary, sub); err != nil {
		return nil, err
	}
	res, err := s.builder.Build(agg, primary, sub)
	if err != nil {
		return nil, err
	}
	return &Preview{Aggregate: agg, Result: res}, nil
}

// Submit previews req, inserts the record into the CRM and logs the attempt.
// A failed insert is logged with status failed and returned wrapping ErrCRM.
// A failure to write the log after a successful insert is only logged, since
// the CRM record already exists.
func (s *Service) Submit(ctx context.Context, req Request) (*store.Submission, error) {
	ctx, span := monitoring.StartSpan(ctx, "property.submit", attribute.String("point_id", req.PointID))
	sub, err := s.submit(ctx, req)
	monitoring.EndSpan(span, err)
	return sub, err
}

func (s *Service) submit(ctx context.Context, req Request) (*store.Submission, error) {
	if s.crm == nil {
		return nil, eris.New("property: no CRM configured")
	}
	p, err := s.preview(ctx, req)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "property"),
		zap.String("point_id", p.Aggregate.PointID),
		zap.String("name", p.Result.Name),
	)

	sub := &store.Submission{
		PointID:  p.Aggregate.PointID,
		Name:     p.Result.Name,
		Record:   p.Result.Record,
		Summary:  p.Result.Summary,
		Warnings: p.Aggregate.Errors,
	}

	id, crmErr := s.crm.CreateProperty(ctx, p.Result.Record)
	if crmErr != nil {
		sub.Status = store.StatusFailed
		sub.Error = crmErr.Error()
	} else {
		sub.Status = store.StatusCreated
		sub.CRMID = id
	}

	if s.saver != nil {
		if err := s.saver.SaveSubmission(ctx, sub); err != nil {
			log.Error("property: failed to log submission", zap.Error(err))
		}
	}
	s.metrics.SubmissionRecorded(string(sub.Status))

	if crmErr != nil {
		log.Warn("property: crm insert failed", zap.Error(crmErr))
		return sub, eris.Wrap(ErrCRM, crmErr.Error())
	}
	log.Info("property: created", zap.String("crm_id", id), zap.Int("warnings", len(sub.Warnings)))
	return sub, nil
}
