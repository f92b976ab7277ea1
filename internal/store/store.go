// Package store keeps the audit trail of property records submitted to the
// CRM.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-map/internal/db"
)

// Status is the outcome of a submission.
type Status string

const (
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
)

// Default and maximum page sizes for ListSubmissions.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrNotFound is returned when a submission id is unknown.
var ErrNotFound = eris.New("store: submission not found")

// Submission is one attempt to create a CRM property from a clicked point.
type Submission struct {
	ID        string         `json:"id"`
	PointID   string         `json:"point_id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	CRMID     string         `json:"crm_id,omitempty"`
	Record    map[string]any `json:"record"`
	Summary   string         `json:"summary"`
	Warnings  []string       `json:"warnings,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows ListSubmissions. Results are newest first.
type Filter struct {
	PointID      string    `json:"point_id,omitempty"`
	Status       Status    `json:"status,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// Store persists submissions.
type Store interface {
	// SaveSubmission inserts s, assigning ID and CreatedAt when empty.
	SaveSubmission(ctx context.Context, s *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	ListSubmissions(ctx context.Context, f Filter) ([]Submission, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, poolCfg *db.PoolConfig) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "property-map.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

// row is the flattened storage form shared by both drivers.
type row struct {
	ID        string    `db:"id"`
	PointID   string    `db:"point_id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	CRMID     string    `db:"crm_id"`
	Record    []byte    `db:"record"`
	Summary   string    `db:"summary"`
	Warnings  []byte    `db:"warnings"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
}

func prepare(s *Submission, now time.Time) (*row, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now.UTC()
	}
	if s.Status == "" {
		s.Status = StatusCreated
	}

	record := s.Record
	if record == nil {
		record = map[string]any{}
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal record")
	}
	warnings := s.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal warnings")
	}

	return &row{
		ID:        s.ID,
		PointID:   s.PointID,
		Name:      s.Name,
		Status:    string(s.Status),
		CRMID:     s.CRMID,
		Record:    recordJSON,
		Summary:   s.Summary,
		Warnings:  warningsJSON,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
	}, nil
}

func (r *row) submission() (*Submission, error) {
	s := &Submission{
		ID:        r.ID,
		PointID:   r.PointID,
		Name:      r.Name,
		Status:    Status(r.Status),
		CRMID:     r.CRMID,
		Summary:   r.Summary,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if len(r.Record) > 0 {
		if err := json.Unmarshal(r.Record, &s.Record); err != nil {
			return nil, eris.Wrapf(err, "store: decode record of %s", r.ID)
		}
	}
	if len(r.Warnings) > 0 {
		if err := json.Unmarshal(r.Warnings, &s.Warnings); err != nil {
			return nil, eris.Wrapf(err, "store: decode warnings of %s", r.ID)
		}
	}
	if len(s.Warnings) == 0 {
		s.Warnings = nil
	}
	return s, nil
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}
