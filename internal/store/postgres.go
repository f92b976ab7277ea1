package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-map/internal/db"
)

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	point_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	crm_id     TEXT NOT NULL DEFAULT '',
	record     JSONB NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	warnings   JSONB NOT NULL DEFAULT '[]'::jsonb,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_point_id ON submissions(point_id);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSubmission(ctx context.Context, sub *Submission) error {
	r, err := prepare(sub, clock(s.now))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.PointID, r.Name, r.Status, r.CRMID, r.Record, r.Summary, r.Warnings, r.Error, r.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert submission %s", sub.ID)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	r, err := scanRow(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	return r.submission()
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, f Filter) ([]Submission, error) {
	var (
		conds []string
		args  []any
	)
	if f.PointID != "" {
		args = append(args, f.PointID)
		conds = append(conds, fmt.Sprintf("point_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.CreatedAfter.IsZero() {
		args = append(args, f.CreatedAfter.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	q := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(f.Limit))
	q += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		sub, err := r.submission()
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate submissions")
	}
	return out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRow(sc scannable) (*row, error) {
	var r row
	err := sc.Scan(&r.ID, &r.PointID, &r.Name, &r.Status, &r.CRMID, &r.Record,
		&r.Summary, &r.Warnings, &r.Error, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
