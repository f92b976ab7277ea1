package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using sqlx over modernc.org/sqlite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id         TEXT PRIMARY KEY,
	point_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	crm_id     TEXT NOT NULL DEFAULT '',
	record     BLOB NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	warnings   BLOB NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_point_id ON submissions(point_id);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
`

const submissionColumns = `id, point_id, name, status, crm_id, record, summary, warnings, error, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSubmission(ctx context.Context, sub *Submission) error {
	r, err := prepare(sub, clock(s.now))
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES (:id, :point_id, :name, :status, :crm_id, :record, :summary, :warnings, :error, :created_at)`,
		r,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert submission %s", sub.ID)
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}
	return r.submission()
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, f Filter) ([]Submission, error) {
	var (
		conds []string
		args  []any
	)
	if f.PointID != "" {
		conds = append(conds, "point_id = ?")
		args = append(args, f.PointID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedAfter.UTC())
	}

	q := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}

	out := make([]Submission, 0, len(rows))
	for i := range rows {
		sub, err := rows[i].submission()
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, nil
}
