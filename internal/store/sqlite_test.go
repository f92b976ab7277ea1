package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := &Submission{
		PointID:  "pt-1",
		Name:     "Meir 24",
		CRMID:    "a0X000000000001",
		Record:   map[string]any{"Name": "Meir 24", "Longitude__c": 4.4051},
		Summary:  "Meir 24\n  Point id: pt-1",
		Warnings: []string{"submarket: timeout"},
	}
	require.NoError(t, st.SaveSubmission(ctx, sub))
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.CreatedAt.IsZero())
	assert.Equal(t, StatusCreated, sub.Status)

	got, err := st.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "pt-1", got.PointID)
	assert.Equal(t, "Meir 24", got.Name)
	assert.Equal(t, StatusCreated, got.Status)
	assert.Equal(t, "a0X000000000001", got.CRMID)
	assert.Equal(t, "Meir 24", got.Record["Name"])
	assert.InDelta(t, 4.4051, got.Record["Longitude__c"], 1e-9)
	assert.Equal(t, []string{"submarket: timeout"}, got.Warnings)
	assert.WithinDuration(t, sub.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLite_SaveFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := &Submission{PointID: "pt-2", Name: "Kouter 7", Status: StatusFailed, Error: "sf: create Property__c: 502"}
	require.NoError(t, st.SaveSubmission(ctx, sub))

	got, err := st.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "sf: create Property__c: 502", got.Error)
	assert.Empty(t, got.Record)
	assert.Nil(t, got.Warnings)
}

func TestSQLite_GetNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSubmission(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_DuplicateID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveSubmission(ctx, &Submission{ID: "dup", PointID: "pt", Name: "A"}))
	err := st.SaveSubmission(ctx, &Submission{ID: "dup", PointID: "pt", Name: "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert submission dup")
}

func TestSQLite_ListSubmissions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	subs := []*Submission{
		{ID: "s1", PointID: "pt-1", Name: "Meir 24", CreatedAt: base},
		{ID: "s2", PointID: "pt-2", Name: "Kouter 7", Status: StatusFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "s3", PointID: "pt-1", Name: "Meir 24", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, s := range subs {
		require.NoError(t, st.SaveSubmission(ctx, s))
	}

	ids := func(list []Submission) []string {
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = s.ID
		}
		return out
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"s3", "s2", "s1"}},
		{"by point", Filter{PointID: "pt-1"}, []string{"s3", "s1"}},
		{"by status", Filter{Status: StatusFailed}, []string{"s2"}},
		{"point and status", Filter{PointID: "pt-1", Status: StatusFailed}, []string{}},
		{"limit", Filter{Limit: 2}, []string{"s3", "s2"}},
		{"created after", Filter{CreatedAfter: base.Add(time.Minute)}, []string{"s3", "s2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.ListSubmissions(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}
