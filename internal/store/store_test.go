package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{20, 20},
		{MaxListLimit, MaxListLimit},
		{MaxListLimit + 1, MaxListLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.in), "clampLimit(%d)", tt.in)
	}
}

func TestPrepare_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	s := &Submission{PointID: "pt-1", Name: "Meir 24"}

	r, err := prepare(s, now)
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)
	assert.Equal(t, now.UTC(), s.CreatedAt)
	assert.Equal(t, StatusCreated, s.Status)
	assert.Equal(t, "{}", string(r.Record))
	assert.Equal(t, "[]", string(r.Warnings))
}

func TestPrepare_KeepsExplicitValues(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Submission{ID: "fixed", CreatedAt: at, Status: StatusFailed}

	r, err := prepare(s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "fixed", r.ID)
	assert.Equal(t, at, r.CreatedAt)
	assert.Equal(t, "failed", r.Status)
}

func TestPrepare_UnencodableRecord(t *testing.T) {
	_, err := prepare(&Submission{Record: map[string]any{"bad": make(chan int)}}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal record")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}
