// Package building loads the building set shown on the map.
package building

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/model"
)

//go:embed sample.json
var sampleJSON []byte

// Origin tells where a building set came from.
type Origin string

const (
	OriginCRM    Origin = "crm"
	OriginSample Origin = "sample"
)

// Fetcher loads the full building set from the system of record.
type Fetcher interface {
	FetchBuildings(ctx context.Context) ([]model.Building, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context) ([]model.Building, error)

// FetchBuildings calls f.
func (f FetchFunc) FetchBuildings(ctx context.Context) ([]model.Building, error) {
	return f(ctx)
}

// Set is one loaded building set. It is replaced wholesale on reload and
// never modified in place.
type Set struct {
	Buildings []model.Building `json:"buildings"`
	Origin    Origin           `json:"origin"`
	LoadedAt  time.Time        `json:"loaded_at"`
	// FetchError holds the CRM failure that caused a sample fallback.
	FetchError string `json:"fetch_error,omitempty"`
}

// Option configures a Source.
type Option func(*Source)

// WithFallback controls whether a failed fetch falls back to the embedded
// sample set. Enabled by default.
func WithFallback(enabled bool) Option {
	return func(s *Source) {
		s.fallback = enabled
	}
}

// Source loads buildings from a Fetcher, falling back to the embedded sample
// set when the fetch fails.
type Source struct {
	fetcher  Fetcher
	fallback bool
	now      func() time.Time
}

// NewSource creates a Source. A nil fetcher always yields the sample set.
func NewSource(f Fetcher, opts ...Option) *Source {
	s := &Source{fetcher: f, fallback: true, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the current building set.
func (s *Source) Load(ctx context.Context) (*Set, error) {
	log := zap.L().With(zap.String("component", "building"))

	if s.fetcher == nil {
		log.Info("building: no CRM configured, using sample set")
		return s.sampleSet("")
	}

	bs, err := s.fetcher.FetchBuildings(ctx)
	if err == nil {
		return &Set{Buildings: bs, Origin: OriginCRM, LoadedAt: s.now()}, nil
	}
	if !s.fallback || ctx.Err() != nil {
		return nil, eris.Wrap(err, "building: fetch")
	}

	log.Warn("building: fetch failed, falling back to sample set", zap.Error(err))
	return s.sampleSet(err.Error())
}

func (s *Source) sampleSet(fetchErr string) (*Set, error) {
	bs, err := Sample()
	if err != nil {
		return nil, err
	}
	return &Set{Buildings: bs, Origin: OriginSample, LoadedAt: s.now(), FetchError: fetchErr}, nil
}

// Sample returns a fresh copy of the embedded sample building set.
func Sample() ([]model.Building, error) {
	var bs []model.Building
	dec := json.NewDecoder(bytes.NewReader(sampleJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bs); err != nil {
		return nil, eris.Wrap(err, "building: decode sample set")
	}
	return bs, nil
}
