// Package mapview holds the state behind one interactive map: the building
// set, the filter selection, the debounced search box and the location the
// user clicked last.
package mapview

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/filter"
	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/quality"
)

// Resolver resolves a clicked cadastral point.
type Resolver interface {
	Resolve(ctx context.Context, pointID string) (*cadastre.Aggregate, error)
}

// View is a consistent snapshot of what the map shows.
type View struct {
	Visible   []model.Building     `json:"visible"`
	Histogram map[quality.Tier]int `json:"histogram"`
	Total     int                  `json:"total"`
	State     filter.State         `json:"state"`
	Typed     string               `json:"typed"`
	Searching bool                 `json:"searching"`
}

// Resolution is the outcome of one click. Stale is set when a newer click
// arrived before this one finished; stale resolutions are never stored.
type Resolution struct {
	Seq       uint64              `json:"seq"`
	PointID   string              `json:"point_id"`
	Aggregate *cadastre.Aggregate `json:"aggregate,omitempty"`
	Err       error               `json:"-"`
	Stale     bool                `json:"stale"`
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce passes options to the search debouncer.
func WithDebounce(opts ...filter.DebounceOption) Option {
	return func(s *Session) {
		s.debounceOpts = append(s.debounceOpts, opts...)
	}
}

// OnChange registers a callback run with a fresh View after every change to
// the buildings, the tier selection or the applied search term.
func OnChange(fn func(View)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// OnResolved registers a callback run for every current (non-stale)
// resolution.
func OnResolved(fn func(Resolution)) Option {
	return func(s *Session) {
		s.onResolved = fn
	}
}

// Session is the single owner of the map state. All mutations go through its
// methods; callbacks run outside its lock.
type Session struct {
	mu       sync.Mutex
	all      []model.Building
	state    filter.State
	visible  []model.Building
	resolver Resolver
	search   *filter.Debouncer

	seq     uint64
	current *Resolution
	clicks  sync.WaitGroup

	debounceOpts []filter.DebounceOption
	onChange     func(View)
	onResolved   func(Resolution)
}

// NewSession creates a session with the default tier selection and no
// buildings.
func NewSession(r Resolver, opts ...Option) *Session {
	s := &Session{
		resolver: r,
		state:    filter.NewState(),
		visible:  []model.Building{},
	}
	for _, opt := range opts {
		opt(s)
	}
	debounce := append([]filter.DebounceOption{}, s.debounceOpts...)
	debounce = append(debounce, filter.WithOnApply(s.applySearch))
	s.search = filter.NewDebouncer(debounce...)
	return s
}

// SetBuildings replaces the building set wholesale.
func (s *Session) SetBuildings(bs []model.Building) {
	s.mu.Lock()
	s.all = bs
	s.recomputeLocked()
	v := s.viewLocked()
	s.mu.Unlock()
	s.changed(v)
}

// SetTier enables or disables one tier.
func (s *Session) SetTier(t quality.Tier, enabled bool) {
	s.mu.Lock()
	s.state = s.state.WithTier(t, enabled)
	s.recomputeLocked()
	v := s.viewLocked()
	s.mu.Unlock()
	s.changed(v)
}

// Type feeds search box input to the debouncer. The filter changes once the
// input has been quiet long enough, or at once when text is empty.
func (s *Session) Type(text string) {
	s.search.Input(text)
}

// FlushSearch applies pending search input immediately.
func (s *Session) FlushSearch() {
	s.search.Flush()
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Click resolves pointID and makes it the current location unless a newer
// click superseded it meanwhile. It blocks until the resolution finishes.
func (s *Session) Click(ctx context.Context, pointID string) Resolution {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	start := time.Now()
	agg, err := s.resolver.Resolve(ctx, pointID)
	res := Resolution{Seq: seq, PointID: pointID, Aggregate: agg, Err: err}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		res.Stale = true
		zap.L().Debug("mapview: discarding stale resolution",
			zap.String("component", "mapview"),
			zap.String("point_id", pointID),
			zap.Uint64("seq", seq),
			zap.Duration("elapsed", time.Since(start)),
		)
		return res
	}
	s.current = &res
	fn := s.onResolved
	s.mu.Unlock()

	if fn != nil {
		fn(res)
	}
	return res
}

// Current returns the latest accepted resolution, if any.
func (s *Session) Current() (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Resolution{}, false
	}
	return *s.current, true
}

// Attach subscribes the session to a click source. Each click is resolved on
// its own goroutine so a slow lookup never blocks the source. The returned
// function unsubscribes; Wait blocks until the clicks already delivered have
// finished.
func (s *Session) Attach(ctx context.Context, src ClickSource) func() {
	return src.Subscribe(func(pointID string) {
		s.clicks.Add(1)
		go func() {
			defer s.clicks.Done()
			s.Click(ctx, pointID)
		}()
	})
}

// Wait blocks until every click received through Attach is resolved.
func (s *Session) Wait() {
	s.clicks.Wait()
}

// Close stops any pending search timer.
func (s *Session) Close() {
	s.search.Cancel()
}

func (s *Session) applySearch(term string) {
	s.mu.Lock()
	s.state.Search = term
	s.recomputeLocked()
	v := s.viewLocked()
	s.mu.Unlock()
	s.changed(v)
}

func (s *Session) recomputeLocked() {
	s.visible = filter.Apply(s.all, s.state)
}

func (s *Session) viewLocked() View {
	return View{
		Visible:   s.visible,
		Histogram: filter.Histogram(s.visible),
		Total:     len(s.all),
		State:     s.state.Clone(),
		Typed:     s.search.Buffered(),
		Searching: s.search.Searching(),
	}
}

func (s *Session) changed(v View) {
	if s.onChange != nil {
		s.onChange(v)
	}
}
