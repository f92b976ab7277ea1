// Package filter narrows a building set by quality tier and search term, and
// debounces typed search input.
package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/property-map/internal/model"
	"github.com/sells-group/property-map/internal/quality"
)

// State is the current tier selection plus the applied search term. The term
// being typed lives in a Debouncer until it is applied.
type State struct {
	Tiers  map[quality.Tier]bool `json:"tiers"`
	Search string                `json:"search"`
}

// NewState returns the map's initial state: default tier visibility and no
// search term.
func NewState() State {
	return State{Tiers: quality.DefaultVisibility()}
}

// AllTiers returns a state with every tier enabled and no search term.
func AllTiers() State {
	tiers := make(map[quality.Tier]bool)
	for _, t := range quality.All() {
		tiers[t] = true
	}
	return State{Tiers: tiers}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	tiers := make(map[quality.Tier]bool, len(s.Tiers))
	for k, v := range s.Tiers {
		tiers[k] = v
	}
	return State{Tiers: tiers, Search: s.Search}
}

// WithTier returns a copy of s with tier t set to enabled.
func (s State) WithTier(t quality.Tier, enabled bool) State {
	out := s.Clone()
	out.Tiers[t] = enabled
	return out
}

// Enabled reports whether tier t is selected.
func (s State) Enabled(t quality.Tier) bool {
	return s.Tiers[t]
}

// Apply returns the buildings whose tier is enabled in st and that match the
// applied search term. The original order is preserved.
func Apply(all []model.Building, st State) []model.Building {
	out := make([]model.Building, 0, len(all))
	m := newMatcher(st.Search)
	for _, b := range all {
		if !st.Enabled(quality.Classify(b)) {
			continue
		}
		if !m.match(b) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Histogram counts buildings per tier. Every tier is present in the result,
// zero when no building falls into it.
func Histogram(bs []model.Building) map[quality.Tier]int {
	out := make(map[quality.Tier]int, len(quality.All()))
	for _, t := range quality.All() {
		out[t] = 0
	}
	for _, b := range bs {
		out[quality.Classify(b)]++
	}
	return out
}

// matcher performs case-insensitive substring matching. A cases.Caser is
// stateful, so each Apply call gets its own.
type matcher struct {
	fold  cases.Caser
	term  string
	empty bool
}

func newMatcher(term string) *matcher {
	fold := cases.Fold()
	term = strings.TrimSpace(term)
	return &matcher{
		fold:  fold,
		term:  fold.String(term),
		empty: term == "",
	}
}

func (m *matcher) match(b model.Building) bool {
	if m.empty {
		return true
	}
	for _, field := range []string{b.Name, b.Address(), b.ID, b.TenantsText(), b.OwnerText()} {
		if field == "" {
			continue
		}
		if strings.Contains(m.fold.String(field), m.term) {
			return true
		}
	}
	return false
}
