// Package quality classifies building records by data completeness and maps
// the resulting tiers onto marker colors.
package quality

import (
	"strings"

	"github.com/sells-group/property-map/internal/model"
)

// Tier is the data-quality classification of a building record.
type Tier string

// Tiers, ordered by descending data completeness. Unregistered is orthogonal:
// it marks absence from the CRM rather than incomplete data.
const (
	Excellent    Tier = "excellent"
	Good         Tier = "good"
	OK           Tier = "ok"
	Bad          Tier = "bad"
	Catastrophic Tier = "catastrophic"
	Unregistered Tier = "unregistered"
)

var allTiers = []Tier{Excellent, Good, OK, Bad, Catastrophic, Unregistered}

// All returns every tier in display order.
func All() []Tier {
	out := make([]Tier, len(allTiers))
	copy(out, allTiers)
	return out
}

// Valid reports whether t is one of the six known tiers.
func (t Tier) Valid() bool {
	for _, known := range allTiers {
		if t == known {
			return true
		}
	}
	return false
}

// Label is the human-readable tier name.
func (t Tier) Label() string {
	switch t {
	case Excellent:
		return "Excellent"
	case Good:
		return "Good"
	case OK:
		return "OK"
	case Bad:
		return "Bad"
	case Catastrophic:
		return "Catastrophic"
	case Unregistered:
		return "Unregistered"
	default:
		return string(t)
	}
}

// ParseTier converts a tier name (case-insensitive, label or value) to a Tier.
func ParseTier(s string) (Tier, bool) {
	for _, t := range allTiers {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, t.Label()) {
			return t, true
		}
	}
	return "", false
}

// Classify returns the quality tier of b.
// Rules, evaluated in order, the first failing check decides:
//   - no CRM id: unregistered
//   - no cadastral address reference: catastrophic
//   - no surface (absent or exactly zero): bad
//   - no tenants: ok
//   - no owner: good
//   - otherwise: excellent
//
// Whitespace-only text counts as absent.
func Classify(b model.Building) Tier {
	if !b.Registered() {
		return Unregistered
	}
	if model.IsBlank(b.CadastralRef) {
		return Catastrophic
	}
	if b.Surface == nil || *b.Surface == 0 {
		return Bad
	}
	if model.IsBlank(b.TenantsText()) {
		return OK
	}
	if model.IsBlank(b.OwnerText()) {
		return Good
	}
	return Excellent
}
