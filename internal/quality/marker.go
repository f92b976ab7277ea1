package quality

import (
	"github.com/sells-group/property-map/internal/model"
)

// FallbackColor is used for any tier outside the known set.
const FallbackColor = "#9e9e9e"

// Style is the fixed rendering contract of a tier.
type Style struct {
	Tier           Tier   `json:"tier"`
	Label          string `json:"label"`
	Color          string `json:"color"`
	VisibleDefault bool   `json:"visible_default"`
}

var styles = map[Tier]Style{
	Excellent:    {Tier: Excellent, Label: "Excellent", Color: "#1b9e4b", VisibleDefault: true},
	Good:         {Tier: Good, Label: "Good", Color: "#7cc242", VisibleDefault: true},
	OK:           {Tier: OK, Label: "OK", Color: "#f2c300", VisibleDefault: true},
	Bad:          {Tier: Bad, Label: "Bad", Color: "#f07d19", VisibleDefault: true},
	Catastrophic: {Tier: Catastrophic, Label: "Catastrophic", Color: "#d7263d", VisibleDefault: true},
	Unregistered: {Tier: Unregistered, Label: "Unregistered", Color: "#3a6ea5", VisibleDefault: false},
}

// StyleOf returns the style for t. Unknown tiers get the fallback color and
// are hidden.
func StyleOf(t Tier) Style {
	if s, ok := styles[t]; ok {
		return s
	}
	return Style{Tier: t, Label: t.Label(), Color: FallbackColor}
}

// Color returns the marker color for t.
func Color(t Tier) string {
	return StyleOf(t).Color
}

// Styles returns the style table in display order.
func Styles() []Style {
	out := make([]Style, 0, len(allTiers))
	for _, t := range allTiers {
		out = append(out, styles[t])
	}
	return out
}

// DefaultVisibility is the initial tier selection of the map: every tier
// except Unregistered.
func DefaultVisibility() map[Tier]bool {
	out := make(map[Tier]bool, len(allTiers))
	for _, t := range allTiers {
		out[t] = styles[t].VisibleDefault
	}
	return out
}

// Marker is what a map renderer needs to draw one building.
type Marker struct {
	BuildingID string      `json:"building_id,omitempty"`
	Name       string      `json:"name"`
	Position   model.Point `json:"position"`
	Tier       Tier        `json:"tier"`
	Color      string      `json:"color"`
}

// MarkerFor classifies b and returns its marker.
func MarkerFor(b model.Building) Marker {
	t := Classify(b)
	return Marker{
		BuildingID: b.ID,
		Name:       b.Name,
		Position:   b.Coordinates(),
		Tier:       t,
		Color:      Color(t),
	}
}

// Markers returns one marker per building, preserving order.
func Markers(bs []model.Building) []Marker {
	out := make([]Marker, len(bs))
	for i, b := range bs {
		out[i] = MarkerFor(b)
	}
	return out
}
