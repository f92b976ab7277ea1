package model

import (
	"strings"
)

// Building is a commercial real-estate asset as known to the CRM, or a
// cadastral location that is not registered there yet (empty ID).
type Building struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	Street       string         `json:"street,omitempty"`
	HouseNumber  string         `json:"house_number,omitempty"`
	PostalCode   string         `json:"postal_code,omitempty"`
	City         string         `json:"city,omitempty"`
	CadastralRef string         `json:"cadastral_ref,omitempty"`
	Longitude    float64        `json:"longitude"`
	Latitude     float64        `json:"latitude"`
	Surface      *float64       `json:"surface,omitempty"`
	Tenants      *string        `json:"tenants,omitempty"`
	Owner        *string        `json:"owner,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Registered reports whether the building exists in the CRM.
func (b Building) Registered() bool {
	return strings.TrimSpace(b.ID) != ""
}

// Address renders the postal address as a single line, skipping missing parts.
// Example: "Meir 24, 2000 Antwerpen".
func (b Building) Address() string {
	street := joinNonBlank(" ", b.Street, b.HouseNumber)
	city := joinNonBlank(" ", b.PostalCode, b.City)
	return joinNonBlank(", ", street, city)
}

// Coordinates returns the WGS84 position of the building.
func (b Building) Coordinates() Point {
	return Point{Lon: b.Longitude, Lat: b.Latitude}
}

// TenantsText returns the tenant field or "" when absent.
func (b Building) TenantsText() string {
	if b.Tenants == nil {
		return ""
	}
	return *b.Tenants
}

// OwnerText returns the owner field or "" when absent.
func (b Building) OwnerText() string {
	if b.Owner == nil {
		return ""
	}
	return *b.Owner
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func joinNonBlank(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
