package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProvenanceKind identifies where a venue record originated.
type ProvenanceKind string

const (
	ProvenanceManual       ProvenanceKind = "manual"
	ProvenanceGooglePlaces ProvenanceKind = "google_places"
)

// GooglePlacesProvenance records an import from the Google Places provider.
type GooglePlacesProvenance struct {
	PlaceID          string    `json:"place_id"`
	ImportedAt       time.Time `json:"imported_at"`
	Rating           *float64  `json:"rating,omitempty"`
	UserRatingsTotal int       `json:"user_ratings_total,omitempty"`
	Types            []string  `json:"types,omitempty"`
	OpeningHours     []string  `json:"opening_hours,omitempty"`
	ImportedBy       *int64    `json:"imported_by,omitempty"`
}

// Provenance is a tagged union stored in the venue tags column.
// Exactly one variant applies: Manual (GooglePlaces == nil) or GooglePlaces.
type Provenance struct {
	Kind         ProvenanceKind
	GooglePlaces *GooglePlacesProvenance
}

// ManualProvenance returns the provenance for admin-entered venues.
func ManualProvenance() Provenance {
	return Provenance{Kind: ProvenanceManual}
}

// GooglePlacesImport returns the provenance for a venue imported from the provider.
func GooglePlacesImport(p GooglePlacesProvenance) Provenance {
	return Provenance{Kind: ProvenanceGooglePlaces, GooglePlaces: &p}
}

// PlaceID returns the external place identifier, if any.
func (p Provenance) PlaceID() (string, bool) {
	if p.Kind == ProvenanceGooglePlaces && p.GooglePlaces != nil && p.GooglePlaces.PlaceID != "" {
		return p.GooglePlaces.PlaceID, true
	}
	return "", false
}

// provenanceWire is the flat JSON shape persisted in venues.tags.
// place_id stays at the top level so the unique index on tags->>'place_id' applies.
type provenanceWire struct {
	Kind ProvenanceKind `json:"kind"`
	*GooglePlacesProvenance
}

// MarshalJSON encodes the provenance into its flat tags form.
func (p Provenance) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ProvenanceGooglePlaces:
		if p.GooglePlaces == nil {
			return nil, fmt.Errorf("google_places provenance without details")
		}
		return json.Marshal(provenanceWire{Kind: p.Kind, GooglePlacesProvenance: p.GooglePlaces})
	case ProvenanceManual, "":
		return json.Marshal(provenanceWire{Kind: ProvenanceManual})
	default:
		return nil, fmt.Errorf("unknown provenance kind %q", p.Kind)
	}
}

// UnmarshalJSON decodes tags. Rows written before the kind field existed are
// classified by the presence of place_id.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind ProvenanceKind `json:"kind"`
		GooglePlacesProvenance
	}
	if len(data) == 0 || string(data) == "null" {
		*p = ManualProvenance()
		return nil
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode provenance: %w", err)
	}

	kind := wire.Kind
	if kind == "" {
		kind = ProvenanceManual
		if wire.PlaceID != "" {
			kind = ProvenanceGooglePlaces
		}
	}

	switch kind {
	case ProvenanceGooglePlaces:
		gp := wire.GooglePlacesProvenance
		*p = GooglePlacesImport(gp)
	case ProvenanceManual:
		*p = ManualProvenance()
	default:
		return fmt.Errorf("unknown provenance kind %q", kind)
	}
	return nil
}
