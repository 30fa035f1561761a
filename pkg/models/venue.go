// Package models contains domain types for the TrustDiner API.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Business status values as reported by the places provider.
const (
	BusinessStatusOperational       = "OPERATIONAL"
	BusinessStatusClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessStatusClosedPermanently = "CLOSED_PERMANENTLY"
)

// IsValidBusinessStatus checks if the given status is one of the known values.
func IsValidBusinessStatus(status string) bool {
	switch status {
	case BusinessStatusOperational, BusinessStatusClosedTemporarily, BusinessStatusClosedPermanently:
		return true
	default:
		return false
	}
}

// Venue is a single physical dining establishment.
// Only OPERATIONAL venues with coordinates are searchable.
type Venue struct {
	ID              int64      `json:"id"`
	UUID            uuid.UUID  `json:"uuid"`
	Name            string     `json:"name"`
	Address         *string    `json:"address,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Phone           *string    `json:"phone,omitempty"`
	Website         *string    `json:"website,omitempty"`
	BusinessStatus  string     `json:"business_status"`
	PrimaryCategory *string    `json:"primary_category,omitempty"`
	Cuisine         *string    `json:"cuisine,omitempty"`
	PriceLevel      *int       `json:"price_level,omitempty"`
	ImageRef        *string    `json:"image_ref,omitempty"` // local file path or provider photo name
	Provenance      Provenance `json:"provenance"`
	ChainID         *int64     `json:"chain_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (v *Venue) HasCoordinates() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// PlaceID returns the external place identifier for imported venues.
func (v *Venue) PlaceID() (string, bool) {
	return v.Provenance.PlaceID()
}

// VenueDetail is a venue with its chain and derived review aggregates.
type VenueDetail struct {
	Venue
	Chain          *Chain                     `json:"chain,omitempty"`
	ReviewCount    int                        `json:"review_count"`
	AverageRating  *float64                   `json:"average_rating"`
	AllergenScores map[string]AllergenAverage `json:"allergen_scores"`
}
