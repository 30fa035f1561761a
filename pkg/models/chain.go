package models

import "time"

// Chain is a brand grouping multiple venues.
type Chain struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	Description       *string   `json:"description,omitempty"`
	LogoPath          *string   `json:"logo_path,omitempty"`
	FeaturedImagePath *string   `json:"featured_image_path,omitempty"`
	Category          *string   `json:"category,omitempty"`
	Website           *string   `json:"website,omitempty"`
	VenueCount        int       `json:"venue_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
