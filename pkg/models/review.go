package models

import "time"

// Allergen codes accepted in review scores.
var Allergens = []string{
	"peanut", "tree_nut", "milk", "egg", "wheat", "gluten", "soy",
	"fish", "shellfish", "sesame", "mustard", "celery", "lupin", "sulphites",
}

// MaxAllergenScore is the highest per-allergen safety score.
const MaxAllergenScore = 5

// IsValidAllergen checks if the given allergen code is known.
func IsValidAllergen(code string) bool {
	for _, a := range Allergens {
		if a == code {
			return true
		}
	}
	return false
}

// Review is one user's assessment of one venue visit.
// AllergenScores holds only rated allergens; a missing key means "not rated".
type Review struct {
	ID             int64          `json:"id"`
	VenueID        int64          `json:"venue_id"`
	UserID         int64          `json:"user_id"`
	AuthorName     string         `json:"author_name,omitempty"`
	Rating         int            `json:"rating"`
	Comment        string         `json:"comment"`
	VisitDate      *time.Time     `json:"visit_date,omitempty"`
	AllergenScores map[string]int `json:"allergen_scores"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AllergenAverage is the derived mean score for one allergen at one venue.
type AllergenAverage struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
