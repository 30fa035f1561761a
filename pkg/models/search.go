package models

// Search result sources.
const (
	SourceDatabase = "database"
	SourceGoogle   = "google"
	SourceHybrid   = "hybrid"
)

// SearchResult is one normalised row in a search response, whether it came
// from the local catalogue or from the places provider.
type SearchResult struct {
	PlaceID          string   `json:"place_id"`
	VenueUUID        string   `json:"venue_uuid,omitempty"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       *int     `json:"price_level"`
	BusinessStatus   string   `json:"business_status"`
	PrimaryCategory  string   `json:"primary_category,omitempty"`
	Cuisine          string   `json:"cuisine,omitempty"`
	ImageRef         string   `json:"image_ref,omitempty"`
	Source           string   `json:"source"`
	InDatabase       bool     `json:"inDatabase"`
	Addable          bool     `json:"addable"`
	Relevance        int      `json:"-"`
}

// SearchBreakdown counts results per origin in a hybrid response.
type SearchBreakdown struct {
	Database       int `json:"database"`
	GoogleExisting int `json:"google_existing"`
	GoogleNew      int `json:"google_new"`
}

// SearchResponse is the payload returned by the search endpoint and the
// value stored in the search cache.
type SearchResponse struct {
	Results         []SearchResult   `json:"results"`
	Source          string           `json:"source"`
	Query           string           `json:"query"`
	Count           int              `json:"count"`
	GoogleAvailable bool             `json:"google_available"`
	GoogleError     string           `json:"google_error,omitempty"`
	Breakdown       *SearchBreakdown `json:"breakdown,omitempty"`
	Cached          bool             `json:"cached"`
}

// ImportResult is returned by the import orchestrator.
type ImportResult struct {
	PlaceID  string `json:"place_id"`
	Imported bool   `json:"imported"`
	Venue    *Venue `json:"place"`
}
