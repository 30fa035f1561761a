package places

import (
	"encoding/json"

	"github.com/trustdiner/trustdiner-api/pkg/jsonutil"
)

// Place is a provider establishment normalised from the Places API response.
type Place struct {
	ID               string
	Name             string
	Address          string
	Latitude         *float64
	Longitude        *float64
	Rating           *float64
	UserRatingsTotal *int
	PriceLevel       *int
	BusinessStatus   string
	PrimaryType      string
	Types            []string
	Phone            string
	Website          string
	OpeningHours     []string
	Photos           []Photo
	Reviews          []ReviewSnippet
}

// Photo is a reference to a provider-hosted image.
type Photo struct {
	Name     string
	WidthPx  int
	HeightPx int
}

// ReviewSnippet is a short provider review shown alongside details.
type ReviewSnippet struct {
	Author string
	Rating float64
	Text   string
}

// HasCoordinates reports whether both coordinates are present.
func (p *Place) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// wirePlace mirrors the Places API (New) JSON representation.
type wirePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Rating              *float64        `json:"rating"`
	UserRatingCount     *int            `json:"userRatingCount"`
	PriceLevel          json.RawMessage `json:"priceLevel"`
	BusinessStatus      string          `json:"businessStatus"`
	PrimaryType         string          `json:"primaryType"`
	Types               []string        `json:"types"`
	NationalPhoneNumber string          `json:"nationalPhoneNumber"`
	WebsiteURI          string          `json:"websiteUri"`
	RegularOpeningHours *struct {
		WeekdayDescriptions []string `json:"weekdayDescriptions"`
	} `json:"regularOpeningHours"`
	Photos []struct {
		Name     string `json:"name"`
		WidthPx  int    `json:"widthPx"`
		HeightPx int    `json:"heightPx"`
	} `json:"photos"`
	Reviews []struct {
		Rating float64 `json:"rating"`
		Text   struct {
			Text string `json:"text"`
		} `json:"text"`
		AuthorAttribution struct {
			DisplayName string `json:"displayName"`
		} `json:"authorAttribution"`
	} `json:"reviews"`
}

func (w *wirePlace) toPlace() Place {
	p := Place{
		ID:               w.ID,
		Name:             w.DisplayName.Text,
		Address:          w.FormattedAddress,
		Rating:           w.Rating,
		UserRatingsTotal: w.UserRatingCount,
		PriceLevel:       jsonutil.PriceLevel(w.PriceLevel),
		BusinessStatus:   w.BusinessStatus,
		PrimaryType:      w.PrimaryType,
		Types:            w.Types,
		Phone:            w.NationalPhoneNumber,
		Website:          w.WebsiteURI,
	}
	if w.Location != nil {
		lat, lng := w.Location.Latitude, w.Location.Longitude
		p.Latitude = &lat
		p.Longitude = &lng
	}
	if w.RegularOpeningHours != nil {
		p.OpeningHours = w.RegularOpeningHours.WeekdayDescriptions
	}
	for _, ph := range w.Photos {
		p.Photos = append(p.Photos, Photo{Name: ph.Name, WidthPx: ph.WidthPx, HeightPx: ph.HeightPx})
	}
	for _, r := range w.Reviews {
		p.Reviews = append(p.Reviews, ReviewSnippet{
			Author: r.AuthorAttribution.DisplayName,
			Rating: r.Rating,
			Text:   r.Text.Text,
		})
	}
	return p
}
