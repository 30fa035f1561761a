package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenance_GooglePlacesFlatEncoding(t *testing.T) {
	rating := 4.5
	p := GooglePlacesImport(GooglePlacesProvenance{
		PlaceID:          "ChIJ123",
		ImportedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Rating:           &rating,
		UserRatingsTotal: 120,
		Types:            []string{"restaurant", "food"},
	})

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "google_places", flat["kind"])
	assert.Equal(t, "ChIJ123", flat["place_id"], "place_id must be top-level for the unique index")

	var decoded Provenance
	require.NoError(t, json.Unmarshal(data, &decoded))
	placeID, ok := decoded.PlaceID()
	require.True(t, ok)
	assert.Equal(t, "ChIJ123", placeID)
	assert.Equal(t, 120, decoded.GooglePlaces.UserRatingsTotal)
}

func TestProvenance_Manual(t *testing.T) {
	data, err := json.Marshal(ManualProvenance())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"manual"}`, string(data))

	var decoded Provenance
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ProvenanceManual, decoded.Kind)
	_, ok := decoded.PlaceID()
	assert.False(t, ok)
}

func TestProvenance_LegacyTagsWithoutKind(t *testing.T) {
	var withPlace Provenance
	require.NoError(t, json.Unmarshal([]byte(`{"place_id":"ChIJold","source":"google_places"}`), &withPlace))
	assert.Equal(t, ProvenanceGooglePlaces, withPlace.Kind)

	var empty Provenance
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.Equal(t, ProvenanceManual, empty.Kind)
}

func TestProvenance_UnknownKindRejected(t *testing.T) {
	var p Provenance
	err := json.Unmarshal([]byte(`{"kind":"yelp"}`), &p)
	assert.Error(t, err)
}

func TestAccount_CanRestore(t *testing.T) {
	now := time.Now()
	recent := now.Add(-29 * 24 * time.Hour)
	old := now.Add(-31 * 24 * time.Hour)

	assert.True(t, (&Account{DeletedAt: &recent}).CanRestore(now))
	assert.False(t, (&Account{DeletedAt: &old}).CanRestore(now))
	assert.False(t, (&Account{}).CanRestore(now))
}

func TestRefreshToken_IsUsable(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	assert.True(t, (&RefreshToken{ExpiresAt: now.Add(time.Hour)}).IsUsable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(-time.Second)}).IsUsable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}).IsUsable(now))
}
