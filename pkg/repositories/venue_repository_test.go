//go:build integration

package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/testhelpers"
)

// venueTestContext holds test dependencies for venue repository tests.
type venueTestContext struct {
	t      *testing.T
	apiDB  *testhelpers.APIDB
	repo   VenueRepository
	suffix string
}

func setupVenueTest(t *testing.T) *venueTestContext {
	return &venueTestContext{
		t:      t,
		apiDB:  testhelpers.GetAPIDB(t),
		repo:   NewVenueRepository(),
		suffix: uuid.NewString()[:8],
	}
}

func ptr[T any](v T) *T { return &v }

// newImportedVenue builds an operational venue carrying place provenance.
func newImportedVenue(name, placeID string) *models.Venue {
	return &models.Venue{
		Name:           name,
		Address:        ptr("1 Test St, Vancouver"),
		Latitude:       ptr(49.28),
		Longitude:      ptr(-123.12),
		BusinessStatus: models.BusinessStatusOperational,
		Provenance: models.GooglePlacesImport(models.GooglePlacesProvenance{
			PlaceID:    placeID,
			ImportedAt: time.Now().UTC(),
		}),
	}
}

// createTestAccount inserts a user for FK constraints.
func createTestAccount(t *testing.T, ctx context.Context, email string) *models.Account {
	t.Helper()
	account := &models.Account{
		Email:        email,
		DisplayName:  "Test Diner",
		PasswordHash: "not-a-real-hash",
		IsActive:     true,
		Role:         models.RoleUser,
	}
	require.NoError(t, NewAccountRepository().Create(ctx, account))
	return account
}

func TestVenueRepository_InsertImported_SamePlaceTwice(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	placeID := "place-dup-" + tc.suffix

	first := newImportedVenue("Dup Diner "+tc.suffix, placeID)
	inserted, err := tc.repo.InsertImported(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, first.ID)

	second := newImportedVenue("Dup Diner Again "+tc.suffix, placeID)
	inserted, err = tc.repo.InsertImported(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, "Dup Diner "+tc.suffix, second.Name)

	var count int
	scope, _ := database.GetScope(ctx)
	err = scope.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM venues WHERE tags->>'place_id' = $1`, placeID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVenueRepository_InsertImported_Concurrent(t *testing.T) {
	tc := setupVenueTest(t)
	placeID := "place-race-" + tc.suffix

	const workers = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		uuids    = map[uuid.UUID]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cleanup, err := tc.apiDB.DB.WithScope(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer cleanup()

			v := newImportedVenue("Race Diner "+tc.suffix, placeID)
			ok, err := tc.repo.InsertImported(ctx, v)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ok {
				inserted++
			}
			uuids[v.UUID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted, "exactly one import should win")
	assert.Len(t, uuids, 1, "all callers should observe the same venue")
}

func TestVenueRepository_ExistingPlaceIDs(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	stored := newImportedVenue("Known "+tc.suffix, "place-known-"+tc.suffix)
	_, err := tc.repo.InsertImported(ctx, stored)
	require.NoError(t, err)

	got, err := tc.repo.ExistingPlaceIDs(ctx, []string{"place-known-" + tc.suffix, "place-unknown-" + tc.suffix})
	require.NoError(t, err)
	assert.Equal(t, map[string]uuid.UUID{"place-known-" + tc.suffix: stored.UUID}, got)
}

func TestVenueRepository_Search_RelevanceAndFilters(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	term := "zq" + tc.suffix

	byName := newImportedVenue("Pizza "+term, "place-name-"+tc.suffix)
	byCategory := newImportedVenue("Corner Slice "+tc.suffix, "place-cat-"+tc.suffix)
	byCategory.PrimaryCategory = ptr("pizza " + term)
	byAddress := newImportedVenue("Another Place "+tc.suffix, "place-addr-"+tc.suffix)
	byAddress.Address = ptr("99 " + term + " Ave")
	closed := newImportedVenue("Closed "+term, "place-closed-"+tc.suffix)
	closed.BusinessStatus = models.BusinessStatusClosedPermanently
	noCoords := newImportedVenue("Nowhere "+term, "place-nocoords-"+tc.suffix)
	noCoords.Latitude, noCoords.Longitude = nil, nil

	for _, v := range []*models.Venue{byName, byCategory, byAddress, closed, noCoords} {
		_, err := tc.repo.InsertImported(ctx, v)
		require.NoError(t, err)
	}

	matches, err := tc.repo.Search(ctx, term, []string{term}, 20)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, byName.UUID, matches[0].Venue.UUID)
	assert.Equal(t, RelevanceName, matches[0].Relevance)
	assert.Equal(t, byCategory.UUID, matches[1].Venue.UUID)
	assert.Equal(t, RelevanceCategory, matches[1].Relevance)
	assert.Equal(t, byAddress.UUID, matches[2].Venue.UUID)
	assert.Equal(t, RelevanceAddress, matches[2].Relevance)
}

func TestVenueRepository_Search_TermMatchOnly(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	v := newImportedVenue("Qx"+tc.suffix+" Noodles", "place-term-"+tc.suffix)
	_, err := tc.repo.InsertImported(ctx, v)
	require.NoError(t, err)

	matches, err := tc.repo.Search(ctx, "qx"+tc.suffix+" dumplings", []string{"qx" + tc.suffix, "dumplings"}, 20)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, RelevanceTerm, matches[0].Relevance)
}

func TestVenueRepository_Delete_WithReviews(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	v := newImportedVenue("Reviewed "+tc.suffix, "place-reviewed-"+tc.suffix)
	_, err := tc.repo.InsertImported(ctx, v)
	require.NoError(t, err)

	author := createTestAccount(t, ctx, "venue-delete-"+tc.suffix+"@example.com")
	err = NewReviewRepository().Create(ctx, &models.Review{
		VenueID: v.ID,
		UserID:  author.ID,
		Rating:  4,
	})
	require.NoError(t, err)

	err = tc.repo.Delete(ctx, v.UUID)
	assert.True(t, errors.Is(err, apperrors.ErrHasDependents), "got %v", err)

	_, err = tc.repo.GetByUUID(ctx, v.UUID)
	assert.NoError(t, err, "venue must survive a rejected delete")
}

func TestVenueRepository_Delete_NotFound(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	err := tc.repo.Delete(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestVenueRepository_GetDetail_Aggregates(t *testing.T) {
	tc := setupVenueTest(t)
	ctx := tc.apiDB.Scoped(t)

	v := newImportedVenue("Aggregates "+tc.suffix, "place-agg-"+tc.suffix)
	_, err := tc.repo.InsertImported(ctx, v)
	require.NoError(t, err)

	reviews := NewReviewRepository()
	for i, score := range []int{5, 3} {
		author := createTestAccount(t, ctx, "agg-"+tc.suffix+"-"+string(rune('a'+i))+"@example.com")
		require.NoError(t, reviews.Create(ctx, &models.Review{
			VenueID:        v.ID,
			UserID:         author.ID,
			Rating:         score,
			AllergenScores: map[string]int{"peanut": score},
		}))
	}
	require.NoError(t, tc.repo.RefreshAllergenScores(ctx, v.ID))

	detail, err := tc.repo.GetDetail(ctx, v.UUID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.ReviewCount)
	require.NotNil(t, detail.AverageRating)
	assert.InDelta(t, 4.0, *detail.AverageRating, 0.001)
	assert.Equal(t, models.AllergenAverage{Average: 4, Count: 2}, detail.AllergenScores["peanut"])
}
