package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/places"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// mockVenueRepository keeps venues in memory keyed by UUID.
type mockVenueRepository struct {
	mu          sync.Mutex
	venues      map[uuid.UUID]*models.Venue
	details     map[uuid.UUID]*models.VenueDetail
	searchHits  []repositories.VenueMatch
	searchErr   error
	insertErr   error
	deleteErr   error
	refreshErr  error
	nextID      int64
	searchCalls int
	existCalls  int
	refreshed   []int64
	lastTerms   []string
	lastLimit   int

	// hidePlaceIDs makes GetByPlaceID miss, as if a concurrent import had
	// not committed yet.
	hidePlaceIDs bool
}

func newMockVenueRepository() *mockVenueRepository {
	return &mockVenueRepository{
		venues:  map[uuid.UUID]*models.Venue{},
		details: map[uuid.UUID]*models.VenueDetail{},
		nextID:  1,
	}
}

func (m *mockVenueRepository) add(v *models.Venue) *models.Venue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.UUID == uuid.Nil {
		v.UUID = uuid.New()
	}
	if v.ID == 0 {
		v.ID = m.nextID
		m.nextID++
	}
	m.venues[v.UUID] = v
	return v
}

func (m *mockVenueRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.venues)
}

func (m *mockVenueRepository) Search(ctx context.Context, query string, terms []string, limit int) ([]repositories.VenueMatch, error) {
	m.searchCalls++
	m.lastTerms = terms
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchHits, nil
}

func (m *mockVenueRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVenueRepository) GetByPlaceID(ctx context.Context, placeID string) (*models.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hidePlaceIDs {
		return nil, apperrors.ErrNotFound
	}
	return m.findPlace(placeID)
}

func (m *mockVenueRepository) findPlace(placeID string) (*models.Venue, error) {
	for _, v := range m.venues {
		if id, ok := v.PlaceID(); ok && id == placeID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockVenueRepository) ExistingPlaceIDs(ctx context.Context, placeIDs []string) (map[string]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existCalls++
	out := map[string]uuid.UUID{}
	for _, v := range m.venues {
		id, ok := v.PlaceID()
		if !ok {
			continue
		}
		for _, want := range placeIDs {
			if want == id {
				out[id] = v.UUID
			}
		}
	}
	return out, nil
}

func (m *mockVenueRepository) InsertImported(ctx context.Context, v *models.Venue) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	placeID, _ := v.PlaceID()
	m.mu.Lock()
	existing, err := m.findPlace(placeID)
	m.mu.Unlock()
	if err == nil {
		*v = *existing
		return false, nil
	}
	m.add(v)
	return true, nil
}

func (m *mockVenueRepository) Create(ctx context.Context, v *models.Venue) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.add(v)
	return nil
}

func (m *mockVenueRepository) Update(ctx context.Context, v *models.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.venues[v.UUID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *v
	m.venues[v.UUID] = &cp
	return nil
}

func (m *mockVenueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.venues[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.venues, id)
	return nil
}

func (m *mockVenueRepository) ListDetails(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.VenueDetail, 0, len(m.details))
	for _, d := range m.details {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockVenueRepository) GetDetail(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (m *mockVenueRepository) RefreshAllergenScores(ctx context.Context, venueID int64) error {
	m.refreshed = append(m.refreshed, venueID)
	return m.refreshErr
}

// mockProvider is a scripted places.Provider.
type mockProvider struct {
	mu           sync.Mutex
	available    bool
	searchResult []places.Place
	searchErr    error
	details      map[string]*places.Place
	detailsErr   error
	photo        []byte
	photoErrs    []error // returned in order before photo succeeds
	onCall       func()  // runs at the start of every provider call
	searchCalls  int
	detailsCalls int
	photoCalls   int
}

func (m *mockProvider) Available() bool { return m.available }

func (m *mockProvider) called() {
	if m.onCall != nil {
		m.onCall()
	}
}

func (m *mockProvider) TextSearch(ctx context.Context, query string) ([]places.Place, error) {
	m.called()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	return m.searchResult, m.searchErr
}

func (m *mockProvider) GetDetails(ctx context.Context, placeID string) (*places.Place, error) {
	m.called()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailsCalls++
	if m.detailsErr != nil {
		return nil, m.detailsErr
	}
	p, ok := m.details[placeID]
	if !ok {
		return nil, apperrors.ErrProviderFailed
	}
	cp := *p
	return &cp, nil
}

func (m *mockProvider) DownloadPhoto(ctx context.Context, photoName string) ([]byte, error) {
	m.called()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photoCalls++
	if len(m.photoErrs) > 0 {
		err := m.photoErrs[0]
		m.photoErrs = m.photoErrs[1:]
		return nil, err
	}
	return m.photo, nil
}

// mockPhotoStore records saved and removed paths.
type mockPhotoStore struct {
	saved   []string
	removed []string
	saveErr error
}

func (m *mockPhotoStore) Save(ctx context.Context, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	path := "uploads/restaurants/" + uuid.NewString() + ".jpg"
	m.saved = append(m.saved, path)
	return path, nil
}

func (m *mockPhotoStore) Remove(ctx context.Context, path string) error {
	m.removed = append(m.removed, path)
	return nil
}

// failingCache fails every operation.
type failingCache struct{}

var errCacheDown = errors.New("cache unavailable")

func (failingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (failingCache) Delete(context.Context, ...string) error { return errCacheDown }
func (failingCache) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errCacheDown
}
func (failingCache) Backend() string { return "failing" }
func (failingCache) Close() error    { return nil }

var _ cache.Cache = failingCache{}

// mockAccountRepository keeps accounts in memory.
type mockAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*models.Account
	nextID   int64
	getErr   error
}

func newMockAccountRepository() *mockAccountRepository {
	return &mockAccountRepository{accounts: map[int64]*models.Account{}, nextID: 1}
}

func (m *mockAccountRepository) Create(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return apperrors.ErrConflict
		}
	}
	a.ID = m.nextID
	m.nextID++
	a.CreatedAt = time.Now()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *mockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAccountRepository) update(id int64, fn func(a *models.Account) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || !fn(a) {
		return apperrors.ErrNotFound
	}
	return nil
}

func (m *mockAccountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return m.update(id, func(a *models.Account) bool { a.IsActive = active; return true })
}

func (m *mockAccountRepository) SoftDelete(ctx context.Context, id int64) error {
	return m.update(id, func(a *models.Account) bool {
		if a.DeletedAt != nil {
			return false
		}
		now := time.Now()
		a.DeletedAt = &now
		a.IsActive = false
		return true
	})
}

func (m *mockAccountRepository) Restore(ctx context.Context, id int64) error {
	return m.update(id, func(a *models.Account) bool {
		if a.DeletedAt == nil {
			return false
		}
		a.DeletedAt = nil
		a.IsActive = true
		return true
	})
}

func (m *mockAccountRepository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.accounts {
		if a.DeletedAt != nil && a.DeletedAt.Before(cutoff) {
			delete(m.accounts, id)
			n++
		}
	}
	return n, nil
}

// mockRefreshTokenRepository mirrors the conditional-update semantics.
type mockRefreshTokenRepository struct {
	mu        sync.Mutex
	tokens    map[string]*models.RefreshToken
	revokeErr error
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: map[string]*models.RefreshToken{}}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.TokenHash] = &cp
	return nil
}

func (m *mockRefreshTokenRepository) Consume(ctx context.Context, hash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || !t.IsUsable(time.Now()) {
		return nil, apperrors.ErrInvalidToken
	}
	now := time.Now()
	t.RevokedAt = &now
	cp := *t
	return &cp, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revokeErr != nil {
		return m.revokeErr
	}
	if t, ok := m.tokens[hash]; ok && t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			now := time.Now()
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *mockRefreshTokenRepository) usable(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	return ok && t.IsUsable(time.Now())
}

// mockChainRepository keeps chains in memory.
type mockChainRepository struct {
	chains     map[int64]*models.Chain
	nextID     int64
	unassigned int64
	slugErr    error
}

func newMockChainRepository() *mockChainRepository {
	return &mockChainRepository{chains: map[int64]*models.Chain{}, nextID: 1}
}

func (m *mockChainRepository) List(ctx context.Context) ([]*models.Chain, error) {
	out := make([]*models.Chain, 0, len(m.chains))
	for _, c := range m.chains {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockChainRepository) GetByID(ctx context.Context, id int64) (*models.Chain, error) {
	c, ok := m.chains[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (m *mockChainRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	if m.slugErr != nil {
		return false, m.slugErr
	}
	for _, c := range m.chains {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockChainRepository) Create(ctx context.Context, c *models.Chain) error {
	c.ID = m.nextID
	m.nextID++
	m.chains[c.ID] = c
	return nil
}

func (m *mockChainRepository) Update(ctx context.Context, c *models.Chain) error {
	if _, ok := m.chains[c.ID]; !ok {
		return apperrors.ErrNotFound
	}
	m.chains[c.ID] = c
	return nil
}

func (m *mockChainRepository) Delete(ctx context.Context, id int64) (int64, error) {
	if _, ok := m.chains[id]; !ok {
		return 0, apperrors.ErrNotFound
	}
	delete(m.chains, id)
	return m.unassigned, nil
}

// mockReviewRepository keeps reviews in memory.
type mockReviewRepository struct {
	reviews map[int64]*models.Review
	nextID  int64
}

func newMockReviewRepository() *mockReviewRepository {
	return &mockReviewRepository{reviews: map[int64]*models.Review{}, nextID: 1}
}

func (m *mockReviewRepository) ListByVenue(ctx context.Context, venueID int64) ([]*models.Review, error) {
	var out []*models.Review
	for _, r := range m.reviews {
		if r.VenueID == venueID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id int64) (*models.Review, error) {
	r, ok := m.reviews[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockReviewRepository) Create(ctx context.Context, r *models.Review) error {
	r.ID = m.nextID
	m.nextID++
	cp := *r
	m.reviews[r.ID] = &cp
	return nil
}

func (m *mockReviewRepository) Update(ctx context.Context, r *models.Review) error {
	if _, ok := m.reviews[r.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *r
	m.reviews[r.ID] = &cp
	return nil
}

func (m *mockReviewRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.reviews[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

// mockUsageRepository records inserts.
type mockUsageRepository struct {
	mu        sync.Mutex
	inserted  []*models.APIUsage
	insertErr error
	totals    map[string]models.UsageTotals
	sinces    []time.Time
}

func (m *mockUsageRepository) Insert(ctx context.Context, u *models.APIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *u
	m.inserted = append(m.inserted, &cp)
	return nil
}

func (m *mockUsageRepository) TotalsSince(ctx context.Context, since time.Time) (map[string]models.UsageTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinces = append(m.sinces, since)
	return m.totals, nil
}

func (m *mockUsageRepository) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

// mockScopeProvider hands out the parent context unchanged.
type mockScopeProvider struct {
	mu       sync.Mutex
	err      error
	acquired int
	released int
}

func (m *mockScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, nil, m.err
	}
	m.acquired++
	return ctx, func() {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}, nil
}

// held reports how many acquired scopes are not yet released.
func (m *mockScopeProvider) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

var (
	_ repositories.VenueRepository        = (*mockVenueRepository)(nil)
	_ repositories.AccountRepository      = (*mockAccountRepository)(nil)
	_ repositories.RefreshTokenRepository = (*mockRefreshTokenRepository)(nil)
	_ repositories.ChainRepository        = (*mockChainRepository)(nil)
	_ repositories.ReviewRepository       = (*mockReviewRepository)(nil)
	_ repositories.APIUsageRepository     = (*mockUsageRepository)(nil)
	_ places.Provider                     = (*mockProvider)(nil)
	_ PhotoStore                          = (*mockPhotoStore)(nil)
	_ ScopeProvider                       = (*mockScopeProvider)(nil)
)
