package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/services"
	"github.com/trustdiner/trustdiner-api/pkg/testhelpers"
)

// noScope stands in for the per-request database scope middleware.
func noScope(next http.HandlerFunc) http.HandlerFunc { return next }

func testAuthMiddleware(t *testing.T) *auth.Middleware {
	t.Helper()
	authService := auth.NewAuthService(testhelpers.TestTokenIssuer(t), zap.NewNop())
	return auth.NewMiddleware(authService, zap.NewNop())
}

func testErrorWriter() *ErrorWriter {
	return NewErrorWriter(zap.NewNop(), true)
}

func testAuditor() *audit.SecurityAuditor {
	return audit.NewSecurityAuditor(zap.NewNop())
}

type mockSearchService struct {
	resp    *models.SearchResponse
	err     error
	lastReq services.SearchRequest
}

func (m *mockSearchService) Search(ctx context.Context, req services.SearchRequest) (*models.SearchResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

type mockImportService struct {
	result   *models.ImportResult
	err      error
	calls    int
	importer int64
}

func (m *mockImportService) Import(ctx context.Context, placeID string) (*models.ImportResult, error) {
	m.calls++
	m.importer, _ = auth.GetAccountIDFromContext(ctx)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockAccountService struct {
	session      *services.AuthSession
	account      *models.Account
	err          error
	lastEmail    string
	lastRefresh  string
	loggedOut    []string
	deletedUsers []int64
}

func (m *mockAccountService) Signup(ctx context.Context, email, password, displayName string) (*services.AuthSession, error) {
	m.lastEmail = email
	return m.session, m.err
}

func (m *mockAccountService) Login(ctx context.Context, email, password string) (*services.AuthSession, error) {
	m.lastEmail = email
	return m.session, m.err
}

func (m *mockAccountService) Refresh(ctx context.Context, raw string) (*services.AuthSession, error) {
	m.lastRefresh = raw
	return m.session, m.err
}

func (m *mockAccountService) Logout(ctx context.Context, raw string) error {
	m.loggedOut = append(m.loggedOut, raw)
	return m.err
}

func (m *mockAccountService) Me(ctx context.Context, userID int64) (*models.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

func (m *mockAccountService) DeleteAccount(ctx context.Context, userID int64) error {
	m.deletedUsers = append(m.deletedUsers, userID)
	return m.err
}

func (m *mockAccountService) RestoreAccount(ctx context.Context, email, password string) (*services.AuthSession, error) {
	m.lastEmail = email
	return m.session, m.err
}

type mockVenueService struct {
	venues    []*models.VenueDetail
	venue     *models.Venue
	err       error
	lastLimit int
	lastOff   int
	deleted   []uuid.UUID
}

func (m *mockVenueService) List(ctx context.Context, limit, offset int) ([]*models.VenueDetail, error) {
	m.lastLimit, m.lastOff = limit, offset
	return m.venues, m.err
}

func (m *mockVenueService) Get(ctx context.Context, id uuid.UUID) (*models.VenueDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, v := range m.venues {
		if v.UUID == id {
			return v, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockVenueService) Create(ctx context.Context, input *services.VenueInput) (*models.Venue, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Venue{ID: 1, UUID: uuid.New(), Name: input.Name, Provenance: models.ManualProvenance()}, nil
}

func (m *mockVenueService) Update(ctx context.Context, id uuid.UUID, input *services.VenueInput) (*models.Venue, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Venue{ID: 1, UUID: id, Name: input.Name}, nil
}

func (m *mockVenueService) Delete(ctx context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockChainService struct {
	chains     []*models.Chain
	err        error
	unassigned int64
	lastID     int64
}

func (m *mockChainService) List(ctx context.Context) ([]*models.Chain, error) {
	return m.chains, m.err
}

func (m *mockChainService) Create(ctx context.Context, input *services.ChainInput) (*models.Chain, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Chain{ID: 7, Name: input.Name, Slug: services.Slugify(input.Name)}, nil
}

func (m *mockChainService) Update(ctx context.Context, id int64, input *services.ChainInput) (*models.Chain, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return &models.Chain{ID: id, Name: input.Name, Slug: input.Slug}, nil
}

func (m *mockChainService) Delete(ctx context.Context, id int64) (int64, error) {
	m.lastID = id
	return m.unassigned, m.err
}

type mockReviewService struct {
	reviews   []*models.Review
	err       error
	lastInput *services.ReviewInput
	lastUser  int64
	lastAdmin bool
}

func (m *mockReviewService) ListByVenue(ctx context.Context, venueID uuid.UUID) ([]*models.Review, error) {
	return m.reviews, m.err
}

func (m *mockReviewService) Create(ctx context.Context, venueID uuid.UUID, userID int64, input *services.ReviewInput) (*models.Review, error) {
	m.lastInput, m.lastUser = input, userID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Review{ID: 1, UserID: userID, Rating: input.Rating, AllergenScores: input.AllergenScores}, nil
}

func (m *mockReviewService) Update(ctx context.Context, reviewID, userID int64, input *services.ReviewInput) (*models.Review, error) {
	m.lastInput, m.lastUser = input, userID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Review{ID: reviewID, UserID: userID, Rating: input.Rating}, nil
}

func (m *mockReviewService) Delete(ctx context.Context, reviewID, userID int64, isAdmin bool) error {
	m.lastUser, m.lastAdmin = userID, isAdmin
	return m.err
}

type mockUserAdminService struct {
	users     []*models.Account
	err       error
	lastActor int64
	lastUser  int64
	lastValue bool
}

func (m *mockUserAdminService) List(ctx context.Context) ([]*models.Account, error) {
	return m.users, m.err
}

func (m *mockUserAdminService) SetActive(ctx context.Context, actorID, userID int64, active bool) (*models.Account, error) {
	m.lastActor, m.lastUser, m.lastValue = actorID, userID, active
	if m.err != nil {
		return nil, m.err
	}
	return &models.Account{ID: userID, IsActive: active, Role: models.RoleUser}, nil
}

type mockUsageTracker struct {
	summary *models.UsageSummary
	err     error
}

func (m *mockUsageTracker) Record(ctx context.Context, usage *models.APIUsage) {}

func (m *mockUsageTracker) Wait(ctx context.Context) error { return nil }

func (m *mockUsageTracker) Summary(ctx context.Context) (*models.UsageSummary, error) {
	return m.summary, m.err
}

var (
	_ services.SearchService    = (*mockSearchService)(nil)
	_ services.ImportService    = (*mockImportService)(nil)
	_ services.AccountService   = (*mockAccountService)(nil)
	_ services.VenueService     = (*mockVenueService)(nil)
	_ services.ChainService     = (*mockChainService)(nil)
	_ services.ReviewService    = (*mockReviewService)(nil)
	_ services.UserAdminService = (*mockUserAdminService)(nil)
	_ services.UsageTracker     = (*mockUsageTracker)(nil)
)
