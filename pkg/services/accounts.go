package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

const (
	minPasswordLength   = 8
	maxPasswordBytes    = 72 // bcrypt limit
	maxDisplayNameRunes = 100
)

// AccessTokenIssuer signs access tokens. *auth.TokenIssuer satisfies it.
type AccessTokenIssuer interface {
	IssueAccessToken(account *models.Account) (string, time.Time, error)
}

// AuthSession is the token pair handed to a client after authentication.
type AuthSession struct {
	Account          *models.Account
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccountService handles sign-up, login, and refresh-token rotation.
type AccountService interface {
	Signup(ctx context.Context, email, password, displayName string) (*AuthSession, error)
	Login(ctx context.Context, email, password string) (*AuthSession, error)
	// Refresh exchanges a refresh token for a new pair. The presented token
	// is revoked and can never be used again.
	Refresh(ctx context.Context, rawRefreshToken string) (*AuthSession, error)
	// Logout revokes the refresh token. It never fails for unknown tokens.
	Logout(ctx context.Context, rawRefreshToken string) error
	Me(ctx context.Context, userID int64) (*models.Account, error)
	// DeleteAccount soft-deletes the account and revokes all its tokens.
	DeleteAccount(ctx context.Context, userID int64) error
	// RestoreAccount reactivates a soft-deleted account within the restore window.
	RestoreAccount(ctx context.Context, email, password string) (*AuthSession, error)
}

type accountService struct {
	accountRepo repositories.AccountRepository
	tokenRepo   repositories.RefreshTokenRepository
	issuer      AccessTokenIssuer
	refreshTTL  time.Duration
	bcryptCost  int
	dummyHash   []byte
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccountService creates an account service.
func NewAccountService(
	accountRepo repositories.AccountRepository,
	tokenRepo repositories.RefreshTokenRepository,
	issuer AccessTokenIssuer,
	refreshTTL time.Duration,
	logger *zap.Logger,
) AccountService {
	return newAccountService(accountRepo, tokenRepo, issuer, refreshTTL, bcrypt.DefaultCost, logger)
}

func newAccountService(
	accountRepo repositories.AccountRepository,
	tokenRepo repositories.RefreshTokenRepository,
	issuer AccessTokenIssuer,
	refreshTTL time.Duration,
	cost int,
	logger *zap.Logger,
) *accountService {
	// Compared against when the email is unknown so both paths cost the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("trustdiner-timing-equaliser"), cost)
	return &accountService{
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		issuer:      issuer,
		refreshTTL:  refreshTTL,
		bcryptCost:  cost,
		dummyHash:   dummy,
		logger:      logger.Named("accounts"),
		now:         time.Now,
	}
}

var _ AccountService = (*accountService)(nil)

func (s *accountService) Signup(ctx context.Context, email, password, displayName string) (*AuthSession, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameRunes {
		return nil, fmt.Errorf("%w: display name must be at most %d characters", apperrors.ErrInvalidInput, maxDisplayNameRunes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		IsActive:     true,
		Role:         models.RoleUser,
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account created", zap.Int64("user_id", account.ID))
	return s.newSession(ctx, account)
}

func (s *accountService) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	account, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if account.IsDeleted() {
		return nil, apperrors.ErrAccountDeleted
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", apperrors.ErrForbidden)
	}
	return s.newSession(ctx, account)
}

func (s *accountService) Refresh(ctx context.Context, rawRefreshToken string) (*AuthSession, error) {
	if rawRefreshToken == "" {
		return nil, apperrors.ErrInvalidToken
	}

	consumed, err := s.tokenRepo.Consume(ctx, auth.HashRefreshToken(rawRefreshToken))
	if err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByID(ctx, consumed.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	if account.IsDeleted() || !account.IsActive {
		return nil, apperrors.ErrInvalidToken
	}

	return s.newSession(ctx, account)
}

func (s *accountService) Logout(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}
	BestEffort(ctx, s.logger, "revoke_refresh_token", func(ctx context.Context) error {
		return s.tokenRepo.Revoke(ctx, auth.HashRefreshToken(rawRefreshToken))
	})
	return nil
}

func (s *accountService) Me(ctx context.Context, userID int64) (*models.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.IsDeleted() {
		return nil, apperrors.ErrNotFound
	}
	return account, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.accountRepo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	revoked, err := s.tokenRepo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.logger.Info("Account soft-deleted",
		zap.Int64("user_id", userID),
		zap.Int64("revoked_tokens", revoked))
	return nil
}

func (s *accountService) RestoreAccount(ctx context.Context, email, password string) (*AuthSession, error) {
	account, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !account.IsDeleted() {
		return nil, fmt.Errorf("%w: account is not deleted", apperrors.ErrConflict)
	}
	if !account.CanRestore(s.now()) {
		return nil, apperrors.ErrRestoreWindowExpired
	}

	if err := s.accountRepo.Restore(ctx, account.ID); err != nil {
		return nil, err
	}
	account.DeletedAt = nil
	account.IsActive = true

	s.logger.Info("Account restored", zap.Int64("user_id", account.ID))
	return s.newSession(ctx, account)
}

// authenticate verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *accountService) authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accountRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	return account, nil
}

func (s *accountService) newSession(ctx context.Context, account *models.Account) (*AuthSession, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}

	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := s.now().Add(s.refreshTTL)
	if err := s.tokenRepo.Create(ctx, &models.RefreshToken{
		UserID:    account.ID,
		TokenHash: hash,
		ExpiresAt: refreshExp,
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthSession{
		Account:          account,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: a valid email address is required", apperrors.ErrInvalidInput)
	}
	return strings.ToLower(email), nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", apperrors.ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}
