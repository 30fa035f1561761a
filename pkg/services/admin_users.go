package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/models"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
)

// UserAdminService lets admins list accounts and toggle their access.
type UserAdminService interface {
	List(ctx context.Context) ([]*models.Account, error)
	// SetActive enables or disables an account. Disabling revokes its
	// refresh tokens so existing sessions end at the next refresh.
	SetActive(ctx context.Context, actorID, userID int64, active bool) (*models.Account, error)
}

type userAdminService struct {
	accountRepo repositories.AccountRepository
	tokenRepo   repositories.RefreshTokenRepository
	logger      *zap.Logger
}

// NewUserAdminService creates a user admin service.
func NewUserAdminService(
	accountRepo repositories.AccountRepository,
	tokenRepo repositories.RefreshTokenRepository,
	logger *zap.Logger,
) UserAdminService {
	return &userAdminService{
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		logger:      logger.Named("user-admin"),
	}
}

var _ UserAdminService = (*userAdminService)(nil)

func (s *userAdminService) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return accounts, nil
}

func (s *userAdminService) SetActive(ctx context.Context, actorID, userID int64, active bool) (*models.Account, error) {
	if actorID == userID && !active {
		return nil, fmt.Errorf("%w: admins cannot deactivate themselves", apperrors.ErrInvalidInput)
	}
	if err := s.accountRepo.SetActive(ctx, userID, active); err != nil {
		return nil, err
	}
	if !active {
		if _, err := s.tokenRepo.RevokeAllForUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}

	s.logger.Info("Account access changed",
		zap.Int64("user_id", userID),
		zap.Int64("actor_id", actorID),
		zap.Bool("active", active))
	return s.accountRepo.GetByID(ctx, userID)
}
