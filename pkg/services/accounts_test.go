package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/models"
)

type fakeIssuer struct {
	err error
}

func (f *fakeIssuer) IssueAccessToken(account *models.Account) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return fmt.Sprintf("access-%d", account.ID), time.Now().Add(15 * time.Minute), nil
}

type accountFixture struct {
	accounts *mockAccountRepository
	tokens   *mockRefreshTokenRepository
	svc      *accountService
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	f := &accountFixture{
		accounts: newMockAccountRepository(),
		tokens:   newMockRefreshTokenRepository(),
	}
	f.svc = newAccountService(f.accounts, f.tokens, &fakeIssuer{}, 24*time.Hour, bcrypt.MinCost, zap.NewNop())
	return f
}

func (f *accountFixture) signup(t *testing.T, email string) *AuthSession {
	t.Helper()
	session, err := f.svc.Signup(context.Background(), email, "correct-horse", "")
	require.NoError(t, err)
	return session
}

func TestSignup_CreatesAccountAndSession(t *testing.T) {
	f := newAccountFixture(t)

	session, err := f.svc.Signup(context.Background(), " Ada@Example.com ", "correct-horse", "")

	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.Account.Email)
	assert.Equal(t, "ada", session.Account.DisplayName)
	assert.Equal(t, models.RoleUser, session.Account.Role)
	assert.True(t, session.Account.IsActive)
	assert.NotEqual(t, "correct-horse", session.Account.PasswordHash)
	assert.Equal(t, fmt.Sprintf("access-%d", session.Account.ID), session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.True(t, f.tokens.usable(auth.HashRefreshToken(session.RefreshToken)))
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), session.RefreshExpiresAt, time.Minute)
}

func TestSignup_DuplicateEmailConflicts(t *testing.T) {
	f := newAccountFixture(t)
	f.signup(t, "ada@example.com")

	_, err := f.svc.Signup(context.Background(), "ADA@example.com", "another-pass", "Ada")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		display  string
	}{
		{"missing email", "", "correct-horse", ""},
		{"malformed email", "not-an-email", "correct-horse", ""},
		{"named address", "Ada <ada@example.com>", "correct-horse", ""},
		{"short password", "ada@example.com", "short", ""},
		{"password over bcrypt limit", "ada@example.com", strings.Repeat("x", 73), ""},
		{"display name too long", "ada@example.com", "correct-horse", strings.Repeat("a", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(t)
			_, err := f.svc.Signup(context.Background(), tt.email, tt.password, tt.display)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestLogin_UniformCredentialErrors(t *testing.T) {
	f := newAccountFixture(t)
	f.signup(t, "ada@example.com")

	_, wrongPassword := f.svc.Login(context.Background(), "ada@example.com", "wrong-password")
	_, unknownEmail := f.svc.Login(context.Background(), "nobody@example.com", "correct-horse")

	assert.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, apperrors.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_Success(t *testing.T) {
	f := newAccountFixture(t)
	created := f.signup(t, "ada@example.com")

	session, err := f.svc.Login(context.Background(), "ADA@example.com", "correct-horse")

	require.NoError(t, err)
	assert.Equal(t, created.Account.ID, session.Account.ID)
	assert.NotEqual(t, created.RefreshToken, session.RefreshToken)
}

func TestLogin_DisabledAndDeletedAccounts(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")
	ctx := context.Background()

	require.NoError(t, f.accounts.SetActive(ctx, session.Account.ID, false))
	_, err := f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.accounts.SoftDelete(ctx, session.Account.ID))
	_, err = f.svc.Login(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrAccountDeleted)

	_, err = f.svc.Login(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "deleted state is only revealed to the owner")
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAccountFixture(t)
	first := f.signup(t, "ada@example.com")
	ctx := context.Background()

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.False(t, f.tokens.usable(auth.HashRefreshToken(first.RefreshToken)))
	assert.True(t, f.tokens.usable(auth.HashRefreshToken(second.RefreshToken)))

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "a rotated token cannot be reused")

	third, err := f.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, third.Account.ID)
}

func TestRefresh_RejectsUnusableTokens(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, "never-issued")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	require.NoError(t, f.svc.Logout(ctx, session.RefreshToken))
	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRefresh_DisabledAccountIsRejected(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")
	require.NoError(t, f.accounts.SetActive(context.Background(), session.Account.ID, false))

	_, err := f.svc.Refresh(context.Background(), session.RefreshToken)

	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.Logout(ctx, ""))
	assert.NoError(t, f.svc.Logout(ctx, "unknown"))

	f.tokens.revokeErr = errors.New("database unavailable")
	assert.NoError(t, f.svc.Logout(ctx, "unknown"))
}

func TestDeleteAndRestoreAccount(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")
	other, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteAccount(ctx, session.Account.ID))
	assert.False(t, f.tokens.usable(auth.HashRefreshToken(session.RefreshToken)))
	assert.False(t, f.tokens.usable(auth.HashRefreshToken(other.RefreshToken)))

	_, err = f.svc.Me(ctx, session.Account.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.RestoreAccount(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	restored, err := f.svc.RestoreAccount(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.False(t, restored.Account.IsDeleted())
	assert.True(t, restored.Account.IsActive)

	_, err = f.svc.RestoreAccount(ctx, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	me, err := f.svc.Me(ctx, session.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)
}

func TestRestoreAccount_WindowExpired(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")
	require.NoError(t, f.svc.DeleteAccount(context.Background(), session.Account.ID))
	f.svc.now = func() time.Time { return time.Now().Add(models.AccountRestoreWindow + time.Hour) }

	_, err := f.svc.RestoreAccount(context.Background(), "ada@example.com", "correct-horse")

	assert.ErrorIs(t, err, apperrors.ErrRestoreWindowExpired)
}

func TestDeleteAccount_Twice(t *testing.T) {
	f := newAccountFixture(t)
	session := f.signup(t, "ada@example.com")

	require.NoError(t, f.svc.DeleteAccount(context.Background(), session.Account.ID))
	err := f.svc.DeleteAccount(context.Background(), session.Account.ID)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSession_IssuerFailure(t *testing.T) {
	f := newAccountFixture(t)
	f.svc.issuer = &fakeIssuer{err: errors.New("signing failed")}

	_, err := f.svc.Signup(context.Background(), "ada@example.com", "correct-horse", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing failed")
}
