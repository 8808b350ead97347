package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/procuradev/procura-api/internal/models"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
)

type authUserRepoStub struct {
	usersByEmail map[string]*models.User
	usersByID    map[int64]*models.User
	lastLogin    *time.Time
	audits       []models.AuditLog
}

func newAuthUserRepoStub(users ...*models.User) *authUserRepoStub {
	stub := &authUserRepoStub{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[int64]*models.User),
	}
	for _, u := range users {
		stub.usersByEmail[u.Email] = u
		stub.usersByID[u.ID] = u
	}
	return stub
}

func (r *authUserRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := r.usersByEmail[email]; ok {
		copyUser := *user
		return &copyUser, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authUserRepoStub) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if user, ok := r.usersByID[id]; ok {
		copyUser := *user
		return &copyUser, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authUserRepoStub) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	r.lastLogin = &ts
	return nil
}

func (r *authUserRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.audits = append(r.audits, *log)
	return nil
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           12,
		Email:        "buyer@example.com",
		PasswordHash: string(hash),
		Name:         "Buyer",
		Role:         models.RoleUser,
		Active:       true,
	}
}

func newAuthServiceForTest(repo *authUserRepoStub) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
	})
}

func TestLoginIssuesValidToken(t *testing.T) {
	repo := newAuthUserRepoStub(testUser(t, "s3cretpass"))
	svc := newAuthServiceForTest(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "buyer@example.com",
		Password: "s3cretpass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, int64(12), res.User.ID)
	require.NotNil(t, repo.lastLogin)
	require.Len(t, repo.audits, 1)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(12), claims.UserID)
	require.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newAuthServiceForTest(newAuthUserRepoStub(testUser(t, "s3cretpass")))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "buyer@example.com",
		Password: "wrong",
	})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	svc := newAuthServiceForTest(newAuthUserRepoStub())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever1",
	})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := testUser(t, "s3cretpass")
	user.Active = false
	svc := newAuthServiceForTest(newAuthUserRepoStub(user))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "buyer@example.com",
		Password: "s3cretpass",
	})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newAuthUserRepoStub(testUser(t, "s3cretpass"))
	svc := newAuthServiceForTest(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "buyer@example.com",
		Password: "s3cretpass",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken + "x")
	require.Error(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
}
