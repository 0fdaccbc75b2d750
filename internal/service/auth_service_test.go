package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/jobs"
)

type mockAuthRepo struct {
	usersByEmail  map[string]*models.User
	usersByID     map[string]*models.User
	createErr     error
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	passwords     map[string]string
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	m := &mockAuthRepo{
		usersByEmail:  map[string]*models.User{},
		usersByID:     map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
		passwords:     map[string]string{},
	}
	for _, u := range users {
		m.usersByEmail[u.Email] = u
		m.usersByID[u.ID] = u
	}
	return m
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "usr-new"
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error { return nil }

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.refreshTokens[token]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockResetStore struct {
	codes  map[string]string
	issued []string
}

func newMockResetStore() *mockResetStore {
	return &mockResetStore{codes: map[string]string{}}
}

func (m *mockResetStore) Issue(ctx context.Context, email string) (string, error) {
	code := "123456"
	m.codes[email] = code
	m.issued = append(m.issued, email)
	return code, nil
}

func (m *mockResetStore) Take(ctx context.Context, email string) (string, error) {
	code := m.codes[email]
	delete(m.codes, email)
	return code, nil
}

type mockMailQueue struct {
	jobs []jobs.Job
}

func (m *mockMailQueue) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "classroom-api-test",
	}
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceRegisterStudentRequiresStudentID(t *testing.T) {
	svc := NewAuthService(newMockAuthRepo(), newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:     "Dewi",
		Email:    "dewi@example.com",
		Password: "secret1",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Name:      "Dewi",
		Email:     "Dewi@Example.com",
		Password:  "secret1",
		Role:      models.RoleStudent,
		StudentID: "S-001",
	})
	require.NoError(t, err)
	assert.Equal(t, "dewi@example.com", info.Email)
	assert.Equal(t, models.RoleStudent, info.Role)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "dewi@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, info.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	user := &models.User{ID: "usr-1", Email: "dewi@example.com", PasswordHash: hashPassword(t, "correct"), Role: models.RoleStudent, Active: true}
	svc := NewAuthService(newMockAuthRepo(user), newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dewi@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	user := &models.User{ID: "usr-1", Email: "dewi@example.com", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleStudent, Active: false}
	svc := NewAuthService(newMockAuthRepo(user), newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "dewi@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceAuthenticateDeactivatedAccount(t *testing.T) {
	user := &models.User{ID: "usr-1", Email: "dewi@example.com", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleStudent, Active: true}
	svc := NewAuthService(newMockAuthRepo(user), newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dewi@example.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.Authenticate(context.Background(), login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)

	// deactivation kills the still-valid token, not just the next login
	user.Active = false
	_, err = svc.Authenticate(context.Background(), login.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	user := &models.User{ID: "usr-1", Email: "dewi@example.com", PasswordHash: hashPassword(t, "secret1"), Role: models.RoleStudent, Active: true}
	repo := newMockAuthRepo(user)
	svc := NewAuthService(repo, newMockResetStore(), &mockMailQueue{}, nil, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "dewi@example.com", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the used token was revoked
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceForgotPasswordQueuesEmail(t *testing.T) {
	user := &models.User{ID: "usr-1", Name: "Dewi", Email: "dewi@example.com", Role: models.RoleStudent, Active: true}
	store := newMockResetStore()
	queue := &mockMailQueue{}
	svc := NewAuthService(newMockAuthRepo(user), store, queue, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "dewi@example.com"}))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypePasswordResetEmail, queue.jobs[0].Type)
}

func TestAuthServiceForgotPasswordUnknownEmailSilent(t *testing.T) {
	store := newMockResetStore()
	queue := &mockMailQueue{}
	svc := NewAuthService(newMockAuthRepo(), store, queue, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ghost@example.com"}))
	assert.Empty(t, store.issued)
	assert.Empty(t, queue.jobs)
}

func TestAuthServiceResetPasswordConsumesCodeOnce(t *testing.T) {
	user := &models.User{ID: "usr-1", Name: "Dewi", Email: "dewi@example.com", PasswordHash: hashPassword(t, "old-pass"), Role: models.RoleStudent, Active: true}
	repo := newMockAuthRepo(user)
	store := newMockResetStore()
	svc := NewAuthService(repo, store, &mockMailQueue{}, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "dewi@example.com"}))

	req := models.ResetPasswordRequest{Email: "dewi@example.com", ResetCode: "123456", NewPassword: "new-pass"}
	require.NoError(t, svc.ResetPassword(context.Background(), req))
	assert.NotEmpty(t, repo.passwords["usr-1"])

	// the code is gone after the first use
	err := svc.ResetPassword(context.Background(), req)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceResetPasswordWrongCode(t *testing.T) {
	user := &models.User{ID: "usr-1", Email: "dewi@example.com", Role: models.RoleStudent, Active: true}
	store := newMockResetStore()
	svc := NewAuthService(newMockAuthRepo(user), store, &mockMailQueue{}, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "dewi@example.com"}))

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Email: "dewi@example.com", ResetCode: "000000", NewPassword: "new-pass"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
