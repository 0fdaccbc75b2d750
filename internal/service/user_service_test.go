package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	deleted   []string
	auditLogs []*models.AuditLog
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter, scopeLecturerID string) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockLecturerClassrooms struct {
	counts map[string]int
}

func (m *mockLecturerClassrooms) CountByLecturer(ctx context.Context, lecturerID string) (int, error) {
	return m.counts[lecturerID], nil
}

func TestUserServiceDeleteLecturerWithClassrooms(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "lec-1", Role: models.RoleLecturer})
	svc := NewUserService(repo, &mockLecturerClassrooms{counts: map[string]int{"lec-1": 3}}, nil, nil)

	err := svc.Delete(context.Background(), "adm-1", models.RoleAdmin, "lec-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.deleted)
}

func TestUserServiceDeleteLecturerWithoutClassrooms(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "lec-1", Role: models.RoleLecturer})
	svc := NewUserService(repo, &mockLecturerClassrooms{counts: map[string]int{}}, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "adm-1", models.RoleAdmin, "lec-1"))
	assert.Equal(t, []string{"lec-1"}, repo.deleted)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.auditLogs[0].Action)
}

func TestUserServiceDeleteSelfRejected(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "adm-1", Role: models.RoleAdmin})
	svc := NewUserService(repo, &mockLecturerClassrooms{}, nil, nil)

	err := svc.Delete(context.Background(), "adm-1", models.RoleAdmin, "adm-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Empty(t, repo.deleted)
}

func TestUserServiceDeleteRequiresAdmin(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "stu-1", Role: models.RoleStudent})
	svc := NewUserService(repo, &mockLecturerClassrooms{}, nil, nil)

	err := svc.Delete(context.Background(), "lec-1", models.RoleLecturer, "stu-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceGetSelfOnly(t *testing.T) {
	repo := newMockUserRepo(
		&models.User{ID: "stu-1", Role: models.RoleStudent},
		&models.User{ID: "stu-2", Role: models.RoleStudent},
	)
	svc := NewUserService(repo, &mockLecturerClassrooms{}, nil, nil)

	user, err := svc.Get(context.Background(), "stu-1", models.RoleStudent, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", user.ID)

	_, err = svc.Get(context.Background(), "stu-1", models.RoleStudent, "stu-2")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestUserServiceUpdateRoleChangeRequiresAdmin(t *testing.T) {
	repo := newMockUserRepo(&models.User{ID: "stu-1", Role: models.RoleStudent})
	svc := NewUserService(repo, &mockLecturerClassrooms{}, nil, nil)

	lecturer := models.RoleLecturer
	_, err := svc.Update(context.Background(), "stu-1", models.RoleStudent, "stu-1", models.UpdateUserRequest{Role: &lecturer})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Update(context.Background(), "adm-1", models.RoleAdmin, "stu-1", models.UpdateUserRequest{Role: &lecturer})
	require.NoError(t, err)
	assert.Equal(t, models.RoleLecturer, updated.Role)
}
