package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "role", "student_id", "phone_number", "active", "created_at", "updated_at"})
}

func TestUserRepositoryFindByEmailLowercases(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := userRows().
		AddRow("usr-1", "Dewi", "dewi@example.com", "hash", models.RoleStudent, "S-001", nil, true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("dewi@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Dewi@Example.COM")
	require.NoError(t, err)
	require.Equal(t, "usr-1", user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateBubblesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	pqErr := &pq.Error{Code: "23505", Constraint: ConstraintUsersEmail}
	mock.ExpectExec("INSERT INTO users").WillReturnError(pqErr)

	studentID := "S-002"
	err := repo.Create(context.Background(), &models.User{
		Name:      "Dewi",
		Email:     "dewi@example.com",
		Role:      models.RoleStudent,
		StudentID: &studentID,
		Active:    true,
	})
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ConstraintUsersEmail))
	require.False(t, IsUniqueViolation(err, ConstraintUsersStudentID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeleteRemovesMemberships(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM classroom_students WHERE student_id = $1")).
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "usr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeleteMissingUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM classroom_students WHERE student_id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFilterStudentIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id"}).AddRow("stu-1").AddRow("stu-2")
	mock.ExpectQuery("SELECT id FROM users WHERE role = 'student' AND active = TRUE").
		WillReturnRows(rows)

	valid, err := repo.FilterStudentIDs(context.Background(), []string{"stu-1", "stu-2", "ghost"})
	require.NoError(t, err)
	require.Equal(t, []string{"stu-1", "stu-2"}, valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFilterStudentIDsEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	valid, err := repo.FilterStudentIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, valid)
}

func TestUserRepositoryListScopedToLecturer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := userRows().
		AddRow("stu-1", "Dewi", "dewi@example.com", "hash", models.RoleStudent, "S-001", nil, true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM users WHERE 1=1 AND id IN").
		WithArgs("lec-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE 1=1 AND id IN`).
		WithArgs("lec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Page: 1, PageSize: 20}, "lec-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
