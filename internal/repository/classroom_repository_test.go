package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
)

func classroomRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "code", "description", "lecturer_id", "created_at", "updated_at"})
}

func TestClassroomRepositoryFindByCodeNormalizes(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	rows := classroomRows().
		AddRow("cls-1", "Algorithms", "CS101", "", "lec-1", time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM classrooms WHERE code").
		WithArgs("CS101").
		WillReturnRows(rows)

	classroom, err := repo.FindByCode(context.Background(), "  cs101 ")
	require.NoError(t, err)
	require.Equal(t, "cls-1", classroom.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryAddStudentIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectExec("INSERT INTO classroom_students").
		WillReturnResult(sqlmock.NewResult(0, 1))
	added, err := repo.AddStudent(context.Background(), "cls-1", "stu-1")
	require.NoError(t, err)
	require.True(t, added)

	// second add hits ON CONFLICT DO NOTHING
	mock.ExpectExec("INSERT INTO classroom_students").
		WillReturnResult(sqlmock.NewResult(0, 0))
	added, err = repo.AddStudent(context.Background(), "cls-1", "stu-1")
	require.NoError(t, err)
	require.False(t, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryAddStudentsSkipsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectExec("INSERT INTO classroom_students").
		WillReturnResult(sqlmock.NewResult(0, 2))

	added, err := repo.AddStudents(context.Background(), "cls-1", []string{"stu-1", "stu-2", "stu-3"})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryAddStudentsEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	added, err := repo.AddStudents(context.Background(), "cls-1", nil)
	require.NoError(t, err)
	require.Zero(t, added)
}

func TestClassroomRepositoryRemoveStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM classroom_students WHERE classroom_id = $1 AND student_id = $2")).
		WithArgs("cls-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveStudent(context.Background(), "cls-1", "stu-1")
	require.NoError(t, err)
	require.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryIsMember(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectQuery("SELECT 1 FROM classroom_students").
		WithArgs("cls-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	member, err := repo.IsMember(context.Background(), "cls-1", "stu-1")
	require.NoError(t, err)
	require.True(t, member)

	mock.ExpectQuery("SELECT 1 FROM classroom_students").
		WithArgs("cls-1", "stu-2").
		WillReturnError(sql.ErrNoRows)
	member, err = repo.IsMember(context.Background(), "cls-1", "stu-2")
	require.NoError(t, err)
	require.False(t, member)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM classrooms WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryListScopedToStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "code", "description", "lecturer_id", "created_at", "updated_at", "lecturer_name", "lecturer_email", "student_count"}).
		AddRow("cls-1", "Algorithms", "CS101", "", "lec-1", time.Now(), time.Now(), "Budi", "budi@example.com", 12)
	mock.ExpectQuery("FROM classrooms c JOIN users u (.+) WHERE c.id IN").
		WithArgs("stu-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM classrooms c JOIN users u (.+) WHERE c.id IN`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classrooms, total, err := repo.List(context.Background(), "stu-1", models.RoleStudent, 1, 20)
	require.NoError(t, err)
	require.Len(t, classrooms, 1)
	require.Equal(t, 1, total)
	require.Equal(t, 12, classrooms[0].StudentCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassroomRepositoryCountAssignments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assignments WHERE classroom_id`).
		WithArgs("cls-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountAssignments(context.Background(), "cls-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
