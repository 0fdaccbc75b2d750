package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
)

func TestSubmissionRepositoryCreateDuplicatePair(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	pqErr := &pq.Error{Code: "23505", Constraint: ConstraintSubmissionPair}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO submissions").WillReturnError(pqErr)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Submission{
		AssignmentID: "asg-1",
		StudentID:    "stu-1",
		SubmittedAt:  time.Now().UTC(),
	}, nil)
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ConstraintSubmissionPair))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryCreateWithFiles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO submissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO submission_files").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO submission_files").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	submission := &models.Submission{
		AssignmentID: "asg-1",
		StudentID:    "stu-1",
		SubmittedAt:  time.Now().UTC(),
	}
	files := []models.SubmissionFile{
		{Handle: "h1.pdf", Filename: "essay.pdf"},
		{Handle: "h2.txt", Filename: "notes.txt"},
	}
	require.NoError(t, repo.Create(context.Background(), submission, files))
	require.NotEmpty(t, submission.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateStudentContentGradedRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	// grade landed first: the conditional write matches no row
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE submissions SET comments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	updated, err := repo.UpdateStudentContent(context.Background(), &models.Submission{ID: "sub-1"}, nil)
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryUpdateStudentContentReplacesFiles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE submissions SET comments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission_files WHERE submission_id = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO submission_files").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	files := []models.SubmissionFile{{Handle: "h3.pdf", Filename: "essay-v2.pdf"}}
	updated, err := repo.UpdateStudentContent(context.Background(), &models.Submission{ID: "sub-1"}, files)
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDeleteUngraded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = $1 AND grade IS NULL")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.DeleteUngraded(context.Background(), "sub-1")
	require.NoError(t, err)
	require.True(t, deleted)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = $1 AND grade IS NULL")).
		WithArgs("sub-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = repo.DeleteUngraded(context.Background(), "sub-2")
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGradeDeletedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	// student delete won the race: no row to grade
	mock.ExpectExec("UPDATE submissions SET grade").
		WillReturnResult(sqlmock.NewResult(0, 0))

	graded, err := repo.Grade(context.Background(), "sub-1", 85, "good", "lec-1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, graded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryFindByPairNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM submissions WHERE assignment_id").
		WithArgs("asg-1", "stu-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByPair(context.Background(), "asg-1", "stu-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryListUngradedForLecturer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	cols := []string{"id", "assignment_id", "student_id", "comments", "submitted_at", "is_late", "grade", "feedback", "graded_by", "graded_at", "created_at", "updated_at", "student_name", "student_email", "assignment_title", "grader_name"}
	rows := sqlmock.NewRows(cols).
		AddRow("sub-1", "asg-1", "stu-1", "", time.Now(), false, nil, nil, nil, nil, time.Now(), time.Now(), "Dewi", "dewi@example.com", "Essay 1", nil)
	mock.ExpectQuery(`s.assignment_id = \$1 AND s.grade IS NULL AND a.classroom_id IN`).
		WithArgs("asg-1", "lec-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM submissions s`).
		WithArgs("asg-1", "lec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	graded := false
	submissions, total, err := repo.List(context.Background(), models.SubmissionFilter{
		AssignmentID: "asg-1",
		Graded:       &graded,
	}, "lec-1", models.RoleLecturer)
	require.NoError(t, err)
	require.Len(t, submissions, 1)
	require.Equal(t, 1, total)
	require.False(t, submissions[0].Graded())
	require.NoError(t, mock.ExpectationsWereMet())
}
