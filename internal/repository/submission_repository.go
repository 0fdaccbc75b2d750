package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-api/internal/models"
)

const submissionColumns = `id, assignment_id, student_id, comments, submitted_at, is_late, grade, feedback, graded_by, graded_at, created_at, updated_at`

// SubmissionRepository handles persistence of submissions and their files.
// Races around the one-per-pair rule and the graded lock are resolved here,
// by the unique constraint and by conditional writes.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission with its files in one transaction. A unique
// violation on the (assignment, student) pair bubbles up raw so the service
// can map it to a duplicate-submission conflict.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO submissions (id, assignment_id, student_id, comments, submitted_at, is_late, grade, feedback, graded_by, graded_at, created_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :comments, :submitted_at, :is_late, :grade, :feedback, :graded_by, :graded_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, submission); err != nil {
		return err
	}

	if err := insertSubmissionFiles(ctx, tx, submission.ID, files, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create submission: %w", err)
	}
	return nil
}

// FindByID returns a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &submission, nil
}

// FindByPair returns the submission of a student for an assignment.
func (r *SubmissionRepository) FindByPair(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by pair: %w", err)
	}
	return &submission, nil
}

// FindDetailByID returns a submission with student, assignment and grader
// display fields plus its files.
func (r *SubmissionRepository) FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.comments, s.submitted_at, s.is_late, s.grade, s.feedback, s.graded_by, s.graded_at, s.created_at, s.updated_at,
        stu.name AS student_name, stu.email AS student_email,
        a.title AS assignment_title,
        g.name AS grader_name
        FROM submissions s
        JOIN users stu ON stu.id = s.student_id
        JOIN assignments a ON a.id = s.assignment_id
        LEFT JOIN users g ON g.id = s.graded_by
        WHERE s.id = $1`
	var detail models.SubmissionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission detail: %w", err)
	}

	files, err := r.Files(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Files = files
	return &detail, nil
}

// List returns submissions matching the filter, scoped by role. Students see
// only their own; lecturers only submissions in classrooms they own.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter, actorID string, role models.UserRole) ([]models.SubmissionDetail, int, error) {
	baseQuery := `FROM submissions s
        JOIN users stu ON stu.id = s.student_id
        JOIN assignments a ON a.id = s.assignment_id
        LEFT JOIN users g ON g.id = s.graded_by
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.Graded != nil {
		if *filter.Graded {
			conditions = append(conditions, "s.grade IS NOT NULL")
		} else {
			conditions = append(conditions, "s.grade IS NULL")
		}
	}

	switch role {
	case models.RoleLecturer:
		conditions = append(conditions, fmt.Sprintf("a.classroom_id IN (SELECT id FROM classrooms WHERE lecturer_id = $%d)", len(args)+1))
		args = append(args, actorID)
	case models.RoleStudent:
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, actorID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT s.id, s.assignment_id, s.student_id, s.comments, s.submitted_at, s.is_late, s.grade, s.feedback, s.graded_by, s.graded_at, s.created_at, s.updated_at,
        stu.name AS student_name, stu.email AS student_email,
        a.title AS assignment_title,
        g.name AS grader_name
        %s ORDER BY s.submitted_at DESC LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// UpdateStudentContent reworks an ungraded submission. When files is non-nil
// the file set is replaced and submitted_at/is_late are rewritten; a nil set
// means a comments-only edit and the timing columns are left alone. The write
// is conditional on grade IS NULL so a grade that lands concurrently wins;
// false means no ungraded row matched and the caller re-reads to tell locked
// from missing.
func (r *SubmissionRepository) UpdateStudentContent(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) (bool, error) {
	now := time.Now().UTC()
	submission.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update submission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE submissions SET comments = :comments, updated_at = :updated_at
        WHERE id = :id AND grade IS NULL`
	if files != nil {
		query = `UPDATE submissions SET comments = :comments, submitted_at = :submitted_at, is_late = :is_late, updated_at = :updated_at
        WHERE id = :id AND grade IS NULL`
	}
	res, err := tx.NamedExecContext(ctx, query, submission)
	if err != nil {
		return false, fmt.Errorf("update submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update submission result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if files != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM submission_files WHERE submission_id = $1`, submission.ID); err != nil {
			return false, fmt.Errorf("clear submission files: %w", err)
		}
		if err := insertSubmissionFiles(ctx, tx, submission.ID, files, now); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update submission: %w", err)
	}
	return true, nil
}

// DeleteUngraded removes a submission only while it is ungraded. False means
// no ungraded row matched.
func (r *SubmissionRepository) DeleteUngraded(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM submissions WHERE id = $1 AND grade IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete submission result: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a submission regardless of grading state. Admin path.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete submission result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Grade records a grade on a submission. The write is conditional on the row
// still existing, so a concurrent student delete wins and the caller sees
// false.
func (r *SubmissionRepository) Grade(ctx context.Context, id string, grade int, feedback, gradedBy string, gradedAt time.Time) (bool, error) {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = $5, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, grade, feedback, gradedBy, gradedAt)
	if err != nil {
		return false, fmt.Errorf("grade submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grade submission result: %w", err)
	}
	return affected > 0, nil
}

// Files returns the file records for a submission.
func (r *SubmissionRepository) Files(ctx context.Context, submissionID string) ([]models.SubmissionFile, error) {
	const query = `SELECT handle, submission_id, filename, mime_type, size, uploaded_at FROM submission_files WHERE submission_id = $1 ORDER BY uploaded_at ASC`
	var files []models.SubmissionFile
	if err := r.db.SelectContext(ctx, &files, query, submissionID); err != nil {
		return nil, fmt.Errorf("list submission files: %w", err)
	}
	return files, nil
}

// FindFile resolves a submission file by its blob handle.
func (r *SubmissionRepository) FindFile(ctx context.Context, handle string) (*models.SubmissionFile, error) {
	const query = `SELECT handle, submission_id, filename, mime_type, size, uploaded_at FROM submission_files WHERE handle = $1 LIMIT 1`
	var file models.SubmissionFile
	if err := r.db.GetContext(ctx, &file, query, handle); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission file: %w", err)
	}
	return &file, nil
}

// ListFilesByAssignment returns all submission files under an assignment.
// Used to release blobs when an assignment is deleted.
func (r *SubmissionRepository) ListFilesByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionFile, error) {
	const query = `SELECT f.handle, f.submission_id, f.filename, f.mime_type, f.size, f.uploaded_at
        FROM submission_files f
        JOIN submissions s ON s.id = f.submission_id
        WHERE s.assignment_id = $1`
	var files []models.SubmissionFile
	if err := r.db.SelectContext(ctx, &files, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list files by assignment: %w", err)
	}
	return files, nil
}

func insertSubmissionFiles(ctx context.Context, tx *sqlx.Tx, submissionID string, files []models.SubmissionFile, uploadedAt time.Time) error {
	const query = `INSERT INTO submission_files (handle, submission_id, filename, mime_type, size, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, f := range files {
		if _, err := tx.ExecContext(ctx, query, f.Handle, submissionID, f.Filename, f.MIMEType, f.Size, uploadedAt); err != nil {
			return fmt.Errorf("create submission file: %w", err)
		}
	}
	return nil
}
