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

const assignmentColumns = `id, title, description, due_date, classroom_id, created_by, allowed_formats, max_file_size, created_at, updated_at`

// AssignmentRepository handles persistence of assignments and their attachment
// files.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists an assignment together with its attachment file records.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment, attachments []models.AttachmentFile) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create assignment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO assignments (id, title, description, due_date, classroom_id, created_by, allowed_formats, max_file_size, created_at, updated_at)
        VALUES (:id, :title, :description, :due_date, :classroom_id, :created_by, :allowed_formats, :max_file_size, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}

	const fileQuery = `INSERT INTO assignment_files (handle, assignment_id, filename, mime_type, size, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for _, f := range attachments {
		if _, err := tx.ExecContext(ctx, fileQuery, f.Handle, assignment.ID, f.Filename, f.MIMEType, f.Size, now); err != nil {
			return fmt.Errorf("create assignment file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1 LIMIT 1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment by id: %w", err)
	}
	return &assignment, nil
}

// FindDetailByID returns an assignment with creator name and attachments.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.title, a.description, a.due_date, a.classroom_id, a.created_by, a.allowed_formats, a.max_file_size, a.created_at, a.updated_at,
        u.name AS creator_name
        FROM assignments a
        JOIN users u ON u.id = a.created_by
        WHERE a.id = $1`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment detail: %w", err)
	}

	attachments, err := r.Attachments(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Attachments = attachments
	return &detail, nil
}

// List returns assignments matching the filter, scoped by role. Students only
// see assignments of classrooms they are enrolled in; lecturers only see
// assignments of classrooms they own.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter, actorID string, role models.UserRole) ([]models.Assignment, int, error) {
	baseQuery := `FROM assignments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ClassroomID != "" {
		conditions = append(conditions, fmt.Sprintf("classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	switch role {
	case models.RoleLecturer:
		conditions = append(conditions, fmt.Sprintf("classroom_id IN (SELECT id FROM classrooms WHERE lecturer_id = $%d)", len(args)+1))
		args = append(args, actorID)
	case models.RoleStudent:
		conditions = append(conditions, fmt.Sprintf("classroom_id IN (SELECT classroom_id FROM classroom_students WHERE student_id = $%d)", len(args)+1))
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY due_date ASC LIMIT %d OFFSET %d", assignmentColumns, baseQuery, pageSize, offset)

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// Update updates mutable assignment fields.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, due_date = :due_date,
        allowed_formats = :allowed_formats, max_file_size = :max_file_size, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment. Attachment and submission file rows go with it
// via cascades; the caller releases the stored blobs.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSubmissions returns the number of submissions for an assignment.
func (r *AssignmentRepository) CountSubmissions(ctx context.Context, assignmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions WHERE assignment_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID); err != nil {
		return 0, fmt.Errorf("count assignment submissions: %w", err)
	}
	return count, nil
}

// Attachments returns the attachment file records for an assignment.
func (r *AssignmentRepository) Attachments(ctx context.Context, assignmentID string) ([]models.AttachmentFile, error) {
	const query = `SELECT handle, assignment_id, filename, mime_type, size, uploaded_at FROM assignment_files WHERE assignment_id = $1 ORDER BY uploaded_at ASC`
	var files []models.AttachmentFile
	if err := r.db.SelectContext(ctx, &files, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment files: %w", err)
	}
	return files, nil
}

// FindAttachment resolves an attachment by its blob handle. Download
// authorization starts from this lookup.
func (r *AssignmentRepository) FindAttachment(ctx context.Context, handle string) (*models.AttachmentFile, error) {
	const query = `SELECT handle, assignment_id, filename, mime_type, size, uploaded_at FROM assignment_files WHERE handle = $1 LIMIT 1`
	var file models.AttachmentFile
	if err := r.db.GetContext(ctx, &file, query, handle); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment file: %w", err)
	}
	return &file, nil
}
