package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/classroom-api/internal/models"
)

// ClassroomRepository handles persistence of classrooms and their membership
// set.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// Create persists a new classroom. The code is stored normalized.
func (r *ClassroomRepository) Create(ctx context.Context, classroom *models.Classroom) error {
	if classroom.ID == "" {
		classroom.ID = uuid.NewString()
	}
	classroom.Code = models.NormalizeClassroomCode(classroom.Code)
	now := time.Now().UTC()
	if classroom.CreatedAt.IsZero() {
		classroom.CreatedAt = now
	}
	classroom.UpdatedAt = now

	const query = `INSERT INTO classrooms (id, name, code, description, lecturer_id, created_at, updated_at)
        VALUES (:id, :name, :code, :description, :lecturer_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, classroom); err != nil {
		return err
	}
	return nil
}

// FindByID returns a classroom by identifier.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, name, code, description, lecturer_id, created_at, updated_at FROM classrooms WHERE id = $1 LIMIT 1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom by id: %w", err)
	}
	return &classroom, nil
}

// FindByCode returns a classroom by its normalized join code.
func (r *ClassroomRepository) FindByCode(ctx context.Context, code string) (*models.Classroom, error) {
	const query = `SELECT id, name, code, description, lecturer_id, created_at, updated_at FROM classrooms WHERE code = $1 LIMIT 1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, models.NormalizeClassroomCode(code)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom by code: %w", err)
	}
	return &classroom, nil
}

// FindDetailByID returns a classroom with lecturer info and member count.
func (r *ClassroomRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassroomDetail, error) {
	const query = `SELECT c.id, c.name, c.code, c.description, c.lecturer_id, c.created_at, c.updated_at,
        u.name AS lecturer_name, u.email AS lecturer_email,
        (SELECT COUNT(*) FROM classroom_students cs WHERE cs.classroom_id = c.id) AS student_count
        FROM classrooms c
        JOIN users u ON u.id = c.lecturer_id
        WHERE c.id = $1`
	var detail models.ClassroomDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom detail: %w", err)
	}
	return &detail, nil
}

// List returns classrooms visible to the given scope. Admins see all,
// lecturers their own, students the ones they are enrolled in.
func (r *ClassroomRepository) List(ctx context.Context, actorID string, role models.UserRole, page, pageSize int) ([]models.ClassroomDetail, int, error) {
	base := `FROM classrooms c JOIN users u ON u.id = c.lecturer_id`
	var clause string
	var args []interface{}

	switch role {
	case models.RoleLecturer:
		clause = " WHERE c.lecturer_id = $1"
		args = append(args, actorID)
	case models.RoleStudent:
		clause = " WHERE c.id IN (SELECT classroom_id FROM classroom_students WHERE student_id = $1)"
		args = append(args, actorID)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT c.id, c.name, c.code, c.description, c.lecturer_id, c.created_at, c.updated_at,
        u.name AS lecturer_name, u.email AS lecturer_email,
        (SELECT COUNT(*) FROM classroom_students cs WHERE cs.classroom_id = c.id) AS student_count
        %s ORDER BY c.created_at DESC LIMIT %d OFFSET %d`, base+clause, pageSize, offset)

	var classrooms []models.ClassroomDetail
	if err := r.db.SelectContext(ctx, &classrooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classrooms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classrooms: %w", err)
	}
	return classrooms, total, nil
}

// Update updates mutable classroom fields.
func (r *ClassroomRepository) Update(ctx context.Context, classroom *models.Classroom) error {
	classroom.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classrooms SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, classroom); err != nil {
		return fmt.Errorf("update classroom: %w", err)
	}
	return nil
}

// Delete removes a classroom and its membership rows.
func (r *ClassroomRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classrooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete classroom: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete classroom result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountAssignments returns the number of assignments attached to a classroom.
// Classroom deletion is blocked while this is non-zero.
func (r *ClassroomRepository) CountAssignments(ctx context.Context, classroomID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignments WHERE classroom_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classroomID); err != nil {
		return 0, fmt.Errorf("count classroom assignments: %w", err)
	}
	return count, nil
}

// CountByLecturer returns how many classrooms a lecturer owns.
func (r *ClassroomRepository) CountByLecturer(ctx context.Context, lecturerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM classrooms WHERE lecturer_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, lecturerID); err != nil {
		return 0, fmt.Errorf("count lecturer classrooms: %w", err)
	}
	return count, nil
}

// IsMember reports whether the student belongs to the classroom.
func (r *ClassroomRepository) IsMember(ctx context.Context, classroomID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM classroom_students WHERE classroom_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classroomID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// AddStudent inserts a single student into the membership set. The insert is
// atomic add-if-absent; the returned bool is false when the student was
// already a member.
func (r *ClassroomRepository) AddStudent(ctx context.Context, classroomID, studentID string) (bool, error) {
	const query = `INSERT INTO classroom_students (classroom_id, student_id, joined_at) VALUES ($1, $2, $3)
        ON CONFLICT (classroom_id, student_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, classroomID, studentID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add student result: %w", err)
	}
	return affected > 0, nil
}

// AddStudents inserts a batch of students, skipping existing members. Returns
// the number of rows actually added.
func (r *ClassroomRepository) AddStudents(ctx context.Context, classroomID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	const query = `INSERT INTO classroom_students (classroom_id, student_id, joined_at)
        SELECT $1, s, $3 FROM unnest($2::uuid[]) AS s
        ON CONFLICT (classroom_id, student_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, classroomID, pq.Array(studentIDs), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("add students: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("add students result: %w", err)
	}
	return int(affected), nil
}

// RemoveStudent removes a single student from the membership set. Returns
// false when the student was not a member.
func (r *ClassroomRepository) RemoveStudent(ctx context.Context, classroomID, studentID string) (bool, error) {
	const query = `DELETE FROM classroom_students WHERE classroom_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, classroomID, studentID)
	if err != nil {
		return false, fmt.Errorf("remove student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove student result: %w", err)
	}
	return affected > 0, nil
}

// RemoveStudents removes a batch of students from the membership set.
func (r *ClassroomRepository) RemoveStudents(ctx context.Context, classroomID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM classroom_students WHERE classroom_id = $1 AND student_id = ANY($2)`
	res, err := r.db.ExecContext(ctx, query, classroomID, pq.Array(studentIDs))
	if err != nil {
		return 0, fmt.Errorf("remove students: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove students result: %w", err)
	}
	return int(affected), nil
}

// ListStudents returns the classroom roster.
func (r *ClassroomRepository) ListStudents(ctx context.Context, classroomID string) ([]models.User, error) {
	const query = `SELECT u.id, u.name, u.email, u.password_hash, u.role, u.student_id, u.phone_number, u.active, u.created_at, u.updated_at
        FROM users u
        JOIN classroom_students cs ON cs.student_id = u.id
        WHERE cs.classroom_id = $1
        ORDER BY u.name ASC`
	var students []models.User
	if err := r.db.SelectContext(ctx, &students, query, classroomID); err != nil {
		return nil, fmt.Errorf("list classroom students: %w", err)
	}
	return students, nil
}
