package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
	"github.com/noah-isme/classroom-api/internal/repository"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type classroomRepository interface {
	Create(ctx context.Context, classroom *models.Classroom) error
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	FindByCode(ctx context.Context, code string) (*models.Classroom, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassroomDetail, error)
	List(ctx context.Context, actorID string, role models.UserRole, page, pageSize int) ([]models.ClassroomDetail, int, error)
	Update(ctx context.Context, classroom *models.Classroom) error
	Delete(ctx context.Context, id string) error
	CountAssignments(ctx context.Context, classroomID string) (int, error)
	IsMember(ctx context.Context, classroomID, studentID string) (bool, error)
	AddStudent(ctx context.Context, classroomID, studentID string) (bool, error)
	AddStudents(ctx context.Context, classroomID string, studentIDs []string) (int, error)
	RemoveStudent(ctx context.Context, classroomID, studentID string) (bool, error)
	RemoveStudents(ctx context.Context, classroomID string, studentIDs []string) (int, error)
	ListStudents(ctx context.Context, classroomID string) ([]models.User, error)
}

type classroomStudentLookup interface {
	FilterStudentIDs(ctx context.Context, ids []string) ([]string, error)
}

// ClassroomService manages classrooms and their membership set. All access
// decisions are delegated to the policy engine; the service loads the state
// snapshot the decision needs.
type ClassroomService struct {
	repo      classroomRepository
	users     classroomStudentLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassroomService constructs a ClassroomService.
func NewClassroomService(repo classroomRepository, users classroomStudentLookup, validate *validator.Validate, logger *zap.Logger) *ClassroomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassroomService{repo: repo, users: users, validator: validate, logger: logger}
}

// Create opens a new classroom owned by the acting lecturer.
func (s *ClassroomService) Create(ctx context.Context, actor policy.Actor, req models.CreateClassroomRequest) (*models.Classroom, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid classroom payload")
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionCreate, policy.ClassroomTarget{}).Err(); err != nil {
		return nil, err
	}

	classroom := &models.Classroom{
		Name:        strings.TrimSpace(req.Name),
		Code:        models.NormalizeClassroomCode(req.Code),
		Description: req.Description,
		LecturerID:  actor.ID,
	}
	if err := s.repo.Create(ctx, classroom); err != nil {
		if repository.IsUniqueViolation(err, repository.ConstraintClassroomCode) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "classroom code is already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create classroom")
	}
	return classroom, nil
}

// Get returns a classroom. Lecturers and admins receive the full detail;
// students receive it too but handlers reduce it to the summary view.
func (s *ClassroomService) Get(ctx context.Context, actor policy.Actor, id string) (*models.ClassroomDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := s.classroomTarget(ctx, actor, detail.Classroom)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionRead, target).Err(); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns classrooms visible to the actor.
func (s *ClassroomService) List(ctx context.Context, actor policy.Actor, page, pageSize int) ([]models.ClassroomDetail, int, error) {
	classrooms, total, err := s.repo.List(ctx, actor.ID, actor.Role, page, pageSize)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classrooms")
	}
	return classrooms, total, nil
}

// Update changes name or description of a classroom.
func (s *ClassroomService) Update(ctx context.Context, actor policy.Actor, id string, req models.UpdateClassroomRequest) (*models.Classroom, error) {
	classroom, err := s.loadClassroom(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionUpdate, policy.ClassroomTarget{LecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		classroom.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		classroom.Description = *req.Description
	}
	if err := s.repo.Update(ctx, classroom); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update classroom")
	}
	return classroom, nil
}

// Delete removes a classroom. Deletion is refused while assignments still
// reference it, so no submission history silently disappears.
func (s *ClassroomService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	classroom, err := s.loadClassroom(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionDelete, policy.ClassroomTarget{LecturerID: classroom.LecturerID}).Err(); err != nil {
		return err
	}

	count, err := s.repo.CountAssignments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("classroom still has %d assignments", count))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrClassroomNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete classroom")
	}
	return nil
}

// Join enrolls the acting student via classroom code.
func (s *ClassroomService) Join(ctx context.Context, actor policy.Actor, req models.JoinClassroomRequest) (*models.ClassroomSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	classroom, err := s.repo.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrClassroomNotFound, "no classroom matches this code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	target, err := s.classroomTarget(ctx, actor, *classroom)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionJoin, target).Err(); err != nil {
		return nil, err
	}

	added, err := s.repo.AddStudent(ctx, classroom.ID, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join classroom")
	}
	if !added {
		// raced with another join of the same student
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	detail, err := s.loadDetail(ctx, classroom.ID)
	if err != nil {
		return nil, err
	}
	summary := detail.Summary()
	return &summary, nil
}

// Leave removes the acting student from a classroom. Past submissions remain
// untouched.
func (s *ClassroomService) Leave(ctx context.Context, actor policy.Actor, classroomID string) error {
	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return err
	}

	target, err := s.classroomTarget(ctx, actor, *classroom)
	if err != nil {
		return err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionLeave, target).Err(); err != nil {
		return err
	}

	removed, err := s.repo.RemoveStudent(ctx, classroom.ID, actor.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave classroom")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "")
	}
	return nil
}

// AddStudents enrolls a batch of students. Every id must resolve to an active
// student account; otherwise the whole batch is rejected naming the invalid
// ids. Already-enrolled students are skipped.
func (s *ClassroomService) AddStudents(ctx context.Context, actor policy.Actor, classroomID string, req models.MutateStudentsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student batch payload")
	}

	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return 0, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionManageMembers, policy.ClassroomTarget{LecturerID: classroom.LecturerID}).Err(); err != nil {
		return 0, err
	}

	ids, err := s.resolveStudentIDs(ctx, req.StudentIDs)
	if err != nil {
		return 0, err
	}

	added, err := s.repo.AddStudents(ctx, classroom.ID, ids)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add students")
	}
	return added, nil
}

// RemoveStudents removes a batch of students from the classroom. The batch is
// validated the same way as AddStudents: every id must name a student account
// or the whole batch is rejected.
func (s *ClassroomService) RemoveStudents(ctx context.Context, actor policy.Actor, classroomID string, req models.MutateStudentsRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student batch payload")
	}

	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return 0, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionManageMembers, policy.ClassroomTarget{LecturerID: classroom.LecturerID}).Err(); err != nil {
		return 0, err
	}

	ids, err := s.resolveStudentIDs(ctx, req.StudentIDs)
	if err != nil {
		return 0, err
	}

	removed, err := s.repo.RemoveStudents(ctx, classroom.ID, ids)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove students")
	}
	return removed, nil
}

// Students returns the roster. Only the owning lecturer and admins see it.
func (s *ClassroomService) Students(ctx context.Context, actor policy.Actor, classroomID string) ([]models.User, error) {
	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessClassroom(actor, policy.ActionManageMembers, policy.ClassroomTarget{LecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	students, err := s.repo.ListStudents(ctx, classroom.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// resolveStudentIDs validates a membership batch. Duplicate ids collapse to
// one entry before the comparison so a repeated valid id does not read as an
// unknown one; the returned slice is the de-duplicated batch in input order.
func (s *ClassroomService) resolveStudentIDs(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	valid, err := s.users.FilterStudentIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student ids")
	}
	if len(valid) == len(unique) {
		return unique, nil
	}

	validSet := make(map[string]struct{}, len(valid))
	for _, id := range valid {
		validSet[id] = struct{}{}
	}
	var invalid []string
	for _, id := range unique {
		if _, ok := validSet[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	return nil, appErrors.Clone(appErrors.ErrInvalidStudentReference, fmt.Sprintf("not student accounts: %s", strings.Join(invalid, ", ")))
}

func (s *ClassroomService) loadClassroom(ctx context.Context, id string) (*models.Classroom, error) {
	classroom, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrClassroomNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return classroom, nil
}

func (s *ClassroomService) loadDetail(ctx context.Context, id string) (*models.ClassroomDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrClassroomNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return detail, nil
}

func (s *ClassroomService) classroomTarget(ctx context.Context, actor policy.Actor, classroom models.Classroom) (policy.ClassroomTarget, error) {
	target := policy.ClassroomTarget{LecturerID: classroom.LecturerID}
	if actor.Role == models.RoleStudent {
		enrolled, err := s.repo.IsMember(ctx, classroom.ID, actor.ID)
		if err != nil {
			return target, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
		target.Enrolled = enrolled
	}
	return target, nil
}
