package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.UserFilter, scopeLecturerID string) ([]models.User, int, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type userClassroomLookup interface {
	CountByLecturer(ctx context.Context, lecturerID string) (int, error)
}

// UserService covers admin and self-service user management.
type UserService struct {
	repo       userRepository
	classrooms userClassroomLookup
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, classrooms userClassroomLookup, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, classrooms: classrooms, validator: validate, logger: logger}
}

// Get returns a user profile. Non-admins can only read themselves.
func (s *UserService) Get(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.User, error) {
	if actorRole != models.RoleAdmin && actorID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return s.loadUser(ctx, id)
}

// List returns users. Admins see everyone; lecturers see students enrolled in
// their classrooms; students see nobody.
func (s *UserService) List(ctx context.Context, actorID string, actorRole models.UserRole, filter models.UserFilter) ([]models.User, int, error) {
	var scopeLecturerID string
	switch actorRole {
	case models.RoleAdmin:
	case models.RoleLecturer:
		scopeLecturerID = actorID
		student := models.RoleStudent
		filter.Role = &student
	default:
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	users, total, err := s.repo.List(ctx, filter, scopeLecturerID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Update modifies a user profile. Only admins may change role or active state.
func (s *UserService) Update(ctx context.Context, actorID string, actorRole models.UserRole, id string, req models.UpdateUserRequest) (*models.User, error) {
	if actorRole != models.RoleAdmin && actorID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.Role != nil || req.Active != nil {
		if actorRole != models.RoleAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may change role or active state")
		}
		if req.Role != nil {
			if !req.Role.Valid() {
				return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
			}
			user.Role = *req.Role
		}
		if req.Active != nil {
			user.Active = *req.Active
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// Delete removes a user account. Admins cannot delete themselves, and
// lecturers cannot be deleted while they still own classrooms; deleting a
// student also removes their memberships, while their submissions remain for
// record keeping.
func (s *UserService) Delete(ctx context.Context, actorID string, actorRole models.UserRole, id string) error {
	if actorRole != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	if id == actorID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete own account")
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}

	if user.Role == models.RoleLecturer {
		count, err := s.classrooms.CountByLecturer(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classrooms")
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("lecturer still owns %d classrooms", count))
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "user",
		ResourceID: &id,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}
	return nil
}

// Deactivate suspends an account without removing history.
func (s *UserService) Deactivate(ctx context.Context, actorRole models.UserRole, id string) error {
	if actorRole != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	if _, err := s.loadUser(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	return nil
}

func (s *UserService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
