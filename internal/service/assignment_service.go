package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/storage"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment, attachments []models.AttachmentFile) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	List(ctx context.Context, filter models.AssignmentFilter, actorID string, role models.UserRole) ([]models.Assignment, int, error)
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
	Attachments(ctx context.Context, assignmentID string) ([]models.AttachmentFile, error)
	FindAttachment(ctx context.Context, handle string) (*models.AttachmentFile, error)
}

type assignmentClassroomLookup interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	IsMember(ctx context.Context, classroomID, studentID string) (bool, error)
}

type assignmentSubmissionLookup interface {
	ListFilesByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionFile, error)
}

// AssignmentService manages assignments and their attachment files.
type AssignmentService struct {
	repo        assignmentRepository
	classrooms  assignmentClassroomLookup
	submissions assignmentSubmissionLookup
	blobs       blobStorage
	limits      UploadLimits
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, classrooms assignmentClassroomLookup, submissions assignmentSubmissionLookup, blobs blobStorage, limits UploadLimits, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, classrooms: classrooms, submissions: submissions, blobs: blobs, limits: limits, validator: validate, logger: logger}
}

// Create publishes an assignment to a classroom with optional attachments.
func (s *AssignmentService) Create(ctx context.Context, actor policy.Actor, req models.CreateAssignmentRequest, uploads []Upload) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	classroom, err := s.loadClassroom(ctx, req.ClassroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessAssignment(actor, policy.ActionCreate, policy.AssignmentTarget{ClassroomLecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	formats := req.AllowedFormats
	if len(formats) == 0 {
		formats = models.DefaultAllowedFormats
	}
	maxSize := req.MaxFileSize
	if maxSize <= 0 {
		maxSize = models.DefaultMaxFileSize
	}

	// attachments obey the same format whitelist the assignment imposes
	if err := validateUploads(uploads, formats, s.limits); err != nil {
		return nil, err
	}
	stored, err := storeUploads(ctx, s.blobs, uploads)
	if err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate.UTC(),
		ClassroomID:    classroom.ID,
		CreatedBy:      actor.ID,
		AllowedFormats: pq.StringArray(formats),
		MaxFileSize:    maxSize,
	}
	attachments := make([]models.AttachmentFile, 0, len(stored))
	for _, m := range stored {
		attachments = append(attachments, models.AttachmentFile{
			Handle:   m.Handle,
			Filename: m.Filename,
			MIMEType: m.MIMEType,
			Size:     m.Size,
		})
	}

	if err := s.repo.Create(ctx, assignment, attachments); err != nil {
		releaseBlobs(s.blobs, stored, s.logger)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Get returns the assignment detail with attachments.
func (s *AssignmentService) Get(ctx context.Context, actor policy.Actor, id string) (*models.AssignmentDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := s.assignmentTarget(ctx, actor, detail.ClassroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessAssignment(actor, policy.ActionRead, target).Err(); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns assignments visible to the actor.
func (s *AssignmentService) List(ctx context.Context, actor policy.Actor, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	assignments, total, err := s.repo.List(ctx, filter, actor.ID, actor.Role)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, total, nil
}

// Update changes mutable assignment fields. Moving the due date does not
// retroactively re-flag existing submissions; lateness is stamped at submit
// time.
func (s *AssignmentService) Update(ctx context.Context, actor policy.Actor, id string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	assignment, err := s.loadAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	classroom, err := s.loadClassroom(ctx, assignment.ClassroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessAssignment(actor, policy.ActionUpdate, policy.AssignmentTarget{ClassroomLecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	if req.Title != nil {
		assignment.Title = *req.Title
	}
	if req.Description != nil {
		assignment.Description = *req.Description
	}
	if req.DueDate != nil {
		assignment.DueDate = req.DueDate.UTC()
	}
	if len(req.AllowedFormats) > 0 {
		assignment.AllowedFormats = pq.StringArray(req.AllowedFormats)
	}
	if req.MaxFileSize != nil && *req.MaxFileSize > 0 {
		assignment.MaxFileSize = *req.MaxFileSize
	}

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment along with its submissions and every stored
// blob. Blob release failures do not fail the call; they come back as
// warnings.
func (s *AssignmentService) Delete(ctx context.Context, actor policy.Actor, id string) ([]string, error) {
	assignment, err := s.loadAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	classroom, err := s.loadClassroom(ctx, assignment.ClassroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessAssignment(actor, policy.ActionDelete, policy.AssignmentTarget{ClassroomLecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	// collect handles before the cascade wipes the records
	var metas []storage.FileMeta
	attachments, err := s.repo.Attachments(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	for _, f := range attachments {
		metas = append(metas, storage.FileMeta{Handle: f.Handle, Filename: f.Filename})
	}
	submissionFiles, err := s.submissions.ListFilesByAssignment(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submission files")
	}
	for _, f := range submissionFiles {
		metas = append(metas, storage.FileMeta{Handle: f.Handle, Filename: f.Filename})
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	warnings := releaseBlobs(s.blobs, metas, s.logger)
	return warnings, nil
}

// AttachmentDownload is an authorized attachment stream.
type AttachmentDownload struct {
	Filename string
	MIMEType string
	Size     int64
	Content  io.ReadCloser
}

// DownloadAttachment authorizes and opens an assignment attachment. The
// handle is resolved to its owning assignment first; authorization follows
// from that record, never from the request path alone.
func (s *AssignmentService) DownloadAttachment(ctx context.Context, actor policy.Actor, handle string) (*AttachmentDownload, error) {
	file, err := s.repo.FindAttachment(ctx, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}

	assignment, err := s.loadAssignment(ctx, file.AssignmentID)
	if err != nil {
		return nil, err
	}
	target, err := s.assignmentTarget(ctx, actor, assignment.ClassroomID)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessAssignment(actor, policy.ActionDownload, target).Err(); err != nil {
		return nil, err
	}

	content, err := s.blobs.Open(file.Handle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return &AttachmentDownload{
		Filename: file.Filename,
		MIMEType: file.MIMEType,
		Size:     file.Size,
		Content:  content,
	}, nil
}

// IsPastDue reports whether submitting now would be late.
func IsPastDue(assignment *models.Assignment, at time.Time) bool {
	return at.After(assignment.DueDate)
}

func (s *AssignmentService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *AssignmentService) loadDetail(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return detail, nil
}

func (s *AssignmentService) loadClassroom(ctx context.Context, id string) (*models.Classroom, error) {
	classroom, err := s.classrooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrClassroomNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return classroom, nil
}

func (s *AssignmentService) assignmentTarget(ctx context.Context, actor policy.Actor, classroomID string) (policy.AssignmentTarget, error) {
	classroom, err := s.loadClassroom(ctx, classroomID)
	if err != nil {
		return policy.AssignmentTarget{}, err
	}
	target := policy.AssignmentTarget{ClassroomLecturerID: classroom.LecturerID}
	if actor.Role == models.RoleStudent {
		enrolled, err := s.classrooms.IsMember(ctx, classroomID, actor.ID)
		if err != nil {
			return target, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
		target.Enrolled = enrolled
	}
	return target, nil
}
