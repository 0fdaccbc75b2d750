package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
	"github.com/noah-isme/classroom-api/internal/repository"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/storage"
)

type submissionRepository interface {
	Create(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByPair(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	FindDetailByID(ctx context.Context, id string) (*models.SubmissionDetail, error)
	List(ctx context.Context, filter models.SubmissionFilter, actorID string, role models.UserRole) ([]models.SubmissionDetail, int, error)
	UpdateStudentContent(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) (bool, error)
	DeleteUngraded(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Grade(ctx context.Context, id string, grade int, feedback, gradedBy string, gradedAt time.Time) (bool, error)
	Files(ctx context.Context, submissionID string) ([]models.SubmissionFile, error)
	FindFile(ctx context.Context, handle string) (*models.SubmissionFile, error)
}

type submissionAssignmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type linkSigner interface {
	Generate(submissionID, handle string) (string, time.Time, error)
	Parse(token string) (submissionID, handle string, expiresAt time.Time, err error)
}

// SubmissionService drives the submission lifecycle: submit, rework, withdraw,
// grade and download. State transitions that race (grade vs student edits,
// duplicate submits) are settled by the repository's conditional writes and
// the unique pair constraint; this service maps the outcomes to domain errors.
type SubmissionService struct {
	repo        submissionRepository
	assignments submissionAssignmentLookup
	classrooms  assignmentClassroomLookup
	audit       auditRecorder
	blobs       blobStorage
	signer      linkSigner
	limits      UploadLimits
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments submissionAssignmentLookup, classrooms assignmentClassroomLookup, audit auditRecorder, blobs blobStorage, signer linkSigner, limits UploadLimits, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{repo: repo, assignments: assignments, classrooms: classrooms, audit: audit, blobs: blobs, signer: signer, limits: limits, validator: validate, logger: logger}
}

// Create submits work for an assignment. Lateness is stamped against the due
// date at submission time; a submission exactly at the due date is on time.
func (s *SubmissionService) Create(ctx context.Context, actor policy.Actor, assignmentID, comments string, uploads []Upload) (*models.Submission, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	target, err := s.submissionTarget(ctx, actor, assignment, actor.ID, false)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionCreate, target).Err(); err != nil {
		return nil, err
	}

	limits := s.limits
	if assignment.MaxFileSize > 0 {
		limits.MaxFileSize = assignment.MaxFileSize
	}
	if err := validateUploads(uploads, assignment.AllowedFormats, limits); err != nil {
		return nil, err
	}

	stored, err := storeUploads(ctx, s.blobs, uploads)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	submission := &models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    actor.ID,
		Comments:     comments,
		SubmittedAt:  now,
		IsLate:       now.After(assignment.DueDate),
	}
	if err := s.repo.Create(ctx, submission, submissionFiles(stored)); err != nil {
		releaseBlobs(s.blobs, stored, s.logger)
		if repository.IsUniqueViolation(err, repository.ConstraintSubmissionPair) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// Get returns the submission detail.
func (s *SubmissionService) Get(ctx context.Context, actor policy.Actor, id string) (*models.SubmissionDetail, error) {
	detail, err := s.loadDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := s.targetFor(ctx, actor, &detail.Submission)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionRead, target).Err(); err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns submissions visible to the actor.
func (s *SubmissionService) List(ctx context.Context, actor policy.Actor, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	submissions, total, err := s.repo.List(ctx, filter, actor.ID, actor.Role)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, total, nil
}

// Update reworks an ungraded submission. New files replace the old set and
// re-stamp the submission time and lateness; a comments-only edit keeps both.
// The replaced blobs are released best-effort and reported as warnings. A
// grade landing concurrently wins: the conditional write misses and the
// caller gets SUBMISSION_LOCKED.
func (s *SubmissionService) Update(ctx context.Context, actor policy.Actor, id, comments string, uploads []Upload) (*models.Submission, []string, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	assignment, err := s.loadAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.submissionTarget(ctx, actor, assignment, submission.StudentID, submission.Graded())
	if err != nil {
		return nil, nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionUpdate, target).Err(); err != nil {
		return nil, nil, err
	}

	limits := s.limits
	if assignment.MaxFileSize > 0 {
		limits.MaxFileSize = assignment.MaxFileSize
	}
	if err := validateUploads(uploads, assignment.AllowedFormats, limits); err != nil {
		return nil, nil, err
	}

	var newFiles []models.SubmissionFile
	var stored []storage.FileMeta
	if len(uploads) > 0 {
		stored, err = storeUploads(ctx, s.blobs, uploads)
		if err != nil {
			return nil, nil, err
		}
		newFiles = submissionFiles(stored)
	}

	var oldFiles []models.SubmissionFile
	if newFiles != nil {
		oldFiles, err = s.repo.Files(ctx, id)
		if err != nil {
			releaseBlobs(s.blobs, stored, s.logger)
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission files")
		}
	}

	submission.Comments = comments
	if newFiles != nil {
		now := time.Now().UTC()
		submission.SubmittedAt = now
		submission.IsLate = now.After(assignment.DueDate)
	}

	updated, err := s.repo.UpdateStudentContent(ctx, submission, newFiles)
	if err != nil {
		releaseBlobs(s.blobs, stored, s.logger)
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	if !updated {
		releaseBlobs(s.blobs, stored, s.logger)
		return nil, nil, s.lockedOrMissing(ctx, id)
	}

	var warnings []string
	if newFiles != nil {
		warnings = releaseBlobs(s.blobs, fileMetas(oldFiles), s.logger)
	}
	return submission, warnings, nil
}

// Delete withdraws an ungraded submission and releases its blobs. A grade
// landing concurrently wins.
func (s *SubmissionService) Delete(ctx context.Context, actor policy.Actor, id string) ([]string, error) {
	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := s.targetFor(ctx, actor, submission)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionDelete, target).Err(); err != nil {
		return nil, err
	}

	files, err := s.repo.Files(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission files")
	}

	if actor.Role == models.RoleAdmin {
		if err := s.repo.Delete(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
		}
	} else {
		deleted, err := s.repo.DeleteUngraded(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
		}
		if !deleted {
			return nil, s.lockedOrMissing(ctx, id)
		}
	}

	warnings := releaseBlobs(s.blobs, fileMetas(files), s.logger)
	return warnings, nil
}

// Grade records a grade and feedback. Grading is terminal for the student:
// after this the submission can no longer be edited or withdrawn. A student
// withdrawal landing first wins and the grade attempt reports not found.
func (s *SubmissionService) Grade(ctx context.Context, actor policy.Actor, id string, req models.GradeSubmissionRequest) (*models.Submission, error) {
	if req.Grade < 0 || req.Grade > 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "")
	}

	submission, err := s.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}

	target, err := s.targetFor(ctx, actor, submission)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionGrade, target).Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	graded, err := s.repo.Grade(ctx, id, req.Grade, req.Feedback, actor.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}
	if !graded {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission was withdrawn")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionGrade,
		Resource:   "submission",
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"grade":%d}`, req.Grade)),
	}); err != nil {
		s.logger.Warn("failed to record grade audit log", zap.Error(err))
	}

	submission.Grade = &req.Grade
	feedback := req.Feedback
	submission.Feedback = &feedback
	submission.GradedBy = &actor.ID
	submission.GradedAt = &now
	return submission, nil
}

// SubmissionDownload is an authorized submission file stream.
type SubmissionDownload struct {
	Filename string
	MIMEType string
	Size     int64
	Content  io.ReadCloser
}

// DownloadFile authorizes and opens a submission file. Ownership is resolved
// from the handle, so a student can never reach another student's upload even
// with a known handle.
func (s *SubmissionService) DownloadFile(ctx context.Context, actor policy.Actor, handle string) (*SubmissionDownload, error) {
	file, submission, err := s.resolveFile(ctx, handle)
	if err != nil {
		return nil, err
	}

	target, err := s.targetFor(ctx, actor, submission)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionDownload, target).Err(); err != nil {
		return nil, err
	}

	return s.openFile(file)
}

// SignedLink is a time-limited download URL token.
type SignedLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateDownloadLink issues a signed token for a submission file. The token
// binds the handle to its owning submission and expires on its own, so it can
// be handed to tools that cannot send the bearer token.
func (s *SubmissionService) CreateDownloadLink(ctx context.Context, actor policy.Actor, handle string) (*SignedLink, error) {
	file, submission, err := s.resolveFile(ctx, handle)
	if err != nil {
		return nil, err
	}

	target, err := s.targetFor(ctx, actor, submission)
	if err != nil {
		return nil, err
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionDownload, target).Err(); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(submission.ID, file.Handle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &SignedLink{Token: token, ExpiresAt: expiresAt}, nil
}

// RedeemDownloadLink validates a signed token and opens the file. The token
// is the authorization; no session is needed.
func (s *SubmissionService) RedeemDownloadLink(ctx context.Context, token string) (*SubmissionDownload, error) {
	submissionID, handle, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download link")
	}

	file, submission, err := s.resolveFile(ctx, handle)
	if err != nil {
		return nil, err
	}
	if submission.ID != submissionID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}

	return s.openFile(file)
}

func (s *SubmissionService) resolveFile(ctx context.Context, handle string) (*models.SubmissionFile, *models.Submission, error) {
	file, err := s.repo.FindFile(ctx, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve file")
	}
	submission, err := s.loadSubmission(ctx, file.SubmissionID)
	if err != nil {
		return nil, nil, err
	}
	return file, submission, nil
}

func (s *SubmissionService) openFile(file *models.SubmissionFile) (*SubmissionDownload, error) {
	content, err := s.blobs.Open(file.Handle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return &SubmissionDownload{
		Filename: file.Filename,
		MIMEType: file.MIMEType,
		Size:     file.Size,
		Content:  content,
	}, nil
}

// lockedOrMissing re-reads a submission after a conditional write missed and
// maps the state to the precise error.
func (s *SubmissionService) lockedOrMissing(ctx context.Context, id string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if current.Graded() {
		return appErrors.Clone(appErrors.ErrSubmissionLocked, "")
	}
	return appErrors.Clone(appErrors.ErrConflict, "submission changed concurrently")
}

func (s *SubmissionService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *SubmissionService) loadDetail(ctx context.Context, id string) (*models.SubmissionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return detail, nil
}

func (s *SubmissionService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *SubmissionService) targetFor(ctx context.Context, actor policy.Actor, submission *models.Submission) (policy.SubmissionTarget, error) {
	assignment, err := s.loadAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return policy.SubmissionTarget{}, err
	}
	return s.submissionTarget(ctx, actor, assignment, submission.StudentID, submission.Graded())
}

func (s *SubmissionService) submissionTarget(ctx context.Context, actor policy.Actor, assignment *models.Assignment, studentID string, graded bool) (policy.SubmissionTarget, error) {
	classroom, err := s.classrooms.FindByID(ctx, assignment.ClassroomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.SubmissionTarget{}, appErrors.Clone(appErrors.ErrClassroomNotFound, "")
		}
		return policy.SubmissionTarget{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	target := policy.SubmissionTarget{
		StudentID:           studentID,
		ClassroomLecturerID: classroom.LecturerID,
		Graded:              graded,
	}
	if actor.Role == models.RoleStudent {
		enrolled, err := s.classrooms.IsMember(ctx, classroom.ID, actor.ID)
		if err != nil {
			return target, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
		target.Enrolled = enrolled
	}
	return target, nil
}

func submissionFiles(metas []storage.FileMeta) []models.SubmissionFile {
	files := make([]models.SubmissionFile, 0, len(metas))
	for _, m := range metas {
		files = append(files, models.SubmissionFile{
			Handle:   m.Handle,
			Filename: m.Filename,
			MIMEType: m.MIMEType,
			Size:     m.Size,
		})
	}
	return files
}

func fileMetas(files []models.SubmissionFile) []storage.FileMeta {
	metas := make([]storage.FileMeta, 0, len(files))
	for _, f := range files {
		metas = append(metas, storage.FileMeta{Handle: f.Handle, Filename: f.Filename})
	}
	return metas
}
