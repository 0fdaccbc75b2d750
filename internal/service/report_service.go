package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/export"
)

type reportSubmissionLookup interface {
	List(ctx context.Context, filter models.SubmissionFilter, actorID string, role models.UserRole) ([]models.SubmissionDetail, int, error)
}

// ReportService renders grade reports for an assignment as CSV or PDF.
type ReportService struct {
	assignments assignmentRepository
	classrooms  assignmentClassroomLookup
	submissions reportSubmissionLookup
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(assignments assignmentRepository, classrooms assignmentClassroomLookup, submissions reportSubmissionLookup, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		assignments: assignments,
		classrooms:  classrooms,
		submissions: submissions,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// GradeReport is a rendered export document.
type GradeReport struct {
	Filename    string
	ContentType string
	Content     []byte
}

// GradeReportFor renders the grade sheet of an assignment in the requested
// format ("csv" or "pdf"). Only the owning lecturer and admins may export.
func (s *ReportService) GradeReportFor(ctx context.Context, actor policy.Actor, assignmentID, format string) (*GradeReport, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAssignmentNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	classroom, err := s.classrooms.FindByID(ctx, assignment.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	if err := policy.CanAccessSubmission(actor, policy.ActionRead, policy.SubmissionTarget{ClassroomLecturerID: classroom.LecturerID}).Err(); err != nil {
		return nil, err
	}

	submissions, _, err := s.submissions.List(ctx, models.SubmissionFilter{AssignmentID: assignmentID, PageSize: 100}, actor.ID, actor.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Email", "Submitted At", "Late", "Grade", "Feedback"},
	}
	for _, sub := range submissions {
		grade := "-"
		if sub.Grade != nil {
			grade = strconv.Itoa(*sub.Grade)
		}
		feedback := ""
		if sub.Feedback != nil {
			feedback = *sub.Feedback
		}
		late := "no"
		if sub.IsLate {
			late = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      sub.StudentName,
			"Email":        sub.StudentEmail,
			"Submitted At": sub.SubmittedAt.UTC().Format(time.RFC3339),
			"Late":         late,
			"Grade":        grade,
			"Feedback":     feedback,
		})
	}

	base := fmt.Sprintf("grades-%s-%s", assignment.ID, time.Now().UTC().Format("20060102"))
	switch format {
	case "csv", "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &GradeReport{Filename: base + ".csv", ContentType: "text/csv", Content: content}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Grades: %s", assignment.Title))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &GradeReport{Filename: base + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
