package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/policy"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type mockAssignmentRepo struct {
	assignments map[string]*models.Assignment
	attachments map[string][]models.AttachmentFile
}

func newMockAssignmentRepo(assignments ...*models.Assignment) *mockAssignmentRepo {
	m := &mockAssignmentRepo{
		assignments: map[string]*models.Assignment{},
		attachments: map[string][]models.AttachmentFile{},
	}
	for _, a := range assignments {
		m.assignments[a.ID] = a
	}
	return m
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment, attachments []models.AttachmentFile) error {
	assignment.ID = "asg-new"
	m.assignments[assignment.ID] = assignment
	m.attachments[assignment.ID] = attachments
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.AssignmentDetail{Assignment: *a, Attachments: m.attachments[id]}, nil
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter, actorID string, role models.UserRole) ([]models.Assignment, int, error) {
	var out []models.Assignment
	for _, a := range m.assignments {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	m.assignments[assignment.ID] = assignment
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.assignments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.assignments, id)
	return nil
}

func (m *mockAssignmentRepo) Attachments(ctx context.Context, assignmentID string) ([]models.AttachmentFile, error) {
	return m.attachments[assignmentID], nil
}

func (m *mockAssignmentRepo) FindAttachment(ctx context.Context, handle string) (*models.AttachmentFile, error) {
	for _, files := range m.attachments {
		for _, f := range files {
			if f.Handle == handle {
				file := f
				return &file, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

type mockAssignmentSubmissions struct {
	files []models.SubmissionFile
}

func (m *mockAssignmentSubmissions) ListFilesByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionFile, error) {
	return m.files, nil
}

type assignmentFixture struct {
	repo  *mockAssignmentRepo
	blobs *mockBlobStore
	svc   *AssignmentService
}

func newAssignmentFixture(t *testing.T, assignments ...*models.Assignment) *assignmentFixture {
	t.Helper()
	classrooms := &mockClassroomLookup{
		classrooms: map[string]*models.Classroom{"cls-1": {ID: "cls-1", Code: "CS101", LecturerID: "lec-1"}},
		members:    map[membershipKey]bool{},
	}
	repo := newMockAssignmentRepo(assignments...)
	blobs := newMockBlobStore()
	svc := NewAssignmentService(repo, classrooms, &mockAssignmentSubmissions{}, blobs, UploadLimits{MaxFiles: 5, MaxFileSize: models.DefaultMaxFileSize}, nil, nil)
	return &assignmentFixture{repo: repo, blobs: blobs, svc: svc}
}

func createAssignmentRequest() models.CreateAssignmentRequest {
	return models.CreateAssignmentRequest{
		Title:       "Essay 1",
		Description: "Write about classical sorting algorithms.",
		DueDate:     time.Now().UTC().Add(48 * time.Hour),
		ClassroomID: "cls-1",
	}
}

func TestAssignmentServiceCreateWithAttachment(t *testing.T) {
	f := newAssignmentFixture(t)

	assignment, err := f.svc.Create(context.Background(), lecturerActor, createAssignmentRequest(), []Upload{upload("brief.pdf", "instructions")})
	require.NoError(t, err)
	assert.Equal(t, "cls-1", assignment.ClassroomID)
	assert.ElementsMatch(t, models.DefaultAllowedFormats, []string(assignment.AllowedFormats))
	require.Len(t, f.repo.attachments["asg-new"], 1)
	assert.Len(t, f.blobs.blobs, 1)
}

func TestAssignmentServiceCreateRejectsAttachmentFormat(t *testing.T) {
	f := newAssignmentFixture(t)

	// attachments go through the same whitelist submissions do
	_, err := f.svc.Create(context.Background(), lecturerActor, createAssignmentRequest(), []Upload{upload("brief.exe", "binary")})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.blobs.blobs)
}

func TestAssignmentServiceCreateForeignClassroom(t *testing.T) {
	f := newAssignmentFixture(t)

	other := policy.Actor{ID: "lec-2", Role: models.RoleLecturer}
	_, err := f.svc.Create(context.Background(), other, createAssignmentRequest(), nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
