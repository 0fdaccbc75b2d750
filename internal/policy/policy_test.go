package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

var (
	admin    = Actor{ID: "adm-1", Role: models.RoleAdmin}
	lecturer = Actor{ID: "lec-1", Role: models.RoleLecturer}
	student  = Actor{ID: "stu-1", Role: models.RoleStudent}
)

func TestClassroomDecisions(t *testing.T) {
	owned := ClassroomTarget{LecturerID: "lec-1"}
	foreign := ClassroomTarget{LecturerID: "lec-2"}
	enrolled := ClassroomTarget{LecturerID: "lec-2", Enrolled: true}

	tests := []struct {
		name    string
		actor   Actor
		action  Action
		target  ClassroomTarget
		allowed bool
		reason  *appErrors.Error
	}{
		{"admin read any", admin, ActionRead, foreign, true, nil},
		{"admin manage any", admin, ActionManageMembers, foreign, true, nil},
		{"lecturer create", lecturer, ActionCreate, ClassroomTarget{}, true, nil},
		{"lecturer read owned", lecturer, ActionRead, owned, true, nil},
		{"lecturer update owned", lecturer, ActionUpdate, owned, true, nil},
		{"lecturer manage owned", lecturer, ActionManageMembers, owned, true, nil},
		{"lecturer read foreign", lecturer, ActionRead, foreign, false, appErrors.ErrForbidden},
		{"lecturer delete foreign", lecturer, ActionDelete, foreign, false, appErrors.ErrForbidden},
		{"lecturer join denied", lecturer, ActionJoin, foreign, false, appErrors.ErrForbidden},
		{"student read enrolled", student, ActionRead, enrolled, true, nil},
		{"student read not enrolled", student, ActionRead, foreign, false, appErrors.ErrForbidden},
		{"student join", student, ActionJoin, foreign, true, nil},
		{"student join twice", student, ActionJoin, enrolled, false, appErrors.ErrAlreadyEnrolled},
		{"student leave enrolled", student, ActionLeave, enrolled, true, nil},
		{"student leave not enrolled", student, ActionLeave, foreign, false, appErrors.ErrNotEnrolled},
		{"student create denied", student, ActionCreate, foreign, false, appErrors.ErrForbidden},
		{"student manage denied", student, ActionManageMembers, enrolled, false, appErrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanAccessClassroom(tt.actor, tt.action, tt.target)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				require.NotNil(t, d.Reason)
				assert.Equal(t, tt.reason.Code, d.Reason.Code)
			}
		})
	}
}

func TestAssignmentDecisions(t *testing.T) {
	owned := AssignmentTarget{ClassroomLecturerID: "lec-1"}
	foreign := AssignmentTarget{ClassroomLecturerID: "lec-2"}
	enrolled := AssignmentTarget{ClassroomLecturerID: "lec-2", Enrolled: true}

	tests := []struct {
		name    string
		actor   Actor
		action  Action
		target  AssignmentTarget
		allowed bool
		reason  *appErrors.Error
	}{
		{"admin anything", admin, ActionDelete, foreign, true, nil},
		{"lecturer create own classroom", lecturer, ActionCreate, owned, true, nil},
		{"lecturer update own", lecturer, ActionUpdate, owned, true, nil},
		{"lecturer delete foreign", lecturer, ActionDelete, foreign, false, appErrors.ErrForbidden},
		{"lecturer read foreign", lecturer, ActionRead, foreign, false, appErrors.ErrForbidden},
		{"student read enrolled", student, ActionRead, enrolled, true, nil},
		{"student download enrolled", student, ActionDownload, enrolled, true, nil},
		{"student read outsider", student, ActionRead, foreign, false, appErrors.ErrEnrollmentRequired},
		{"student create denied", student, ActionCreate, enrolled, false, appErrors.ErrForbidden},
		{"student update denied", student, ActionUpdate, enrolled, false, appErrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanAccessAssignment(tt.actor, tt.action, tt.target)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				require.NotNil(t, d.Reason)
				assert.Equal(t, tt.reason.Code, d.Reason.Code)
			}
		})
	}
}

func TestSubmissionDecisions(t *testing.T) {
	own := SubmissionTarget{StudentID: "stu-1", ClassroomLecturerID: "lec-1", Enrolled: true}
	ownGraded := SubmissionTarget{StudentID: "stu-1", ClassroomLecturerID: "lec-1", Enrolled: true, Graded: true}
	foreignStudent := SubmissionTarget{StudentID: "stu-2", ClassroomLecturerID: "lec-1", Enrolled: true}
	foreignClass := SubmissionTarget{StudentID: "stu-2", ClassroomLecturerID: "lec-2"}
	notEnrolled := SubmissionTarget{StudentID: "stu-1", ClassroomLecturerID: "lec-1", Enrolled: false}

	tests := []struct {
		name    string
		actor   Actor
		action  Action
		target  SubmissionTarget
		allowed bool
		reason  *appErrors.Error
	}{
		{"admin anything", admin, ActionDelete, foreignClass, true, nil},
		{"lecturer read own classroom", lecturer, ActionRead, foreignStudent, true, nil},
		{"lecturer grade own classroom", lecturer, ActionGrade, foreignStudent, true, nil},
		{"lecturer download own classroom", lecturer, ActionDownload, foreignStudent, true, nil},
		{"lecturer grade foreign classroom", lecturer, ActionGrade, foreignClass, false, appErrors.ErrForbidden},
		{"lecturer create denied", lecturer, ActionCreate, foreignStudent, false, appErrors.ErrForbidden},
		{"lecturer delete denied", lecturer, ActionDelete, foreignStudent, false, appErrors.ErrForbidden},
		{"student create enrolled", student, ActionCreate, own, true, nil},
		{"student create not enrolled", student, ActionCreate, notEnrolled, false, appErrors.ErrEnrollmentRequired},
		{"student read own", student, ActionRead, own, true, nil},
		{"student read other", student, ActionRead, foreignStudent, false, appErrors.ErrForbidden},
		{"student update own ungraded", student, ActionUpdate, own, true, nil},
		{"student update own graded", student, ActionUpdate, ownGraded, false, appErrors.ErrSubmissionLocked},
		{"student delete own graded", student, ActionDelete, ownGraded, false, appErrors.ErrSubmissionLocked},
		{"student update other", student, ActionUpdate, foreignStudent, false, appErrors.ErrForbidden},
		{"student grade denied", student, ActionGrade, own, false, appErrors.ErrForbidden},
		{"student download own", student, ActionDownload, own, true, nil},
		{"student download other", student, ActionDownload, foreignStudent, false, appErrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanAccessSubmission(tt.actor, tt.action, tt.target)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				require.NotNil(t, d.Reason)
				assert.Equal(t, tt.reason.Code, d.Reason.Code)
			}
		})
	}
}

func TestDecisionErr(t *testing.T) {
	require.NoError(t, Allow().Err())

	err := Deny(appErrors.ErrSubmissionLocked).Err()
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSubmissionLocked))

	// nil reason falls back to a generic forbidden
	d := Deny(nil)
	require.NotNil(t, d.Reason)
	assert.Equal(t, appErrors.ErrForbidden.Code, d.Reason.Code)
}
