// Package policy implements the access decision engine. Every rule is a pure
// function over (actor, action, target state): no I/O, no ambient user, and a
// default of deny. Callers load the relevant state snapshot first and then ask
// for a decision before mutating anything.
package policy

import (
	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

// Action enumerates the operations the engine rules on.
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionGrade         Action = "grade"
	ActionJoin          Action = "join"
	ActionLeave         Action = "leave"
	ActionManageMembers Action = "manage_members"
	ActionDownload      Action = "download"
)

// Actor is the authenticated principal performing an action.
type Actor struct {
	ID   string
	Role models.UserRole
}

// Decision is the outcome of a policy check. Reason is set on denials and
// carries the precise typed error to surface.
type Decision struct {
	Allowed bool
	Reason  *appErrors.Error
}

// Allow grants the action.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny refuses the action with the given reason.
func Deny(reason *appErrors.Error) Decision {
	if reason == nil {
		reason = appErrors.ErrForbidden
	}
	return Decision{Allowed: false, Reason: reason}
}

// Err returns the denial reason, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// ClassroomTarget is the classroom state a decision depends on.
type ClassroomTarget struct {
	LecturerID string
	// Enrolled reports whether the acting student is currently a member.
	Enrolled bool
}

// AssignmentTarget is the assignment state a decision depends on.
type AssignmentTarget struct {
	ClassroomLecturerID string
	Enrolled            bool
}

// SubmissionTarget is the submission state a decision depends on.
type SubmissionTarget struct {
	StudentID           string
	ClassroomLecturerID string
	Enrolled            bool
	Graded              bool
}

// CanAccessClassroom rules on classroom actions.
func CanAccessClassroom(actor Actor, action Action, target ClassroomTarget) Decision {
	if actor.Role == models.RoleAdmin {
		return Allow()
	}

	switch actor.Role {
	case models.RoleLecturer:
		switch action {
		case ActionCreate:
			return Allow()
		case ActionRead, ActionUpdate, ActionDelete, ActionManageMembers:
			if target.LecturerID == actor.ID {
				return Allow()
			}
			return Deny(appErrors.ErrForbidden)
		}
	case models.RoleStudent:
		switch action {
		case ActionRead:
			if target.Enrolled {
				return Allow()
			}
			return Deny(appErrors.ErrForbidden)
		case ActionJoin:
			if target.Enrolled {
				return Deny(appErrors.ErrAlreadyEnrolled)
			}
			return Allow()
		case ActionLeave:
			if target.Enrolled {
				return Allow()
			}
			return Deny(appErrors.ErrNotEnrolled)
		}
	}

	return Deny(appErrors.ErrForbidden)
}

// CanAccessAssignment rules on assignment actions.
func CanAccessAssignment(actor Actor, action Action, target AssignmentTarget) Decision {
	if actor.Role == models.RoleAdmin {
		return Allow()
	}

	switch actor.Role {
	case models.RoleLecturer:
		switch action {
		case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionDownload:
			if target.ClassroomLecturerID == actor.ID {
				return Allow()
			}
			return Deny(appErrors.ErrForbidden)
		}
	case models.RoleStudent:
		switch action {
		case ActionRead, ActionDownload:
			if target.Enrolled {
				return Allow()
			}
			return Deny(appErrors.ErrEnrollmentRequired)
		}
	}

	return Deny(appErrors.ErrForbidden)
}

// CanAccessSubmission rules on submission actions. Lecturers never create or
// delete submissions; students lose update/delete once a grade is recorded,
// and that specific denial surfaces as SUBMISSION_LOCKED rather than a
// generic forbidden.
func CanAccessSubmission(actor Actor, action Action, target SubmissionTarget) Decision {
	if actor.Role == models.RoleAdmin {
		return Allow()
	}

	switch actor.Role {
	case models.RoleLecturer:
		switch action {
		case ActionRead, ActionGrade, ActionDownload:
			if target.ClassroomLecturerID == actor.ID {
				return Allow()
			}
			return Deny(appErrors.ErrForbidden)
		}
	case models.RoleStudent:
		switch action {
		case ActionCreate:
			if !target.Enrolled {
				return Deny(appErrors.ErrEnrollmentRequired)
			}
			return Allow()
		case ActionRead, ActionDownload:
			if target.StudentID == actor.ID {
				return Allow()
			}
			return Deny(appErrors.ErrForbidden)
		case ActionUpdate, ActionDelete:
			if target.StudentID != actor.ID {
				return Deny(appErrors.ErrForbidden)
			}
			if target.Graded {
				return Deny(appErrors.ErrSubmissionLocked)
			}
			return Allow()
		}
	}

	return Deny(appErrors.ErrForbidden)
}
