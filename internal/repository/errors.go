package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error code for unique constraint violations.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally narrowed to a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolationCode {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// Constraint names the services key duplicate detection on.
const (
	ConstraintUsersEmail          = "users_email_key"
	ConstraintUsersStudentID      = "users_student_id_key"
	ConstraintClassroomCode       = "classrooms_code_key"
	ConstraintSubmissionPair      = "submissions_assignment_student_key"
	ConstraintClassroomMembership = "classroom_students_pkey"
)
