package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Classroom membership errors.
	ErrClassroomNotFound       = New("CLASSROOM_NOT_FOUND", http.StatusNotFound, "classroom not found")
	ErrAlreadyEnrolled         = New("ALREADY_ENROLLED", http.StatusBadRequest, "student is already enrolled in this classroom")
	ErrNotEnrolled             = New("NOT_ENROLLED", http.StatusBadRequest, "student is not enrolled in this classroom")
	ErrInvalidStudentReference = New("INVALID_STUDENT_REFERENCE", http.StatusBadRequest, "one or more student ids do not resolve to student accounts")

	// Submission lifecycle errors.
	ErrAssignmentNotFound  = New("ASSIGNMENT_NOT_FOUND", http.StatusNotFound, "assignment not found")
	ErrEnrollmentRequired  = New("ENROLLMENT_REQUIRED", http.StatusForbidden, "student is not enrolled in the assignment's classroom")
	ErrDuplicateSubmission = New("DUPLICATE_SUBMISSION", http.StatusConflict, "a submission already exists for this assignment")
	ErrSubmissionLocked    = New("SUBMISSION_LOCKED", http.StatusBadRequest, "submission has been graded and can no longer be modified")
	ErrInvalidGrade        = New("INVALID_GRADE", http.StatusBadRequest, "grade must be between 0 and 100")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the given domain error code.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
