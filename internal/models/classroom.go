package models

import (
	"strings"
	"time"
)

// Classroom represents a class owned by exactly one lecturer. Student
// membership lives in the classroom_students join table, never mirrored on the
// user record.
type Classroom struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	LecturerID  string    `db:"lecturer_id" json:"lecturer_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassroomDetail extends Classroom with lecturer info and member count.
type ClassroomDetail struct {
	Classroom
	LecturerName  string `db:"lecturer_name" json:"lecturer_name"`
	LecturerEmail string `db:"lecturer_email" json:"lecturer_email"`
	StudentCount  int    `db:"student_count" json:"student_count"`
}

// ClassroomSummary is the reduced view returned to students (no roster).
type ClassroomSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Description  string `json:"description"`
	LecturerName string `json:"lecturer_name"`
}

// Summary derives the student-facing view.
func (d ClassroomDetail) Summary() ClassroomSummary {
	return ClassroomSummary{
		ID:           d.ID,
		Name:         d.Name,
		Code:         d.Code,
		Description:  d.Description,
		LecturerName: d.LecturerName,
	}
}

// NormalizeClassroomCode canonicalizes join codes: upper-cased, surrounding
// whitespace stripped.
func NormalizeClassroomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateClassroomRequest is the payload for creating a classroom.
type CreateClassroomRequest struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required,min=3,max=20"`
	Description string `json:"description"`
}

// UpdateClassroomRequest carries mutable classroom fields.
type UpdateClassroomRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// JoinClassroomRequest is the payload for joining by code.
type JoinClassroomRequest struct {
	Code string `json:"code" validate:"required"`
}

// MutateStudentsRequest adds or removes a batch of students.
type MutateStudentsRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}
