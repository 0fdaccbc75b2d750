package models

import (
	"time"

	"github.com/lib/pq"
)

// DefaultAllowedFormats are accepted submission file extensions when an
// assignment does not override them.
var DefaultAllowedFormats = []string{"pdf", "doc", "docx", "txt"}

// DefaultMaxFileSize is the per-file upload ceiling in bytes.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Assignment represents a task published to a classroom. CreatedBy always
// equals the owning classroom's lecturer.
type Assignment struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	DueDate        time.Time      `db:"due_date" json:"due_date"`
	ClassroomID    string         `db:"classroom_id" json:"classroom_id"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	AllowedFormats pq.StringArray `db:"allowed_formats" json:"allowed_formats"`
	MaxFileSize    int64          `db:"max_file_size" json:"max_file_size"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail extends Assignment with attachments and creator info.
type AssignmentDetail struct {
	Assignment
	CreatorName string           `db:"creator_name" json:"creator_name"`
	Attachments []AttachmentFile `json:"attachments"`
}

// AttachmentFile is a stored attachment owned by an assignment.
type AttachmentFile struct {
	Handle       string    `db:"handle" json:"handle"`
	AssignmentID string    `db:"assignment_id" json:"-"`
	Filename     string    `db:"filename" json:"filename"`
	MIMEType     string    `db:"mime_type" json:"mime_type"`
	Size         int64     `db:"size" json:"size"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// AssignmentFilter captures listing criteria. Visibility scoping (own
// classrooms for lecturers, enrolled classrooms for students) is applied by
// the repository based on the actor.
type AssignmentFilter struct {
	ClassroomID string
	Search      string
	Page        int
	PageSize    int
}

// CreateAssignmentRequest is the payload for publishing an assignment.
type CreateAssignmentRequest struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description" validate:"required"`
	DueDate        time.Time `json:"due_date" validate:"required"`
	ClassroomID    string    `json:"classroom_id" validate:"required"`
	AllowedFormats []string  `json:"allowed_formats,omitempty"`
	MaxFileSize    int64     `json:"max_file_size,omitempty"`
}

// UpdateAssignmentRequest carries mutable assignment fields.
type UpdateAssignmentRequest struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	AllowedFormats []string   `json:"allowed_formats,omitempty"`
	MaxFileSize    *int64     `json:"max_file_size,omitempty"`
}
