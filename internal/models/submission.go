package models

import "time"

// Submission is a student's answer to an assignment. At most one submission
// exists per (assignment, student) pair; the pair carries a unique constraint
// in the database. Once Grade is set the record is immutable to the student.
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Comments     string     `db:"comments" json:"comments"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	IsLate       bool       `db:"is_late" json:"is_late"`
	Grade        *int       `db:"grade" json:"grade,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Graded reports whether the submission has entered the graded terminal state.
func (s Submission) Graded() bool {
	return s.Grade != nil
}

// SubmissionFile is a stored blob owned by exactly one submission.
type SubmissionFile struct {
	Handle       string    `db:"handle" json:"handle"`
	SubmissionID string    `db:"submission_id" json:"-"`
	Filename     string    `db:"filename" json:"filename"`
	MIMEType     string    `db:"mime_type" json:"mime_type"`
	Size         int64     `db:"size" json:"size"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// SubmissionDetail extends Submission with files and display info.
type SubmissionDetail struct {
	Submission
	StudentName     string           `db:"student_name" json:"student_name"`
	StudentEmail    string           `db:"student_email" json:"student_email"`
	AssignmentTitle string           `db:"assignment_title" json:"assignment_title"`
	GraderName      *string          `db:"grader_name" json:"grader_name,omitempty"`
	Files           []SubmissionFile `json:"files"`
}

// SubmissionFilter captures listing criteria. Visibility scoping is applied by
// the repository based on the actor.
type SubmissionFilter struct {
	AssignmentID string
	Graded       *bool
	Page         int
	PageSize     int
}

// GradeSubmissionRequest is the lecturer grading payload.
type GradeSubmissionRequest struct {
	Grade    int    `json:"grade"`
	Feedback string `json:"feedback"`
}
