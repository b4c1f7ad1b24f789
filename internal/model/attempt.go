package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. "Not started" is the
// absence of a row: a row exists only once the student has started.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusGraded     AttemptStatus = "GRADED"
	AttemptStatusVoid       AttemptStatus = "VOID"
)

// Attempt represents one student's run through an exam. At most one
// IN_PROGRESS attempt exists per (student, exam) pair, enforced by a partial
// unique index.
type Attempt struct {
	ID          uuid.UUID         `json:"id"`
	ExamID      uuid.UUID         `json:"exam_id"`
	StudentID   uuid.UUID         `json:"student_id"`
	Status      AttemptStatus     `json:"status"`
	Answers     map[string]string `json:"answers"`
	Grade       *float64          `json:"grade,omitempty"`
	VoidReason  *string           `json:"void_reason,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SaveAnswerRequest records one response. Saving the same question id again
// overwrites the previous response.
type SaveAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Response   string `json:"response" binding:"required,max=8192"`
}

// VoidAttemptRequest is the admin/proctor payload for terminating an attempt.
type VoidAttemptRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=512"`
}

// AssignGradeRequest is the instructor payload for grading a submitted
// attempt with manual question types.
type AssignGradeRequest struct {
	Grade float64 `json:"grade" binding:"min=0,max=100"`
}
