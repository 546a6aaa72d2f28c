package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusActive        SessionStatus = "active"
	SessionStatusDisconnected  SessionStatus = "disconnected"
	SessionStatusSubmitted     SessionStatus = "submitted"
	SessionStatusAutoSubmitted SessionStatus = "auto_submitted"
	SessionStatusExpired       SessionStatus = "expired"
)

// Terminal reports whether no further transition may leave s.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusSubmitted, SessionStatusAutoSubmitted, SessionStatusExpired:
		return true
	}
	return false
}

// Violation is one proctoring event reported by the client.
type Violation struct {
	Type      string    `json:"type" binding:"required,max=64"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty" binding:"omitempty,max=1024"`
}

// SubmissionOutcome caches how a finalized session ended up being graded.
type SubmissionOutcome struct {
	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`
	Score        float64    `json:"score"`
	MaxScore     float64    `json:"max_score"`
	Percentage   float64    `json:"percentage"`
	Code         string     `json:"code,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ExamSession is a single student's live attempt at an exam.
type ExamSession struct {
	ID                   uuid.UUID                  `json:"id"`
	ExamID               uuid.UUID                  `json:"exam_id"`
	StudentID            string                     `json:"student_id"`
	StudentName          string                     `json:"student_name,omitempty"`
	Nickname             string                     `json:"nickname,omitempty"`
	ChildMode            bool                       `json:"child_mode"`
	QuizCode             string                     `json:"-"`
	Status               SessionStatus              `json:"status"`
	ServerStartedAt      time.Time                  `json:"server_started_at"`
	TimeLimitSeconds     int                        `json:"time_limit_seconds"`
	TimeRemainingSeconds *int                       `json:"time_remaining_seconds"`
	SavedAnswers         map[string]json.RawMessage `json:"saved_answers"`
	Violations           []Violation                `json:"violations"`
	ViolationsCount      int                        `json:"violations_count"`
	LastHeartbeat        time.Time                  `json:"last_heartbeat"`
	HeartbeatCount       int                        `json:"heartbeat_count"`
	AutoSubmitScheduled  bool                       `json:"auto_submit_scheduled"`
	AutoSubmittedAt      *time.Time                 `json:"auto_submitted_at,omitempty"`
	FinishedAt           *time.Time                 `json:"finished_at,omitempty"`
	SubmissionID         *uuid.UUID                 `json:"submission_id,omitempty"`
	SubmissionResult     *SubmissionOutcome         `json:"submission_result,omitempty"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

// Identity returns the name attempts are counted under: the nickname in
// child mode, the student name otherwise.
func (s *ExamSession) Identity() string {
	if s.ChildMode {
		return s.Nickname
	}
	return s.StudentName
}

// StartSessionRequest is the payload for starting an attempt.
type StartSessionRequest struct {
	StudentID   string `json:"student_id" binding:"omitempty,max=64"`
	StudentName string `json:"student_name" binding:"omitempty,max=255"`
	ChildMode   bool   `json:"child_mode"`
	Nickname    string `json:"nickname" binding:"omitempty,max=64"`
	QuizCode    string `json:"quiz_code" binding:"omitempty,max=32"`
}

// SyncAnswersRequest carries a batch of answers; later values overwrite earlier ones.
type SyncAnswersRequest struct {
	Answers map[string]json.RawMessage `json:"answers" binding:"required"`
}

// ReportViolationRequest carries a single proctoring event.
type ReportViolationRequest struct {
	Type   string `json:"type" binding:"required,notblank,max=64"`
	Detail string `json:"detail" binding:"omitempty,max=1024"`
}
