package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Submission is the immutable result of grading one attempt.
type Submission struct {
	ID              uuid.UUID       `json:"id" copier:"-"`
	ExamID          uuid.UUID       `json:"exam_id"`
	SessionID       *uuid.UUID      `json:"session_id,omitempty"`
	StudentID       string          `json:"student_id,omitempty"`
	StudentName     string          `json:"student_name,omitempty"`
	StudentEmail    string          `json:"student_email,omitempty"`
	Score           float64         `json:"score"`
	MaxScore        float64         `json:"max_score"`
	Percentage      float64         `json:"percentage"`
	Violations      []Violation     `json:"violations"`
	ViolationsCount int             `json:"violations_count"`
	TimeTaken       int             `json:"time_taken"`
	ChildMode       bool            `json:"child_mode"`
	Nickname        string          `json:"nickname,omitempty"`
	QuizCode        string          `json:"quiz_code,omitempty"`
	BrowserInfo     json.RawMessage `json:"browser_info,omitempty"`
	CreatedAt       time.Time       `json:"created_at" copier:"-"`
}

// Identity is the name the submission counts against: the nickname in child
// mode, the student name otherwise.
func (s *Submission) Identity() string {
	if s.ChildMode {
		return s.Nickname
	}
	return s.StudentName
}

// SubmissionAnswer is the graded result of one question within a Submission.
type SubmissionAnswer struct {
	SubmissionID  uuid.UUID `json:"submission_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	Answer        string    `json:"answer"`
	IsCorrect     bool      `json:"is_correct"`
	PointsAwarded float64   `json:"points_awarded"`
}

// SubmissionDetail is a stored submission with its graded answers.
type SubmissionDetail struct {
	Submission *Submission        `json:"submission"`
	Answers    []SubmissionAnswer `json:"answers"`
}

// StudentData identifies the student behind a direct submission.
type StudentData struct {
	ID    string `json:"id" binding:"omitempty,max=64"`
	Name  string `json:"name" binding:"omitempty,max=255"`
	Email string `json:"email" binding:"omitempty,email"`
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer"`
}

// SubmitExamRequest is the grading entry point payload.
type SubmitExamRequest struct {
	ExamID      uuid.UUID       `json:"exam_id" binding:"required"`
	StudentData StudentData     `json:"student_data"`
	Answers     []AnswerInput   `json:"answers" binding:"dive"`
	Violations  []Violation     `json:"violations" binding:"omitempty,dive"`
	BrowserInfo json.RawMessage `json:"browser_info"`
	TimeTaken   int             `json:"time_taken" binding:"min=0"`
	ChildMode   bool            `json:"child_mode"`
	Nickname    string          `json:"nickname" binding:"omitempty,max=64"`
	QuizCode    string          `json:"quiz_code" binding:"omitempty,max=32"`
}

// AnswerMap flattens the answer list; a repeated question id keeps the last value.
func (r *SubmitExamRequest) AnswerMap() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage, len(r.Answers))
	for _, a := range r.Answers {
		m[a.QuestionID.String()] = a.Answer
	}
	return m
}

// QuestionStat is the per-question analytics aggregate.
type QuestionStat struct {
	ExamID             uuid.UUID `json:"exam_id"`
	QuestionID         uuid.UUID `json:"question_id"`
	Attempts           int       `json:"attempts"`
	CorrectCount       int       `json:"correct_count"`
	PointsAwardedTotal float64   `json:"points_awarded_total"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// QuestionAnalyticsEvent is emitted once per graded question.
type QuestionAnalyticsEvent struct {
	ExamID        uuid.UUID `json:"exam_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SubmissionID  uuid.UUID `json:"submission_id"`
	Answered      bool      `json:"answered"`
	IsCorrect     bool      `json:"is_correct"`
	PointsAwarded float64   `json:"points_awarded"`
	GradedAt      time.Time `json:"graded_at"`
}
