package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exam is the read-only exam definition consumed by sessions and grading.
type Exam struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	TutorID             string     `json:"tutor_id"`
	StartTime           *time.Time `json:"start_time,omitempty"`
	EndTime             *time.Time `json:"end_time,omitempty"`
	TimeLimitSeconds    int        `json:"time_limit_seconds"`
	MaxViolations       int        `json:"max_violations"`
	AttemptLimit        int        `json:"attempt_limit"`
	ChildModeEnabled    bool       `json:"child_mode_enabled"`
	ShowDetailedResults bool       `json:"show_detailed_results"`
	QuizCodeHash        string     `json:"quiz_code_hash,omitempty"`
	Questions           []Question `json:"questions"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasQuizCode reports whether child-mode attempts must present a quiz code.
func (e *Exam) HasQuizCode() bool {
	return e.QuizCodeHash != ""
}

// ExamPayload is the student-facing view of an exam (no correct answers, no quiz code).
type ExamPayload struct {
	ExamID           uuid.UUID            `json:"exam_id"`
	Title            string               `json:"title"`
	TimeLimitSeconds int                  `json:"time_limit_seconds"`
	MaxViolations    int                  `json:"max_violations"`
	Questions        []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without its correct answer.
type QuestionForStudent struct {
	ID       uuid.UUID       `json:"id"`
	Type     QuestionType    `json:"type"`
	Prompt   string          `json:"prompt"`
	Points   float64         `json:"points"`
	Options  json.RawMessage `json:"options,omitempty"`
	OrderNum int             `json:"order_num"`
}

// Payload strips grading data from the exam.
func (e *Exam) Payload() ExamPayload {
	qs := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = QuestionForStudent{
			ID:       q.ID,
			Type:     q.Type,
			Prompt:   q.Prompt,
			Points:   q.Points,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
	}
	return ExamPayload{
		ExamID:           e.ID,
		Title:            e.Title,
		TimeLimitSeconds: e.TimeLimitSeconds,
		MaxViolations:    e.MaxViolations,
		Questions:        qs,
	}
}
