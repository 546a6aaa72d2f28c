package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/response"
	"golang.org/x/crypto/bcrypt"
)

// Attempt is the identity and timing the gatekeeper judges.
type Attempt struct {
	ChildMode   bool
	Nickname    string
	StudentName string
	QuizCode    string
	// At is the instant checked against the exam window.
	At time.Time
}

// NewAttempt normalizes identity fields. Child mode only applies when the
// exam enables it.
func NewAttempt(exam *model.Exam, childMode bool, nickname, studentName, quizCode string, at time.Time) Attempt {
	return Attempt{
		ChildMode:   childMode && exam.ChildModeEnabled,
		Nickname:    strings.TrimSpace(nickname),
		StudentName: strings.TrimSpace(studentName),
		QuizCode:    strings.TrimSpace(quizCode),
		At:          at,
	}
}

// Identity is the key attempts are counted under.
func (a Attempt) Identity() string {
	if a.ChildMode {
		return a.Nickname
	}
	return a.StudentName
}

// Gatekeeper enforces identity, quiz code, exam window and attempt limits.
type Gatekeeper struct {
	counter AttemptCounter
}

// NewGatekeeper creates a Gatekeeper counting prior attempts through counter.
func NewGatekeeper(counter AttemptCounter) *Gatekeeper {
	return &Gatekeeper{counter: counter}
}

// Check returns nil when the attempt may proceed, a *PolicyError when it is
// rejected, or a plain error when the submission store could not be read.
func (g *Gatekeeper) Check(ctx context.Context, exam *model.Exam, a Attempt) error {
	if a.Identity() == "" {
		field := "student_name"
		if a.ChildMode {
			field = "nickname"
		}
		return &PolicyError{Code: response.ErrValidation, Reason: field + " is required"}
	}

	if a.ChildMode && exam.HasQuizCode() {
		if bcrypt.CompareHashAndPassword([]byte(exam.QuizCodeHash), []byte(a.QuizCode)) != nil {
			return &PolicyError{Code: response.ErrInvalidQuizCode}
		}
	}

	if exam.StartTime != nil && a.At.Before(*exam.StartTime) {
		return &PolicyError{Code: response.ErrExamNotStarted}
	}
	if exam.EndTime != nil && a.At.After(*exam.EndTime) {
		return &PolicyError{Code: response.ErrExamEnded}
	}

	if limit := attemptLimit(exam); limit > 0 {
		n, err := g.counter.CountByIdentity(ctx, exam.ID, a.ChildMode, a.Identity())
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		if n >= limit {
			return &PolicyError{Code: response.ErrAttemptLimit, Attempts: n}
		}
	}
	return nil
}

// attemptLimit is the enforced limit for exam, or 0 when attempts are unlimited.
func attemptLimit(exam *model.Exam) int {
	if !exam.ChildModeEnabled || exam.AttemptLimit <= 0 {
		return 0
	}
	return exam.AttemptLimit
}

// HashQuizCode returns the stored form of a quiz code.
func HashQuizCode(code string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(code)), cost)
	if err != nil {
		return "", fmt.Errorf("hash quiz code: %w", err)
	}
	return string(hash), nil
}
