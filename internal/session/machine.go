// Package session holds the pure rules of the exam session lifecycle:
// which transitions are legal and what the authoritative clock says.
// Persistence and compare-and-set live in the service layer.
package session

import (
	"errors"
	"time"

	"github.com/stemsi/exam-proctor/internal/model"
)

// Trigger is an event that may move a session to another status.
type Trigger string

const (
	TriggerSubmit     Trigger = "submit"
	TriggerTimeout    Trigger = "timeout"
	TriggerViolations Trigger = "violations"
	TriggerExamEnded  Trigger = "exam_ended"
	TriggerDisconnect Trigger = "disconnect"
	TriggerResume     Trigger = "resume"
)

var (
	// ErrTerminal is returned for any trigger applied to a terminal session.
	ErrTerminal = errors.New("session is in a terminal state")
	// ErrInvalidTransition is returned when the trigger does not apply to the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
)

var transitions = map[model.SessionStatus]map[Trigger]model.SessionStatus{
	model.SessionStatusActive: {
		TriggerSubmit:     model.SessionStatusSubmitted,
		TriggerTimeout:    model.SessionStatusAutoSubmitted,
		TriggerViolations: model.SessionStatusAutoSubmitted,
		TriggerExamEnded:  model.SessionStatusExpired,
		TriggerDisconnect: model.SessionStatusDisconnected,
	},
	model.SessionStatusDisconnected: {
		TriggerResume:    model.SessionStatusActive,
		TriggerSubmit:    model.SessionStatusSubmitted,
		TriggerTimeout:   model.SessionStatusAutoSubmitted,
		TriggerExamEnded: model.SessionStatusExpired,
	},
}

// Next returns the status reached by applying t to from.
func Next(from model.SessionStatus, t Trigger) (model.SessionStatus, error) {
	if from.Terminal() {
		return from, ErrTerminal
	}
	to, ok := transitions[from][t]
	if !ok {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// Sources lists the statuses from which t is legal. The result is the
// expected-status set for a compare-and-set update.
func Sources(t Trigger) []model.SessionStatus {
	var out []model.SessionStatus
	for _, from := range []model.SessionStatus{model.SessionStatusActive, model.SessionStatusDisconnected} {
		if _, ok := transitions[from][t]; ok {
			out = append(out, from)
		}
	}
	return out
}

// Grades reports whether entering status must run the grading orchestrator.
func Grades(status model.SessionStatus) bool {
	return status.Terminal()
}

// Deadline is the instant the personal timer runs out. ok is false when the
// session has no time limit.
func Deadline(s *model.ExamSession) (time.Time, bool) {
	if s.TimeLimitSeconds <= 0 {
		return time.Time{}, false
	}
	return s.ServerStartedAt.Add(time.Duration(s.TimeLimitSeconds) * time.Second), true
}

// Remaining is time_limit − (now − server_started_at) in whole seconds, never
// negative. ok is false when the session has no time limit.
func Remaining(s *model.ExamSession, now time.Time) (int, bool) {
	deadline, ok := Deadline(s)
	if !ok {
		return 0, false
	}
	left := deadline.Sub(now)
	if left <= 0 {
		return 0, true
	}
	// Round down: a session with 0.4s left reports 0 but is not yet expired.
	return int(left / time.Second), true
}

// Project refreshes the cached time_remaining_seconds on s.
func Project(s *model.ExamSession, now time.Time) {
	if secs, ok := Remaining(s, now); ok {
		s.TimeRemainingSeconds = &secs
		return
	}
	s.TimeRemainingSeconds = nil
}

// Policy holds the exam-level limits the sweep and heartbeat paths check.
type Policy struct {
	ExamEnd       *time.Time
	MaxViolations int
	// Liveness is how long a session may go without a heartbeat before it is
	// considered disconnected.
	Liveness time.Duration
}

// PolicyFor builds the policy for an exam.
func PolicyFor(exam *model.Exam, liveness time.Duration) Policy {
	return Policy{
		ExamEnd:       exam.EndTime,
		MaxViolations: exam.MaxViolations,
		Liveness:      liveness,
	}
}

// ViolationsExceeded reports whether count crosses the escalation limit.
// A limit of zero disables escalation.
func (p Policy) ViolationsExceeded(count int) bool {
	return p.MaxViolations > 0 && count > p.MaxViolations
}

// Evaluate returns the server-side trigger due for s at now, if any.
// When both the personal deadline and the exam end have passed, whichever
// came first decides between timeout and exam_ended.
func Evaluate(s *model.ExamSession, p Policy, now time.Time) (Trigger, bool) {
	if s.Status.Terminal() {
		return "", false
	}

	deadline, limited := Deadline(s)
	timedOut := limited && !now.Before(deadline)
	ended := p.ExamEnd != nil && now.After(*p.ExamEnd)

	switch {
	case timedOut && ended:
		if deadline.After(*p.ExamEnd) {
			return TriggerExamEnded, true
		}
		return TriggerTimeout, true
	case timedOut:
		return TriggerTimeout, true
	case ended:
		return TriggerExamEnded, true
	}

	if s.Status == model.SessionStatusActive && p.ViolationsExceeded(s.ViolationsCount) {
		return TriggerViolations, true
	}

	if s.Status == model.SessionStatusActive && p.Liveness > 0 && now.Sub(s.LastHeartbeat) > p.Liveness {
		return TriggerDisconnect, true
	}
	return "", false
}
