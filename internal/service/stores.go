package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
)

// ExamSource reads exam definitions (with answer keys) by id.
type ExamSource interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// SessionStore persists sessions. Mutating methods return nil when their
// status precondition no longer holds.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) (*model.ExamSession, bool, error)
	Heartbeat(ctx context.Context, id uuid.UUID, now time.Time, remaining *int) (*model.ExamSession, error)
	SyncAnswers(ctx context.Context, id uuid.UUID, answers map[string]json.RawMessage, now time.Time, remaining *int) (*model.ExamSession, error)
	AppendViolation(ctx context.Context, id uuid.UUID, v model.Violation, now time.Time) (*model.ExamSession, error)
	Transition(ctx context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, now time.Time) (*model.ExamSession, error)
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome *model.SubmissionOutcome) error
	ListOpen(ctx context.Context, after repository.OpenCursor, limit int) ([]*model.ExamSession, error)
}

// AttemptCounter counts stored submissions for an attempt identity.
type AttemptCounter interface {
	CountByIdentity(ctx context.Context, examID uuid.UUID, childMode bool, identity string) (int, error)
}

// SubmissionStore persists graded submissions.
type SubmissionStore interface {
	AttemptCounter
	// Create inserts s. With limit > 0 it re-checks the attempt count
	// atomically and returns a *repository.LimitError at the limit.
	Create(ctx context.Context, s *model.Submission, limit int) error
	InsertAnswers(ctx context.Context, answers []model.SubmissionAnswer) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListAnswers(ctx context.Context, submissionID uuid.UUID) ([]model.SubmissionAnswer, error)
}

// Queue hands payloads to a background worker. Used both for the
// submission-answer retry queue and the analytics side channel.
type Queue interface {
	Push(ctx context.Context, items ...any) error
}

// Locker provides best-effort cross-instance mutual exclusion.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// EventPublisher fans session changes out to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, ev SessionEvent)
}

// SessionEvent is broadcast when a session changes status or is graded.
type SessionEvent struct {
	Type      string                   `json:"event"`
	SessionID uuid.UUID                `json:"session_id"`
	Status    model.SessionStatus      `json:"status"`
	Trigger   string                   `json:"trigger,omitempty"`
	Outcome   *model.SubmissionOutcome `json:"outcome,omitempty"`
}

// Event types carried by SessionEvent.
const (
	EventState  = "state"
	EventGraded = "graded"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, SessionEvent) {}
