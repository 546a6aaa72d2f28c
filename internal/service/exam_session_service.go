package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/config"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/session"
)

const (
	defaultSweepBatch = 500
	sweepLockTTL      = 30 * time.Second
)

// SessionOptions tunes the session driver.
type SessionOptions struct {
	// Liveness is how long an active session may miss heartbeats before
	// the sweep marks it disconnected.
	Liveness time.Duration

	// SweepBatch is the page size the sweep reads open sessions in.
	// Zero means 500.
	SweepBatch int
}

// ExamSessionService drives sessions through the state machine. Every
// status change goes through SessionStore.Transition; grading runs only for
// the caller that won it.
type ExamSessionService struct {
	sessions SessionStore
	exams    ExamSource
	grading  *GradingService
	gate     *Gatekeeper
	auth     *AuthService
	events   EventPublisher
	locker   Locker
	clock    clock.Clock
	opts     SessionOptions
	log      zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. events and locker may be nil.
func NewExamSessionService(
	sessions SessionStore,
	exams ExamSource,
	grading *GradingService,
	auth *AuthService,
	events EventPublisher,
	locker Locker,
	clk clock.Clock,
	opts SessionOptions,
	log zerolog.Logger,
) *ExamSessionService {
	if events == nil {
		events = nopPublisher{}
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	return &ExamSessionService{
		sessions: sessions,
		exams:    exams,
		grading:  grading,
		gate:     grading.gate,
		auth:     auth,
		events:   events,
		locker:   locker,
		clock:    clk,
		opts:     opts,
		log:      log.With().Str("component", "exam_session_service").Logger(),
	}
}

// StartResult is returned when a student starts (or rejoins) an attempt.
type StartResult struct {
	Session   *model.ExamSession `json:"session"`
	Exam      model.ExamPayload  `json:"exam"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Resumed   bool               `json:"resumed"`
}

// ViolationResult reports a recorded violation and whether it ended the attempt.
type ViolationResult struct {
	Session       *model.ExamSession `json:"session"`
	AutoSubmitted bool               `json:"auto_submitted"`
}

// Start admits a student into an exam. Calling it again while the student's
// attempt is still open returns that attempt with a fresh token.
func (s *ExamSessionService) Start(ctx context.Context, examID uuid.UUID, req *model.StartSessionRequest) (*StartResult, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	attempt := NewAttempt(exam, req.ChildMode, req.Nickname, req.StudentName, req.QuizCode, now)
	if err := s.gate.Check(ctx, exam, attempt); err != nil {
		return nil, err
	}

	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = attempt.Identity()
	}

	sess := &model.ExamSession{
		ExamID:           exam.ID,
		StudentID:        studentID,
		StudentName:      attempt.StudentName,
		Nickname:         attempt.Nickname,
		ChildMode:        attempt.ChildMode,
		QuizCode:         attempt.QuizCode,
		ServerStartedAt:  now,
		TimeLimitSeconds: exam.TimeLimitSeconds,
	}
	session.Project(sess, now)

	stored, created, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, expires, err := s.auth.GenerateSessionToken(stored)
	if err != nil {
		return nil, err
	}
	session.Project(stored, now)

	s.log.Info().
		Str("session_id", stored.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("student_id", stored.StudentID).
		Bool("resumed", !created).
		Msg("Session started")

	return &StartResult{
		Session:   stored,
		Exam:      exam.Payload(),
		Token:     token,
		ExpiresAt: expires,
		Resumed:   !created,
	}, nil
}

// State returns the session with its timer projected at now, finalizing it
// first if the clock says it is over.
func (s *ExamSessionService) State(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, _, err := s.open(ctx, id)
	if err != nil && !errors.Is(err, ErrSessionTerminal) {
		return nil, err
	}
	return sess, nil
}

// Heartbeat records client liveness. A disconnected session is resumed.
func (s *ExamSessionService) Heartbeat(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, exam, err := s.open(ctx, id)
	if err != nil {
		return sess, err
	}

	now := s.clock.Now()
	remaining := remainingPtr(sess, now)
	updated, err := s.sessions.Heartbeat(ctx, id, now, remaining)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.settle(ctx, id, exam)
	}
	s.noteResume(ctx, sess, updated)
	return updated, nil
}

// SyncAnswers merges answers into the session (last write wins per question).
func (s *ExamSessionService) SyncAnswers(ctx context.Context, id uuid.UUID, answers map[string]json.RawMessage) (*model.ExamSession, error) {
	sess, exam, err := s.open(ctx, id)
	if err != nil {
		return sess, err
	}

	answers, err = canonicalAnswers(exam, answers)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	remaining := remainingPtr(sess, now)
	updated, err := s.sessions.SyncAnswers(ctx, id, answers, now, remaining)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.settle(ctx, id, exam)
	}
	s.noteResume(ctx, sess, updated)
	return updated, nil
}

// canonicalAnswers re-keys answers by the canonical question id. Grading
// looks answers up by that form, so a key that is not one of the exam's
// question ids rejects the whole sync.
func canonicalAnswers(exam *model.Exam, answers map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	known := make(map[uuid.UUID]bool, len(exam.Questions))
	for _, q := range exam.Questions {
		known[q.ID] = true
	}

	out := make(map[string]json.RawMessage, len(answers))
	for key, v := range answers {
		qid, err := uuid.Parse(strings.TrimSpace(key))
		if err != nil || !known[qid] {
			return nil, &PolicyError{Code: response.ErrValidation, Reason: fmt.Sprintf("answers: unknown question id %q", key)}
		}
		if _, dup := out[qid.String()]; dup {
			return nil, &PolicyError{Code: response.ErrValidation, Reason: fmt.Sprintf("answers: question %s sent twice", qid)}
		}
		out[qid.String()] = v
	}
	return out, nil
}

// ReportViolation appends a violation. Exceeding the exam's limit
// auto-submits the attempt immediately.
func (s *ExamSessionService) ReportViolation(ctx context.Context, id uuid.UUID, req *model.ReportViolationRequest) (*ViolationResult, error) {
	sess, exam, err := s.open(ctx, id)
	if err != nil {
		return &ViolationResult{Session: sess}, err
	}

	now := s.clock.Now()
	if sess.Status == model.SessionStatusDisconnected {
		// A report proves the client is back.
		resumed, err := s.sessions.Heartbeat(ctx, id, now, remainingPtr(sess, now))
		if err != nil {
			return nil, err
		}
		if resumed == nil {
			sess, err := s.settle(ctx, id, exam)
			return &ViolationResult{Session: sess}, err
		}
		s.noteResume(ctx, sess, resumed)
	}

	v := model.Violation{Type: strings.TrimSpace(req.Type), Timestamp: now, Detail: req.Detail}
	updated, err := s.sessions.AppendViolation(ctx, id, v, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		sess, err := s.settle(ctx, id, exam)
		return &ViolationResult{Session: sess}, err
	}

	s.log.Info().
		Str("session_id", id.String()).
		Str("type", v.Type).
		Int("count", updated.ViolationsCount).
		Int("max", exam.MaxViolations).
		Msg("Violation recorded")

	if !session.PolicyFor(exam, 0).ViolationsExceeded(updated.ViolationsCount) {
		return &ViolationResult{Session: updated}, nil
	}

	final, won, err := s.finalize(ctx, exam, updated, session.TriggerViolations)
	if err != nil {
		return nil, err
	}
	return &ViolationResult{Session: final, AutoSubmitted: won}, nil
}

// Submit ends the attempt at the student's request. Submitting an attempt
// that already finished returns it unchanged.
func (s *ExamSessionService) Submit(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, exam, err := s.open(ctx, id)
	if errors.Is(err, ErrSessionTerminal) {
		return sess, nil
	}
	if err != nil {
		return nil, err
	}
	final, _, err := s.finalize(ctx, exam, sess, session.TriggerSubmit)
	return final, err
}

// Sweep applies server-side triggers (timer, exam end, violations, missed
// heartbeats) to every open session, paging through them in
// (last_heartbeat, id) order. It returns the number of transitions this call
// won. Only one instance sweeps at a time when a Locker is set.
func (s *ExamSessionService) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryAcquire(ctx, config.CacheKey.SweepLockKey(), sweepLockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer release()
	}

	exams := make(map[uuid.UUID]*model.Exam)
	now := s.clock.Now()
	moved := 0
	var cursor repository.OpenCursor
	for {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		page, err := s.sessions.ListOpen(ctx, cursor, s.opts.SweepBatch)
		if err != nil {
			return moved, err
		}

		for _, sess := range page {
			exam, ok := exams[sess.ExamID]
			if !ok {
				exam, err = s.exams.GetExam(ctx, sess.ExamID)
				if err != nil {
					s.log.Warn().Err(err).Str("exam_id", sess.ExamID.String()).Msg("Sweep skipped exam")
					continue
				}
				exams[sess.ExamID] = exam
			}

			trigger, due := session.Evaluate(sess, session.PolicyFor(exam, s.opts.Liveness), now)
			if !due {
				continue
			}
			_, won, err := s.finalize(ctx, exam, sess, trigger)
			if err != nil {
				s.log.Error().Err(err).Str("session_id", sess.ID.String()).Str("trigger", string(trigger)).Msg("Sweep transition failed")
				continue
			}
			if won {
				moved++
			}
		}

		if len(page) < s.opts.SweepBatch {
			return moved, nil
		}
		last := page[len(page)-1]
		cursor = repository.OpenCursor{LastHeartbeat: last.LastHeartbeat, ID: last.ID}
	}
}

// Result returns the graded submission of a finished session. Answer rows
// are written after the submission, so Answers may briefly be empty.
func (s *ExamSessionService) Result(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.SubmissionID == nil {
		return nil, ErrSubmissionNotFound
	}

	sub, err := s.grading.submissions.GetByID(ctx, *sess.SubmissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	answers, err := s.grading.submissions.ListAnswers(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []model.SubmissionAnswer{}
	}
	return &model.SubmissionDetail{Submission: sub, Answers: answers}, nil
}

// open loads a session and applies any due timer, exam-end or violation
// trigger. It returns ErrSessionTerminal (with the session) when the attempt
// is over.
func (s *ExamSessionService) open(ctx context.Context, id uuid.UUID) (*model.ExamSession, *model.Exam, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	now := s.clock.Now()
	if sess.Status.Terminal() {
		session.Project(sess, now)
		return sess, nil, ErrSessionTerminal
	}

	exam, err := s.exams.GetExam(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, err
	}

	// Liveness is not checked here: the caller is the client itself.
	if trigger, due := session.Evaluate(sess, session.PolicyFor(exam, 0), now); due {
		final, _, err := s.finalize(ctx, exam, sess, trigger)
		if err != nil {
			return nil, nil, err
		}
		if final.Status.Terminal() {
			return final, exam, ErrSessionTerminal
		}
		sess = final
	}
	session.Project(sess, now)
	return sess, exam, nil
}

// settle is called when a conditional write matched no row: the session
// either finished concurrently or its deadline passed.
func (s *ExamSessionService) settle(ctx context.Context, id uuid.UUID, exam *model.Exam) (*model.ExamSession, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Terminal() {
		if trigger, due := session.Evaluate(sess, session.PolicyFor(exam, 0), s.clock.Now()); due {
			if sess, _, err = s.finalize(ctx, exam, sess, trigger); err != nil {
				return nil, err
			}
		}
	}
	session.Project(sess, s.clock.Now())
	if sess.Status.Terminal() {
		return sess, ErrSessionTerminal
	}
	return sess, nil
}

// finalize applies trigger with a compare-and-set. The winner of a terminal
// transition grades the answers returned by that same write and caches the
// outcome; a loser returns the current session without error and won=false.
func (s *ExamSessionService) finalize(ctx context.Context, exam *model.Exam, sess *model.ExamSession, trigger session.Trigger) (*model.ExamSession, bool, error) {
	to, err := session.Next(sess.Status, trigger)
	if err != nil {
		current, rerr := s.reload(ctx, sess)
		return current, false, rerr
	}

	now := s.clock.Now()
	won, err := s.sessions.Transition(ctx, sess.ID, session.Sources(trigger), to, now)
	if err != nil {
		return nil, false, err
	}
	if won == nil {
		s.log.Debug().Str("session_id", sess.ID.String()).Str("trigger", string(trigger)).Msg("Transition lost")
		current, rerr := s.reload(ctx, sess)
		return current, false, rerr
	}

	s.log.Info().
		Str("session_id", won.ID.String()).
		Str("from", string(sess.Status)).
		Str("to", string(won.Status)).
		Str("trigger", string(trigger)).
		Msg("Session transitioned")

	if !session.Grades(won.Status) {
		s.events.Publish(ctx, SessionEvent{Type: EventState, SessionID: won.ID, Status: won.Status, Trigger: string(trigger)})
		return won, true, nil
	}

	// The attempt is terminal now; a cancelled request must not leave it ungraded.
	gctx := context.WithoutCancel(ctx)
	out, gerr := s.grading.FinalizeSession(gctx, exam, won)
	if gerr != nil {
		s.log.Warn().Err(gerr).Str("session_id", won.ID.String()).Msg("Session finalized without submission")
	}
	outcome := outcomeOf(out, gerr)
	if err := s.sessions.RecordOutcome(gctx, won.ID, outcome); err != nil {
		s.log.Error().Err(err).Str("session_id", won.ID.String()).Msg("Failed to record session outcome")
	}
	won.SubmissionResult = outcome
	won.SubmissionID = outcome.SubmissionID
	session.Project(won, now)

	s.events.Publish(gctx, SessionEvent{Type: EventState, SessionID: won.ID, Status: won.Status, Trigger: string(trigger)})
	s.events.Publish(gctx, SessionEvent{Type: EventGraded, SessionID: won.ID, Status: won.Status, Outcome: outcome})
	return won, true, nil
}

func (s *ExamSessionService) reload(ctx context.Context, sess *model.ExamSession) (*model.ExamSession, error) {
	current, err := s.load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	session.Project(current, s.clock.Now())
	return current, nil
}

func (s *ExamSessionService) load(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *ExamSessionService) noteResume(ctx context.Context, before, after *model.ExamSession) {
	if before.Status != model.SessionStatusDisconnected || after.Status != model.SessionStatusActive {
		return
	}
	s.log.Info().Str("session_id", after.ID.String()).Msg("Session resumed")
	s.events.Publish(ctx, SessionEvent{Type: EventState, SessionID: after.ID, Status: after.Status, Trigger: string(session.TriggerResume)})
}

func remainingPtr(sess *model.ExamSession, now time.Time) *int {
	if secs, ok := session.Remaining(sess, now); ok {
		return &secs
	}
	return nil
}
