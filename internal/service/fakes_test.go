package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
	"github.com/stemsi/exam-proctor/internal/session"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// fakeSessions mimics the conditional updates of ExamSessionRepository.
type fakeSessions struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*model.ExamSession
	outcomes  int
	listCalls int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[uuid.UUID]*model.ExamSession{}}
}

func cloneSession(s *model.ExamSession) *model.ExamSession {
	c := *s
	c.SavedAnswers = make(map[string]json.RawMessage, len(s.SavedAnswers))
	for k, v := range s.SavedAnswers {
		c.SavedAnswers[k] = v
	}
	c.Violations = slices.Clone(s.Violations)
	return &c
}

func isOpen(st model.SessionStatus) bool {
	return st == model.SessionStatusActive || st == model.SessionStatusDisconnected
}

func beforeDeadline(s *model.ExamSession, now time.Time) bool {
	d, ok := session.Deadline(s)
	return !ok || d.After(now)
}

func (f *fakeSessions) put(s *model.ExamSession) *model.ExamSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SavedAnswers == nil {
		s.SavedAnswers = map[string]json.RawMessage{}
	}
	f.byID[s.ID] = cloneSession(s)
	return s
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (f *fakeSessions) Create(_ context.Context, s *model.ExamSession) (*model.ExamSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.ExamID == s.ExamID && existing.StudentID == s.StudentID && isOpen(existing.Status) {
			return cloneSession(existing), false, nil
		}
	}
	c := cloneSession(s)
	c.ID = uuid.New()
	c.Status = model.SessionStatusActive
	c.LastHeartbeat = s.ServerStartedAt
	c.UpdatedAt = s.ServerStartedAt
	f.byID[c.ID] = c
	return cloneSession(c), true, nil
}

func (f *fakeSessions) Heartbeat(_ context.Context, id uuid.UUID, now time.Time, remaining *int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || !isOpen(s.Status) || !beforeDeadline(s, now) {
		return nil, nil
	}
	s.Status = model.SessionStatusActive
	s.LastHeartbeat = now
	s.HeartbeatCount++
	s.TimeRemainingSeconds = remaining
	s.UpdatedAt = now
	return cloneSession(s), nil
}

func (f *fakeSessions) SyncAnswers(_ context.Context, id uuid.UUID, answers map[string]json.RawMessage, now time.Time, remaining *int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || !isOpen(s.Status) || !beforeDeadline(s, now) {
		return nil, nil
	}
	for k, v := range answers {
		s.SavedAnswers[k] = v
	}
	s.Status = model.SessionStatusActive
	s.LastHeartbeat = now
	s.TimeRemainingSeconds = remaining
	s.UpdatedAt = now
	return cloneSession(s), nil
}

func (f *fakeSessions) AppendViolation(_ context.Context, id uuid.UUID, v model.Violation, now time.Time) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.Status != model.SessionStatusActive {
		return nil, nil
	}
	s.Violations = append(s.Violations, v)
	s.ViolationsCount++
	s.UpdatedAt = now
	return cloneSession(s), nil
}

func (f *fakeSessions) Transition(_ context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, now time.Time) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || !slices.Contains(from, s.Status) {
		return nil, nil
	}
	s.Status = to
	if to.Terminal() {
		s.FinishedAt = &now
	}
	if to == model.SessionStatusAutoSubmitted {
		s.AutoSubmitScheduled = true
		s.AutoSubmittedAt = &now
	}
	s.UpdatedAt = now
	return cloneSession(s), nil
}

func (f *fakeSessions) RecordOutcome(_ context.Context, id uuid.UUID, outcome *model.SubmissionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.SubmissionID = outcome.SubmissionID
	s.SubmissionResult = outcome
	f.outcomes++
	return nil
}

// ListOpen orders and pages like the SQL query: (last_heartbeat, id) keyset.
func (f *fakeSessions) ListOpen(_ context.Context, after repository.OpenCursor, limit int) ([]*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var open []*model.ExamSession
	for _, s := range f.byID {
		if isOpen(s.Status) && cursorLess(after, s) {
			open = append(open, s)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		return cursorLess(repository.OpenCursor{LastHeartbeat: open[i].LastHeartbeat, ID: open[i].ID}, open[j])
	})
	if len(open) > limit {
		open = open[:limit]
	}
	out := make([]*model.ExamSession, 0, len(open))
	for _, s := range open {
		out = append(out, cloneSession(s))
	}
	return out, nil
}

func cursorLess(c repository.OpenCursor, s *model.ExamSession) bool {
	if !c.LastHeartbeat.Equal(s.LastHeartbeat) {
		return c.LastHeartbeat.Before(s.LastHeartbeat)
	}
	return bytes.Compare(c.ID[:], s.ID[:]) < 0
}

// fakeSubmissions stores submissions in memory. createErrs are returned by
// successive Create calls before it starts succeeding.
type fakeSubmissions struct {
	mu          sync.Mutex
	rows        []*model.Submission
	answers     []model.SubmissionAnswer
	createErrs  []error
	createCalls int
	answersErr  error
	countErr    error
	// staleCount makes CountByIdentity report zero, as a read racing an insert would.
	staleCount bool
}

// Create holds f.mu across the count and insert, like the advisory lock.
func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return err
	}
	if s.SessionID != nil {
		for _, r := range f.rows {
			if r.SessionID != nil && *r.SessionID == *s.SessionID {
				s.ID = r.ID
				return nil
			}
		}
	}
	if limit > 0 {
		if n := f.countLocked(s.ExamID, s.ChildMode, s.Identity()); n >= limit {
			return &repository.LimitError{Attempts: n}
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = testStart
	c := *s
	f.rows = append(f.rows, &c)
	return nil
}

func (f *fakeSubmissions) CountByIdentity(_ context.Context, examID uuid.UUID, childMode bool, identity string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.staleCount {
		return 0, nil
	}
	return f.countLocked(examID, childMode, identity), nil
}

func (f *fakeSubmissions) countLocked(examID uuid.UUID, childMode bool, identity string) int {
	n := 0
	for _, r := range f.rows {
		if r.ExamID != examID || r.ChildMode != childMode {
			continue
		}
		if (childMode && r.Nickname == identity) || (!childMode && r.StudentName == identity) {
			n++
		}
	}
	return n
}

func (f *fakeSubmissions) InsertAnswers(_ context.Context, answers []model.SubmissionAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answersErr != nil {
		return f.answersErr
	}
	f.answers = append(f.answers, answers...)
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubmissions) ListAnswers(_ context.Context, submissionID uuid.UUID) ([]model.SubmissionAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SubmissionAnswer
	for _, a := range f.answers {
		if a.SubmissionID == submissionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSubmissions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeQueue struct {
	mu    sync.Mutex
	items []any
	err   error
}

func (q *fakeQueue) Push(_ context.Context, items ...any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, items...)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type fakeExams struct {
	exams map[uuid.UUID]*model.Exam
}

func (f *fakeExams) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, ErrExamNotFound
	}
	return e, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLocker) TryAcquire(context.Context, string, time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return func() {}, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

var errQueueDown = errors.New("queue unavailable")

// harness wires the services over in-memory fakes.
type harness struct {
	clock       *clock.Fake
	exams       *fakeExams
	sessions    *fakeSessions
	submissions *fakeSubmissions
	retry       *fakeQueue
	analytics   *fakeQueue
	events      *recordingPublisher
	grading     *GradingService
	svc         *ExamSessionService
}

func newHarness(exams ...*model.Exam) *harness {
	h := &harness{
		clock:       clock.NewFake(testStart),
		exams:       &fakeExams{exams: map[uuid.UUID]*model.Exam{}},
		sessions:    newFakeSessions(),
		submissions: &fakeSubmissions{},
		retry:       &fakeQueue{},
		analytics:   &fakeQueue{},
		events:      &recordingPublisher{},
	}
	for _, e := range exams {
		h.exams.exams[e.ID] = e
	}
	h.grading = NewGradingService(h.exams, h.submissions, h.retry, h.analytics, h.clock, zerolog.Nop())
	h.grading.sleep = func(context.Context, time.Duration) error { return nil }
	auth := NewAuthService("test-secret", time.Hour, h.clock)
	h.svc = NewExamSessionService(h.sessions, h.exams, h.grading, auth, h.events, &fakeLocker{}, h.clock,
		SessionOptions{Liveness: 45 * time.Second}, zerolog.Nop())
	return h
}

func mcq(points float64, correct string) model.Question {
	raw, _ := json.Marshal(correct)
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Points: points, CorrectAnswer: raw}
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// acmeExam has three 5-point MCQs with answers A, B, C.
func acmeExam() *model.Exam {
	return &model.Exam{
		ID:               uuid.New(),
		Title:            "Acme quiz",
		TimeLimitSeconds: 600,
		MaxViolations:    3,
		Questions:        []model.Question{mcq(5, "A"), mcq(5, "B"), mcq(5, "C")},
	}
}
