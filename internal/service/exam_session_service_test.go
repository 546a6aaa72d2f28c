package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/response"
)

func startBudi(t *testing.T, h *harness, exam *model.Exam) *StartResult {
	t.Helper()
	res, err := h.svc.Start(context.Background(), exam.ID, &model.StartSessionRequest{StudentName: "Budi"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res
}

func TestStartIsIdempotent(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)

	first := startBudi(t, h, exam)
	if first.Resumed || first.Token == "" {
		t.Fatalf("first start = %+v", first)
	}
	if first.Session.TimeRemainingSeconds == nil || *first.Session.TimeRemainingSeconds != 600 {
		t.Errorf("remaining = %v, want 600", first.Session.TimeRemainingSeconds)
	}
	if len(first.Exam.Questions) != 3 {
		t.Errorf("payload questions = %d, want 3", len(first.Exam.Questions))
	}

	h.clock.Advance(30 * time.Second)
	second := startBudi(t, h, exam)
	if !second.Resumed || second.Session.ID != first.Session.ID {
		t.Fatalf("second start created a new session: %s vs %s", second.Session.ID, first.Session.ID)
	}
	if *second.Session.TimeRemainingSeconds != 570 {
		t.Errorf("remaining = %d, want 570", *second.Session.TimeRemainingSeconds)
	}
}

func TestStartRejectsAttemptLimit(t *testing.T) {
	exam := acmeExam()
	exam.ChildModeEnabled = true
	exam.AttemptLimit = 1
	h := newHarness(exam)
	h.submissions.rows = append(h.submissions.rows, &model.Submission{ExamID: exam.ID, ChildMode: true, Nickname: "Lina"})

	_, err := h.svc.Start(context.Background(), exam.ID, &model.StartSessionRequest{ChildMode: true, Nickname: "Lina"})
	pe, ok := AsPolicyError(err)
	if !ok || pe.Code != response.ErrAttemptLimit || pe.Attempts != 1 {
		t.Fatalf("err = %v, want ATTEMPT_LIMIT with attempts 1", err)
	}
	if len(h.sessions.byID) != 0 {
		t.Error("a rejected start must not create a session")
	}
}

func TestStartUnknownExam(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Start(context.Background(), uuid.New(), &model.StartSessionRequest{StudentName: "Budi"})
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestStateUnknownSession(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.State(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestHeartbeatAfterDeadlineAutoSubmits(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	start := startBudi(t, h, exam)
	id := start.Session.ID

	if _, err := h.svc.SyncAnswers(ctx, id, map[string]json.RawMessage{exam.Questions[0].ID.String(): raw("A")}); err != nil {
		t.Fatalf("SyncAnswers: %v", err)
	}

	h.clock.Advance(601 * time.Second)
	sess, err := h.svc.Heartbeat(ctx, id)
	if !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("err = %v, want ErrSessionTerminal", err)
	}
	if sess.Status != model.SessionStatusAutoSubmitted {
		t.Errorf("status = %s, want auto_submitted", sess.Status)
	}
	if sess.SubmissionResult == nil || sess.SubmissionResult.Score != 5 {
		t.Errorf("outcome = %+v, want score 5", sess.SubmissionResult)
	}
	if *sess.TimeRemainingSeconds != 0 {
		t.Errorf("remaining = %d, want 0", *sess.TimeRemainingSeconds)
	}
	if h.submissions.count() != 1 {
		t.Errorf("submissions = %d, want 1", h.submissions.count())
	}

	if _, err := h.svc.Heartbeat(ctx, id); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("heartbeat on a finished session: err = %v", err)
	}
	if h.submissions.count() != 1 {
		t.Errorf("submissions after repeat = %d, want 1", h.submissions.count())
	}
	if h.events.count(EventGraded) != 1 {
		t.Errorf("graded events = %d, want 1", h.events.count(EventGraded))
	}
}

func TestSyncAnswersLastWriteWins(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID
	q0, q1 := exam.Questions[0].ID.String(), exam.Questions[1].ID.String()

	if _, err := h.svc.SyncAnswers(ctx, id, map[string]json.RawMessage{q0: raw("B")}); err != nil {
		t.Fatalf("SyncAnswers: %v", err)
	}
	h.clock.Advance(time.Second)
	sess, err := h.svc.SyncAnswers(ctx, id, map[string]json.RawMessage{q0: raw("A"), q1: raw("B")})
	if err != nil {
		t.Fatalf("SyncAnswers: %v", err)
	}
	if string(sess.SavedAnswers[q0]) != `"A"` || len(sess.SavedAnswers) != 2 {
		t.Errorf("saved answers = %s", sess.SavedAnswers)
	}

	final, err := h.svc.Submit(ctx, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if final.Status != model.SessionStatusSubmitted || final.SubmissionResult.Score != 10 {
		t.Errorf("final = %s, outcome %+v", final.Status, final.SubmissionResult)
	}
}

func TestSyncAnswersCanonicalizesKeys(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID
	q0 := exam.Questions[0].ID.String()

	sess, err := h.svc.SyncAnswers(ctx, id, map[string]json.RawMessage{strings.ToUpper(q0): raw("A")})
	if err != nil {
		t.Fatalf("SyncAnswers: %v", err)
	}
	if _, ok := sess.SavedAnswers[q0]; !ok || len(sess.SavedAnswers) != 1 {
		t.Fatalf("saved answers = %s, want key %s", sess.SavedAnswers, q0)
	}

	final, err := h.svc.Submit(ctx, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if final.SubmissionResult.Score != 5 {
		t.Errorf("score = %v, want 5", final.SubmissionResult.Score)
	}
}

func TestSyncAnswersRejectsForeignKeys(t *testing.T) {
	exam := acmeExam()
	q0 := exam.Questions[0].ID.String()

	tests := []struct {
		name    string
		answers map[string]json.RawMessage
	}{
		{"not a uuid", map[string]json.RawMessage{"q1": raw("A")}},
		{"other exam's question", map[string]json.RawMessage{uuid.NewString(): raw("A")}},
		{"same question twice", map[string]json.RawMessage{q0: raw("A"), strings.ToUpper(q0): raw("B")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(exam)
			id := startBudi(t, h, exam).Session.ID

			_, err := h.svc.SyncAnswers(context.Background(), id, tt.answers)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			sess, err := h.svc.State(context.Background(), id)
			if err != nil {
				t.Fatalf("State: %v", err)
			}
			if len(sess.SavedAnswers) != 0 {
				t.Errorf("saved answers = %s, want none", sess.SavedAnswers)
			}
		})
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID

	first, err := h.svc.Submit(ctx, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := h.svc.Submit(ctx, id)
	if err != nil {
		t.Fatalf("repeat Submit: %v", err)
	}
	if second.Status != model.SessionStatusSubmitted || *second.SubmissionID != *first.SubmissionID {
		t.Errorf("repeat submit changed the outcome: %+v", second)
	}
	if h.submissions.count() != 1 {
		t.Errorf("submissions = %d, want 1", h.submissions.count())
	}
}

func TestResultAfterSubmit(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID
	q0 := exam.Questions[0].ID

	if _, err := h.svc.Result(ctx, id); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("Result before submit: err = %v, want ErrSubmissionNotFound", err)
	}
	if _, err := h.svc.SyncAnswers(ctx, id, map[string]json.RawMessage{q0.String(): raw("A")}); err != nil {
		t.Fatalf("SyncAnswers: %v", err)
	}
	final, err := h.svc.Submit(ctx, id)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	res, err := h.svc.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Submission.ID != *final.SubmissionID || res.Submission.Score != 5 {
		t.Errorf("submission = %+v", res.Submission)
	}
	if len(res.Answers) != 3 {
		t.Fatalf("answers = %d, want 3", len(res.Answers))
	}
	for _, a := range res.Answers {
		if a.IsCorrect != (a.QuestionID == q0) {
			t.Errorf("answer %s: is_correct = %v", a.QuestionID, a.IsCorrect)
		}
	}

	if _, err := h.svc.Result(ctx, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: err = %v", err)
	}
}

func TestViolationsEscalate(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID
	report := &model.ReportViolationRequest{Type: "tab_switch"}

	for i := 1; i <= 3; i++ {
		res, err := h.svc.ReportViolation(ctx, id, report)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if res.AutoSubmitted || res.Session.ViolationsCount != i {
			t.Fatalf("report %d = %+v", i, res)
		}
	}

	res, err := h.svc.ReportViolation(ctx, id, report)
	if err != nil {
		t.Fatalf("report 4: %v", err)
	}
	if !res.AutoSubmitted || res.Session.Status != model.SessionStatusAutoSubmitted {
		t.Fatalf("report 4 = %+v, want auto-submit", res)
	}
	if h.submissions.rows[0].ViolationsCount != 4 {
		t.Errorf("submission violations = %d, want 4", h.submissions.rows[0].ViolationsCount)
	}

	if _, err := h.svc.ReportViolation(ctx, id, report); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("report after finish: err = %v", err)
	}
}

func TestViolationsUnlimitedWhenMaxIsZero(t *testing.T) {
	exam := acmeExam()
	exam.MaxViolations = 0
	h := newHarness(exam)
	id := startBudi(t, h, exam).Session.ID

	for i := 0; i < 10; i++ {
		res, err := h.svc.ReportViolation(context.Background(), id, &model.ReportViolationRequest{Type: "blur"})
		if err != nil || res.AutoSubmitted {
			t.Fatalf("report %d: %+v, %v", i, res, err)
		}
	}
}

func TestSweepDisconnectsAndHeartbeatResumes(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID

	h.clock.Advance(45 * time.Second)
	if n, _ := h.svc.Sweep(ctx); n != 0 {
		t.Fatalf("sweep at the liveness boundary moved %d sessions", n)
	}

	h.clock.Advance(time.Second)
	n, err := h.svc.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	sess, _ := h.svc.State(ctx, id)
	if sess.Status != model.SessionStatusDisconnected {
		t.Fatalf("status = %s, want disconnected", sess.Status)
	}

	sess, err = h.svc.Heartbeat(ctx, id)
	if err != nil || sess.Status != model.SessionStatusActive {
		t.Fatalf("Heartbeat = %+v, %v; want active", sess, err)
	}
	if h.events.count(EventState) != 2 {
		t.Errorf("state events = %d, want 2", h.events.count(EventState))
	}
	if h.submissions.count() != 0 {
		t.Error("disconnect must not grade")
	}
}

func TestSweepExpiresWhenExamEnds(t *testing.T) {
	exam := acmeExam()
	end := testStart.Add(30 * time.Second)
	exam.EndTime = &end
	h := newHarness(exam)
	id := startBudi(t, h, exam).Session.ID

	h.clock.Advance(31 * time.Second)
	if n, err := h.svc.Sweep(context.Background()); err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	sess, _ := h.svc.State(context.Background(), id)
	if sess.Status != model.SessionStatusExpired {
		t.Errorf("status = %s, want expired", sess.Status)
	}
	if h.submissions.count() != 1 {
		t.Errorf("submissions = %d, want 1", h.submissions.count())
	}
}

func TestSweepPagesPastStaleSessions(t *testing.T) {
	timed := acmeExam()
	untimed := acmeExam()
	untimed.TimeLimitSeconds = 0
	h := newHarness(timed, untimed)
	h.svc.opts.SweepBatch = 2

	// Disconnected untimed sessions never become due and sort first.
	for i := 0; i < 5; i++ {
		h.sessions.put(&model.ExamSession{
			ExamID:          untimed.ID,
			StudentID:       fmt.Sprintf("idle-%d", i),
			Status:          model.SessionStatusDisconnected,
			ServerStartedAt: testStart.Add(-2 * time.Hour),
			LastHeartbeat:   testStart.Add(-time.Hour + time.Duration(i)*time.Second),
		})
	}
	due := h.sessions.put(&model.ExamSession{
		ExamID:           timed.ID,
		StudentID:        "budi",
		StudentName:      "Budi",
		Status:           model.SessionStatusActive,
		ServerStartedAt:  testStart,
		TimeLimitSeconds: 600,
		LastHeartbeat:    testStart.Add(590 * time.Second),
	})

	h.clock.Advance(601 * time.Second)
	n, err := h.svc.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	sess, _ := h.svc.State(context.Background(), due.ID)
	if sess.Status != model.SessionStatusAutoSubmitted {
		t.Errorf("status = %s, want auto_submitted", sess.Status)
	}
	if h.sessions.listCalls != 4 {
		t.Errorf("pages read = %d, want 4", h.sessions.listCalls)
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	startBudi(t, h, exam)
	h.svc.locker = &fakeLocker{held: true}

	h.clock.Advance(time.Hour)
	if n, err := h.svc.Sweep(context.Background()); err != nil || n != 0 {
		t.Fatalf("Sweep = %d, %v; want 0", n, err)
	}
	if h.submissions.count() != 0 {
		t.Error("sweep ran without the lock")
	}
}

func TestConcurrentFinalizeGradesOnce(t *testing.T) {
	exam := acmeExam()
	h := newHarness(exam)
	ctx := context.Background()
	id := startBudi(t, h, exam).Session.ID
	h.clock.Advance(601 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.svc.Submit(ctx, id)
		}()
		go func() {
			defer wg.Done()
			h.svc.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			h.svc.Heartbeat(ctx, id)
		}()
	}
	wg.Wait()

	if h.submissions.count() != 1 {
		t.Fatalf("submissions = %d, want exactly 1", h.submissions.count())
	}
	if h.sessions.outcomes != 1 {
		t.Errorf("outcomes recorded = %d, want 1", h.sessions.outcomes)
	}
	sess, _ := h.svc.State(ctx, id)
	if sess.Status != model.SessionStatusAutoSubmitted {
		t.Errorf("status = %s, want auto_submitted", sess.Status)
	}
}
