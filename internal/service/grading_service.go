package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/database"
	"github.com/stemsi/exam-proctor/internal/grading"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
	"github.com/stemsi/exam-proctor/internal/response"
)

// Submission write retry policy.
const (
	submitAttempts      = 3
	submitBackoff       = 100 * time.Millisecond
	analyticsPushBudget = 500 * time.Millisecond
)

// GradeOutcome is the result of a successful grading run.
type GradeOutcome struct {
	Submission  *model.Submission `json:"submission"`
	Result      grading.Result    `json:"result"`
	ShowDetails bool              `json:"-"`
}

// GradingService runs the gatekeeper and grader and writes the Submission.
type GradingService struct {
	exams       ExamSource
	submissions SubmissionStore
	gate        *Gatekeeper
	grader      grading.Grader
	answerRetry Queue
	analytics   Queue
	clock       clock.Clock
	log         zerolog.Logger

	// sleep waits between submission write attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGradingService creates a new GradingService.
func NewGradingService(
	exams ExamSource,
	submissions SubmissionStore,
	answerRetry Queue,
	analytics Queue,
	clk clock.Clock,
	log zerolog.Logger,
) *GradingService {
	return &GradingService{
		exams:       exams,
		submissions: submissions,
		gate:        NewGatekeeper(submissions),
		grader:      grading.Default,
		answerRetry: answerRetry,
		analytics:   analytics,
		clock:       clk,
		log:         log.With().Str("component", "grading_service").Logger(),
		sleep:       sleepCtx,
	}
}

// Submit grades a direct submission. The exam window is checked at the
// moment of submission.
func (s *GradingService) Submit(ctx context.Context, req *model.SubmitExamRequest) (*GradeOutcome, error) {
	exam, err := s.exams.GetExam(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	attempt := NewAttempt(exam, req.ChildMode, req.Nickname, req.StudentData.Name, req.QuizCode, s.clock.Now())
	sub := &model.Submission{
		ExamID:          exam.ID,
		StudentID:       req.StudentData.ID,
		StudentName:     attempt.StudentName,
		StudentEmail:    req.StudentData.Email,
		Violations:      req.Violations,
		ViolationsCount: len(req.Violations),
		TimeTaken:       req.TimeTaken,
		ChildMode:       attempt.ChildMode,
		Nickname:        attempt.Nickname,
		QuizCode:        attempt.QuizCode,
		BrowserInfo:     req.BrowserInfo,
	}
	return s.finalize(ctx, exam, attempt, req.AnswerMap(), sub)
}

// FinalizeSession grades a session that has just won its terminal transition.
// answers are the ones frozen by that transition; the window is checked at
// the instant the attempt was admitted.
func (s *GradingService) FinalizeSession(ctx context.Context, exam *model.Exam, sess *model.ExamSession) (*GradeOutcome, error) {
	attempt := NewAttempt(exam, sess.ChildMode, sess.Nickname, sess.StudentName, sess.QuizCode, sess.ServerStartedAt)

	sub := &model.Submission{}
	if err := copier.CopyWithOption(sub, sess, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy session into submission: %w", err)
	}
	sessionID := sess.ID
	sub.SessionID = &sessionID
	sub.TimeTaken = timeTaken(sess)

	return s.finalize(ctx, exam, attempt, sess.SavedAnswers, sub)
}

func (s *GradingService) finalize(ctx context.Context, exam *model.Exam, attempt Attempt, answers map[string]json.RawMessage, sub *model.Submission) (*GradeOutcome, error) {
	if err := s.gate.Check(ctx, exam, attempt); err != nil {
		return nil, err
	}

	res := grading.Grade(s.grader, exam.Questions, answers)
	sub.Score = res.Score
	sub.MaxScore = res.MaxScore
	sub.Percentage = res.Percentage

	if err := s.createWithRetry(ctx, sub, attemptLimit(exam)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.persistAnswers(ctx, sub.ID, res)
	s.emitAnalytics(ctx, exam.ID, sub.ID, res, now)

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("submission_id", sub.ID.String()).
		Float64("score", res.Score).
		Float64("max_score", res.MaxScore).
		Bool("child_mode", sub.ChildMode).
		Msg("Submission graded")

	return &GradeOutcome{Submission: sub, Result: res, ShowDetails: exam.ShowDetailedResults}, nil
}

// createWithRetry writes the Submission, retrying transient failures. The
// grade is computed once and never recomputed between attempts.
func (s *GradingService) createWithRetry(ctx context.Context, sub *model.Submission, limit int) error {
	var err error
	backoff := submitBackoff
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		if err = s.submissions.Create(ctx, sub, limit); err == nil {
			return nil
		}
		var le *repository.LimitError
		if errors.As(err, &le) {
			return &PolicyError{Code: response.ErrAttemptLimit, Attempts: le.Attempts}
		}
		if !database.IsTransient(err) || attempt == submitAttempts {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("Submission write failed, retrying")
		if serr := s.sleep(ctx, backoff); serr != nil {
			err = serr
			break
		}
		backoff *= 2
	}
	s.log.Error().Err(err).Str("exam_id", sub.ExamID.String()).Msg("Submission write failed")
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// persistAnswers writes SubmissionAnswer rows separately from the Submission.
// On failure the rows are queued for the retry worker; the result stands.
func (s *GradingService) persistAnswers(ctx context.Context, submissionID uuid.UUID, res grading.Result) {
	rows := make([]model.SubmissionAnswer, len(res.Questions))
	for i, q := range res.Questions {
		rows[i] = model.SubmissionAnswer{
			SubmissionID:  submissionID,
			QuestionID:    q.QuestionID,
			Answer:        q.Answer,
			IsCorrect:     q.IsCorrect,
			PointsAwarded: q.PointsAwarded,
		}
	}
	if len(rows) == 0 {
		return
	}

	err := s.submissions.InsertAnswers(ctx, rows)
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Int("rows", len(rows)).
		Msg("Submission answers write failed, queueing for retry")

	items := make([]any, len(rows))
	for i := range rows {
		items[i] = rows[i]
	}
	if qerr := s.answerRetry.Push(context.WithoutCancel(ctx), items...); qerr != nil {
		s.log.Error().Err(qerr).Str("submission_id", submissionID.String()).Msg("Failed to queue submission answers")
	}
}

// emitAnalytics pushes one event per graded question. Failures are logged only.
func (s *GradingService) emitAnalytics(ctx context.Context, examID, submissionID uuid.UUID, res grading.Result, now time.Time) {
	if len(res.Questions) == 0 {
		return
	}
	items := make([]any, len(res.Questions))
	for i, q := range res.Questions {
		items[i] = model.QuestionAnalyticsEvent{
			ExamID:        examID,
			QuestionID:    q.QuestionID,
			SubmissionID:  submissionID,
			Answered:      q.Answered,
			IsCorrect:     q.IsCorrect,
			PointsAwarded: q.PointsAwarded,
			GradedAt:      now,
		}
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), analyticsPushBudget)
	defer cancel()
	if err := s.analytics.Push(pushCtx, items...); err != nil {
		s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("Analytics push failed")
	}
}

// timeTaken is the elapsed attempt time, capped at the time limit.
func timeTaken(sess *model.ExamSession) int {
	end := sess.UpdatedAt
	if sess.FinishedAt != nil {
		end = *sess.FinishedAt
	}
	secs := int(end.Sub(sess.ServerStartedAt) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if sess.TimeLimitSeconds > 0 && secs > sess.TimeLimitSeconds {
		secs = sess.TimeLimitSeconds
	}
	return secs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// outcomeOf summarizes a grading run (or its failure) for the session cache.
func outcomeOf(out *GradeOutcome, err error) *model.SubmissionOutcome {
	if err == nil {
		id := out.Submission.ID
		return &model.SubmissionOutcome{
			SubmissionID: &id,
			Score:        out.Result.Score,
			MaxScore:     out.Result.MaxScore,
			Percentage:   out.Result.Percentage,
		}
	}
	if pe, ok := AsPolicyError(err); ok {
		return &model.SubmissionOutcome{Code: string(pe.Code), Attempts: pe.Attempts, Error: pe.Error()}
	}
	if errors.Is(err, ErrPersistence) {
		return &model.SubmissionOutcome{Code: string(response.ErrInternal), Error: ErrPersistence.Error()}
	}
	return &model.SubmissionOutcome{Code: string(response.ErrInternal), Error: "grading failed"}
}
