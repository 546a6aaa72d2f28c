package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-proctor/internal/database"
	"github.com/stemsi/exam-proctor/internal/model"
)

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// ErrAttemptLimit is matched by *LimitError.
var ErrAttemptLimit = errors.New("attempt limit reached")

// LimitError reports an insert refused because the identity already has
// Attempts stored submissions.
type LimitError struct {
	Attempts int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("attempt limit reached after %d submissions", e.Attempts)
}

func (e *LimitError) Is(target error) bool { return target == ErrAttemptLimit }

// Create inserts the submission row. A second submission for the same session
// returns the first one instead of failing.
//
// With limit > 0 the insert holds a transaction-scoped advisory lock on
// (exam, identity) and re-counts first, so concurrent attempts by one
// identity cannot overshoot the limit. It returns a *LimitError when the
// identity is already at the limit.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission, limit int) error {
	violations, err := json.Marshal(nonNilViolations(s.Violations))
	if err != nil {
		return fmt.Errorf("encode violations: %w", err)
	}

	err = database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if limit > 0 {
			if err := lockIdentity(ctx, tx, s); err != nil {
				return err
			}
			if s.SessionID != nil {
				err := tx.QueryRow(ctx,
					`SELECT id, created_at FROM submissions WHERE session_id = $1`, *s.SessionID,
				).Scan(&s.ID, &s.CreatedAt)
				if err == nil {
					return nil
				}
				if !errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("find session submission: %w", err)
				}
			}
			n, err := countByIdentity(ctx, tx, s.ExamID, s.ChildMode, s.Identity())
			if err != nil {
				return err
			}
			if n >= limit {
				return &LimitError{Attempts: n}
			}
		}

		return tx.QueryRow(ctx,
			`INSERT INTO submissions (exam_id, session_id, student_id, student_name, student_email,
			                          score, max_score, percentage, violations, violations_count,
			                          time_taken, child_mode, nickname, quiz_code, browser_info)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14, $15)
			 RETURNING id, created_at`,
			s.ExamID, s.SessionID, s.StudentID, s.StudentName, s.StudentEmail,
			s.Score, s.MaxScore, s.Percentage, string(violations), s.ViolationsCount,
			s.TimeTaken, s.ChildMode, s.Nickname, s.QuizCode, jsonOrNull(s.BrowserInfo),
		).Scan(&s.ID, &s.CreatedAt)
	})
	if err == nil {
		return nil
	}

	if s.SessionID != nil && database.IsUniqueViolation(err) {
		return r.pool.QueryRow(ctx,
			`SELECT id, created_at FROM submissions WHERE session_id = $1`, *s.SessionID,
		).Scan(&s.ID, &s.CreatedAt)
	}
	if errors.Is(err, ErrAttemptLimit) {
		return err
	}
	return fmt.Errorf("insert submission: %w", err)
}

// lockIdentity serializes inserts for one (exam, mode, identity) until tx ends.
func lockIdentity(ctx context.Context, tx pgx.Tx, s *model.Submission) error {
	key := fmt.Sprintf("submission:%s:%t:%s", s.ExamID, s.ChildMode, s.Identity())
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock attempt identity: %w", err)
	}
	return nil
}

// CountByIdentity counts stored submissions for an exam under the attempt
// identity: the nickname for child-mode attempts, the student name otherwise.
func (r *SubmissionRepository) CountByIdentity(ctx context.Context, examID uuid.UUID, childMode bool, identity string) (int, error) {
	return countByIdentity(ctx, r.pool, examID, childMode, identity)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countByIdentity(ctx context.Context, q rowQuerier, examID uuid.UUID, childMode bool, identity string) (int, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE exam_id = $1 AND child_mode AND nickname = $2`
	if !childMode {
		query = `SELECT COUNT(*) FROM submissions WHERE exam_id = $1 AND NOT child_mode AND student_name = $2`
	}

	var n int
	if err := q.QueryRow(ctx, query, examID, identity).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// GetByID retrieves a submission by id.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	var violations []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, session_id, student_id, student_name, student_email, score, max_score,
		        percentage, violations, violations_count, time_taken, child_mode, nickname, quiz_code,
		        browser_info, created_at
		 FROM submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.SessionID, &s.StudentID, &s.StudentName, &s.StudentEmail, &s.Score, &s.MaxScore,
		&s.Percentage, &violations, &s.ViolationsCount, &s.TimeTaken, &s.ChildMode, &s.Nickname, &s.QuizCode,
		&s.BrowserInfo, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &s.Violations); err != nil {
			return nil, fmt.Errorf("decode violations: %w", err)
		}
	}
	return s, nil
}

var answerColumns = []string{"submission_id", "question_id", "answer", "is_correct", "points_awarded"}

// InsertAnswers bulk-writes graded answers with COPY in its own transaction.
func (r *SubmissionRepository) InsertAnswers(ctx context.Context, answers []model.SubmissionAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"submission_answers"},
			answerColumns,
			pgx.CopyFromSlice(len(answers), func(i int) ([]any, error) {
				a := answers[i]
				return []any{a.SubmissionID, a.QuestionID, a.Answer, a.IsCorrect, a.PointsAwarded}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy submission answers: %w", err)
		}
		return nil
	})
}

// InsertAnswer writes a single graded answer; an existing row is left untouched.
func (r *SubmissionRepository) InsertAnswer(ctx context.Context, a model.SubmissionAnswer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO submission_answers (submission_id, question_id, answer, is_correct, points_awarded)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (submission_id, question_id) DO NOTHING`,
		a.SubmissionID, a.QuestionID, a.Answer, a.IsCorrect, a.PointsAwarded)
	if err != nil {
		return fmt.Errorf("insert submission answer: %w", err)
	}
	return nil
}

// ListAnswers returns the graded answers of a submission.
func (r *SubmissionRepository) ListAnswers(ctx context.Context, submissionID uuid.UUID) ([]model.SubmissionAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT submission_id, question_id, answer, is_correct, points_awarded
		 FROM submission_answers WHERE submission_id = $1
		 ORDER BY question_id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list submission answers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[model.SubmissionAnswer])
}

func nonNilViolations(v []model.Violation) []model.Violation {
	if v == nil {
		return []model.Violation{}
	}
	return v
}
