package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-proctor/internal/database"
	"github.com/stemsi/exam-proctor/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

const examColumns = `id, title, tutor_id, start_time, end_time, time_limit_seconds,
	max_violations, attempt_limit, child_mode_enabled, show_detailed_results,
	COALESCE(quiz_code_hash, ''), created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool      *pgxpool.Pool
	questions *QuestionRepository
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool, questions: NewQuestionRepository(pool)}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.TutorID, &e.StartTime, &e.EndTime, &e.TimeLimitSeconds,
		&e.MaxViolations, &e.AttemptLimit, &e.ChildModeEnabled, &e.ShowDetailedResults,
		&e.QuizCodeHash, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam and its questions ordered by order_num.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	qs, err := r.questions.ListByExam(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Questions = qs
	return e, nil
}

// ListOpenIDs returns exams whose window has not closed at now.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListOpenIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams
		 WHERE end_time IS NULL OR end_time > $1
		 ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Create inserts an exam and its questions in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var quizCode *string
		if e.QuizCodeHash != "" {
			quizCode = &e.QuizCodeHash
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (title, tutor_id, start_time, end_time, time_limit_seconds,
			                    max_violations, attempt_limit, child_mode_enabled,
			                    show_detailed_results, quiz_code_hash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, created_at, updated_at`,
			e.Title, e.TutorID, e.StartTime, e.EndTime, e.TimeLimitSeconds,
			e.MaxViolations, e.AttemptLimit, e.ChildModeEnabled,
			e.ShowDetailedResults, quizCode,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		for i := range e.Questions {
			e.Questions[i].ExamID = e.ID
			if e.Questions[i].ID == uuid.Nil {
				e.Questions[i].ID = uuid.New()
			}
		}
		return r.questions.CopyIn(ctx, tx, e.Questions)
	})
}
