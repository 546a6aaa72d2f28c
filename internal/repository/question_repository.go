package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-proctor/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, type, prompt, points, correct_answer, options, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Prompt, &q.Points, &q.CorrectAnswer, &q.Options, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CopyIn bulk-inserts questions with COPY inside tx.
func (r *QuestionRepository) CopyIn(ctx context.Context, tx pgx.Tx, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"id", "exam_id", "type", "prompt", "points", "correct_answer", "options", "order_num"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{q.ID, q.ExamID, string(q.Type), q.Prompt, q.Points, jsonOrNull(q.CorrectAnswer), jsonOrNull(q.Options), q.OrderNum}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy questions: %w", err)
	}
	return nil
}

// jsonOrNull turns an empty raw message into SQL NULL.
func jsonOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
