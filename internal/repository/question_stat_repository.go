package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-proctor/internal/model"
)

// StatDelta is one increment to a question's aggregate.
type StatDelta struct {
	ExamID        uuid.UUID
	QuestionID    uuid.UUID
	Attempts      int
	Correct       int
	PointsAwarded float64
}

// QuestionStatRepository maintains per-question analytics aggregates.
type QuestionStatRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionStatRepository creates a new QuestionStatRepository.
func NewQuestionStatRepository(pool *pgxpool.Pool) *QuestionStatRepository {
	return &QuestionStatRepository{pool: pool}
}

// BulkIncrement applies all deltas in one statement using UNNEST. Deltas for
// the same question must already be merged by the caller.
func (r *QuestionStatRepository) BulkIncrement(ctx context.Context, deltas []StatDelta, now time.Time) error {
	n := len(deltas)
	if n == 0 {
		return nil
	}

	examIDs := make([]uuid.UUID, n)
	questionIDs := make([]uuid.UUID, n)
	attempts := make([]int32, n)
	correct := make([]int32, n)
	points := make([]float64, n)
	for i, d := range deltas {
		examIDs[i] = d.ExamID
		questionIDs[i] = d.QuestionID
		attempts[i] = int32(d.Attempts)
		correct[i] = int32(d.Correct)
		points[i] = d.PointsAwarded
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO question_stats AS s (exam_id, question_id, attempts, correct_count, points_awarded_total, updated_at)
		 SELECT u.exam_id, u.question_id, u.attempts, u.correct, u.points, $6
		 FROM UNNEST($1::uuid[], $2::uuid[], $3::int[], $4::int[], $5::float8[])
		      AS u (exam_id, question_id, attempts, correct, points)
		 ON CONFLICT (question_id) DO UPDATE
		 SET attempts = s.attempts + EXCLUDED.attempts,
		     correct_count = s.correct_count + EXCLUDED.correct_count,
		     points_awarded_total = s.points_awarded_total + EXCLUDED.points_awarded_total,
		     updated_at = EXCLUDED.updated_at`,
		examIDs, questionIDs, attempts, correct, points, now)
	if err != nil {
		return fmt.Errorf("bulk increment question stats: %w", err)
	}
	return nil
}

// Increment applies a single delta.
func (r *QuestionStatRepository) Increment(ctx context.Context, d StatDelta, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO question_stats AS s (exam_id, question_id, attempts, correct_count, points_awarded_total, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (question_id) DO UPDATE
		 SET attempts = s.attempts + EXCLUDED.attempts,
		     correct_count = s.correct_count + EXCLUDED.correct_count,
		     points_awarded_total = s.points_awarded_total + EXCLUDED.points_awarded_total,
		     updated_at = EXCLUDED.updated_at`,
		d.ExamID, d.QuestionID, d.Attempts, d.Correct, d.PointsAwarded, now)
	if err != nil {
		return fmt.Errorf("increment question stat: %w", err)
	}
	return nil
}

// ListByExam returns the aggregates for every question of an exam.
func (r *QuestionStatRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.QuestionStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, question_id, attempts, correct_count, points_awarded_total, updated_at
		 FROM question_stats WHERE exam_id = $1
		 ORDER BY question_id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list question stats: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[model.QuestionStat])
}
