package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-proctor/internal/model"
)

const sessionColumns = `id, exam_id, student_id, student_name, nickname, child_mode, quiz_code,
	status, server_started_at, time_limit_seconds, time_remaining_seconds, saved_answers,
	violations, violations_count, last_heartbeat, heartbeat_count, auto_submit_scheduled,
	auto_submitted_at, finished_at, submission_id, submission_result, updated_at`

// openStatuses are the statuses covered by the one-open-session-per-student index.
var openStatuses = []string{string(model.SessionStatusActive), string(model.SessionStatusDisconnected)}

// notExpired guards implicit resume: a write never revives a session past its deadline.
const notExpired = `(time_limit_seconds = 0 OR server_started_at + make_interval(secs => time_limit_seconds) > $2)`

// ExamSessionRepository handles exam session data access. Every status change
// is a compare-and-set on the current status.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var (
		answers    []byte
		violations []byte
		result     []byte
	)
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StudentName, &s.Nickname, &s.ChildMode, &s.QuizCode,
		&s.Status, &s.ServerStartedAt, &s.TimeLimitSeconds, &s.TimeRemainingSeconds, &answers,
		&violations, &s.ViolationsCount, &s.LastHeartbeat, &s.HeartbeatCount, &s.AutoSubmitScheduled,
		&s.AutoSubmittedAt, &s.FinishedAt, &s.SubmissionID, &result, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.SavedAnswers = map[string]json.RawMessage{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.SavedAnswers); err != nil {
			return nil, fmt.Errorf("decode saved_answers: %w", err)
		}
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &s.Violations); err != nil {
			return nil, fmt.Errorf("decode violations: %w", err)
		}
	}
	if len(result) > 0 {
		s.SubmissionResult = &model.SubmissionOutcome{}
		if err := json.Unmarshal(result, s.SubmissionResult); err != nil {
			return nil, fmt.Errorf("decode submission_result: %w", err)
		}
	}
	return s, nil
}

// one maps pgx.ErrNoRows to (nil, nil) so compare-and-set losers can exit quietly.
func one(row pgx.Row, op string) (*model.ExamSession, error) {
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s, err := one(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id), "get session")
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetOpen returns the student's non-terminal session for an exam, or ErrNotFound.
func (r *ExamSessionRepository) GetOpen(ctx context.Context, examID uuid.UUID, studentID string) (*model.ExamSession, error) {
	s, err := one(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2 AND status = ANY($3)`,
		examID, studentID, openStatuses), "get open session")
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Create inserts a new active session. created is false when the student
// already had an open session for this exam; that session is returned instead.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) (*model.ExamSession, bool, error) {
	created, err := one(r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, student_name, nickname, child_mode, quiz_code,
		                            status, server_started_at, time_limit_seconds, time_remaining_seconds,
		                            last_heartbeat, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $8, $8)
		 ON CONFLICT (exam_id, student_id) WHERE status IN ('active', 'disconnected') DO NOTHING
		 RETURNING `+sessionColumns,
		s.ExamID, s.StudentID, s.StudentName, s.Nickname, s.ChildMode, s.QuizCode,
		string(model.SessionStatusActive), s.ServerStartedAt, s.TimeLimitSeconds, s.TimeRemainingSeconds,
	), "create session")
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}

	existing, err := r.GetOpen(ctx, s.ExamID, s.StudentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Heartbeat records liveness and implicitly resumes a disconnected session.
// It returns nil when the session is terminal or past its deadline.
func (r *ExamSessionRepository) Heartbeat(ctx context.Context, id uuid.UUID, now time.Time, remaining *int) (*model.ExamSession, error) {
	return one(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = 'active', last_heartbeat = $2, heartbeat_count = heartbeat_count + 1,
		     time_remaining_seconds = $4, updated_at = $2
		 WHERE id = $1 AND status = ANY($3) AND `+notExpired+`
		 RETURNING `+sessionColumns,
		id, now, openStatuses, remaining), "heartbeat")
}

// SyncAnswers merges answers over saved_answers (last write wins per question)
// and counts as a heartbeat. It returns nil when the session is terminal or past its deadline.
func (r *ExamSessionRepository) SyncAnswers(ctx context.Context, id uuid.UUID, answers map[string]json.RawMessage, now time.Time, remaining *int) (*model.ExamSession, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return one(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = 'active', saved_answers = saved_answers || $5::jsonb, last_heartbeat = $2,
		     time_remaining_seconds = $4, updated_at = $2
		 WHERE id = $1 AND status = ANY($3) AND `+notExpired+`
		 RETURNING `+sessionColumns,
		id, now, openStatuses, remaining, string(raw)), "sync answers")
}

// AppendViolation appends v to the log and increments the counter in a single
// statement. It returns nil when the session is not active.
func (r *ExamSessionRepository) AppendViolation(ctx context.Context, id uuid.UUID, v model.Violation, now time.Time) (*model.ExamSession, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode violation: %w", err)
	}
	return one(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET violations = violations || jsonb_build_array($3::jsonb),
		     violations_count = violations_count + 1, updated_at = $2
		 WHERE id = $1 AND status = 'active'
		 RETURNING `+sessionColumns,
		id, now, string(raw)), "append violation")
}

// Transition moves the session to `to` only if its status is still one of
// from. The returned row is the state the winner acts on; nil means another
// writer got there first.
func (r *ExamSessionRepository) Transition(ctx context.Context, id uuid.UUID, from []model.SessionStatus, to model.SessionStatus, now time.Time) (*model.ExamSession, error) {
	expected := make([]string, len(from))
	for i, st := range from {
		expected[i] = string(st)
	}
	return one(r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $4,
		     finished_at = CASE WHEN $5 THEN $2 ELSE finished_at END,
		     auto_submit_scheduled = auto_submit_scheduled OR $4 = 'auto_submitted',
		     auto_submitted_at = CASE WHEN $4 = 'auto_submitted' THEN $2 ELSE auto_submitted_at END,
		     time_remaining_seconds = CASE
		         WHEN time_limit_seconds = 0 THEN NULL
		         ELSE GREATEST(0, time_limit_seconds - FLOOR(EXTRACT(EPOCH FROM ($2 - server_started_at)))::int)
		     END,
		     updated_at = $2
		 WHERE id = $1 AND status = ANY($3)
		 RETURNING `+sessionColumns,
		id, now, expected, string(to), to.Terminal()), "transition session")
}

// RecordOutcome caches the grading outcome on a terminal session.
func (r *ExamSessionRepository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome *model.SubmissionOutcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET submission_id = $2, submission_result = $3::jsonb
		 WHERE id = $1`,
		id, outcome.SubmissionID, string(raw))
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// OpenCursor marks the last row of a ListOpen page. The zero value starts
// from the beginning.
type OpenCursor struct {
	LastHeartbeat time.Time
	ID            uuid.UUID
}

// ListOpen returns up to limit non-terminal sessions after the cursor,
// ordered by (last_heartbeat, id).
func (r *ExamSessionRepository) ListOpen(ctx context.Context, after OpenCursor, limit int) ([]*model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = ANY($1) AND (last_heartbeat, id) > ($2, $3)
		 ORDER BY last_heartbeat, id
		 LIMIT $4`, openStatuses, after.LastHeartbeat, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
