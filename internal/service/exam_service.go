package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	prewarmConcurrency = 4

	// examLoadTimeout bounds a shared load, which outlives any one caller.
	examLoadTimeout = 10 * time.Second
)

// ExamReader is the authoritative exam store.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListOpenIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// ExamCache stores full exam definitions. Get returns (nil, nil) on a miss.
type ExamCache interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Set(ctx context.Context, exam *model.Exam, ttl time.Duration) error
}

// ExamService serves exams from the cache, falling back to PostgreSQL.
type ExamService struct {
	repo  ExamReader
	cache ExamCache
	ttl   time.Duration
	clock clock.Clock
	group singleflight.Group
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(repo ExamReader, cache ExamCache, ttl time.Duration, clk clock.Clock, log zerolog.Logger) *ExamService {
	return &ExamService{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		clock: clk,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam implements ExamSource. Concurrent misses for one exam share a
// single database read. The shared read is detached from the caller that
// started it, so one cancelled request does not fail the others.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.cache.Get(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
	}
	if exam != nil {
		return exam, nil
	}

	ch := s.group.DoChan(id.String(), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), examLoadTimeout)
		defer cancel()
		return s.load(loadCtx, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Exam), nil
	}
}

// Warm reloads an exam from the database into the cache.
func (s *ExamService) Warm(ctx context.Context, id uuid.UUID) error {
	_, err := s.load(ctx, id)
	return err
}

func (s *ExamService) load(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}

	if err := s.cache.Set(ctx, exam, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache write failed")
	}

	s.log.Debug().
		Str("exam_id", id.String()).
		Int("questions", len(exam.Questions)).
		Msg("Cache warmed")
	return exam, nil
}

// PrewarmAllCaches loads every exam whose window is still open into the cache
// on startup so the first wave of sessions does not stampede the database.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.repo.ListOpenIDs(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("list open exams: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No open exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming open exams...")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prewarmConcurrency)
	warmed := make([]bool, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			if err := s.Warm(gctx, id); err != nil {
				s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
				return nil
			}
			warmed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range warmed {
		if ok {
			n++
		}
	}
	s.log.Info().
		Int("warmed", n).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}
