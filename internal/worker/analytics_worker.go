package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/repository"
)

// StatStore is the write side of QuestionStatRepository.
type StatStore interface {
	BulkIncrement(ctx context.Context, deltas []repository.StatDelta, now time.Time) error
	Increment(ctx context.Context, d repository.StatDelta, now time.Time) error
}

// AnalyticsWorker folds question analytics events into question_stats.
type AnalyticsWorker struct {
	src   Source
	store StatStore
	clock clock.Clock
	log   zerolog.Logger
	loop  *batchLoop[model.QuestionAnalyticsEvent]
	sleep func(ctx context.Context, d time.Duration)
}

func NewAnalyticsWorker(src Source, store StatStore, clk clock.Clock, log zerolog.Logger) *AnalyticsWorker {
	w := &AnalyticsWorker{
		src:   src,
		store: store,
		clock: clk,
		log:   log.With().Str("component", "analytics_worker").Logger(),
		sleep: pause,
	}
	w.loop = newBatchLoop(src, w.flushSafe, w.log)
	return w
}

func (w *AnalyticsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnalyticsWorker started")
	w.loop.run(ctx)
}

// aggregate merges events per question, keeping first-seen order.
func aggregate(batch []model.QuestionAnalyticsEvent) ([]repository.StatDelta, map[uuid.UUID][]model.QuestionAnalyticsEvent) {
	index := make(map[uuid.UUID]int, len(batch))
	events := make(map[uuid.UUID][]model.QuestionAnalyticsEvent, len(batch))
	deltas := make([]repository.StatDelta, 0, len(batch))

	for _, ev := range batch {
		i, ok := index[ev.QuestionID]
		if !ok {
			i = len(deltas)
			index[ev.QuestionID] = i
			deltas = append(deltas, repository.StatDelta{ExamID: ev.ExamID, QuestionID: ev.QuestionID})
		}
		d := &deltas[i]
		if ev.Answered {
			d.Attempts++
		}
		if ev.IsCorrect {
			d.Correct++
		}
		d.PointsAwarded += ev.PointsAwarded
		events[ev.QuestionID] = append(events[ev.QuestionID], ev)
	}
	return deltas, events
}

func (w *AnalyticsWorker) flushSafe(ctx context.Context, batch []model.QuestionAnalyticsEvent) {
	deltas, events := aggregate(batch)
	if len(deltas) == 0 {
		return
	}

	now := w.clock.Now()
	err := w.store.BulkIncrement(ctx, deltas, now)
	if err == nil {
		w.log.Debug().Int("events", len(batch)).Int("questions", len(deltas)).Msg("Question stats updated")
		return
	}
	w.log.Warn().Err(err).Msg("Bulk stats update failed, using fallback")

	// The bulk statement is atomic, so nothing from it was applied.
	var failed []model.QuestionAnalyticsEvent
	for _, d := range deltas {
		if err := w.store.Increment(ctx, d, now); err != nil {
			w.log.Error().Err(err).Str("question_id", d.QuestionID.String()).Msg("Increment failed, requeueing")
			failed = append(failed, events[d.QuestionID]...)
		}
	}
	requeue(ctx, w.src, failed, w.log, w.sleep)
}
