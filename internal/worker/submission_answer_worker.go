package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/model"
)

// AnswerStore is the write side of SubmissionRepository the worker needs.
type AnswerStore interface {
	InsertAnswers(ctx context.Context, answers []model.SubmissionAnswer) error
	InsertAnswer(ctx context.Context, a model.SubmissionAnswer) error
}

// SubmissionAnswerWorker retries SubmissionAnswer rows whose first write
// failed after the Submission itself was stored.
type SubmissionAnswerWorker struct {
	src   Source
	store AnswerStore
	log   zerolog.Logger
	loop  *batchLoop[model.SubmissionAnswer]
	sleep func(ctx context.Context, d time.Duration)
}

func NewSubmissionAnswerWorker(src Source, store AnswerStore, log zerolog.Logger) *SubmissionAnswerWorker {
	w := &SubmissionAnswerWorker{
		src:   src,
		store: store,
		log:   log.With().Str("component", "submission_answer_worker").Logger(),
		sleep: pause,
	}
	w.loop = newBatchLoop(src, w.flushSafe, w.log)
	return w
}

func (w *SubmissionAnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionAnswerWorker started")
	w.loop.run(ctx)
}

// flushSafe attempts a bulk copy, then row-by-row inserts, then requeue.
func (w *SubmissionAnswerWorker) flushSafe(ctx context.Context, batch []model.SubmissionAnswer) {
	if len(batch) == 0 {
		return
	}
	err := w.store.InsertAnswers(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Submission answers persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	// InsertAnswer ignores duplicates, so rows that made it in earlier are harmless.
	var failed []model.SubmissionAnswer
	for _, a := range batch {
		if err := w.store.InsertAnswer(ctx, a); err != nil {
			w.log.Error().Err(err).
				Str("submission_id", a.SubmissionID.String()).
				Str("question_id", a.QuestionID.String()).
				Msg("Insert failed, requeueing")
			failed = append(failed, a)
		}
	}
	requeue(ctx, w.src, failed, w.log, w.sleep)
}
