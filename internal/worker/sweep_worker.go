package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper applies server-side session triggers. ExamSessionService satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepWorker runs the session sweep on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	log      zerolog.Logger
}

func NewSweepWorker(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *SweepWorker {
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Session sweep failed")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("transitions", n).Msg("Session sweep applied")
	}
}
