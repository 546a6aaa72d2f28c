package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/stemsi/exam-proctor/docs"
	"github.com/stemsi/exam-proctor/internal/clock"
	"github.com/stemsi/exam-proctor/internal/config"
	"github.com/stemsi/exam-proctor/internal/database"
	"github.com/stemsi/exam-proctor/internal/handler"
	"github.com/stemsi/exam-proctor/internal/logger"
	"github.com/stemsi/exam-proctor/internal/queue"
	"github.com/stemsi/exam-proctor/internal/repository"
	"github.com/stemsi/exam-proctor/internal/router"
	"github.com/stemsi/exam-proctor/internal/service"
	"github.com/stemsi/exam-proctor/internal/validator"
	"github.com/stemsi/exam-proctor/internal/worker"
)

// @title Exam Proctor API
// @version 1.0
// @description Live exam sessions with server-side timers, proctoring violations, auto-submit and grading.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey SessionToken
// @in header
// @name Authorization
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("liveness_window", cfg.LivenessWindow()).
		Msg("Starting Exam Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real{}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	statRepo := repository.NewQuestionStatRepository(pool)

	// ─── Initialize Queues ─────────────────────────────────────────────
	answerQueue := queue.NewRedisQueue(rdb, config.WorkerKey.PersistSubmissionAnswersQueue)
	analyticsQueue := queue.NewRedisQueue(rdb, config.WorkerKey.QuestionAnalyticsQueue)

	// ─── Initialize Services ──────────────────────────────────────────
	examService := service.NewExamService(examRepo, service.NewRedisExamCache(rdb), cfg.ExamCacheTTL, clk, log)
	gradingService := service.NewGradingService(examService, submissionRepo, answerQueue, analyticsQueue, clk, log)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.SessionTokenTTL, clk)

	events := service.NewRedisEventBus(rdb, func(err error, ev service.SessionEvent) {
		log.Warn().Err(err).
			Str("session_id", ev.SessionID.String()).
			Str("event", ev.Type).
			Msg("Failed to publish session event")
	})
	sessionService := service.NewExamSessionService(
		sessionRepo,
		examService,
		gradingService,
		authService,
		events,
		database.NewLock(rdb),
		clk,
		service.SessionOptions{Liveness: cfg.LivenessWindow()},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:    handler.NewSessionHandler(sessionService, log),
		Submission: handler.NewSubmissionHandler(gradingService, log),
		WS:         handler.NewWSHandler(sessionService, events, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": pool,
			"redis":    handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	answerWorker := worker.NewSubmissionAnswerWorker(answerQueue, submissionRepo, log)
	analyticsWorker := worker.NewAnalyticsWorker(analyticsQueue, statRepo, clk, log)
	sweepWorker := worker.NewSweepWorker(sessionService, cfg.SweepInterval, log)

	for _, start := range []func(context.Context){answerWorker.Start, analyticsWorker.Start, sweepWorker.Start} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every open exam into Redis before accepting traffic.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, clk, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
