package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency the health check pings. pgxpool.Pool satisfies it
// directly; Redis is adapted with a closure.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports liveness of the process and its backing stores.
type HealthHandler struct {
	deps      map[string]Pinger
	startTime time.Time
	log       zerolog.Logger
}

func NewHealthHandler(deps map[string]Pinger, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		deps:      deps,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

type HealthReport struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	GoVersion  string            `json:"go_version"`
	Goroutines int               `json:"goroutines"`
	Checks     map[string]string `json:"checks"`
}

// Health godoc
// @Summary Health check
// @Description Pings PostgreSQL and Redis. Returns 503 if any of them is unreachable.
// @Tags System
// @Produce json
// @Success 200 {object} HealthReport
// @Failure 503 {object} HealthReport
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	results := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = h.deps[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Checks:     make(map[string]string, len(names)),
	}
	status := http.StatusOK
	for i, name := range names {
		if err := results[i]; err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Checks[name] = "down"
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Checks[name] = "up"
	}
	c.JSON(status, report)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
