// Package server provides the HTTP and WebSocket surface for handscore
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-handscore/internal/config"
	"github.com/teslashibe/go-handscore/internal/health"
	"github.com/teslashibe/go-handscore/internal/report"
	"github.com/teslashibe/go-handscore/internal/session"
	"github.com/teslashibe/go-handscore/internal/sink"
	"github.com/teslashibe/go-handscore/internal/store"
)

// Server is the HTTP server for handscore
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	runner    *session.Runner
	checker   *health.Checker
	sinks     *sink.Fanout
	store     *store.DB
	logger    *slog.Logger
	wsHub     *WSHub
	startTime time.Time
	version   string
}

// Option configures optional server dependencies
type Option func(*Server)

// WithSinks exposes sink delivery status on /api/stats and /metrics
func WithSinks(f *sink.Fanout) Option {
	return func(s *Server) { s.sinks = f }
}

// WithStore enables the recorded-session endpoints
func WithStore(db *store.DB) Option {
	return func(s *Server) { s.store = db }
}

// New creates a new HTTP server
func New(cfg *config.Config, runner *session.Runner, checker *health.Checker, logger *slog.Logger, version string, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = health.NewChecker(version)
	}

	app := fiber.New(fiber.Config{
		AppName:               "handscore",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger, "/metrics", "/health", "/api/score"))

	s := &Server{
		app:       app,
		cfg:       cfg,
		runner:    runner,
		checker:   checker,
		logger:    logger,
		wsHub:     NewWSHub(runner, logger),
		startTime: time.Now(),
		version:   version,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")

	api.Get("/session", s.sessionHandler)
	api.Post("/session/start", s.startHandler)
	api.Post("/session/stop", s.stopHandler)
	api.Post("/session/reset", s.resetHandler)
	api.Get("/session/chart", s.chartHandler)

	api.Get("/score", s.scoreHandler)
	api.Get("/score/history", s.historyHandler)
	api.Get("/score/stream", s.wsHub.UpgradeHandler())

	api.Get("/sessions", s.sessionsHandler)
	api.Get("/sessions/:id/scores", s.sessionScoresHandler)

	api.Get("/config", s.configHandler)
	api.Get("/stats", s.statsHandler)
}

func (s *Server) requireRunner(c *fiber.Ctx) bool {
	if s.runner != nil {
		return true
	}
	_ = c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "session runner not available",
	})
	return false
}

// healthHandler returns service health; 503 when a critical component fails
func (s *Server) healthHandler(c *fiber.Ctx) error {
	status := s.checker.GetStatus()
	if status.Status == health.StatusUnhealthy {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(status)
}

// sessionHandler returns the controller snapshot
func (s *Server) sessionHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	return c.JSON(s.runner.Snapshot())
}

func (s *Server) startHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	id := s.runner.Start()
	return c.JSON(fiber.Map{
		"session_id": id,
		"session":    s.runner.Snapshot(),
	})
}

func (s *Server) stopHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	s.runner.Stop()
	return c.JSON(fiber.Map{"session": s.runner.Snapshot()})
}

func (s *Server) resetHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	s.runner.Reset()
	return c.JSON(fiber.Map{"session": s.runner.Snapshot()})
}

// scoreHandler returns the latest score, 204 before the first one
func (s *Server) scoreHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	score, ok := s.runner.Latest()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(score)
}

// historyHandler returns the retained score history, ?limit=n for the tail
func (s *Server) historyHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must not be negative",
		})
	}
	scores := s.runner.History(limit)
	return c.JSON(fiber.Map{
		"count":   len(scores),
		"scores":  scores,
		"summary": report.Summarize(scores),
	})
}

// chartHandler renders the retained history as an interactive chart
func (s *Server) chartHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	snap := s.runner.Snapshot()
	title := "Hand motion accuracy"
	if snap.SessionID != "" {
		title = fmt.Sprintf("Hand motion accuracy (%s)", snap.SessionID[:min(8, len(snap.SessionID))])
	}

	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, s.runner.History(0), title); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// sessionsHandler lists recorded sessions
func (s *Server) sessionsHandler(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session recording disabled"})
	}
	sessions, err := s.store.Sessions(c.QueryInt("limit", 100))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// sessionScoresHandler returns one recorded session's scores
func (s *Server) sessionScoresHandler(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session recording disabled"})
	}
	scores, err := s.store.Scores(c.Params("id"))
	if errors.Is(err, store.ErrUnknownSession) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"session_id": c.Params("id"),
		"scores":     scores,
		"summary":    report.Summarize(scores),
	})
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(s.cfg)
}

// statsHandler returns runner statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	if !s.requireRunner(c) {
		return nil
	}
	out := fiber.Map{
		"runner":            s.runner.Stats(),
		"websocket_clients": s.wsHub.ClientCount(),
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
	}
	if s.sinks != nil {
		out["sinks"] = s.sinks.Statuses()
	}
	return c.JSON(out)
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	if s.runner == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("# no runner available\n")
	}

	stats := s.runner.Stats()
	snap := s.runner.Snapshot()
	latest, _ := s.runner.Latest()

	var b strings.Builder
	fmt.Fprintf(&b, `# HELP handscore_score_combined Latest combined similarity score (0-100)
# TYPE handscore_score_combined gauge
handscore_score_combined %f

# HELP handscore_score_sequence Latest sequence similarity score (0-100)
# TYPE handscore_score_sequence gauge
handscore_score_sequence %f

# HELP handscore_score_instantaneous Latest instantaneous similarity score (0-100)
# TYPE handscore_score_instantaneous gauge
handscore_score_instantaneous %f

# HELP handscore_session_state Session state (0=idle, 1=calibrating, 2=scoring)
# TYPE handscore_session_state gauge
handscore_session_state %d

# HELP handscore_frame_index Shared frame counter
# TYPE handscore_frame_index gauge
handscore_frame_index %d

# HELP handscore_ticks_total Observations applied, present or not
# TYPE handscore_ticks_total counter
handscore_ticks_total %d

# HELP handscore_missing_total Ticks without a usable observation
# TYPE handscore_missing_total counter
handscore_missing_total %d

# HELP handscore_source_errors_total Failed source reads
# TYPE handscore_source_errors_total counter
handscore_source_errors_total %d

# HELP handscore_dropped_total Observations dropped on a full queue
# TYPE handscore_dropped_total counter
handscore_dropped_total %d

# HELP handscore_stale_total Queued observations discarded after a session control
# TYPE handscore_stale_total counter
handscore_stale_total %d

# HELP handscore_scores_total Scores emitted
# TYPE handscore_scores_total counter
handscore_scores_total %d

# HELP handscore_avg_score_ms Average scoring latency in milliseconds
# TYPE handscore_avg_score_ms gauge
handscore_avg_score_ms %f

# HELP handscore_source_healthy Angle source health (1=healthy, 0=unhealthy)
# TYPE handscore_source_healthy gauge
handscore_source_healthy %d

# HELP handscore_uptime_seconds Server uptime in seconds
# TYPE handscore_uptime_seconds gauge
handscore_uptime_seconds %d

# HELP handscore_websocket_clients Current WebSocket client count
# TYPE handscore_websocket_clients gauge
handscore_websocket_clients %d
`,
		latest.Combined,
		latest.Sequence,
		latest.Instantaneous,
		int(snap.State),
		snap.FrameIndex,
		stats.Ticks,
		stats.Missing,
		stats.SourceErrors,
		stats.Dropped,
		stats.Stale,
		stats.Scores,
		stats.AvgScoreMs,
		boolToInt(stats.SourceHealthy),
		int64(time.Since(s.startTime).Seconds()),
		s.wsHub.ClientCount(),
	)

	if s.sinks != nil {
		statuses := s.sinks.Statuses()
		b.WriteString("\n# HELP handscore_sink_written_total Scores delivered per sink\n# TYPE handscore_sink_written_total counter\n")
		for _, name := range s.sinks.Names() {
			fmt.Fprintf(&b, "handscore_sink_written_total{sink=%q} %d\n", name, statuses[name].Written)
		}
		b.WriteString("\n# HELP handscore_sink_errors_total Failed deliveries per sink\n# TYPE handscore_sink_errors_total counter\n")
		for _, name := range s.sinks.Names() {
			fmt.Fprintf(&b, "handscore_sink_errors_total{sink=%q} %d\n", name, statuses[name].Errors)
		}
	}

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(b.String())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Server.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

// WSHub returns the WebSocket hub
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
