package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-handscore/internal/config"
	"github.com/teslashibe/go-handscore/internal/csvlog"
	"github.com/teslashibe/go-handscore/internal/glove"
	"github.com/teslashibe/go-handscore/internal/health"
	"github.com/teslashibe/go-handscore/internal/mqttpub"
	"github.com/teslashibe/go-handscore/internal/protocol"
	"github.com/teslashibe/go-handscore/internal/reference"
	"github.com/teslashibe/go-handscore/internal/remote"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/server"
	"github.com/teslashibe/go-handscore/internal/session"
	"github.com/teslashibe/go-handscore/internal/sink"
	"github.com/teslashibe/go-handscore/internal/store"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		useMock   bool
		autoStart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live scoring daemon with its HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(flags)
			if useMock {
				cfg.Source.Kind = config.SourceMock
			}
			return serve(cmd.Context(), cfg, flags.configPath, autoStart)
		},
	}
	cmd.Flags().BoolVar(&useMock, "mock", false, "use the mock glove source (for testing)")
	cmd.Flags().BoolVar(&autoStart, "start", false, "start a session immediately")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, configPath string, autoStart bool) error {
	logger := setupLogger(cfg.Logging)

	logger.Info("starting handscore",
		"version", version,
		"config", configPath,
		"port", cfg.Server.Port,
		"source", cfg.Source.Kind,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	scoringCfg, err := cfg.ScoringParams()
	if err != nil {
		return err
	}
	scorer, err := scoring.New(scoringCfg)
	if err != nil {
		logger.Error("invalid scorer configuration", "error", err)
		return err
	}

	ref, err := loadReference(cfg, logger)
	if err != nil {
		logger.Error("reference unavailable", "error", err, "path", cfg.Reference.Path)
		return err
	}

	ctrl, err := session.New(cfg.SessionParams(), ref, scorer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	checker := health.NewChecker(version)

	source, remoteClient, err := openSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("angle source unavailable", "error", err)
		return err
	}
	defer source.Close()

	logger.Info("angle source ready",
		"type", source.Name(),
		"healthy", source.Healthy(),
	)
	checker.Register("source", true, func() (bool, string) {
		if source.Healthy() {
			return true, source.Name()
		}
		return false, source.Name() + " not delivering frames"
	})

	runner := session.NewRunner(source, ctrl, cfg.RunnerParams(), logger)

	fanout, db, err := openSinks(cfg, logger)
	if err != nil {
		logger.Error("score sink unavailable", "error", err)
		return err
	}
	for _, name := range fanout.Names() {
		checker.Register("sink."+name, false, func() (bool, string) {
			st, _ := fanout.Status(name)
			return st.Healthy, st.LastError
		})
	}
	// the fan-out outlives ctx so it drains what the runner emitted before
	// shutdown; it returns once runner.Shutdown closes its channel
	go fanout.Run(context.WithoutCancel(ctx), runner.Subscribe())

	if remoteClient != nil {
		remoteClient.OnControl(func(cmd protocol.ControlCommand) {
			server.ApplyControl(runner, cmd.Action)
		})
		go remoteClient.Forward(ctx, runner.Subscribe())
	}

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("runner error", "error", err)
		}
	}()

	opts := []server.Option{server.WithSinks(fanout)}
	if db != nil {
		opts = append(opts, server.WithStore(db))
	}
	srv := server.New(cfg, runner, checker, logger, version, opts...)

	go srv.WSHub().Run(ctx)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	if autoStart {
		runner.Start()
	}

	printStartupBanner(cfg, version, ref.Len())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	// Stop in order: server -> runner -> sinks -> source
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	logger.Info("stopping runner...")
	runner.Shutdown()

	logger.Info("flushing score sinks...")
	if err := fanout.Wait(shutdownCtx); err != nil {
		logger.Warn("score sinks did not drain", "error", err)
	}
	if err := fanout.Close(); err != nil {
		logger.Warn("score sink close error", "error", err)
	}

	logger.Info("handscore stopped")
	return nil
}

// loadReference loads the configured reference, or synthesises one that
// matches the mock glove wave when running without a file
func loadReference(cfg *config.Config, logger *slog.Logger) (*reference.Sequence, error) {
	if cfg.Reference.Path == "" {
		if cfg.Source.Kind != config.SourceMock {
			return nil, fmt.Errorf("reference.path is required: %w", reference.ErrEmptyReference)
		}
		n := cfg.Reference.FrameCount
		if n <= 0 {
			n = 10 * cfg.Source.PollHz
		}
		logger.Warn("no reference file, using the synthetic mock wave", "frames", n)
		return reference.NewSequence(glove.WaveFrames(n, float64(cfg.Source.PollHz)))
	}

	ref, err := reference.LoadAligned(cfg.Reference.Path, cfg.Reference.FrameCount)
	if err != nil {
		return nil, err
	}
	logger.Info("reference loaded", "path", cfg.Reference.Path, "frames", ref.Len())
	return ref, nil
}

// openSource builds the configured angle source. The remote client is also
// returned so control and score forwarding can be wired to it.
func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Source, *remote.Client, error) {
	switch cfg.Source.Kind {
	case config.SourceMock:
		logger.Info("using mock glove source")
		return glove.NewMockSourceWithWave(), nil, nil

	case config.SourceRemote:
		client := remote.NewClient(cfg.RemoteParams(), logger)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return client, client, nil

	default:
		logger.Info("initializing serial glove", "port", cfg.Source.Serial.Port)
		return glove.NewSourceWithFallback(cfg.SerialParams(), logger), nil, nil
	}
}

// openSinks opens every configured output
func openSinks(cfg *config.Config, logger *slog.Logger) (*sink.Fanout, *store.DB, error) {
	var (
		sinks []sink.Sink
		db    *store.DB
	)

	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.Output.CSVPath != "" {
		w, err := csvlog.Create(cfg.Output.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("csv score log enabled", "path", cfg.Output.CSVPath)
		sinks = append(sinks, w)
	}

	if cfg.Output.DBPath != "" {
		var err error
		db, err = store.Open(cfg.Output.DBPath, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		logger.Info("session recording enabled", "path", cfg.Output.DBPath)
		sinks = append(sinks, db)
	}

	if cfg.Output.MQTT.Broker != "" {
		mc := mqttpub.DefaultConfig()
		mc.Broker = cfg.Output.MQTT.Broker
		mc.Topic = cfg.Output.MQTT.Topic
		mc.ClientID = cfg.Output.MQTT.ClientID
		mc.Username = cfg.Output.MQTT.Username
		mc.Password = cfg.Output.MQTT.Password

		pub, err := mqttpub.Connect(mc, logger)
		if err != nil {
			// the broker is optional, scoring carries on without it
			logger.Warn("mqtt publisher disabled", "broker", mc.Broker, "error", err)
		} else {
			sinks = append(sinks, pub)
		}
	}

	return sink.NewFanout(logger, sinks...), db, nil
}

func printStartupBanner(cfg *config.Config, version string, refLen int) {
	fmt.Println()
	fmt.Println("✋ handscore v" + version)
	fmt.Printf("   Reference: %d frames, source: %s\n", refLen, cfg.Source.Kind)
	fmt.Println()
	fmt.Printf("🚀 Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health                 - Health check")
	fmt.Println("   GET  /api/session            - Session state")
	fmt.Println("   POST /api/session/start      - Start calibration + scoring")
	fmt.Println("   POST /api/session/stop       - Stop the session")
	fmt.Println("   POST /api/session/reset      - Reset the session")
	fmt.Println("   GET  /api/score              - Latest score")
	fmt.Println("   WS   /api/score/stream       - Real-time score stream")
	fmt.Println("   GET  /api/session/chart      - Accuracy chart")
	fmt.Println("   GET  /metrics                - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
