package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/inplay-odds/internal/api"
	"github.com/rickgao/inplay-odds/internal/config"
	"github.com/rickgao/inplay-odds/internal/connection"
	"github.com/rickgao/inplay-odds/internal/database"
	"github.com/rickgao/inplay-odds/internal/engine"
	"github.com/rickgao/inplay-odds/internal/logging"
	"github.com/rickgao/inplay-odds/internal/market"
	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/snapshot"
	"github.com/rickgao/inplay-odds/internal/version"
	"github.com/rickgao/inplay-odds/internal/writer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "inplay:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/inplay.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting inplay",
		version.LogAttr(),
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
		"snapshot_url", cfg.Snapshot.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(m),
	}

	// Optional odds history
	if cfg.History.Enabled {
		ts := cfg.Database.Timescale
		logger.Info("connecting to database",
			"host", ts.Host,
			"port", ts.Port,
			"database", ts.Name,
		)

		pool, err := database.Connect(ctx, ts)
		if err != nil {
			return fmt.Errorf("connect timescale: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("database connected")

		history := writer.NewOddsWriter(writer.Config{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
			BufferSize:    cfg.History.BufferSize,
		}, pool, m, logger.With("component", "history"))

		if err := history.Start(ctx); err != nil {
			return fmt.Errorf("start history writer: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			history.Stop(stopCtx)
		}()

		opts = append(opts, engine.WithHistory(history))
	}

	client := api.NewClient(cfg.Snapshot.URL,
		api.WithTimeout(cfg.Snapshot.Timeout),
		api.WithLogger(logger),
		api.WithUserAgent("inplay-odds/"+version.Version),
	)

	eng := engine.New(engineConfig(cfg), client, opts...)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Stop(stopCtx); err != nil {
			logger.Warn("engine stop", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHandler(eng, m, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("inplay running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()
	logger.Info("inplay stopped")
	return err
}

// engineConfig maps file configuration onto the engine's components.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Snapshot: snapshot.Config{
			ApplicationType: cfg.Snapshot.ApplicationType,
			RetryBaseDelay:  cfg.Snapshot.RetryBaseDelay,
			RetryMaxDelay:   cfg.Snapshot.RetryMaxDelay,
			Timeout:         cfg.Snapshot.Timeout,
		},
		Connection: connection.Config{
			ReconnectBaseDelay: cfg.Stream.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Stream.ReconnectMaxDelay,
			ReconnectJitter:    cfg.Stream.ReconnectJitter,
			Client: connection.ClientConfig{
				DialTimeout:  cfg.Stream.DialTimeout,
				PingInterval: cfg.Stream.PingInterval,
				PingTimeout:  cfg.Stream.PingTimeout,
				WriteTimeout: connection.DefaultClientConfig().WriteTimeout,
				BufferSize:   cfg.Stream.BufferSize,
			},
		},
		Markets: market.Config{
			ChangeWindow: cfg.Markets.ChangeWindow,
		},
		NotifyBuffer: cfg.Markets.NotifyBuffer,
		StreamURL:    cfg.Stream.URL,
	}
}
