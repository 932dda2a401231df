// feedwatch runs the engine and prints every state change to the console.
// Usage: go run ./cmd/feedwatch --config configs/inplay.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/inplay-odds/internal/api"
	"github.com/rickgao/inplay-odds/internal/config"
	"github.com/rickgao/inplay-odds/internal/engine"
	"github.com/rickgao/inplay-odds/internal/market"
	"github.com/rickgao/inplay-odds/internal/model"
	"github.com/rickgao/inplay-odds/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "configs/inplay.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full market JSON on every update")
	only := flag.String("market", "", "only print updates for this market id")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engCfg := engine.DefaultConfig()
	engCfg.Snapshot = snapshot.Config{
		ApplicationType: cfg.Snapshot.ApplicationType,
		RetryBaseDelay:  cfg.Snapshot.RetryBaseDelay,
		RetryMaxDelay:   cfg.Snapshot.RetryMaxDelay,
		Timeout:         cfg.Snapshot.Timeout,
	}
	engCfg.Connection.ReconnectBaseDelay = cfg.Stream.ReconnectBaseDelay
	engCfg.Connection.ReconnectMaxDelay = cfg.Stream.ReconnectMaxDelay
	engCfg.Connection.ReconnectJitter = cfg.Stream.ReconnectJitter
	engCfg.Markets = market.Config{ChangeWindow: cfg.Markets.ChangeWindow}
	engCfg.NotifyBuffer = 10000
	engCfg.StreamURL = cfg.Stream.URL

	client := api.NewClient(cfg.Snapshot.URL, api.WithLogger(logger))
	eng := engine.New(engCfg, client, engine.WithLogger(logger))

	events, release := eng.Subscribe()
	defer release()

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	namer := model.DefaultRunnerNames()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rs, ms, cs := eng.Stats()
				logger.Info("stats",
					"state", cs.State,
					"subscriptions", cs.Subscriptions,
					"reconnects", cs.Disconnects,
					"frames", rs.FramesReceived,
					"parse_errors", rs.ParseErrors,
					"markets", ms.Markets,
					"merges", ms.Applied,
					"rejected", ms.Rejected,
					"moves", ms.Moves,
				)
			}
		}
	}()

	logger.Info("watching feed - press Ctrl+C to stop")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			printEvent(eng, ev, namer, *only, *verbose)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	eng.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}

func printEvent(eng *engine.Engine, ev engine.Event, namer model.RunnerNamer, only string, verbose bool) {
	if only != "" && ev.MarketID != "" && string(ev.MarketID) != only {
		return
	}

	switch ev.Kind {
	case engine.EventMarketUpdated:
		m, ok := eng.Market(ev.MarketID)
		if !ok {
			return
		}
		if verbose {
			data, _ := json.MarshalIndent(m, "", "  ")
			fmt.Printf("[MARKET] %s\n", data)
		}
		changes := eng.ChangesFor(ev.MarketID)
		lines := formatChanges(m, changes, namer)
		if len(lines) == 0 && !verbose {
			return
		}
		fmt.Printf("[UPDATE] market=%s event=%q %s\n", m.ID, m.MainEventName, statusTag(m))
		for _, l := range lines {
			fmt.Printf("    %s\n", l)
		}

	case engine.EventMarketRemoved:
		fmt.Printf("[REMOVED] market=%s\n", ev.MarketID)

	case engine.EventSnapshotLoaded:
		fmt.Printf("[SNAPSHOT] matches=%d\n", len(eng.ListMatches()))

	case engine.EventSnapshotFailed:
		fmt.Printf("[SNAPSHOT FAILED] %v\n", ev.Err)

	case engine.EventConnectionState:
		if ev.Err != nil {
			fmt.Printf("[STREAM] %s: %v\n", ev.State, ev.Err)
		} else {
			fmt.Printf("[STREAM] %s\n", ev.State)
		}
	}
}
