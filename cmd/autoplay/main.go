// Command autoplay plays a Z-Machine interactive fiction game
// autonomously, building a map and puzzle model as it goes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tatianab/autoplay/internal/config"
	"github.com/tatianab/autoplay/internal/engine"
	"github.com/tatianab/autoplay/internal/game"
	"github.com/tatianab/autoplay/internal/orchestrator"
	"github.com/tatianab/autoplay/internal/store"
	"github.com/tatianab/autoplay/internal/tui"
	"github.com/tatianab/autoplay/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	gameFile := flag.String("game", "", "path to the Z-Machine game file (required)")
	maxTurns := flag.Int("max-turns", 500, "stop after this many turns")
	dbPath := flag.String("db", "", "database path (overrides AUTOPLAY_DB)")
	webAddr := flag.String("web", "", "serve a websocket monitor on this address, e.g. :8080")
	useTUI := flag.Bool("tui", false, "show a live terminal monitor")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *gameFile == "" {
		flag.Usage()
		return fmt.Errorf("-game is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.NewEngine(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer eng.Close()

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	proc, err := game.Start(*gameFile, logger)
	if err != nil {
		return err
	}
	defer proc.Terminate()

	var hooks []orchestrator.Hook
	if *webAddr != "" {
		monitor := web.NewMonitor(*webAddr, logger)
		hooks = append(hooks, monitor)
		go func() {
			if err := monitor.Serve(); err != nil {
				logger.Error("web monitor stopped", "err", err)
			}
		}()
	}
	var term *tui.Monitor
	if *useTUI {
		term = tui.NewMonitor()
		hooks = append(hooks, term)
	}

	orch := orchestrator.New(eng, proc, db, hooks, orchestrator.Options{
		GameFile: *gameFile,
		MaxTurns: *maxTurns,
	}, logger)

	if term != nil {
		errc := make(chan error, 1)
		go func() {
			_, err := orch.Run(ctx)
			errc <- err
		}()
		if err := term.Run(); err != nil {
			return err
		}
		stop()
		return <-errc
	}

	status, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Session finished: %s\n", status)
	return nil
}
