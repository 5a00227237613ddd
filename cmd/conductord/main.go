package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/conductor/commands"
	"github.com/martinemde/conductor/httpapi"
	"github.com/martinemde/conductor/jobengine"
	"github.com/martinemde/conductor/modelstream"
	"github.com/martinemde/conductor/toolbox"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("conductord failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg DaemonConfig, logger *slog.Logger) error {
	var backendOpts []modelstream.GollmOption
	if cfg.Model != "" {
		backendOpts = append(backendOpts, modelstream.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		backendOpts = append(backendOpts, modelstream.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		backendOpts = append(backendOpts, modelstream.WithTemperature(cfg.Temperature))
	}
	backend, err := modelstream.NewGollmBackend(cfg.Provider, backendOpts...)
	if err != nil {
		return err
	}

	library, err := commands.Load(cfg.CommandsDir)
	if err != nil {
		return err
	}

	var dispatcherOpts []toolbox.Option
	if cfg.ShellTimeoutMs > 0 && cfg.ShellMaxTimeoutMs > 0 {
		dispatcherOpts = append(dispatcherOpts,
			toolbox.WithCommandTimeouts(cfg.ShellTimeoutMs, cfg.ShellMaxTimeoutMs))
	}
	dispatcher := toolbox.NewDispatcher(dispatcherOpts...)

	engineCfg := jobengine.DefaultConfig()
	if cfg.MaxTurns > 0 {
		engineCfg.MaxTurns = cfg.MaxTurns
	}
	if cfg.WallClock > 0 {
		engineCfg.WallClock = cfg.WallClock
	}
	engineCfg.Model = cfg.Model

	registry := jobengine.NewRegistry(backend, library, dispatcher, &engineCfg)
	defer registry.Close()

	api := httpapi.NewServer(registry, library, logger)
	srv := &http.Server{
		Addr:        cfg.Listen,
		Handler:     api.Router(),
		ReadTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("conductord listening",
			"addr", cfg.Listen,
			"provider", cfg.Provider,
			"commands", len(library.List()),
			"tools", strings.Join(dispatcher.Names(), ","))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
