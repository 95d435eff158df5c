package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/fluxd/internal/api"
	"github.com/mattjoyce/fluxd/internal/auth"
	"github.com/mattjoyce/fluxd/internal/config"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/scheduler"
	"github.com/mattjoyce/fluxd/internal/webhook"
)

func runServe(args []string) int {
	if hasHelpFlag(args) {
		fmt.Println("Usage: fluxd serve [--config <path>]")
		return 0
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("fluxd starting", "version", version, "config", cfg.SourcePath)

	if cfg.SourcePath != "" {
		if err := config.VerifyConfigHash(cfg.SourcePath); err != nil {
			logger.Warn("config integrity not verified", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer a.Close()

	if err := a.recordStart(ctx, "serve"); err != nil {
		logger.Warn("failed to record start", "error", err)
	}
	total, done := a.todos.Counts()
	logger.Info("stores ready", "listeners", a.dispatcher.Len(), "todos", total, "completed", done)

	if a.journal != nil && cfg.Journal.Retention > 0 {
		sched, err := scheduler.New(cfg.Journal, a.journal, a.hub, log.Get())
		if err != nil {
			logger.Error("invalid journal schedule", "error", err)
			return 1
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			return 1
		}
		defer sched.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		var journalReader api.JournalReader
		if a.journal != nil {
			journalReader = a.journal
		}
		apiServer := api.New(apiConfig(cfg), a.dispatcher, a.todos, journalReader, a.hub, log.WithComponent("api"))
		if len(cfg.API.Webhooks) > 0 {
			endpoints, err := webhook.FromConfig(cfg.API.Webhooks)
			if err != nil {
				logger.Error("invalid webhook config", "error", err)
				return 1
			}
			hooks := webhook.New(endpoints, apiServer, api.DispatchStatus, log.Get())
			apiServer.Mount("/webhooks", hooks.Routes())
			logger.Info("webhooks enabled", "count", hooks.Len())
		}
		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	} else {
		logger.Warn("API disabled; serve only holds the writer lock")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	logger.Info("fluxd running (press Ctrl+C to stop)")

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("fluxd stopped")
	return 0
}

func apiConfig(cfg *config.Config) api.Config {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	return api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
		Tokens: tokens,
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
