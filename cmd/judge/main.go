package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/codemonster/judge/internal/config"
	"github.com/codemonster/judge/internal/judge"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/notify"
	"github.com/codemonster/judge/internal/queue"
	"github.com/codemonster/judge/internal/sandbox"
	"github.com/codemonster/judge/internal/server"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cfg := config.Read()

	cmd := &cli.Command{
		Name:  "judge",
		Usage: "sandboxed code judging service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: cfg.HTTPAddress, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "redis", Value: cfg.RedisAddr, Usage: "Redis address for the job queue"},
			&cli.StringFlag{Name: "workspace-root", Value: cfg.WorkspaceRoot, Usage: "directory for sandbox workspaces"},
			&cli.StringFlag{Name: "languages", Value: cfg.LanguagesFile, Usage: "optional TOML language table override"},
			&cli.StringFlag{Name: "webhook-url", Value: cfg.WebhookURL, Usage: "result delivery webhook target"},
			&cli.IntFlag{Name: "workers", Value: cfg.WorkerConcurrency, Usage: "concurrent judging jobs"},
			&cli.IntFlag{Name: "case-concurrency", Value: cfg.CaseConcurrency, Usage: "concurrent test cases per job"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.HTTPAddress = c.String("address")
			cfg.RedisAddr = c.String("redis")
			cfg.WorkspaceRoot = c.String("workspace-root")
			cfg.LanguagesFile = c.String("languages")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WorkerConcurrency = int(c.Int("workers"))
			cfg.CaseConcurrency = int(c.Int("case-concurrency"))
			if cfg.Notifier == "" && cfg.WebhookURL != "" {
				cfg.Notifier = "webhook"
			}
			return run(ctx, cfg, logger)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("judge service failed", "error", err)
		os.Exit(1)
	}
}

// run wires every component explicitly and tears them down in reverse
// dependency order: HTTP intake first, then the worker pool, then the
// sandbox, then Redis.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := langs.NewRegistry()
	if cfg.LanguagesFile != "" {
		if err := registry.LoadFile(cfg.LanguagesFile); err != nil {
			return fmt.Errorf("load language table: %w", err)
		}
	}

	dockerCli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connect to sandbox runtime: %w", err)
	}

	store, err := sandbox.NewWorkspaceStore(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}

	executor := sandbox.NewExecutor(dockerCli, registry, store, logger)
	if !executor.HealthCheck(ctx) {
		logger.Warn("sandbox runtime unreachable at startup; judging will fail until it comes back")
	}

	orchestrator := judge.NewOrchestrator(executor, registry, cfg.CaseConcurrency, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q, err := queue.New(rdb, logger)
	if err != nil {
		return err
	}
	q.SetRetention(int64(cfg.CompletedJobs), int64(cfg.FailedJobs))

	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	worker := queue.NewWorker(q, orchestrator, notifier, queue.WorkerOptions{
		Concurrency:  cfg.WorkerConcurrency,
		MaxAttempts:  cfg.RetryAttempts,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)

	srv := server.New(orchestrator, q, executor, registry, logger)
	srv.SetMaxSyncCases(cfg.MaxSyncCases)

	worker.Start(ctx)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Start(cfg.HTTPAddress)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker shutdown incomplete", "error", err)
	}
	if err := executor.Close(shutdownCtx); err != nil {
		logger.Warn("sandbox shutdown incomplete", "error", err)
	}
	if n, ok := notifier.(*notify.NATS); ok {
		n.Close()
	}
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}

	logger.Info("judge service stopped")
	return nil
}

func buildNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	switch cfg.Notifier {
	case "webhook":
		logger.Info("delivering results via webhook", "url", cfg.WebhookURL)
		return notify.NewWebhook(cfg.WebhookURL), nil
	case "sqs":
		logger.Info("delivering results via sqs", "queue", cfg.SQSQueueURL)
		return notify.NewSQS(ctx, cfg.SQSQueueURL, cfg.SQSRegion)
	case "nats":
		logger.Info("delivering results via nats", "subject", cfg.NATSSubject)
		return notify.NewNATS(cfg.NATSUrl, cfg.NATSSubject)
	case "":
		logger.Warn("no result delivery configured; verdicts are only available via status polling")
		return notify.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}
