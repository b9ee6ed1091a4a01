// Command dishscout serves dish category recommendations over HTTP and runs
// the asynchronous job worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dishscout/dishscout/config"
	"github.com/dishscout/dishscout/engine"
	"github.com/dishscout/dishscout/metrics"
	"github.com/dishscout/dishscout/observability"
	"github.com/dishscout/dishscout/recommend"
	"github.com/dishscout/dishscout/server"
	"github.com/dishscout/dishscout/worker"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file (defaults only when empty)")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *isDebug {
		cfg.Logging.Level = "debug"
	}

	logger := newLogger(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dishscout stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("dishscout stopped gracefully")
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	reg, err := metrics.New()
	if err != nil {
		return err
	}
	hooks := reg.LLM.Instrument(observability.NewSlogHooks(logger))

	client, err := newLLMClient(cfg.LLM, hooks)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close(logger)

	opts := []recommend.Option{
		recommend.WithHooks(hooks),
		recommend.WithMetrics(reg.Recommend),
		recommend.WithAPIRetry(cfg.Retry.API.Options()...),
		recommend.WithLogicalRetry(cfg.Retry.Logical.Options()...),
		recommend.WithModel(cfg.LLM.Model),
		recommend.WithMaxTokens(cfg.LLM.MaxTokens),
		recommend.WithTemperature(cfg.LLM.Temperature),
	}
	if b.cache != nil {
		opts = append(opts, recommend.WithCache(b.cache, cfg.Cache.TTL))
	}
	svc := recommend.NewService(client, opts...)

	eng, err := engine.New(engine.Config{
		StateStore: b.store,
		Queue:      b.queue,
		QueueName:  cfg.Queue.Name,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var w *worker.Worker
	if cfg.Worker.WorkerEnabled() {
		w, err = worker.New(worker.Config{
			Queue:         b.queue,
			QueueName:     cfg.Queue.Name,
			Recommender:   svc,
			StateStore:    b.store,
			Metrics:       reg.Jobs,
			Logger:        logger,
			PollInterval:  cfg.Worker.PollInterval,
			JobTimeout:    cfg.Worker.JobTimeout,
			MaxAttempts:   cfg.Worker.MaxAttempts,
			MaxConcurrent: cfg.Worker.Concurrency,
		})
		if err != nil {
			return err
		}
		// Shutdown goes through Stop so running jobs drain instead of failing.
		if err := w.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	srv, err := server.New(server.Config{
		Addr:                cfg.Server.Addr,
		Engine:              eng,
		Recommender:         svc,
		Metrics:             reg.Handler(),
		Logger:              logger,
		ReadTimeout:         cfg.Server.ReadTimeout,
		WriteTimeout:        cfg.Server.WriteTimeout,
		RequestTimeout:      cfg.Server.RequestTimeout,
		MaxRequestBodyBytes: cfg.Server.MaxRequestBodyBytes,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received signal, shutting down...")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop server: %w", err))
	}
	if w != nil {
		if err := w.Stop(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("stop worker: %w", err))
		}
	}
	return runErr
}
