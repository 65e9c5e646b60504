package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/sms-credits/internal/app"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/internal/processor"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// The processor replays deferred payment callbacks from the inbox stream
// and sweeps payments whose callback never came.
func main() {
	logger.Info("starting processor", "version", version, "commit", commit, "date", date)

	err := config.Load(app.EnvPathFromArgs(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	db, err := app.OpenDB(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := app.OpenRedis(cfg, "default")
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if err := app.StartMetrics(cfg); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	mpesa, mpesaPool, err := app.NewMpesaClient(cfg, redisAdap)
	if err != nil {
		logger.Error("failed to create mpesa gateway", "error", err)
		return
	}
	defer mpesaPool.Close()

	svc, err := app.NewServices(cfg, db, redisAdap, mpesa, nil)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		return
	}

	idempotencyConfig := processor.DefaultIdempotencyConfig()
	idempotencyConfig.MaxRetries = cfg.InboxMaxRetries
	idempotencyService := processor.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := processor.NewProcessorService(redisAdap, processor.ServiceConfig{
		Queue:     app.InboxQueueConfig(cfg),
		Consumers: cfg.InboxConsumers,
		Workers:   cfg.InboxConsumers * 4,
	})
	if err != nil {
		logger.Error("failed to create the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewCallbackProcessor(svc.Payments, idempotencyService))

	sweeper := processor.NewSweeper(svc.Payments, cfg.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("processor stopped with error", "error", err)
	}
}
