package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/sms-credits/internal/app"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/internal/handlers"
	"github.com/nimasrn/sms-credits/internal/processor"
	"github.com/nimasrn/sms-credits/internal/queue"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	err := config.Load(app.EnvPathFromArgs(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	// the gateway call inside a payment can take the full provider timeout
	s.Use(xhttp.TimeoutMiddleware(cfg.MpesaTimeout + 5*time.Second))
	s.Use(xhttp.CompressMiddleware(6))

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

	sms, smsPool, err := app.NewSMSClient(cfg)
	if err != nil {
		logger.Error("failed to create sms gateway", "error", err)
		return
	}
	defer smsPool.Close()

	svc, err := app.NewServices(cfg, db, redisAdap, mpesa, sms)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		return
	}

	inboxQueue, err := queue.NewQueue(redisAdap, app.InboxQueueConfig(cfg))
	if err != nil {
		logger.Error("failed creating callback inbox", "error", err)
		return
	}

	// v1 handlers
	auth := xhttp.AuthMiddleware(cfg.JWTSecret)
	g := s.Router.Group(cfg.HttpBaseRequestUrl)
	handlers.RegisterPaymentRoutes(g, auth, handlers.NewPaymentHandler(svc.Payments, processor.NewInbox(inboxQueue), cfg.MpesaCallbackToken))
	handlers.RegisterMessageRoutes(g, auth, handlers.NewMessageHandler(svc.Dispatch))
	handlers.RegisterCreditRoutes(g, auth, handlers.NewCreditHandler(svc.Credits))
	handlers.RegisterPlanRoutes(g, handlers.NewPlanHandler(svc.Plans))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(svc.Health))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	s.Shutdown()
}
