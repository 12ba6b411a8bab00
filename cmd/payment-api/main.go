package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-saga/internal/config"
	"github.com/ariefcatur/go-order-saga/internal/events"
	"github.com/ariefcatur/go-order-saga/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/logx"
	"github.com/ariefcatur/go-order-saga/internal/payments"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/ariefcatur/go-order-saga/internal/retry"
	"github.com/ariefcatur/go-order-saga/internal/rpc"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load[config.PaymentAPI]()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := logx.InitTracer(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN, postgres.SchemaPayments); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Kafka producer
	processed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicPaymentProcessed, 1024, logger)
	processed.Start(ctx)

	repo := &payments.Repo{DB: db}
	orderSvc := rpc.NewOrderStatusClient(cfg.OrderServiceURL, cfg.Upstream.Timeout, logger)
	coord := &payments.Coordinator{
		Store:   repo,
		Orders:  orderSvc,
		Gateway: payments.MockGateway{Log: logger},
		Log:     logger,
		Service: cfg.ServiceName,
		Retry: retry.Policy{
			Attempts: cfg.RetryAttempts,
			Initial:  cfg.RetryInitial,
			Max:      cfg.RetryMax,
		},
		Events: processed,
	}

	rec := &payments.Reconciler{
		Tasks:    repo,
		Orders:   orderSvc,
		Log:      logger.Named("reconciler"),
		Interval: cfg.ReconcileInterval,
		Batch:    cfg.ReconcileBatch,
	}
	go rec.Run(ctx)

	router := httpx.NewRouter(logger)
	(&httpx.PaymentsHandler{Payments: coord, Log: logger}).Register(router)
	srv := httpx.NewServer(cfg.HTTPAddr, cfg.ServiceName, router)

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	processed.Close()
	processed.WaitClosed()
	_ = shutdownTracer(ctx2)
}
