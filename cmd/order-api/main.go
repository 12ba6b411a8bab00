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
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/postgres"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
	"github.com/ariefcatur/go-order-saga/internal/retry"
	"github.com/ariefcatur/go-order-saga/internal/rpc"
	"github.com/ariefcatur/go-order-saga/internal/wsx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load[config.OrderAPI]()
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
	if err := postgres.Migrate(cfg.PostgresDSN, postgres.SchemaOrders); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	created := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCreated, 1024, logger)
	created.Start(ctx)
	changed := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderStatusChanged, 1024, logger)
	changed.Start(ctx)

	hub := wsx.NewHub(logger)
	go hub.Run(ctx)

	coord := &orders.Coordinator{
		Store:     orders.NewCachedStore(&orders.Repo{DB: db}, rdb, cfg.CacheTTL, logger),
		Inventory: rpc.NewInventoryClient(cfg.ProductServiceURL, cfg.Upstream.Timeout, logger),
		Log:       logger,
		Service:   cfg.ServiceName,
		Retry: retry.Policy{
			Attempts: cfg.RetryAttempts,
			Initial:  cfg.RetryInitial,
			Max:      cfg.RetryMax,
		},
		Created:       created,
		StatusChanged: changed,
		Watchers:      hub,
	}

	// payment.processed consumer
	paid := &orders.PaymentEvents{
		Coordinator: coord,
		Dedup:       redisx.Deduper{RDB: rdb, Service: cfg.ServiceName},
		Log:         logger,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, events.TopicPaymentProcessed, cfg.ConsumerWorkers, logger)
	go func() {
		logger.Info("payment events consumer started", zap.String("group", cfg.ConsumerGroup))
		if err := cons.Start(ctx, paid.HandlePaymentProcessed); err != nil {
			logger.Error("consumer exit", zap.Error(err))
		}
	}()

	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{Orders: coord, Watcher: hub, Log: logger}).Register(router)
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
	created.Close()
	changed.Close()
	created.WaitClosed()
	changed.WaitClosed()
	_ = shutdownTracer(ctx2)
}
