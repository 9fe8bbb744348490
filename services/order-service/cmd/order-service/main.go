package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderstream/libs/config"
	"orderstream/libs/db"
	"orderstream/libs/httpx"
	"orderstream/libs/kafkax"
	"orderstream/libs/otelx"
	"orderstream/libs/runtime"
	"orderstream/services/order-service/internal/audit"
	"orderstream/services/order-service/internal/events"
	"orderstream/services/order-service/internal/handlers"
	"orderstream/services/order-service/internal/outbox"
	"orderstream/services/order-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "order-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")

	orderRepo := storage.NewOrderRepository(pool)
	productRepo := storage.NewProductRepository(pool)
	eventReader := storage.NewOrderEventReader(pool)
	outboxRepo := outbox.NewRepository(pool)
	publisher := events.NewPublisher(outboxRepo)

	dispatcher := outbox.NewDispatcher(pool, outboxRepo, logger, outbox.DispatcherConfig{
		Brokers:   brokers,
		Topic:     config.String("ORDER_EVENTS_TOPIC", "orders.events.v1"),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go dispatcher.Run(ctx)

	auditor := audit.NewEmitter(brokers, config.String("AUDIT_EVENTS_TOPIC", "audit.events.v1"), logger)
	defer auditor.Close()

	h := handlers.New(pool, orderRepo, productRepo, eventReader, publisher, auditor, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/orders", h.Orders)
	mux.HandleFunc("/orders/events", h.OrderEvents)
	mux.HandleFunc("/products", h.Products)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(5 * time.Second),
	}

	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 60),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			service,
		)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	}

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, "orders")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
