package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderstream/libs/config"
	"orderstream/libs/db"
	"orderstream/libs/event"
	"orderstream/libs/httpx"
	"orderstream/libs/kafkax"
	"orderstream/libs/otelx"
	"orderstream/libs/runtime"
	"orderstream/services/event-relay/internal/billing"
	"orderstream/services/event-relay/internal/eventlog"
	"orderstream/services/event-relay/internal/fanout"
	"orderstream/services/event-relay/internal/notifyq"
	"orderstream/services/event-relay/internal/relay"
)

func main() {
	service := config.String("SERVICE_NAME", "event-relay")
	port, err := config.Port("PORT", "8081")
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

	writer := eventlog.NewWriter(
		eventlog.NewRepository(pool),
		logger,
		config.Duration("EVENT_LOG_TTL", eventlog.DefaultRetention),
	)

	var charger billing.Charger = billing.NoopCharger{}
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		charger = billing.NewStripeCharger(key, config.String("BILLING_CURRENCY", "usd"))
	}
	billingTrigger := billing.NewTrigger(billing.NewRepository(pool), charger, logger)

	enqueuer := notifyq.NewEnqueuer(notifyq.NewRepository(pool))

	router := fanout.NewRouter(logger, config.Duration("SINK_TIMEOUT", 5*time.Second))
	router.Subscribe(fanout.Subscription{Name: "eventlog", Sink: writer})
	router.Subscribe(fanout.Subscription{
		Name:   "billing",
		Filter: fanout.TypeFilter(event.TypeOrderCreated),
		Sink:   billingTrigger,
	})
	router.Subscribe(fanout.Subscription{
		Name:   "notify",
		Filter: fanout.TypeFilter(event.TypeOrderCreated),
		Sink:   enqueuer,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	consumer := relay.New(logger, router, relay.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "event-relay"),
		Topic:   config.String("ORDER_EVENTS_TOPIC", "orders.events.v1"),
	})
	go consumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "event-relay")
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
