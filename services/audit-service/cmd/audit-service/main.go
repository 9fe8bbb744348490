package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderstream/libs/config"
	"orderstream/libs/db"
	"orderstream/libs/httpx"
	"orderstream/libs/kafkax"
	"orderstream/libs/otelx"
	"orderstream/libs/runtime"
	"orderstream/services/audit-service/internal/archive"
	"orderstream/services/audit-service/internal/correlator"
	"orderstream/services/audit-service/internal/followup"
	"orderstream/services/audit-service/internal/rules"
)

func main() {
	service := config.String("SERVICE_NAME", "audit-service")
	port, err := config.Port("PORT", "8083")
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

	corr := correlator.New(
		logger,
		rules.Default(),
		archive.NewRepository(pool),
		correlator.NewLogRemediator(logger),
		followup.NewRepository(pool),
	)

	brokers := config.String("KAFKA_BROKERS", "")
	consumer := correlator.NewConsumer(logger, corr, correlator.Config{
		Brokers:       brokers,
		GroupID:       config.String("KAFKA_GROUP_ID", "audit-service"),
		Topic:         config.String("AUDIT_EVENTS_TOPIC", "audit.events.v1"),
		HandleTimeout: config.Duration("HANDLE_TIMEOUT", 5*time.Second),
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
	handler = otelhttp.NewHandler(handler, "audit-service")
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
