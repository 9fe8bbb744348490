package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orderstream/libs/config"
	"orderstream/libs/db"
	"orderstream/libs/event"
	"orderstream/libs/httpx"
	"orderstream/libs/otelx"
	"orderstream/libs/runtime"
	"orderstream/services/notifier/internal/consumer"
	"orderstream/services/notifier/internal/email"
	"orderstream/services/notifier/internal/queue"
)

func main() {
	service := config.String("SERVICE_NAME", "notifier")
	port, err := config.Port("PORT", "8082")
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

	q := queue.NewPostgres(pool, queue.PostgresConfig{
		MaxReceives:       config.Int("QUEUE_MAX_RECEIVES", 3),
		VisibilityTimeout: config.Duration("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
		RetryBackoff:      config.Duration("QUEUE_RETRY_BACKOFF", 5*time.Second),
	})

	var sender email.Sender = email.NoopSender{}
	if host := config.String("SMTP_HOST", ""); host != "" {
		sender = email.NewSMTPSender(host,
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@orderstream.local"),
		)
	}

	worker := consumer.NewWorker(q, orderConfirmationHandler(sender, logger), logger, consumer.Config{
		BatchSize:      config.Int("QUEUE_BATCH_SIZE", 5),
		Window:         config.Duration("QUEUE_BATCH_WINDOW", time.Minute),
		Poll:           config.Duration("QUEUE_POLL_EVERY", time.Second),
		MessageTimeout: config.Duration("QUEUE_MESSAGE_TIMEOUT", 5*time.Second),
	})
	go worker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notifier")
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

func orderConfirmationHandler(sender email.Sender, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg queue.Message) error {
		var env event.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			return fmt.Errorf("%w: %v", consumer.ErrDrop, err)
		}
		var oe event.OrderEvent
		if err := event.Unwrap(env, &oe); err != nil {
			return fmt.Errorf("%w: %v", consumer.ErrDrop, err)
		}

		subject := "Order confirmation"
		body := fmt.Sprintf("Your order %s (%s) was received. Products: %s. Total: %.2f.",
			oe.OrderID, oe.RequestID, strings.Join(oe.ProductCodes, ", "), oe.Billing.TotalPrice)
		if err := sender.Send(oe.Email, subject, body); err != nil {
			return err
		}

		logger.Info("order confirmation sent", "order_id", oe.OrderID, "email", oe.Email, "event_id", msg.EventID)
		return nil
	}
}
