// Command capflow-server runs the capital-raise workflow engine behind its
// REST surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	capflow "github.com/capflow/capflow-go"
	"github.com/capflow/capflow-go/httpapi"
	internalamqp "github.com/capflow/capflow-go/internal/amqp"
	"github.com/capflow/capflow-go/internal/config"
	"github.com/capflow/capflow-go/notify"
	"github.com/capflow/capflow-go/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []capflow.ClientOption{capflow.WithLogger(logger)}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}

		opts = append(opts,
			capflow.WithRepository(postgres.NewRepository(db)),
			capflow.WithNotificationStore(postgres.NewNotificationStore(db)))
		logger.Info("using postgres persistence")
	} else {
		opts = append(opts, capflow.WithNotificationStore(notify.NewInMemoryStore()))
		logger.Warn("DATABASE_URL not set, using volatile in-memory persistence")
	}

	if cfg.AMQPURL != "" {
		publisher, err := internalamqp.NewEventPublisher(cfg.AMQPURL,
			internalamqp.WithExchange(cfg.EventExchange),
			internalamqp.WithPublisherLogger(logger))
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		opts = append(opts, capflow.WithEventPublisher(publisher))
		logger.Info("transition events enabled", "exchange", cfg.EventExchange)
	}

	client := capflow.NewClient(opts...)
	server := httpapi.NewServer(client, httpapi.WithServerLogger(logger))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("capflow server listening", "addr", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
