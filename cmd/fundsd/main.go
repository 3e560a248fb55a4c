// fundsd is the HTTP API server: upload initiation and completion, fund
// record reads and listings, and the XLSX export.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/funddocs/funds-tracker/internal/api"
	"github.com/funddocs/funds-tracker/internal/common"
	"github.com/funddocs/funds-tracker/internal/export"
	"github.com/funddocs/funds-tracker/internal/objstore"
	"github.com/funddocs/funds-tracker/internal/queue"
	"github.com/funddocs/funds-tracker/internal/store"
	"github.com/funddocs/funds-tracker/internal/upload"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(cfg.Database.DSN, logger); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	pool, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	st := store.NewPostgresStore(pool)

	objects, err := objstore.NewS3StoreFromEnv(ctx, cfg.Storage.Region)
	if err != nil {
		logger.Error("initializing object store", "error", err)
		os.Exit(1)
	}

	conn, err := queue.Dial(cfg.Queue.URL)
	if err != nil {
		logger.Error("connecting to message queue", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, cfg.Queue.JobQueue, cfg.Queue.ResultQueue, logger)
	if err != nil {
		logger.Error("initializing publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	uploads := &upload.Service{
		Store:       st,
		Objects:     objects,
		Publisher:   publisher,
		Logger:      logger,
		InputBucket: cfg.Storage.InputBucket,
		URLTTL:      cfg.Storage.UploadURLTTL,
	}

	handlers := &api.Handlers{
		Store:    st,
		Uploads:  uploads,
		Exporter: export.NewService(st, logger),
		Pingers:  []func(context.Context) error{st.Ping},
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}
