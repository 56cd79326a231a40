package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stockledger/internal/adapter/handler"
	"stockledger/internal/adapter/storage"
	"stockledger/internal/config"
	"stockledger/internal/core/service"
	"stockledger/internal/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init("stockledger"); err != nil {
		os.Exit(1)
	}
	log := logger.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, dialect, err := storage.Open(ctx, cfg.DatabaseURL, cfg.MySQLDSN, cfg.SQLitePath)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()
	log.Info("connected to store", zap.String("backend", dialect.Name()))

	// Schema is applied here, at startup, never lazily per request.
	if err := storage.Migrate(db, dialect); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}

	store := storage.NewSQLStore(db, dialect)
	registry := service.NewRegistryService(store)
	ledger := service.NewLedgerService(store)

	h := handler.NewHTTPHandler(registry, ledger, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(h, log),
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	log.Info("stopped")
}
