// Command binance-ohlcv syncs daily OHLCV candles for the top USDT trading
// pairs from Binance into a Supabase-backed store.
//
// Usage:
//
//	binance-ohlcv serve   start the HTTP server (POST /sync triggers a pass)
//	binance-ohlcv run     execute a single sync pass and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NTPCdev/binance-ohlcv/internal/collector"
	"github.com/NTPCdev/binance-ohlcv/internal/config"
	"github.com/NTPCdev/binance-ohlcv/internal/exchange"
	"github.com/NTPCdev/binance-ohlcv/internal/handler"
	"github.com/NTPCdev/binance-ohlcv/internal/logger"
	"github.com/NTPCdev/binance-ohlcv/internal/storage"
	"github.com/NTPCdev/binance-ohlcv/internal/universe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	if err := run(mode); err != nil {
		fmt.Fprintf(os.Stderr, "binance-ohlcv: %v\n", err)
		os.Exit(1)
	}
}

func run(mode string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	store, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, log)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	client := exchange.NewClient(cfg.BinanceBaseURL, log)
	resolver := universe.NewResolver(store, client, cfg.ExchangeInfoFallback, cfg.TopCoinsLimit, log)
	syncer := collector.New(resolver, store, client, cfg.LookbackDays, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "serve":
		return serve(ctx, cfg, syncer, store)
	case "run":
		summary, err := syncer.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		log.Info("single pass complete",
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"candles_written", summary.CandlesWritten)
		return nil
	default:
		return fmt.Errorf("unknown mode %q (want serve or run)", mode)
	}
}

func serve(ctx context.Context, cfg *config.Config, syncer handler.Runner, store storage.Store) error {
	gin.SetMode(gin.ReleaseMode)

	router := handler.New(syncer, store, nil).Router()
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
