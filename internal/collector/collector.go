// Package collector orchestrates a single incremental sync pass: resolve the
// pair universe, inspect each pair's stored range, plan the missing windows,
// and page candles from the exchange into the store.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NTPCdev/binance-ohlcv/internal/errors"
	"github.com/NTPCdev/binance-ohlcv/internal/exchange"
	"github.com/NTPCdev/binance-ohlcv/internal/gaps"
	"github.com/NTPCdev/binance-ohlcv/internal/models"
	"github.com/NTPCdev/binance-ohlcv/internal/storage"
)

// KlineFetcher pulls raw kline rows from the exchange.
type KlineFetcher interface {
	Klines(ctx context.Context, symbol string, start, end time.Time, limit int) ([][]any, error)
}

// UniverseResolver produces the trading pairs to sync.
type UniverseResolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Summary reports what a single sync pass did. Interrupted marks a pass cut
// short by context cancellation: the counters are valid but some pairs were
// never reached.
type Summary struct {
	RunID          string        `json:"run_id"`
	Processed      int           `json:"processed"`
	Skipped        int           `json:"skipped"`
	Windows        int           `json:"windows"`
	CandlesWritten int           `json:"candles_written"`
	Interrupted    bool          `json:"interrupted"`
	Duration       time.Duration `json:"duration"`
}

// Collector drives the sync pass. All collaborators are interfaces so tests
// can substitute in-memory implementations.
type Collector struct {
	universe UniverseResolver
	store    storage.Store
	fetcher  KlineFetcher
	logger   *slog.Logger

	lookbackDays int
	now          func() time.Time
}

// New creates a Collector. lookbackDays <= 0 selects the default five-year
// horizon.
func New(universe UniverseResolver, store storage.Store, fetcher KlineFetcher, lookbackDays int, logger *slog.Logger) *Collector {
	if lookbackDays <= 0 {
		lookbackDays = gaps.DefaultLookbackDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		universe:     universe,
		store:        store,
		fetcher:      fetcher,
		logger:       logger,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// Run executes one sync pass. It returns a non-nil error only for fatal
// failures (the candidate query); per-symbol and per-window failures are
// logged and the pass continues.
func (c *Collector) Run(ctx context.Context) (*Summary, error) {
	started := c.now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := c.logger.With("run_id", summary.RunID)

	pairs, err := c.universe.Resolve(ctx)
	if err != nil {
		logger.Error("sync aborted", "error", err)
		return summary, apperrors.Fatal(err)
	}

	now := c.now().UTC().Truncate(gaps.Day)
	globalStart := gaps.GlobalStart(now, c.lookbackDays)
	logger.Info("sync started",
		"pairs", len(pairs),
		"global_start", globalStart.Format(time.DateOnly),
		"now", now.Format(time.DateOnly))

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			logger.Warn("sync cancelled", "error", err)
			summary.Interrupted = true
			break
		}

		earliest, latest, err := c.store.OpenTimeRange(ctx, pair)
		if err != nil {
			logger.Warn("range query failed, skipping pair", "pair", pair, "error", err)
			summary.Skipped++
			continue
		}

		windows := gaps.Plan(earliest, latest, now, globalStart)
		if len(windows) == 0 {
			logger.Debug("pair up to date", "pair", pair)
			summary.Processed++
			continue
		}

		for _, window := range windows {
			written := c.syncWindow(ctx, logger, pair, window)
			summary.Windows++
			summary.CandlesWritten += written
		}
		summary.Processed++
	}

	summary.Duration = c.now().Sub(started)
	logger.Info("sync finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"windows", summary.Windows,
		"candles_written", summary.CandlesWritten,
		"interrupted", summary.Interrupted,
		"duration", summary.Duration)
	return summary, nil
}

// syncWindow fetches and persists one gap window, returning the number of
// rows written. Fetch and upsert failures are recoverable: whatever was
// accumulated before the failure is still persisted.
func (c *Collector) syncWindow(ctx context.Context, logger *slog.Logger, pair string, window gaps.Window) int {
	candles, fetchErr := c.fetchWindow(ctx, pair, window)
	if fetchErr != nil {
		logger.Warn("window fetch incomplete",
			"pair", pair, "window", window.String(),
			"rows", len(candles), "error", fetchErr)
	}
	if len(candles) == 0 {
		return 0
	}

	written, err := c.store.UpsertCandles(ctx, candles)
	if err != nil {
		logger.Warn("window upsert failed",
			"pair", pair, "window", window.String(), "error", err)
		return 0
	}
	logger.Info("window synced",
		"pair", pair, "window", window.String(), "rows", written)
	return written
}

// fetchWindow pages through a window with a day-granular cursor. Each request
// covers at most the exchange's row cap worth of days; a short page means the
// window is exhausted. On failure the rows accumulated so far are returned
// alongside the error.
func (c *Collector) fetchWindow(ctx context.Context, pair string, window gaps.Window) ([]models.Candle, error) {
	var candles []models.Candle

	cursor := window.From
	for !cursor.After(window.To) {
		chunkEnd := cursor.Add(time.Duration(exchange.MaxRowsPerRequest) * gaps.Day)
		if chunkEnd.After(window.To) {
			chunkEnd = window.To
		}

		rows, err := c.fetcher.Klines(ctx, pair, cursor, chunkEnd, exchange.MaxRowsPerRequest)
		if err != nil {
			return candles, err
		}

		var lastOpen time.Time
		for _, row := range rows {
			candle, err := models.CandleFromKline(pair, row)
			if err != nil {
				return candles, err
			}
			candles = append(candles, candle)
			lastOpen = candle.OpenTime
		}

		if len(rows) < exchange.MaxRowsPerRequest {
			break
		}
		cursor = lastOpen.Add(gaps.Day)
	}
	return candles, nil
}
