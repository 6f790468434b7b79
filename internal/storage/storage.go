// Package storage defines the persistence layer for daily OHLCV data.
// The interfaces abstract the Supabase (PostgREST) backend so the collector
// can run against the in-memory implementation in tests.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/NTPCdev/binance-ohlcv/internal/models"
)

// CoinReader provides the ranked candidate snapshot used to build the
// symbol universe.
type CoinReader interface {
	// TopCoins returns up to limit coins ordered by market cap descending.
	// A failure here is fatal to the run; there is no fallback source.
	TopCoins(ctx context.Context, limit int) ([]models.Coin, error)
}

// RangeInspector reports the stored open-time range for a trading pair.
type RangeInspector interface {
	// OpenTimeRange returns the minimum and maximum stored open_time for
	// the pair. Both pointers are nil when no rows exist; zero existing
	// rows is not an error.
	OpenTimeRange(ctx context.Context, pair string) (earliest, latest *time.Time, err error)
}

// CandleWriter persists candles idempotently.
type CandleWriter interface {
	// UpsertCandles bulk-writes candles keyed on (symbol, open_time),
	// overwriting existing rows. Returns the number of rows written.
	UpsertCandles(ctx context.Context, candles []models.Candle) (int, error)
}

// HealthChecker verifies the store is reachable with a lightweight read.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store combines all persistence capabilities required by one sync run.
type Store interface {
	CoinReader
	RangeInspector
	CandleWriter
	HealthChecker
}

// StorageError provides operation context for persistence failures.
type StorageError struct {
	Operation string
	Table     string
	Err       error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError with the provided details.
func NewStorageError(operation, table string, err error) *StorageError {
	return &StorageError{Operation: operation, Table: table, Err: err}
}
