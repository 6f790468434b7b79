package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/NTPCdev/binance-ohlcv/internal/models"
)

const (
	coinsTable  = "coins"
	candleTable = "ohlcv_daily"

	// candleConflictKey is the natural key the upsert resolves on.
	candleConflictKey = "symbol,open_time"
)

// SupabaseStore implements Store against a Supabase project's PostgREST
// endpoint, authenticated with the service-role key.
type SupabaseStore struct {
	client *postgrest.Client
	logger *slog.Logger
}

// NewSupabaseStore builds a store client from the project URL and service
// key. Both credentials are required; construction fails fast when either
// is missing so a misconfigured deployment never reaches the sync loop.
func NewSupabaseStore(rawURL, serviceKey string, logger *slog.Logger) (*SupabaseStore, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if serviceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	restURL := strings.TrimRight(rawURL, "/")
	if !strings.HasSuffix(restURL, "/rest/v1") {
		restURL += "/rest/v1"
	}

	client := postgrest.NewClient(restURL, "public", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("create postgrest client: %w", client.ClientError)
	}

	return &SupabaseStore{client: client, logger: logger}, nil
}

// TopCoins implements CoinReader.
func (s *SupabaseStore) TopCoins(ctx context.Context, limit int) ([]models.Coin, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("query", coinsTable, err)
	}

	var coins []models.Coin
	_, err := s.client.From(coinsTable).
		Select("symbol,name,market_cap", "", false).
		Order("market_cap", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&coins)
	if err != nil {
		return nil, NewStorageError("query", coinsTable, err)
	}

	s.logger.Debug("loaded coin candidates", "count", len(coins), "limit", limit)
	return coins, nil
}

// openTimeRow is the single-column projection used by the range queries.
type openTimeRow struct {
	OpenTime time.Time `json:"open_time"`
}

// OpenTimeRange implements RangeInspector with two single-row queries, one
// ordered ascending and one descending. Zero rows returns nil pointers.
func (s *SupabaseStore) OpenTimeRange(ctx context.Context, pair string) (*time.Time, *time.Time, error) {
	earliest, err := s.boundaryOpenTime(ctx, pair, true)
	if err != nil {
		return nil, nil, err
	}
	if earliest == nil {
		return nil, nil, nil
	}

	latest, err := s.boundaryOpenTime(ctx, pair, false)
	if err != nil {
		return nil, nil, err
	}
	return earliest, latest, nil
}

func (s *SupabaseStore) boundaryOpenTime(ctx context.Context, pair string, ascending bool) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("query", candleTable, err)
	}

	var rows []openTimeRow
	_, err := s.client.From(candleTable).
		Select("open_time", "", false).
		Eq("symbol", pair).
		Order("open_time", &postgrest.OrderOpts{Ascending: ascending}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, NewStorageError("query", candleTable, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	t := rows[0].OpenTime.UTC()
	return &t, nil
}

// UpsertCandles implements CandleWriter with a bulk PostgREST upsert
// resolving on the (symbol, open_time) natural key.
func (s *SupabaseStore) UpsertCandles(ctx context.Context, candles []models.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, NewStorageError("upsert", candleTable, err)
	}

	_, _, err := s.client.From(candleTable).
		Upsert(candles, candleConflictKey, "minimal", "").
		Execute()
	if err != nil {
		return 0, NewStorageError("upsert", candleTable, err)
	}

	s.logger.Debug("upserted candles",
		"symbol", candles[0].Symbol,
		"count", len(candles),
		"first_open_time", candles[0].OpenTime,
		"last_open_time", candles[len(candles)-1].OpenTime,
	)
	return len(candles), nil
}

// HealthCheck implements HealthChecker with a single-row read of the coins
// table.
func (s *SupabaseStore) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var coins []models.Coin
	_, err := s.client.From(coinsTable).
		Select("symbol", "", false).
		Limit(1, "").
		ExecuteTo(&coins)
	if err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}
