package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/NTPCdev/binance-ohlcv/internal/models"
)

// MemoryStore is an in-memory Store implementation used by collector and
// handler tests. It mirrors the upsert semantics of the Supabase backend:
// writes are keyed on (symbol, open_time) and the last write wins.
type MemoryStore struct {
	mu sync.RWMutex

	// candles: map[symbol][openTime] -> Candle
	candles map[string]map[time.Time]models.Candle
	coins   []models.Coin

	// Injectable failures for error-path tests.
	CoinsErr  error
	RangeErr  map[string]error
	UpsertErr map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candles:   make(map[string]map[time.Time]models.Candle),
		RangeErr:  make(map[string]error),
		UpsertErr: make(map[string]error),
	}
}

// SetCoins seeds the candidate snapshot returned by TopCoins.
func (m *MemoryStore) SetCoins(coins []models.Coin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coins = coins
}

// TopCoins implements CoinReader, ordering by market cap descending like
// the Supabase query it stands in for.
func (m *MemoryStore) TopCoins(ctx context.Context, limit int) ([]models.Coin, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("query", coinsTable, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.CoinsErr != nil {
		return nil, NewStorageError("query", coinsTable, m.CoinsErr)
	}

	out := make([]models.Coin, len(m.coins))
	copy(out, m.coins)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MarketCap > out[j].MarketCap
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// OpenTimeRange implements RangeInspector.
func (m *MemoryStore) OpenTimeRange(ctx context.Context, pair string) (*time.Time, *time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, NewStorageError("query", candleTable, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.RangeErr[pair]; err != nil {
		return nil, nil, NewStorageError("query", candleTable, err)
	}

	rows := m.candles[pair]
	if len(rows) == 0 {
		return nil, nil, nil
	}

	var earliest, latest time.Time
	first := true
	for openTime := range rows {
		if first {
			earliest, latest = openTime, openTime
			first = false
			continue
		}
		if openTime.Before(earliest) {
			earliest = openTime
		}
		if openTime.After(latest) {
			latest = openTime
		}
	}
	return &earliest, &latest, nil
}

// UpsertCandles implements CandleWriter, overwriting on the natural key.
func (m *MemoryStore) UpsertCandles(ctx context.Context, candles []models.Candle) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewStorageError("upsert", candleTable, err)
	}
	if len(candles) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.UpsertErr[candles[0].Symbol]; err != nil {
		return 0, NewStorageError("upsert", candleTable, err)
	}

	for _, candle := range candles {
		if err := candle.Validate(); err != nil {
			return 0, NewStorageError("upsert", candleTable, err)
		}
		if m.candles[candle.Symbol] == nil {
			m.candles[candle.Symbol] = make(map[time.Time]models.Candle)
		}
		m.candles[candle.Symbol][candle.OpenTime] = candle
	}
	return len(candles), nil
}

// HealthCheck implements HealthChecker.
func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.candles == nil {
		return errors.New("store not initialized")
	}
	return nil
}

// Candles returns the stored rows for a pair in ascending open-time order.
func (m *MemoryStore) Candles(pair string) []models.Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.candles[pair]
	out := make([]models.Candle, 0, len(rows))
	for _, candle := range rows {
		out = append(out, candle)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].OpenTime.Before(out[j-1].OpenTime); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Count returns the number of stored rows for a pair.
func (m *MemoryStore) Count(pair string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.candles[pair])
}
