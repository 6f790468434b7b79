package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NTPCdev/binance-ohlcv/internal/errors"
	"github.com/NTPCdev/binance-ohlcv/internal/exchange"
	"github.com/NTPCdev/binance-ohlcv/internal/gaps"
	"github.com/NTPCdev/binance-ohlcv/internal/models"
	"github.com/NTPCdev/binance-ohlcv/internal/storage"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// fixedUniverse resolves to a static pair list.
type fixedUniverse struct {
	pairs []string
	err   error
}

func (u *fixedUniverse) Resolve(ctx context.Context) ([]string, error) {
	return u.pairs, u.err
}

// fakeExchange serves synthetic daily klines for whatever range is asked,
// recording every request. A non-zero listedAt suppresses rows before it,
// mimicking a pair with a short listing history; a non-nil failErr is
// returned once failAfter requests have been served.
type fakeExchange struct {
	requests  []klineRequest
	listedAt  time.Time
	failAfter int
	failErr   error
}

type klineRequest struct {
	symbol     string
	start, end time.Time
	limit      int
}

func (f *fakeExchange) Klines(ctx context.Context, symbol string, start, end time.Time, limit int) ([][]any, error) {
	if f.failErr != nil && len(f.requests) >= f.failAfter {
		return nil, f.failErr
	}
	f.requests = append(f.requests, klineRequest{symbol, start, end, limit})

	var rows [][]any
	for day := start; !day.After(end) && len(rows) < limit; day = day.Add(gaps.Day) {
		if day.Before(f.listedAt) {
			continue
		}
		rows = append(rows, rawKline(day))
	}
	return rows, nil
}

func rawKline(openTime time.Time) []any {
	openMs := float64(openTime.UnixMilli())
	closeMs := float64(openTime.Add(gaps.Day).UnixMilli() - 1)
	return []any{
		openMs, "42000.5", "43100", "41500", "42800", "1234.5",
		closeMs, "52000000", float64(98765), "600.25", "25500000",
	}
}

func newTestCollector(universe UniverseResolver, store storage.Store, fetcher KlineFetcher) *Collector {
	c := New(universe, store, fetcher, 0, nil)
	c.now = func() time.Time { return testNow }
	return c
}

func TestRunFullHorizonForNewPair(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Windows)
	// Five years inclusive of both endpoints.
	assert.Equal(t, 5*365+1, summary.CandlesWritten)
	assert.Equal(t, 5*365+1, store.Count("BTCUSDT"))
	assert.NotEmpty(t, summary.RunID)
}

func TestRunPagesThroughRowCap(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	_, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	// 1826 days at 1000 rows per request takes two full pages plus a short
	// tail page.
	require.Len(t, fetcher.requests, 2)
	globalStart := gaps.GlobalStart(testNow, gaps.DefaultLookbackDays)

	first := fetcher.requests[0]
	assert.Equal(t, globalStart, first.start)
	assert.Equal(t, globalStart.Add(1000*gaps.Day), first.end)
	assert.Equal(t, exchange.MaxRowsPerRequest, first.limit)

	// The cursor resumes one day past the last row of the previous page.
	second := fetcher.requests[1]
	assert.Equal(t, globalStart.Add(1000*gaps.Day), second.start)
	assert.Equal(t, testNow, second.end)
}

func TestRunShortPageEndsPagination(t *testing.T) {
	store := storage.NewMemoryStore()
	// A pair listed deep into the first chunk: that page comes back
	// short, which signals exhaustion even though the window extends
	// another page.
	globalStart := gaps.GlobalStart(testNow, gaps.DefaultLookbackDays)
	fetcher := &fakeExchange{listedAt: globalStart.Add(900 * gaps.Day)}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, fetcher.requests, 1)
	assert.Equal(t, 101, summary.CandlesWritten)
}

func TestRunPersistsPartialRowsOnFetchFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	fetcher := &fakeExchange{failAfter: 1, failErr: errors.New("gateway timeout")}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	// The first page succeeded before the failure; its rows survive.
	assert.Equal(t, 1000, summary.CandlesWritten)
	assert.Equal(t, 1000, store.Count("BTCUSDT"))
	assert.Equal(t, 1, summary.Processed)
}

func TestRunSkipsPairOnRangeQueryFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	store.RangeErr["BADUSDT"] = errors.New("statement timeout")
	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"BADUSDT", "BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, store.Count("BADUSDT"))
	assert.Greater(t, store.Count("BTCUSDT"), 0)
}

func TestRunContinuesPastUpsertFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	store.UpsertErr["ETHUSDT"] = errors.New("payload too large")
	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"ETHUSDT", "BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	// The failed upsert writes nothing but the pair still counts as
	// processed and the next pair syncs fully.
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, store.Count("ETHUSDT"))
	assert.Equal(t, 5*365+1, store.Count("BTCUSDT"))
}

func TestRunUpdateWindowOnly(t *testing.T) {
	store := storage.NewMemoryStore()
	globalStart := gaps.GlobalStart(testNow, gaps.DefaultLookbackDays)

	// Seed full coverage up to ten days ago.
	var seeded []models.Candle
	for day := globalStart; !day.After(testNow.Add(-10 * gaps.Day)); day = day.Add(gaps.Day) {
		candle, err := models.CandleFromKline("BTCUSDT", rawKline(day))
		require.NoError(t, err)
		seeded = append(seeded, candle)
	}
	_, err := store.UpsertCandles(context.Background(), seeded)
	require.NoError(t, err)

	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Windows)
	assert.Equal(t, 10, summary.CandlesWritten)
	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, testNow.Add(-9*gaps.Day), fetcher.requests[0].start)
	assert.Equal(t, testNow, fetcher.requests[0].end)
}

func TestRunUpToDatePairFetchesNothing(t *testing.T) {
	store := storage.NewMemoryStore()
	globalStart := gaps.GlobalStart(testNow, gaps.DefaultLookbackDays)

	var seeded []models.Candle
	for day := globalStart; !day.After(testNow); day = day.Add(gaps.Day) {
		candle, err := models.CandleFromKline("BTCUSDT", rawKline(day))
		require.NoError(t, err)
		seeded = append(seeded, candle)
	}
	_, err := store.UpsertCandles(context.Background(), seeded)
	require.NoError(t, err)

	fetcher := &fakeExchange{}
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, fetcher).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fetcher.requests)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Windows)
}

func TestRunFatalUniverseErrorAborts(t *testing.T) {
	store := storage.NewMemoryStore()
	universe := &fixedUniverse{err: apperrors.Fatalf("query coin candidates: %w", errors.New("connection refused"))}

	summary, err := newTestCollector(universe, store, &fakeExchange{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsFatal(err))
	assert.Equal(t, 0, summary.Processed)
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storage.NewMemoryStore()
	universe := &fixedUniverse{pairs: []string{"BTCUSDT", "ETHUSDT"}}

	summary, err := newTestCollector(universe, store, &fakeExchange{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	// A truncated pass must be distinguishable from a complete one.
	assert.True(t, summary.Interrupted)
}

func TestRunCompletePassIsNotInterrupted(t *testing.T) {
	store := storage.NewMemoryStore()
	universe := &fixedUniverse{pairs: []string{"BTCUSDT"}}

	summary, err := newTestCollector(universe, store, &fakeExchange{}).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Interrupted)
}
