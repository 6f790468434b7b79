// Package universe resolves the set of trading pairs to synchronize.
// Candidates come from the store's market-cap ranking; the exchange metadata
// (live endpoint, then a cached local snapshot) restricts them to pairs
// Binance actually trades.
package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	apperrors "github.com/NTPCdev/binance-ohlcv/internal/errors"
	"github.com/NTPCdev/binance-ohlcv/internal/exchange"
	"github.com/NTPCdev/binance-ohlcv/internal/storage"
)

// QuoteAsset is the fixed quote side of every synchronized pair.
const QuoteAsset = "USDT"

// DefaultCandidateLimit caps the market-cap ranking query.
const DefaultCandidateLimit = 1000

// blocklist excludes derivative listings whose name contains any of these
// substrings (matched case-insensitively): wrapped assets, staked assets,
// and the quote asset itself (Tether cannot pair against USDT).
var blocklist = []string{"wrapped", "staked", "usdt"}

// MetadataProvider supplies the exchange trading-pair metadata.
type MetadataProvider interface {
	ExchangeInfo(ctx context.Context) (*exchange.ExchangeInfo, error)
}

// Resolver builds the final ordered pair list for one run.
type Resolver struct {
	coins        storage.CoinReader
	metadata     MetadataProvider
	fallbackPath string
	limit        int
	logger       *slog.Logger
}

// NewResolver creates a resolver. fallbackPath points at a local snapshot of
// the exchangeInfo response used when the live endpoint is unreachable; an
// empty path disables the file fallback. A limit <= 0 selects the default.
func NewResolver(coins storage.CoinReader, metadata MetadataProvider, fallbackPath string, limit int, logger *slog.Logger) *Resolver {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		coins:        coins,
		metadata:     metadata,
		fallbackPath: fallbackPath,
		limit:        limit,
		logger:       logger,
	}
}

// Resolve produces the ordered list of pair ids to synchronize.
//
// The candidates query is mandatory: its failure aborts the run. The
// valid-pairs set is best effort: live metadata first, local snapshot
// second, and when both fail the membership filter is bypassed entirely.
// Filtering order is blocklist first, then pair-id mapping, then membership.
func (r *Resolver) Resolve(ctx context.Context) ([]string, error) {
	coins, err := r.coins.TopCoins(ctx, r.limit)
	if err != nil {
		return nil, apperrors.Fatalf("query coin candidates: %w", err)
	}

	validPairs := r.validPairs(ctx)

	pairs := make([]string, 0, len(coins))
	for _, coin := range coins {
		if blocked(coin.Name) {
			r.logger.Debug("excluded candidate by name", "symbol", coin.Symbol, "name", coin.Name)
			continue
		}
		pair := PairID(coin.Symbol)
		if validPairs != nil {
			if _, ok := validPairs[pair]; !ok {
				continue
			}
		}
		pairs = append(pairs, pair)
	}

	r.logger.Info("resolved symbol universe",
		"candidates", len(coins),
		"pairs", len(pairs),
		"filtered", validPairs != nil,
	)
	return pairs, nil
}

// validPairs returns the set of pairs the exchange trades, or nil when no
// metadata source is available. Nil is the documented "no filter" contract,
// not an error: the run proceeds with candidate-derived pairs unfiltered.
func (r *Resolver) validPairs(ctx context.Context) map[string]struct{} {
	info, err := r.metadata.ExchangeInfo(ctx)
	if err != nil {
		r.logger.Warn("live exchange metadata unavailable, trying local snapshot",
			"error", err,
			"fallback", r.fallbackPath,
		)
		info, err = r.loadFallback()
		if err != nil {
			r.logger.Warn("no exchange metadata available, pair filtering disabled", "error", err)
			return nil
		}
	}

	pairs := make(map[string]struct{}, len(info.Symbols))
	for _, s := range info.Symbols {
		pairs[s.Symbol] = struct{}{}
	}
	return pairs
}

// loadFallback reads the cached exchangeInfo snapshot from disk.
func (r *Resolver) loadFallback() (*exchange.ExchangeInfo, error) {
	if r.fallbackPath == "" {
		return nil, fmt.Errorf("no fallback snapshot configured")
	}
	data, err := os.ReadFile(r.fallbackPath)
	if err != nil {
		return nil, fmt.Errorf("read fallback snapshot: %w", err)
	}
	var info exchange.ExchangeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse fallback snapshot: %w", err)
	}
	return &info, nil
}

// PairID maps a base asset ticker onto its USDT pair identifier.
func PairID(symbol string) string {
	return strings.ToUpper(symbol) + QuoteAsset
}

// blocked reports whether a candidate name matches the blocklist.
func blocked(name string) bool {
	lower := strings.ToLower(name)
	for _, substr := range blocklist {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}
