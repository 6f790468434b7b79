// Package models provides the data structures for daily OHLCV market data.
// It contains the candle row shape written to the store, the coin candidate
// snapshot read from the store, and the conversion from raw Binance kline
// arrays into candles.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// KlineFieldCount is the number of positional fields a raw kline row must
// carry. Binance appends a trailing "ignore" field, so rows may be longer.
const KlineFieldCount = 11

// Candle represents one daily OHLCV row for a trading pair.
// The natural key is (Symbol, OpenTime); upserts overwrite on conflict.
type Candle struct {
	Symbol             string    `json:"symbol"`
	OpenTime           time.Time `json:"open_time"`
	CloseTime          time.Time `json:"close_time"`
	Open               string    `json:"open"`
	High               string    `json:"high"`
	Low                string    `json:"low"`
	Close              string    `json:"close"`
	Volume             string    `json:"volume"`
	QuoteAssetVolume   string    `json:"quote_asset_volume"`
	NumberOfTrades     int64     `json:"number_of_trades"`
	TakerBuyBaseVolume string    `json:"taker_buy_base_volume"`
	TakerBuyQuoteVol   string    `json:"taker_buy_quote_volume"`
}

// Coin is one row of the candidate snapshot: a base asset ranked by market
// capitalization. Read-only input to the symbol universe resolver.
type Coin struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	MarketCap float64 `json:"market_cap"`
}

// ValidationError reports a candle field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks that the candle carries a usable key and parseable decimal
// price and volume fields. It does not enforce OHLC price relationships;
// the exchange is the source of truth for those.
func (c *Candle) Validate() error {
	if c.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if c.OpenTime.IsZero() {
		return &ValidationError{Field: "open_time", Message: "open_time cannot be zero"}
	}
	fields := []struct {
		name  string
		value string
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
		{"volume", c.Volume},
		{"quote_asset_volume", c.QuoteAssetVolume},
		{"taker_buy_base_volume", c.TakerBuyBaseVolume},
		{"taker_buy_quote_volume", c.TakerBuyQuoteVol},
	}
	for _, field := range fields {
		d, err := decimal.NewFromString(field.value)
		if err != nil {
			return &ValidationError{Field: field.name, Message: fmt.Sprintf("invalid decimal %q: %v", field.value, err)}
		}
		if d.IsNegative() {
			return &ValidationError{Field: field.name, Message: "value must not be negative"}
		}
	}
	if c.NumberOfTrades < 0 {
		return &ValidationError{Field: "number_of_trades", Message: "trade count must not be negative"}
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Symbol: %s, OpenTime: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.Symbol, c.OpenTime.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// CandleFromKline maps one raw Binance kline row onto the candle shape.
// Raw rows are fixed-position arrays: open time (ms), open, high, low, close,
// volume, close time (ms), quote asset volume, number of trades, taker buy
// base volume, taker buy quote volume. Timestamps convert to UTC instants.
func CandleFromKline(symbol string, row []any) (Candle, error) {
	if len(row) < KlineFieldCount {
		return Candle{}, fmt.Errorf("kline row has %d fields, want at least %d", len(row), KlineFieldCount)
	}

	openMs, err := klineInt(row[0])
	if err != nil {
		return Candle{}, fmt.Errorf("open time: %w", err)
	}
	closeMs, err := klineInt(row[6])
	if err != nil {
		return Candle{}, fmt.Errorf("close time: %w", err)
	}
	trades, err := klineInt(row[8])
	if err != nil {
		return Candle{}, fmt.Errorf("number of trades: %w", err)
	}

	candle := Candle{
		Symbol:         symbol,
		OpenTime:       time.UnixMilli(openMs).UTC(),
		CloseTime:      time.UnixMilli(closeMs).UTC(),
		NumberOfTrades: trades,
	}

	decimals := []struct {
		index int
		name  string
		dst   *string
	}{
		{1, "open", &candle.Open},
		{2, "high", &candle.High},
		{3, "low", &candle.Low},
		{4, "close", &candle.Close},
		{5, "volume", &candle.Volume},
		{7, "quote asset volume", &candle.QuoteAssetVolume},
		{9, "taker buy base volume", &candle.TakerBuyBaseVolume},
		{10, "taker buy quote volume", &candle.TakerBuyQuoteVol},
	}
	for _, field := range decimals {
		value, err := klineDecimal(row[field.index])
		if err != nil {
			return Candle{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = value
	}

	return candle, nil
}

// klineInt extracts an integer field from a decoded kline row. JSON numbers
// decode as float64; millisecond epochs stay well within float64 precision.
func klineInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T for integer field", v)
	}
}

// klineDecimal extracts a decimal field, normalizing through shopspring
// decimal so malformed values are rejected at the boundary.
func klineDecimal(v any) (string, error) {
	switch s := v.(type) {
	case string:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		return d.String(), nil
	case float64:
		return decimal.NewFromFloat(s).String(), nil
	default:
		return "", fmt.Errorf("unexpected type %T for decimal field", v)
	}
}
