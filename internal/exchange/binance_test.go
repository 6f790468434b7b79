package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientKlines(t *testing.T) {
	openMs := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	var captured *http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([][]any{
			{openMs, "42000.5", "43100", "41800", "42950", "1234.5",
				openMs + 86_399_999, "52341234", 98765, "617", "26170617", "0"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	start := time.UnixMilli(openMs)
	end := start.Add(10 * 24 * time.Hour)

	rows, err := client.Klines(context.Background(), "BTCUSDT", start, end, 500)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "42000.5", rows[0][1])

	require.NotNil(t, captured)
	assert.Equal(t, "/api/v3/klines", captured.URL.Path)

	query := captured.URL.Query()
	assert.Equal(t, "BTCUSDT", query.Get("symbol"))
	assert.Equal(t, "1d", query.Get("interval"))
	assert.Equal(t, "500", query.Get("limit"))
	assert.Equal(t, "1704067200000", query.Get("startTime"))
}

func TestClientKlinesClampsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Klines(context.Background(), "BTCUSDT", time.Now().Add(-time.Hour), time.Now(), 5000)
	require.NoError(t, err)
}

func TestClientKlinesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Klines(context.Background(), "NOPEUSDT", time.Now().Add(-time.Hour), time.Now(), 1000)
	assert.Error(t, err)
}

func TestClientKlinesMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a sequence"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Klines(context.Background(), "BTCUSDT", time.Now().Add(-time.Hour), time.Now(), 1000)
	assert.Error(t, err)
}

func TestClientExchangeInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{"timezone":"UTC","symbols":[{"symbol":"BTCUSDT","status":"TRADING"},{"symbol":"ETHBTC"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	info, err := client.ExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Symbols, 2)
	assert.Equal(t, "BTCUSDT", info.Symbols[0].Symbol)
}

func TestClientExchangeInfoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down before use

	client := NewClient(srv.URL, nil)
	_, err := client.ExchangeInfo(context.Background())
	assert.Error(t, err)
}
