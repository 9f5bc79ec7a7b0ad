package backtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKlines = `[
  [1704067200000,"101.50000000","102.00000000","100.25000000","101.75000000","1234.5",1704070799999,"125000.1",321,"600.1","61000.2","0"],
  [1704070800000,"101.75000000","103.10000000","101.00000000","102.90000000","987.6",1704074399999,"100100.0",210,"400.0","40800.0","0"]
]`

func newTestSource(t *testing.T, handler http.HandlerFunc) (*BinanceSource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src, err := NewBinanceSource(SourceOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	return src, srv
}

func TestBinanceSourceFetch(t *testing.T) {
	var got url.Values
	var path string
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleKlines))
	})

	candles, err := src.Fetch(context.Background(), FetchRequest{
		Symbol:   "SOL/USDT",
		Interval: "1h",
		Start:    1704067200000,
		End:      1704153600000,
		Limit:    1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v3/klines", path)
	assert.Equal(t, "SOLUSDT", got.Get("symbol"))
	assert.Equal(t, "1h", got.Get("interval"))
	assert.Equal(t, "1000", got.Get("limit"))
	assert.Equal(t, "1704067200000", got.Get("startTime"))
	assert.Equal(t, "1704153600000", got.Get("endTime"))

	require.Len(t, candles, 2)
	assert.Equal(t, int64(1704067200000), candles[0].OpenTime)
	assert.Equal(t, 101.5, candles[0].Open)
	assert.Equal(t, 102.0, candles[0].High)
	assert.Equal(t, 100.25, candles[0].Low)
	assert.Equal(t, 101.75, candles[0].Close)
	assert.Equal(t, 102.9, candles[1].Close)
}

func TestBinanceSourceOmitsZeroBounds(t *testing.T) {
	var got url.Values
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	})
	candles, err := src.Fetch(context.Background(), FetchRequest{Symbol: "SOLUSDT", Interval: "1h"})
	require.NoError(t, err)
	assert.Empty(t, candles)
	assert.False(t, got.Has("startTime"))
	assert.False(t, got.Has("endTime"))
	assert.Equal(t, "1000", got.Get("limit"))
}

func TestBinanceSourceAPIError(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})
	_, err := src.Fetch(context.Background(), FetchRequest{Symbol: "NOPE", Interval: "1h"})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, int64(-1121), apiErr.Code)
	assert.Equal(t, "Invalid symbol.", apiErr.Message)
	assert.Contains(t, err.Error(), "400")
}

func TestBinanceSourcePlainTextError(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := src.Fetch(context.Background(), FetchRequest{Symbol: "SOLUSDT", Interval: "1h"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.Zero(t, apiErr.Code)
}

func TestBinanceSourceMalformedBodies(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"code":0}`,
		`[[1704067200000,"1.0","2.0"]]`,
		`[["x","1.0","2.0","0.5","1.5"]]`,
		`[[1704067200000,"abc","2.0","0.5","1.5"]]`,
	}
	for _, body := range bodies {
		body := body
		src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		_, err := src.Fetch(context.Background(), FetchRequest{Symbol: "SOLUSDT", Interval: "1h"})
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}

func TestBinanceSourceTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()
	src, err := NewBinanceSource(SourceOptions{BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), FetchRequest{Symbol: "SOLUSDT", Interval: "1h"})
	assert.Error(t, err)
}

func TestBinanceSourceRequiresSymbol(t *testing.T) {
	src, err := NewBinanceSource(SourceOptions{})
	require.NoError(t, err)
	assert.Equal(t, "binance-rest", src.Name())
	_, err = src.Fetch(context.Background(), FetchRequest{Interval: "1h"})
	assert.Error(t, err)
}

func TestNewHTTPClientProxy(t *testing.T) {
	client, err := NewHTTPClient(0, "http://127.0.0.1:8888")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.Timeout)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, tr.Proxy)

	_, err = NewHTTPClient(time.Second, "://bad")
	assert.Error(t, err)
}

func TestNewRequestLimiter(t *testing.T) {
	assert.Nil(t, NewRequestLimiter(0))
	lim := NewRequestLimiter(1200)
	require.NotNil(t, lim)
	assert.InDelta(t, 20.0, float64(lim.Limit()), 1e-9)
}

func TestParseKline(t *testing.T) {
	c, err := ParseKline(1, "1.10", "2", "0.5", "1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.1, c.Open)
	_, err = ParseKline(1, "", "2", "0.5", "1.5")
	assert.Error(t, err)
}
