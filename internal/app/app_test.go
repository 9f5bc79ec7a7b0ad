package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"candlepull/internal/backtest"
	brcfg "candlepull/internal/config"
	"candlepull/internal/export"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type binanceStub struct {
	srv   *httptest.Server
	calls atomic.Int32
}

// newBinanceStub 返回截止到 endTime 的 n 根小时 K 线。
func newBinanceStub(t *testing.T, n int, status int) *binanceStub {
	t.Helper()
	stub := &binanceStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
			return
		}
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		step := int64(time.Hour / time.Millisecond)
		rows := make([]string, 0, n)
		for i := 0; i < n; i++ {
			open := end - int64(n-1-i)*step
			p := 100 + i
			rows = append(rows, fmt.Sprintf(`[%d,"%d.5","%d.0","%d.0","%d.25","10",%d,"0",1,"0","0","0"]`,
				open, p, p+2, p-1, p+1, open+step-1))
		}
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func testConfig(t *testing.T, baseURL string) *brcfg.Config {
	dir := t.TempDir()
	return &brcfg.Config{
		App: brcfg.AppConfig{Env: "test", LogLevel: "warn"},
		Fetch: brcfg.FetchConfig{
			Symbol:          "SOL/USDT",
			Interval:        "1h",
			DaysBack:        730,
			BatchLimit:      1000,
			PauseMs:         1,
			LiveEdgeMinutes: 60,
		},
		Source: brcfg.SourceConfig{
			Kind:           brcfg.SourceKindREST,
			RESTBaseURL:    baseURL,
			TimeoutSeconds: 5,
		},
		Output: brcfg.OutputConfig{
			CSVPath:     filepath.Join(dir, "sol_1h_data.csv"),
			Manifest:    true,
			ChartHTML:   filepath.Join(dir, "chart.html"),
			PreviewRows: 3,
		},
		Store: brcfg.StoreConfig{Enabled: true, Path: filepath.Join(dir, "candles.db")},
	}
}

func buildTestApp(t *testing.T, cfg *brcfg.Config, out *bytes.Buffer) *App {
	t.Helper()
	a, err := NewAppBuilder(cfg,
		WithOutput(out),
		WithClock(backtest.ClockFunc(func() time.Time { return testNow })),
		WithSleeper(func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }),
	).Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppRunWritesArtifacts(t *testing.T) {
	stub := newBinanceStub(t, 48, http.StatusOK)
	cfg := testConfig(t, stub.srv.URL)
	var out bytes.Buffer
	a := buildTestApp(t, cfg, &out)

	require.NoError(t, a.Run(context.Background()))
	assert.EqualValues(t, 1, stub.calls.Load())

	raw, err := os.ReadFile(cfg.Output.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 49)
	assert.Equal(t, "timestamp,Open,High,Low,Close", lines[0])
	assert.Equal(t, "2024-05-30 13:00:00,100.5,102,99,101.25", lines[1])
	assert.True(t, strings.HasPrefix(lines[48], "2024-06-01 12:00:00,"))

	m, err := export.ReadManifestFile(cfg.Output.ManifestPath())
	require.NoError(t, err)
	assert.Equal(t, 48, m.Rows)
	assert.Equal(t, "live_edge", m.StopReason)
	assert.Equal(t, "binance-rest", m.Source)

	_, err = os.Stat(cfg.Output.ChartHTML)
	assert.NoError(t, err)

	info, err := a.store.Manifest(context.Background(), "SOLUSDT", "1h")
	require.NoError(t, err)
	assert.EqualValues(t, 48, info.Rows)

	text := out.String()
	assert.Contains(t, text, "Binance Historical Data Fetcher (OHLC only)")
	assert.Contains(t, text, "✓ Total candles fetched: 48")
	assert.Contains(t, text, "✓ Date range: 2024-05-30 13:00:00 to 2024-06-01 12:00:00")
	assert.Contains(t, text, "First 3 rows:")
	assert.Contains(t, text, "Data Summary:")
	assert.Contains(t, text, "count")
	assert.Contains(t, text, "✓ Success!")
}

func TestAppRunNoData(t *testing.T) {
	stub := newBinanceStub(t, 0, http.StatusTooManyRequests)
	cfg := testConfig(t, stub.srv.URL)
	cfg.Store.Enabled = false
	var out bytes.Buffer
	a := buildTestApp(t, cfg, &out)

	err := a.Run(context.Background())
	require.ErrorIs(t, err, backtest.ErrNoData)
	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Contains(t, out.String(), "✗ Failed to fetch data.")
	_, statErr := os.Stat(cfg.Output.CSVPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAppRunUnsupportedInterval(t *testing.T) {
	stub := newBinanceStub(t, 10, http.StatusOK)
	cfg := testConfig(t, stub.srv.URL)
	cfg.Fetch.Interval = "3m"
	cfg.Store.Enabled = false
	var out bytes.Buffer
	a := buildTestApp(t, cfg, &out)

	err := a.Run(context.Background())
	require.ErrorIs(t, err, backtest.ErrUnsupportedInterval)
	assert.Zero(t, stub.calls.Load())
}

func TestBuildCandleSourceKinds(t *testing.T) {
	src, err := buildCandleSource(brcfg.SourceConfig{Kind: brcfg.SourceKindREST})
	require.NoError(t, err)
	assert.Equal(t, "binance-rest", src.Name())

	src, err = buildCandleSource(brcfg.SourceConfig{Kind: brcfg.SourceKindSDK})
	require.NoError(t, err)
	assert.Equal(t, "binance-sdk", src.Name())

	_, err = buildCandleSource(brcfg.SourceConfig{Kind: "ftp"})
	assert.Error(t, err)
}

func TestBuildAPI(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.API = brcfg.APIConfig{Addr: "127.0.0.1:0", MaxConcurrent: 1}
	api, err := NewAppBuilder(cfg).BuildAPI(context.Background())
	require.NoError(t, err)
	require.NotNil(t, api.server)
	assert.Equal(t, "127.0.0.1:0", api.server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, api.Run(ctx))
}
