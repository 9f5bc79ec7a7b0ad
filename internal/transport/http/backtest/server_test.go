package backtesthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"candlepull/internal/backtest"
	"candlepull/internal/market"
	"candlepull/internal/store/gormstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	calls atomic.Int32
}

func (s *stubSource) Fetch(_ context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	s.calls.Add(1)
	step := int64(time.Hour / time.Millisecond)
	first := req.End - 2*step
	out := make([]market.Candle, 3)
	for i := range out {
		v := 10 + float64(i)
		out[i] = market.Candle{OpenTime: first + int64(i)*step, Open: v, High: v + 1, Low: v - 1, Close: v + 0.5}
	}
	return out, nil
}

func (s *stubSource) Name() string { return "stub" }

type fixture struct {
	srv   *Server
	jobs  *backtest.JobService
	store *gormstore.CandleStore
	src   *stubSource
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	src := &stubSource{}
	hist, err := backtest.NewHistory(backtest.HistoryConfig{
		Source: src,
		Clock:  backtest.ClockFunc(func() time.Time { return fixedNow }),
		Sleep:  func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil },
	})
	require.NoError(t, err)

	f := &fixture{src: src}
	cfg := Config{Addr: "127.0.0.1:0"}
	jobCfg := backtest.JobServiceConfig{History: hist}
	if withStore {
		st, err := gormstore.NewCandleStore(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		f.store = st
		jobCfg.Sink = st
		cfg.Store = st
	}
	f.jobs, err = backtest.NewJobService(jobCfg)
	require.NoError(t, err)
	cfg.Jobs = f.jobs
	f.srv, err = NewServer(cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestFetchRejectsUnsupportedInterval(t *testing.T) {
	f := newFixture(t, true)
	for _, iv := range []string{"3m", "1M", "1H"} {
		rec := f.do(t, http.MethodPost, "/api/fetch", map[string]any{"symbol": "SOLUSDT", "interval": iv})
		assert.Equal(t, http.StatusBadRequest, rec.Code, iv)
		assert.Contains(t, rec.Body.String(), "unsupported interval", iv)
	}
	f.jobs.Wait()
	assert.Zero(t, f.src.calls.Load())
}

func TestFetchRequiresFields(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/fetch", map[string]any{"symbol": "SOLUSDT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchLifecycle(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/api/fetch", map[string]any{"symbol": "sol/usdt", "interval": "1h", "days_back": 2})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var submitted struct {
		Job backtest.FetchJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Job.ID)
	f.jobs.Wait()

	rec = f.do(t, http.MethodGet, "/api/fetch/"+submitted.Job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Job backtest.FetchJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, backtest.JobStatusDone, status.Job.Status)
	assert.Equal(t, 3, status.Job.Stored)

	rec = f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), submitted.Job.ID)

	rec = f.do(t, http.MethodGet, "/api/data?symbol=SOLUSDT&interval=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var manifest struct {
		Manifest gormstore.Manifest `json:"manifest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
	assert.EqualValues(t, 3, manifest.Manifest.Rows)

	rec = f.do(t, http.MethodGet, "/api/candles?symbol=SOLUSDT&timeframe=1h&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var candles struct {
		Candles []market.Candle `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candles))
	assert.Len(t, candles.Candles, 2)

	rec = f.do(t, http.MethodGet, "/api/candles/export?symbol=SOLUSDT&interval=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sol_1h_data.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "timestamp,Open,High,Low,Close", lines[0])
	assert.Equal(t, "2024-06-01 10:00:00,10,11,9,10.5", lines[1])

	rec = f.do(t, http.MethodGet, "/api/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stop_reason":"live_edge"`)
}

func TestUnknownJobAndBadQueries(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/fetch/nope", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/candles?symbol=SOLUSDT", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/candles?symbol=SOLUSDT&interval=3m", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/candles?symbol=SOLUSDT&interval=1h&limit=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/candles/export?symbol=ETHUSDT&interval=1h", nil).Code)
}

func TestStoreDisabled(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/data?symbol=SOLUSDT&interval=1h", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/runs", nil).Code)

	rec := f.do(t, http.MethodGet, "/api/intervals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"1s"`)
}
