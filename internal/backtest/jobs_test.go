package backtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	saved   []*FetchResult
	sources []string
	err     error
}

func (m *memorySink) SaveResult(_ context.Context, res *FetchResult, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.saved = append(m.saved, res)
	m.sources = append(m.sources, source)
	return len(res.Candles), nil
}

func TestJobServiceRejectsUnsupportedInterval(t *testing.T) {
	src := &scriptedSource{}
	h := newHarness(src)
	svc, err := NewJobService(JobServiceConfig{History: h.history(t, HistoryConfig{})})
	require.NoError(t, err)

	for _, iv := range []string{"3m", "1M", "1H"} {
		_, err = svc.Submit(FetchParams{Symbol: "SOLUSDT", Interval: iv, DaysBack: 1})
		require.ErrorIs(t, err, ErrUnsupportedInterval, iv)
	}
	svc.Wait()
	assert.Zero(t, src.calls())
	assert.Empty(t, svc.JobsSnapshot())
}

func TestJobServiceRunsAndStores(t *testing.T) {
	src := &scriptedSource{}
	h := newHarness(src)
	nowMs := h.now.UnixMilli()
	src.responses = []scriptedResponse{{candles: hourly(nowMs-23*hourMs, 24)}}
	sink := &memorySink{}
	svc, err := NewJobService(JobServiceConfig{History: h.history(t, HistoryConfig{}), Sink: sink})
	require.NoError(t, err)

	job, err := svc.Submit(FetchParams{Symbol: "sol/usdt", Interval: "1h"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "SOLUSDT", job.Params.Symbol)
	assert.Equal(t, "1h", job.Params.Interval)
	assert.Equal(t, 730, job.Params.DaysBack)
	svc.Wait()

	got, ok := svc.JobSnapshot(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobStatusDone, got.Status)
	assert.Equal(t, 24, got.Collected)
	assert.Equal(t, 24, got.Stored)
	assert.Equal(t, 1, got.Batches)
	require.NotNil(t, got.Result)
	assert.Equal(t, StopLiveEdge, got.Result.Stop)
	assert.Nil(t, got.Result.Candles)

	require.Len(t, sink.saved, 1)
	assert.Len(t, sink.saved[0].Candles, 24)
	assert.Equal(t, []string{"scripted"}, sink.sources)
}

func TestJobServiceFailureStates(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		src := &scriptedSource{responses: []scriptedResponse{{err: errors.New("boom")}}}
		h := newHarness(src)
		svc, err := NewJobService(JobServiceConfig{History: h.history(t, HistoryConfig{})})
		require.NoError(t, err)

		job, err := svc.Submit(FetchParams{Symbol: "BTCUSDT", Interval: "1d", DaysBack: 3})
		require.NoError(t, err)
		svc.Wait()
		got, _ := svc.JobSnapshot(job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Contains(t, got.Message, ErrNoData.Error())
	})

	t.Run("sink error", func(t *testing.T) {
		src := &scriptedSource{}
		h := newHarness(src)
		src.responses = []scriptedResponse{{candles: hourly(h.now.UnixMilli()-2*hourMs, 3)}}
		sink := &memorySink{err: errors.New("disk full")}
		svc, err := NewJobService(JobServiceConfig{History: h.history(t, HistoryConfig{}), Sink: sink})
		require.NoError(t, err)

		job, err := svc.Submit(FetchParams{Symbol: "BTCUSDT", Interval: "1h", DaysBack: 1})
		require.NoError(t, err)
		svc.Wait()
		got, _ := svc.JobSnapshot(job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Contains(t, got.Message, "disk full")
		assert.NotNil(t, got.Result)
	})
}

func TestJobServiceCanceledContext(t *testing.T) {
	src := &scriptedSource{}
	h := newHarness(src)
	svc, err := NewJobService(JobServiceConfig{History: h.history(t, HistoryConfig{})})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.SetContext(ctx)
	// 占满信号量，保证任务只能走到取消分支
	svc.sem <- struct{}{}

	job, err := svc.Submit(FetchParams{Symbol: "BTCUSDT", Interval: "1h", DaysBack: 1})
	require.NoError(t, err)
	svc.Wait()
	<-svc.sem

	got, _ := svc.JobSnapshot(job.ID)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Zero(t, src.calls())
}

func TestNewJobServiceRequiresHistory(t *testing.T) {
	_, err := NewJobService(JobServiceConfig{})
	assert.Error(t, err)
}
