package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlepull/internal/logger"
	"candlepull/internal/market"
	"candlepull/internal/pkg/symbol"
)

const (
	DefaultBatchPause = 500 * time.Millisecond
	DefaultLiveEdge   = time.Hour
)

// Clock 提供当前时间，测试中可替换。
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock 使用真实时间。
var SystemClock Clock = ClockFunc(time.Now)

// Sleeper 在两次请求之间等待；返回 false 表示 ctx 已结束。
type Sleeper func(ctx context.Context, d time.Duration) bool

func SleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// StopReason 说明一次拉取为何结束。
type StopReason string

const (
	StopLiveEdge         StopReason = "live_edge"
	StopHistoryExhausted StopReason = "history_exhausted"
	StopEmptyBatch       StopReason = "empty_batch"
	StopFetchFailed      StopReason = "fetch_failed"
	StopWindowEnd        StopReason = "window_end"
	StopStalled          StopReason = "stalled"
	StopCanceled         StopReason = "canceled"
)

// HistoryConfig 配置 History。零值字段使用默认值。
type HistoryConfig struct {
	Source     CandleSource
	Clock      Clock
	Sleep      Sleeper
	BatchLimit int
	Pause      time.Duration
	LiveEdge   time.Duration
}

// History 从窗口起点逐批向后翻页，直到追上当前时间或数据源没有更多数据。
// 同一时刻只有一个请求在途。
type History struct {
	source     CandleSource
	clock      Clock
	sleep      Sleeper
	batchLimit int
	pause      time.Duration
	liveEdge   time.Duration
}

func NewHistory(cfg HistoryConfig) (*History, error) {
	if cfg.Source == nil {
		return nil, errors.New("candle source 不能为空")
	}
	h := &History{
		source:     cfg.Source,
		clock:      cfg.Clock,
		sleep:      cfg.Sleep,
		batchLimit: cfg.BatchLimit,
		pause:      cfg.Pause,
		liveEdge:   cfg.LiveEdge,
	}
	if h.clock == nil {
		h.clock = SystemClock
	}
	if h.sleep == nil {
		h.sleep = SleepWithContext
	}
	if h.batchLimit <= 0 || h.batchLimit > MaxBatchLimit {
		h.batchLimit = MaxBatchLimit
	}
	if h.pause <= 0 {
		h.pause = DefaultBatchPause
	}
	if h.liveEdge <= 0 {
		h.liveEdge = DefaultLiveEdge
	}
	return h, nil
}

// SourceName 返回底层数据源名称。
func (h *History) SourceName() string { return h.source.Name() }

// BatchProgress 是每成功拉取一批后的进度快照。
type BatchProgress struct {
	Batch        int
	Fetched      int
	Collected    int
	LastOpenTime int64
}

type fetchOptions struct {
	progress func(BatchProgress)
}

type FetchOption func(*fetchOptions)

// WithProgress 注册每批回调（在拉取 goroutine 中同步调用）。
func WithProgress(fn func(BatchProgress)) FetchOption {
	return func(o *fetchOptions) { o.progress = fn }
}

// FetchResult 是一次完整拉取的结果。Candles 已去重并升序。
type FetchResult struct {
	Symbol   string         `json:"symbol"`
	Interval string         `json:"interval"`
	Start    int64          `json:"start"`
	End      int64          `json:"end"`
	Requests int            `json:"requests"`
	Batches  int            `json:"batches"`
	Stop     StopReason     `json:"stop_reason"`
	Candles  market.Candles `json:"-"`
}

// FetchAll 拉取 [now-daysBack, now) 的全部 K 线。
// 周期不支持时直接返回 ErrUnsupportedInterval，不发起请求；
// 单批失败只结束循环，已拿到的数据照常返回；一根都没拿到时返回 ErrNoData。
func (h *History) FetchAll(ctx context.Context, pair, interval string, daysBack int, opts ...FetchOption) (*FetchResult, error) {
	tf, err := ParseTimeframe(interval)
	if err != nil {
		return nil, err
	}
	pair = symbol.ToBinance(pair)
	if pair == "" {
		return nil, errors.New("symbol 不能为空")
	}
	if daysBack <= 0 {
		return nil, fmt.Errorf("days_back 必须大于 0: %d", daysBack)
	}
	var o fetchOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	now := h.clock.Now()
	end := now.UnixMilli()
	start := now.Add(-time.Duration(daysBack) * 24 * time.Hour).UnixMilli()
	res := &FetchResult{
		Symbol:   pair,
		Interval: tf.Key,
		Start:    start,
		End:      end,
		Stop:     StopWindowEnd,
	}
	logger.Infof("Fetching %s %s data from %s to %s via %s", pair, tf.Key,
		time.UnixMilli(start).UTC().Format(market.TimeLayout),
		time.UnixMilli(end).UTC().Format(market.TimeLayout),
		h.source.Name())
	logger.Infof("Expected candles: ~%d", tf.ExpectedCandles(start, end))

	step := tf.Millis()
	var batches [][]market.Candle
	collected := 0
	cursor := start
	for cursor < end {
		if ctx.Err() != nil {
			res.Stop = StopCanceled
			break
		}
		res.Requests++
		batch, err := h.source.Fetch(ctx, FetchRequest{
			Symbol:   pair,
			Interval: tf.Key,
			Start:    cursor,
			End:      end,
			Limit:    h.batchLimit,
		})
		if err != nil {
			res.Stop = StopFetchFailed
			if ctx.Err() != nil {
				res.Stop = StopCanceled
			}
			logger.Errorf("Error fetching data (request %d, %s): %v", res.Requests, h.source.Name(), err)
			break
		}
		if len(batch) == 0 {
			res.Stop = StopEmptyBatch
			logger.Infof("No more data available")
			break
		}

		batches = append(batches, batch)
		res.Batches++
		collected += len(batch)
		last := batch[len(batch)-1]
		next := last.OpenTime + step
		logger.Infof("Request %d: Fetched %d candles (up to %s)", res.Batches, len(batch), last.TimeString())
		if o.progress != nil {
			o.progress(BatchProgress{
				Batch:        res.Batches,
				Fetched:      len(batch),
				Collected:    collected,
				LastOpenTime: last.OpenTime,
			})
		}

		if len(batch) < h.batchLimit {
			// 短批次：离现在不足 liveEdge 视为追上实时，否则视为历史到头；两者都结束循环
			if h.clock.Now().UnixMilli()-last.OpenTime < h.liveEdge.Milliseconds() {
				res.Stop = StopLiveEdge
				logger.Infof("✓ Reached the most recent data")
			} else {
				res.Stop = StopHistoryExhausted
				logger.Infof("⚠ No more historical data available (stopped at %s)", last.Time().Format(time.DateOnly))
			}
			break
		}
		if next <= cursor {
			res.Stop = StopStalled
			logger.Warnf("cursor 未前进 (%d -> %d)，停止拉取", cursor, next)
			break
		}
		cursor = next
		if cursor >= end {
			break
		}
		if !h.sleep(ctx, h.pause) {
			res.Stop = StopCanceled
			break
		}
	}

	if len(batches) == 0 {
		logger.Errorf("✗ No data fetched")
		return nil, fmt.Errorf("%w: %s %s (%s)", ErrNoData, pair, tf.Key, res.Stop)
	}
	res.Candles = market.Merge(batches...)
	first, lastTs := res.Candles.Span()
	logger.Infof("✓ Total candles: %d (%d requests, stop=%s)", len(res.Candles), res.Requests, res.Stop)
	logger.Infof("Date range: %s to %s",
		time.UnixMilli(first).UTC().Format(market.TimeLayout),
		time.UnixMilli(lastTs).UTC().Format(market.TimeLayout))
	return res, nil
}
