package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"candlepull/internal/backtest"
	brcfg "candlepull/internal/config"
	binancegw "candlepull/internal/gateway/binance"
	"candlepull/internal/logger"
	"candlepull/internal/store/gormstore"
)

type AppBuilder struct {
	cfg *brcfg.Config

	sourceFn func(brcfg.SourceConfig) (backtest.CandleSource, error)
	storeFn  func(brcfg.StoreConfig) (*gormstore.CandleStore, error)

	clock backtest.Clock
	sleep backtest.Sleeper
	out   io.Writer
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildCandleSource,
		storeFn:  buildCandleStore,
		out:      stdout(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	hist, err := b.buildHistory()
	if err != nil {
		return nil, err
	}
	var st *gormstore.CandleStore
	if b.cfg.Store.Enabled {
		st, err = b.storeFn(b.cfg.Store)
		if err != nil {
			return nil, err
		}
	}
	now := time.Now
	if b.clock != nil {
		now = b.clock.Now
	}
	return &App{
		cfg:     b.cfg,
		history: hist,
		store:   st,
		out:     b.out,
		now:     now,
	}, nil
}

// BuildAPI 组装 HTTP API 所需的任务服务与存储；API 模式下存储总是开启。
func (b *AppBuilder) BuildAPI(ctx context.Context) (*APIApp, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	hist, err := b.buildHistory()
	if err != nil {
		return nil, err
	}
	st, err := b.storeFn(b.cfg.Store)
	if err != nil {
		return nil, err
	}
	return newAPIApp(b.cfg, hist, st)
}

func (b *AppBuilder) buildHistory() (*backtest.History, error) {
	src, err := b.sourceFn(b.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("初始化数据源失败: %w", err)
	}
	fc := b.cfg.Fetch
	hist, err := backtest.NewHistory(backtest.HistoryConfig{
		Source:     src,
		Clock:      b.clock,
		Sleep:      b.sleep,
		BatchLimit: fc.BatchLimit,
		Pause:      fc.Pause(),
		LiveEdge:   fc.LiveEdge(),
	})
	if err != nil {
		return nil, err
	}
	logger.Debugf("✓ 数据源 %s（batch=%d pause=%s live_edge=%s）", src.Name(), fc.BatchLimit, fc.Pause(), fc.LiveEdge())
	return hist, nil
}

func buildCandleSource(cfg brcfg.SourceConfig) (backtest.CandleSource, error) {
	switch cfg.Kind {
	case brcfg.SourceKindSDK:
		src, err := binancegw.New(binancegw.Config{
			RESTBaseURL:     cfg.RESTBaseURL,
			HTTPTimeout:     cfg.Timeout(),
			ProxyEnabled:    cfg.Proxy.Enabled,
			RESTProxyURL:    cfg.Proxy.RESTURL,
			RateLimitPerMin: cfg.RateLimitPerMin,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case brcfg.SourceKindREST, "":
		src, err := backtest.NewBinanceSource(backtest.SourceOptions{
			BaseURL:         cfg.RESTBaseURL,
			Timeout:         cfg.Timeout(),
			RateLimitPerMin: cfg.RateLimitPerMin,
			ProxyURL:        cfg.ProxyURL(),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("未知 source.kind: %s", cfg.Kind)
	}
}

func buildCandleStore(cfg brcfg.StoreConfig) (*gormstore.CandleStore, error) {
	st, err := gormstore.NewCandleStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("初始化 sqlite 失败: %w", err)
	}
	return st, nil
}

// WithCandleSource 替换数据源构造函数（测试或自定义数据源）。
func WithCandleSource(fn func(brcfg.SourceConfig) (backtest.CandleSource, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sourceFn = fn
		}
	}
}

func WithClock(clock backtest.Clock) AppBuilderOption {
	return func(b *AppBuilder) {
		b.clock = clock
	}
}

func WithSleeper(sleep backtest.Sleeper) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sleep = sleep
	}
}

// WithOutput 重定向控制台输出。
func WithOutput(w io.Writer) AppBuilderOption {
	return func(b *AppBuilder) {
		if w != nil {
			b.out = w
		}
	}
}
