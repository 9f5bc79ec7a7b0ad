package app

import (
	"context"
	"fmt"

	"candlepull/internal/backtest"
	brcfg "candlepull/internal/config"
	"candlepull/internal/logger"
	"candlepull/internal/store/gormstore"
	backtesthttp "candlepull/internal/transport/http/backtest"

	"golang.org/x/sync/errgroup"
)

// APIApp 暴露拉取任务与本地数据的 HTTP 服务。
type APIApp struct {
	jobs   *backtest.JobService
	store  *gormstore.CandleStore
	server *backtesthttp.Server
}

// NewAPIApp 根据配置构建 API 应用（不启动）。
func NewAPIApp(cfg *brcfg.Config) (*APIApp, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAPIWithWire(context.Background(), cfg)
}

func newAPIApp(cfg *brcfg.Config, hist *backtest.History, st *gormstore.CandleStore) (*APIApp, error) {
	jobs, err := backtest.NewJobService(backtest.JobServiceConfig{
		History:         hist,
		Sink:            st,
		MaxConcurrent:   cfg.API.MaxConcurrent,
		DefaultDaysBack: cfg.Fetch.DaysBack,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	server, err := backtesthttp.NewServer(backtesthttp.Config{
		Addr:  cfg.API.Addr,
		Jobs:  jobs,
		Store: st,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &APIApp{jobs: jobs, store: st, server: server}, nil
}

// Run 启动 HTTP 服务，ctx 取消后等待在途任务结束再关闭存储。
func (a *APIApp) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("api app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)
	a.jobs.SetContext(ctx)
	logger.Infof("✓ candlepull API 监听 %s", a.server.Addr())

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		a.jobs.Wait()
		return nil
	})
	err := group.Wait()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
