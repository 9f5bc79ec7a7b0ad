package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"candlepull/internal/analysis/visual"
	"candlepull/internal/backtest"
	brcfg "candlepull/internal/config"
	"candlepull/internal/export"
	"candlepull/internal/logger"
	"candlepull/internal/store/gormstore"
)

const bannerWidth = 60

// App 负责一次完整的历史拉取：拉取→CSV→可选附属产物→摘要。
type App struct {
	cfg     *brcfg.Config
	history *backtest.History
	store   *gormstore.CandleStore
	out     io.Writer
	now     func() time.Time
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 执行拉取；一根 K 线都没拿到时返回 backtest.ErrNoData。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.history == nil {
		return fmt.Errorf("app not initialized")
	}
	fc := a.cfg.Fetch
	fmt.Fprintln(a.out, strings.Repeat("=", bannerWidth))
	fmt.Fprintln(a.out, "Binance Historical Data Fetcher (OHLC only)")
	fmt.Fprintln(a.out, strings.Repeat("=", bannerWidth))

	res, err := a.history.FetchAll(ctx, fc.Symbol, fc.Interval, fc.DaysBack)
	if err != nil {
		fmt.Fprintln(a.out, "\n✗ Failed to fetch data.")
		return err
	}
	report := newRunReport(res, a.cfg.Output.CSVPath, a.cfg.Output.PreviewRows)
	report.PrintTotals(a.out)

	if err := export.WriteCSVFile(a.cfg.Output.CSVPath, res.Candles); err != nil {
		fmt.Fprintln(a.out, "\n✗ Failed to fetch data.")
		return fmt.Errorf("写入 CSV 失败: %w", err)
	}
	report.PrintSaved(a.out)

	a.writeSidecars(ctx, res)

	report.PrintDescribe(a.out)
	fmt.Fprintln(a.out, "\n✓ Success! Your data is ready for backtesting.")
	return nil
}

// writeSidecars 写入 manifest / sqlite / 图表；失败只记日志，不影响退出码。
func (a *App) writeSidecars(ctx context.Context, res *backtest.FetchResult) {
	out := a.cfg.Output
	source := a.history.SourceName()
	if out.Manifest {
		path := out.ManifestPath()
		if err := export.WriteManifestFile(path, export.NewManifest(res, source, out.CSVPath, a.now())); err != nil {
			logger.Warnf("写入 manifest 失败: %v", err)
		} else {
			logger.Infof("manifest 已写入 %s", path)
		}
	}
	if a.store != nil {
		rows, err := a.store.SaveResult(ctx, res, source)
		if err != nil {
			logger.Warnf("写入 sqlite 失败: %v", err)
		} else {
			logger.Infof("sqlite 已写入 %d 行 (%s)", rows, a.store.Path())
		}
	}
	input := visual.ChartInput{Symbol: res.Symbol, Interval: res.Interval, Candles: res.Candles}
	if path := strings.TrimSpace(out.ChartHTML); path != "" {
		if err := visual.WriteChartHTML(path, input); err != nil {
			logger.Warnf("生成图表失败: %v", err)
		} else {
			logger.Infof("图表已写入 %s", path)
		}
	}
	if path := strings.TrimSpace(out.ChartPNG); path != "" {
		if err := visual.WriteChartPNG(ctx, path, input); err != nil {
			logger.Warnf("生成 PNG 失败: %v", err)
		} else {
			logger.Infof("PNG 已写入 %s", path)
		}
	}
}

// Close 释放存储等资源。
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}

func stdout() io.Writer { return os.Stdout }
