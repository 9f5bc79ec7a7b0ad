package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"candlepull/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorSMA           = "#fbbf24"

	chartWidthPx  = 1600
	chartHeightPx = 720
	smaPeriod     = 20
)

// ChartInput 描述一张 K 线图；MaxPoints>0 时只画最后 MaxPoints 根。
type ChartInput struct {
	Symbol    string
	Interval  string
	Candles   market.Candles
	MaxPoints int
}

func (in ChartInput) window() market.Candles {
	cs := in.Candles
	if in.MaxPoints > 0 && len(cs) > in.MaxPoints {
		cs = cs[len(cs)-in.MaxPoints:]
	}
	return cs
}

// BuildChartHTML 生成带 SMA 叠加线的 K 线 HTML 页面。
func BuildChartHTML(input ChartInput) ([]byte, error) {
	candles := input.window()
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to chart for %s", input.Symbol)
	}
	title := strings.TrimSpace(fmt.Sprintf("%s %s", strings.ToUpper(input.Symbol), input.Interval))
	first, _ := candles.First()
	last, _ := candles.Last()

	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("%s ~ %s UTC | %d candles", first.TimeString(), last.TimeString(), len(candles)),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(candles)
	kline.SetXAxis(xAxis)
	kline.AddSeries("OHLC", buildKlineSeries(candles))

	if len(candles) >= smaPeriod {
		line := charts.NewLine()
		line.SetSeriesOptions(
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
		line.SetXAxis(xAxis)
		line.AddSeries(fmt.Sprintf("SMA%d", smaPeriod), buildSMALine(candles, smaPeriod),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2}))
		kline.Overlap(line)
	}

	page := components.NewPage()
	page.AddCharts(kline)
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteChartHTML 把图表写到 path。
func WriteChartHTML(path string, input ChartInput) error {
	html, err := BuildChartHTML(input)
	if err != nil {
		return err
	}
	return writeFile(path, html)
}

// WriteChartPNG 用 headless Chrome 截图；本机没有 Chrome 时返回错误。
func WriteChartPNG(ctx context.Context, path string, input ChartInput) error {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return fmt.Errorf("headless chrome unavailable: %w", err)
	}
	html, err := BuildChartHTML(input)
	if err != nil {
		return err
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx+80)
	if err != nil {
		return err
	}
	return writeFile(path, png)
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildXAxis(candles market.Candles) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = c.Time().Format("2006-01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles market.Candles) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func buildSMALine(candles market.Candles, period int) []opts.LineData {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	sma := talib.Sma(closes, period)
	line := make([]opts.LineData, len(sma))
	for i, v := range sma {
		// talib 在预热区间输出 0
		if i < period-1 || math.IsNaN(v) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(v, 4)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func priceBounds(candles market.Candles) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 30*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
