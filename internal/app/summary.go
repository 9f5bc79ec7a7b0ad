package app

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"candlepull/internal/backtest"
	"candlepull/internal/export"
	"candlepull/internal/market"
)

// RunReport 汇总一次拉取，用于控制台输出。
type RunReport struct {
	Symbol      string
	Interval    string
	CSVPath     string
	PreviewRows int
	Candles     market.Candles
	Stop        backtest.StopReason
	Requests    int
}

func newRunReport(res *backtest.FetchResult, csvPath string, previewRows int) *RunReport {
	if previewRows <= 0 {
		previewRows = 3
	}
	return &RunReport{
		Symbol:      res.Symbol,
		Interval:    res.Interval,
		CSVPath:     csvPath,
		PreviewRows: previewRows,
		Candles:     res.Candles,
		Stop:        res.Stop,
		Requests:    res.Requests,
	}
}

func (r *RunReport) PrintTotals(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("-", bannerWidth))
	fmt.Fprintf(w, "✓ Total candles fetched: %d\n", len(r.Candles))
	first, _ := r.Candles.First()
	last, _ := r.Candles.Last()
	fmt.Fprintf(w, "✓ Date range: %s to %s\n", first.TimeString(), last.TimeString())
	fmt.Fprintf(w, "  Requests: %d, stop: %s\n", r.Requests, r.Stop)
}

func (r *RunReport) PrintSaved(w io.Writer) {
	fmt.Fprintf(w, "\n✓ Data saved to: %s\n", r.CSVPath)
	fmt.Fprintf(w, "  Format: %s\n", strings.Join(export.CSVHeader, ", "))
	fmt.Fprintf(w, "\nFirst %d rows:\n", r.PreviewRows)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(export.CSVHeader, "\t")+"\t")
	for _, c := range r.Candles.Head(r.PreviewRows) {
		fmt.Fprintln(tw, strings.Join(c.Row(), "\t")+"\t")
	}
	_ = tw.Flush()
}

// PrintDescribe 输出 count/mean/std/min/25%/50%/75%/max 表格。
func (r *RunReport) PrintDescribe(w io.Writer) {
	stats := market.Describe(r.Candles)
	fmt.Fprintln(w, "\n"+strings.Repeat("=", bannerWidth))
	fmt.Fprintln(w, "Data Summary:")
	fmt.Fprintln(w, strings.Repeat("=", bannerWidth))
	if len(stats) == 0 {
		fmt.Fprintln(w, "  (无数据)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{""}
	for _, s := range stats {
		header = append(header, s.Name)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	rows := []struct {
		label string
		value func(market.ColumnStats) float64
	}{
		{"count", func(s market.ColumnStats) float64 { return float64(s.Count) }},
		{"mean", func(s market.ColumnStats) float64 { return s.Mean }},
		{"std", func(s market.ColumnStats) float64 { return s.Std }},
		{"min", func(s market.ColumnStats) float64 { return s.Min }},
		{"25%", func(s market.ColumnStats) float64 { return s.P25 }},
		{"50%", func(s market.ColumnStats) float64 { return s.P50 }},
		{"75%", func(s market.ColumnStats) float64 { return s.P75 }},
		{"max", func(s market.ColumnStats) float64 { return s.Max }},
	}
	for _, row := range rows {
		cells := []string{row.label}
		for _, s := range stats {
			cells = append(cells, formatStat(row.value(s)))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	_ = tw.Flush()
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6f", v)
}
