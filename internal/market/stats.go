package market

import (
	"math"
	"sort"

	talib "github.com/markcheno/go-talib"
)

// ColumnStats 对应 pandas describe() 的一列。
type ColumnStats struct {
	Name  string
	Count int
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

// Describe 计算 Open/High/Low/Close 的汇总统计。std 为样本标准差，少于 2 行时为 NaN。
func Describe(cs Candles) []ColumnStats {
	if len(cs) == 0 {
		return nil
	}
	cols := []struct {
		name string
		pick func(Candle) float64
	}{
		{"Open", func(c Candle) float64 { return c.Open }},
		{"High", func(c Candle) float64 { return c.High }},
		{"Low", func(c Candle) float64 { return c.Low }},
		{"Close", func(c Candle) float64 { return c.Close }},
	}
	out := make([]ColumnStats, 0, len(cols))
	for _, col := range cols {
		values := make([]float64, len(cs))
		for i, c := range cs {
			values[i] = col.pick(c)
		}
		st := describeColumn(values)
		st.Name = col.name
		out = append(out, st)
	}
	return out
}

func describeColumn(values []float64) ColumnStats {
	n := len(values)
	st := ColumnStats{Count: n}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	st.P25 = quantile(sorted, 0.25)
	st.P50 = quantile(sorted, 0.50)
	st.P75 = quantile(sorted, 0.75)
	if n < 2 {
		st.Mean = values[0]
		st.Min = values[0]
		st.Max = values[0]
		st.Std = math.NaN()
		return st
	}
	st.Mean = lastOf(talib.Sma(values, n))
	st.Min = lastOf(talib.Min(values, n))
	st.Max = lastOf(talib.Max(values, n))
	// talib 给出总体标准差，换算成样本标准差
	popStd := lastOf(talib.StdDev(values, n, 1.0))
	st.Std = popStd * math.Sqrt(float64(n)/float64(n-1))
	return st
}

// quantile 使用线性插值，与 pandas 默认一致。
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
