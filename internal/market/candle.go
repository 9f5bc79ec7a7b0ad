package market

import "time"

// Candle 只保留 OHLC；成交量、收盘时间、成交笔数等字段在解析时丢弃。
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
}

// Time 返回开盘时间（UTC）。
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

type Candles []Candle

func (cs Candles) First() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[0], true
}

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Head 返回前 n 根（不复制底层数组）。
func (cs Candles) Head(n int) Candles {
	if n <= 0 {
		return nil
	}
	if n > len(cs) {
		n = len(cs)
	}
	return cs[:n]
}
