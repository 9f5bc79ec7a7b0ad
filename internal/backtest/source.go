package backtest

import (
	"context"
	"strings"

	"candlepull/internal/market"
	"candlepull/internal/pkg/symbol"
)

// MaxBatchLimit 是 Binance klines 单次请求的上限。
const MaxBatchLimit = 1000

// FetchRequest 描述一次远端 K 线请求。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms（0 表示不传）
	End      int64 // Unix ms（0 表示不传）
	Limit    int
}

// Normalize 统一 symbol 写法，并把 limit 收敛到 (0, MaxBatchLimit]。
func (r FetchRequest) Normalize() FetchRequest {
	r.Symbol = symbol.ToBinance(r.Symbol)
	r.Interval = strings.TrimSpace(r.Interval)
	if r.Limit <= 0 || r.Limit > MaxBatchLimit {
		r.Limit = MaxBatchLimit
	}
	return r
}

// CandleSource 统一不同实现（REST / SDK）的单批拉取行为。
// 返回 error 表示本批失败；空切片表示区间内没有数据。
type CandleSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
	Name() string
}
