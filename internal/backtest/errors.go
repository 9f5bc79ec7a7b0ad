package backtest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInterval 表示周期不在支持表内，属于配置错误，不会发起任何请求。
	ErrUnsupportedInterval = errors.New("unsupported interval")
	// ErrNoData 表示整次拉取没有得到任何 K 线。
	ErrNoData = errors.New("no data fetched")
	// ErrMalformedResponse 表示返回体不是预期的 K 线数组。
	ErrMalformedResponse = errors.New("malformed klines response")
)

// APIError 是交易所返回的非 2xx 响应。
type APIError struct {
	Source  string
	Status  int
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s 返回状态码 %d (code=%d): %s", e.Source, e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s 返回状态码 %d: %s", e.Source, e.Status, e.Message)
	}
	return fmt.Sprintf("%s 返回状态码 %d", e.Source, e.Status)
}
