package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candlepull/internal/market"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultBinanceBaseURL = "https://api.binance.com"
	klinesPath            = "/api/v3/klines"
	maxResponseBytes      = 16 << 20
)

// SourceOptions 是 REST 数据源的连接参数。
type SourceOptions struct {
	BaseURL         string
	Timeout         time.Duration
	RateLimitPerMin int
	ProxyURL        string
	// HTTPClient 非空时直接使用（测试注入），忽略 Timeout/ProxyURL。
	HTTPClient *http.Client
}

// BinanceSource 基于 Binance 现货 REST /api/v3/klines。
type BinanceSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewBinanceSource(opts SourceOptions) (*BinanceSource, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBinanceBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}
	client := opts.HTTPClient
	if client == nil {
		var err error
		client, err = NewHTTPClient(opts.Timeout, opts.ProxyURL)
		if err != nil {
			return nil, err
		}
	}
	return &BinanceSource{
		baseURL: base,
		client:  client,
		limiter: NewRequestLimiter(opts.RateLimitPerMin),
	}, nil
}

// NewHTTPClient 构造带超时和可选代理的 http.Client。
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return client, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST proxy url: %w", err)
	}
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || baseTransport == nil {
		return nil, errors.New("http DefaultTransport is not *http.Transport")
	}
	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(parsed)
	client.Transport = transport
	return client, nil
}

// NewRequestLimiter 按每分钟请求数构造令牌桶；<=0 表示不限速。
func NewRequestLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1)
}

func (b *BinanceSource) Name() string { return "binance-rest" }

func (b *BinanceSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	req = req.Normalize()
	if req.Symbol == "" || req.Interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/") + klinesPath
	q := u.Query()
	q.Set("symbol", req.Symbol)
	q.Set("interval", req.Interval)
	q.Set("limit", strconv.Itoa(req.Limit))
	if req.Start > 0 {
		q.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		q.Set("endTime", strconv.FormatInt(req.End, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 binance 失败: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("读取 binance 响应失败: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return decodeKlines(body)
}

// parseAPIError 解析 {"code":-1121,"msg":"Invalid symbol."} 形式的错误体。
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Source: "binance", Status: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		apiErr.Code = res.Get("code").Int()
		apiErr.Message = res.Get("msg").String()
	}
	if apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		apiErr.Message = msg
	}
	return apiErr
}

func decodeKlines(body []byte) ([]market.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	if err := validateKlinesPayload(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rows := gjson.ParseBytes(body).Array()
	out := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		f := row.Array()
		c, err := ParseKline(f[0].Int(), f[1].String(), f[2].String(), f[3].String(), f[4].String())
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedResponse, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseKline 把开盘时间与四个价格字符串转换为 Candle。
func ParseKline(openTime int64, open, high, low, closePrice string) (market.Candle, error) {
	prices := [4]float64{}
	for i, raw := range []string{open, high, low, closePrice} {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return market.Candle{}, fmt.Errorf("invalid price %q: %w", raw, err)
		}
		prices[i] = d.InexactFloat64()
	}
	return market.Candle{
		OpenTime: openTime,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
	}, nil
}
