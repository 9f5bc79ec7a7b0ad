package binance

import (
	"context"
	"errors"
	"fmt"

	"candlepull/internal/backtest"
	"candlepull/internal/market"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"
)

// Source 基于 go-binance SDK 的现货 KlinesService，实现 backtest.CandleSource。
type Source struct {
	cfg     Config
	client  *binance.Client
	limiter *rate.Limiter
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	httpClient, err := backtest.NewHTTPClient(final.HTTPTimeout, final.RESTProxyURL)
	if err != nil {
		return nil, err
	}
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		limiter: backtest.NewRequestLimiter(final.RateLimitPerMin),
	}, nil
}

func (s *Source) Name() string { return "binance-sdk" }

func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	req = req.Normalize()
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	svc := s.client.NewKlinesService().Symbol(req.Symbol).Interval(req.Interval).Limit(req.Limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, convertError(err)
	}
	out := make([]market.Candle, 0, len(kls))
	for i, kl := range kls {
		if kl == nil {
			continue
		}
		c, err := backtest.ParseKline(kl.OpenTime, kl.Open, kl.High, kl.Low, kl.Close)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", backtest.ErrMalformedResponse, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// convertError 把 SDK 的 APIError 映射为 backtest.APIError，其余错误原样返回。
func convertError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &backtest.APIError{
			Source:  "binance-sdk",
			Code:    apiErr.Code,
			Message: apiErr.Message,
		}
	}
	return err
}
