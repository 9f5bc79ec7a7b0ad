package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate 对配置进行基础校验。周期是否受支持由拉取逻辑判断。
func validate(c *Config) error {
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if err := c.Source.validate(); err != nil {
		return err
	}
	if err := c.Output.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.API.validate(); err != nil {
		return err
	}
	return nil
}

func (f *FetchConfig) validate() error {
	if strings.TrimSpace(f.Symbol) == "" {
		return fmt.Errorf("fetch.symbol cannot be empty")
	}
	if strings.TrimSpace(f.Interval) == "" {
		return fmt.Errorf("fetch.interval cannot be empty")
	}
	if f.DaysBack <= 0 {
		return fmt.Errorf("fetch.days_back must be > 0")
	}
	if f.BatchLimit <= 0 || f.BatchLimit > 1000 {
		return fmt.Errorf("fetch.batch_limit must be within 1..1000")
	}
	if f.PauseMs <= 0 {
		return fmt.Errorf("fetch.pause_ms must be > 0")
	}
	if f.LiveEdgeMinutes <= 0 {
		return fmt.Errorf("fetch.live_edge_minutes must be > 0")
	}
	return nil
}

func (s *SourceConfig) validate() error {
	switch s.Kind {
	case SourceKindREST, SourceKindSDK:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceKindREST, SourceKindSDK, s.Kind)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(s.RESTBaseURL)); err != nil {
		return fmt.Errorf("source.rest_base_url invalid: %w", err)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if s.RateLimitPerMin < 0 {
		return fmt.Errorf("source.rate_limit_per_min must be >= 0")
	}
	if s.Proxy.Enabled {
		if strings.TrimSpace(s.Proxy.RESTURL) == "" {
			return fmt.Errorf("source.proxy.rest_url is required when proxy is enabled")
		}
		if _, err := url.Parse(s.Proxy.RESTURL); err != nil {
			return fmt.Errorf("source.proxy.rest_url invalid: %w", err)
		}
	}
	return nil
}

func (o *OutputConfig) validate() error {
	if strings.TrimSpace(o.CSVPath) == "" {
		return fmt.Errorf("output.csv_path cannot be empty")
	}
	if o.PreviewRows < 0 {
		return fmt.Errorf("output.preview_rows must be >= 0")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if s.Enabled && strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path is required when store is enabled")
	}
	return nil
}

func (a *APIConfig) validate() error {
	if strings.TrimSpace(a.Addr) == "" {
		return fmt.Errorf("api.addr cannot be empty")
	}
	if a.MaxConcurrent <= 0 {
		return fmt.Errorf("api.max_concurrent must be > 0")
	}
	return nil
}
