package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultSymbol          = "SOLUSDT"
	defaultInterval        = "1h"
	defaultDaysBack        = 730
	defaultBatchLimit      = 1000
	defaultPauseMs         = 500
	defaultLiveEdgeMinutes = 60
	defaultSourceKind      = SourceKindREST
	defaultRESTBaseURL     = "https://api.binance.com"
	defaultTimeoutSeconds  = 15
	defaultRateLimitPerMin = 1200
	defaultPreviewRows     = 3
	defaultStorePath       = "data/candles.db"
	defaultAPIAddr         = ":9992"
	defaultAPIConcurrent   = 1
)

// applyDefaults 为所有子配置应用默认值；文件或环境变量显式设置过的 key 不覆盖。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Fetch.applyDefaults(keys)
	c.Source.applyDefaults(keys)
	c.Output.applyDefaults(keys, c.Fetch)
	c.Store.applyDefaults(keys)
	c.API.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (f *FetchConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("fetch.symbol", &f.Symbol, defaultSymbol),
		stringFieldDefault("fetch.interval", &f.Interval, defaultInterval),
		intFieldDefault("fetch.days_back", &f.DaysBack, defaultDaysBack),
		intFieldDefault("fetch.batch_limit", &f.BatchLimit, defaultBatchLimit),
		intFieldDefault("fetch.pause_ms", &f.PauseMs, defaultPauseMs),
		intFieldDefault("fetch.live_edge_minutes", &f.LiveEdgeMinutes, defaultLiveEdgeMinutes),
	)
	f.Symbol = strings.ToUpper(strings.TrimSpace(f.Symbol))
	f.Interval = strings.TrimSpace(f.Interval)
}

func (s *SourceConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("source.kind", &s.Kind, defaultSourceKind),
		stringFieldDefault("source.rest_base_url", &s.RESTBaseURL, defaultRESTBaseURL),
		intFieldDefault("source.timeout_seconds", &s.TimeoutSeconds, defaultTimeoutSeconds),
		intFieldDefault("source.rate_limit_per_min", &s.RateLimitPerMin, defaultRateLimitPerMin),
	)
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
}

func (o *OutputConfig) applyDefaults(keys keySet, fetch FetchConfig) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("output.csv_path", &o.CSVPath, DefaultCSVPath(fetch.Symbol, fetch.Interval)),
		intFieldDefault("output.preview_rows", &o.PreviewRows, defaultPreviewRows),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (a *APIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("api.addr", &a.Addr, defaultAPIAddr),
		intFieldDefault("api.max_concurrent", &a.MaxConcurrent, defaultAPIConcurrent),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
