package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"candlepull/internal/pkg/symbol"
)

// Config 是 candlepull 的主配置载体。
type Config struct {
	App    AppConfig    `toml:"app"`
	Fetch  FetchConfig  `toml:"fetch"`
	Source SourceConfig `toml:"source"`
	Output OutputConfig `toml:"output"`
	Store  StoreConfig  `toml:"store"`
	API    APIConfig    `toml:"api"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// FetchConfig 描述一次历史拉取。
type FetchConfig struct {
	Symbol          string `toml:"symbol"`
	Interval        string `toml:"interval"`
	DaysBack        int    `toml:"days_back"`
	BatchLimit      int    `toml:"batch_limit"`
	PauseMs         int    `toml:"pause_ms"`
	LiveEdgeMinutes int    `toml:"live_edge_minutes"`
}

func (f FetchConfig) Pause() time.Duration {
	return time.Duration(f.PauseMs) * time.Millisecond
}

func (f FetchConfig) LiveEdge() time.Duration {
	return time.Duration(f.LiveEdgeMinutes) * time.Minute
}

const (
	SourceKindREST = "rest"
	SourceKindSDK  = "sdk"
)

type SourceConfig struct {
	Kind            string      `toml:"kind"`
	RESTBaseURL     string      `toml:"rest_base_url"`
	TimeoutSeconds  int         `toml:"timeout_seconds"`
	RateLimitPerMin int         `toml:"rate_limit_per_min"`
	Proxy           ProxyConfig `toml:"proxy"`
}

func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ProxyURL 仅在 proxy.enabled 时返回代理地址。
func (s SourceConfig) ProxyURL() string {
	if !s.Proxy.Enabled {
		return ""
	}
	return strings.TrimSpace(s.Proxy.RESTURL)
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

type OutputConfig struct {
	CSVPath     string `toml:"csv_path"`
	Manifest    bool   `toml:"manifest"`
	ChartHTML   string `toml:"chart_html"`
	ChartPNG    string `toml:"chart_png"`
	PreviewRows int    `toml:"preview_rows"`
}

// ManifestPath 返回 CSV 旁的 manifest 路径。
func (o OutputConfig) ManifestPath() string {
	ext := filepath.Ext(o.CSVPath)
	return strings.TrimSuffix(o.CSVPath, ext) + ".meta.yaml"
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type APIConfig struct {
	Addr          string `toml:"addr"`
	MaxConcurrent int    `toml:"max_concurrent"`
}

// DefaultCSVPath 生成 <base>_<interval>_data.csv，例如 sol_1h_data.csv。
func DefaultCSVPath(pair, interval string) string {
	stem := symbol.FileStem(pair)
	if stem == "" {
		stem = "klines"
	}
	iv := strings.TrimSpace(interval)
	return fmt.Sprintf("%s_%s_data.csv", stem, iv)
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
