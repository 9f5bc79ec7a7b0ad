package export

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"candlepull/internal/backtest"
	"candlepull/internal/market"

	"gopkg.in/yaml.v3"
)

// Manifest 是 CSV 旁的 YAML 描述文件。
type Manifest struct {
	Symbol         string `yaml:"symbol"`
	Interval       string `yaml:"interval"`
	Source         string `yaml:"source"`
	CSV            string `yaml:"csv"`
	Rows           int    `yaml:"rows"`
	FirstTimestamp string `yaml:"first_timestamp"`
	LastTimestamp  string `yaml:"last_timestamp"`
	WindowStart    string `yaml:"window_start"`
	WindowEnd      string `yaml:"window_end"`
	Requests       int    `yaml:"requests"`
	StopReason     string `yaml:"stop_reason"`
	GeneratedAt    string `yaml:"generated_at"`
}

func NewManifest(res *backtest.FetchResult, source, csvPath string, now time.Time) Manifest {
	m := Manifest{
		Symbol:      res.Symbol,
		Interval:    res.Interval,
		Source:      source,
		CSV:         filepath.Base(csvPath),
		Rows:        len(res.Candles),
		WindowStart: formatMillis(res.Start),
		WindowEnd:   formatMillis(res.End),
		Requests:    res.Requests,
		StopReason:  string(res.Stop),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	if first, ok := res.Candles.First(); ok {
		m.FirstTimestamp = first.Timestamp()
	}
	if last, ok := res.Candles.Last(); ok {
		m.LastTimestamp = last.Timestamp()
	}
	return m
}

func WriteManifestFile(path string, m Manifest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadManifestFile 严格解析 manifest，未知字段报错。
func ReadManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(market.TimeLayout)
}
