package app

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	brcfg "candlepull/internal/config"
	"candlepull/internal/logger"
)

// LoadConfig 依次加载 .env、定位配置文件并解析。
func LoadConfig() (*brcfg.Config, string, error) {
	if err := brcfg.LoadDotEnv(); err != nil {
		return nil, "", err
	}
	path, err := brcfg.ResolvePath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := brcfg.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// SetupLogOutput 在配置了 log_path 时把日志同时写到 stdout 与文件。
func SetupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
