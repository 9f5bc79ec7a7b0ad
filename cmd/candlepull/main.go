package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"candlepull/internal/app"
	"candlepull/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, cfgPath, err := app.LoadConfig()
	if err != nil {
		log.Printf("读取配置失败: %v", err)
		return 1
	}
	logFile, err := app.SetupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Printf("初始化日志文件失败: %v", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	if cfgPath == "" {
		cfgPath = "(defaults)"
	}
	logger.Debugf("✓ 配置加载成功（环境=%s，config=%s）", cfg.App.Env, cfgPath)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Printf("初始化应用失败: %v", err)
		return 1
	}
	defer a.Close()
	if err := a.Run(ctx); err != nil {
		logger.Errorf("运行失败: %v", err)
		return 1
	}
	return 0
}
