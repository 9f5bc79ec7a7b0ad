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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := app.SetupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)

	api, err := app.NewAPIApp(cfg)
	if err != nil {
		log.Fatalf("初始化 API 失败: %v", err)
	}
	if err := api.Run(ctx); err != nil {
		logger.Errorf("运行失败: %v", err)
		stop()
		os.Exit(1)
	}
}
