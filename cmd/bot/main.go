package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"steamhunter/internal/bot"
	"steamhunter/internal/config"
	"steamhunter/internal/pkg/logger"
	"steamhunter/internal/settings"
	"steamhunter/internal/storage"
)

// main 是 Telegram 机器人的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志、存储与用户设置
// 3. 启动长轮询，直到收到退出信号
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Database.DSN(), appLogger)
	if err != nil {
		appLogger.Error("init storage failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	manager := settings.NewManager(cfg.Bot.SettingsPath, appLogger)

	tgBot, err := bot.New(&cfg.Bot, appLogger, store, manager)
	if err != nil {
		appLogger.Error("init bot failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := tgBot.Run(ctx); err != nil {
		appLogger.Error("bot stopped with error", slog.String("error", err.Error()))
	}

	if err := store.Close(); err != nil {
		appLogger.Error("close storage failed", slog.String("error", err.Error()))
	}
	appLogger.Info("bot stopped gracefully")
}
