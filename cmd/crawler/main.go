package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"steamhunter/internal/config"
	"steamhunter/internal/crawler"
	"steamhunter/internal/pkg/logger"
	"steamhunter/internal/pkg/notify"
	"steamhunter/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main 是爬虫服务的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志记录器与存储
// 3. 启动抓取服务并按配置间隔循环运行
// 4. 启动 Metrics 服务
// 5. 优雅关闭
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

	var notifier notify.Notifier
	if cfg.Email.ToEmail != "" {
		notifier = notify.NewEmailNotifier(&cfg.Email, appLogger)
	}

	service, err := crawler.NewService(ctx, cfg, appLogger, store, notifier)
	if err != nil {
		appLogger.Error("init crawler service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("crawler metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	// 运行循环：RunInterval 为 0 只跑一轮，否则按间隔循环
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer func() {
			if r := recover(); r != nil {
				appLogger.Error("PANIC in crawl loop", slog.Any("panic", r))
			}
		}()

		for {
			saved, errs, err := service.Run(ctx)
			if err != nil {
				appLogger.Error("crawl run failed", slog.String("error", err.Error()))
			} else {
				appLogger.Info("crawl run completed",
					slog.Int("saved", saved),
					slog.Int("errors", errs))
			}

			if cfg.Crawler.RunInterval <= 0 {
				return
			}
			appLogger.Info("next run scheduled",
				slog.String("interval", cfg.Crawler.RunInterval.String()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.Crawler.RunInterval):
			}
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("received shutdown signal")
	case <-runDone:
		appLogger.Info("crawl loop finished")
	}

	appLogger.Info("shutting down crawler service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("service shutdown error", slog.String("error", err.Error()))
	}
	if err := store.Close(); err != nil {
		appLogger.Error("close storage failed", slog.String("error", err.Error()))
	}

	appLogger.Info("crawler service stopped gracefully")
}
