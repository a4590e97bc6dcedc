package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"steamhunter/internal/api"
	"steamhunter/internal/config"
	"steamhunter/internal/pkg/logger"
	"steamhunter/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main 是只读 API 服务的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志与存储
// 3. 启动 HTTP 服务器与 Metrics 服务
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

	srv := api.NewServer(cfg, appLogger, store)

	httpServer := &http.Server{
		Addr:    cfg.API.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		appLogger.Info("api server listening", slog.String("addr", cfg.API.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server run failed", slog.String("error", err.Error()))
		}
	}()

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("api metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down api server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown failed", slog.String("error", err.Error()))
	}
	if err := store.Close(); err != nil {
		appLogger.Error("close storage failed", slog.String("error", err.Error()))
	}
}
