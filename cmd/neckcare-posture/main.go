package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"neckcare-posture/internal/config"
	"neckcare-posture/internal/logger"
	"neckcare-posture/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "neckcare-posture")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting neckcare-posture service",
		zap.String("version", "1.0.0"),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("pose_topic", cfg.Posture.PoseTopic),
		zap.String("warning_stream", cfg.Posture.WarningStream),
	)

	// 创建服务
	postureService, err := service.NewPostureService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create posture service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务
	go func() {
		if err := postureService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start posture service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := postureService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
