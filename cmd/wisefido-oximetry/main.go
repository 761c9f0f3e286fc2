package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/logger"
	"wisefido-oximetry/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-oximetry")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer zapLogger.Sync()

	// 3. 获取租户ID
	tenantID := cfg.TenantID
	if tenantID == "" {
		zapLogger.Fatal("TENANT_ID environment variable is required")
	}

	zapLogger.Info("Starting wisefido-oximetry service",
		zap.String("tenant_id", tenantID),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("engine_mode", cfg.Oximetry.Engine.Mode),
	)

	// 4. 创建服务
	oximetryService, err := service.NewOximetryService(cfg, zapLogger, tenantID)
	if err != nil {
		zapLogger.Fatal("Failed to create oximetry service",
			zap.Error(err),
		)
	}

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := oximetryService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel() // 取消上下文，停止消费循环
	case err := <-serviceErrChan:
		zapLogger.Error("Service error",
			zap.Error(err),
		)
		cancel()
	}

	if err := oximetryService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown",
			zap.Error(err),
		)
	}

	zapLogger.Info("Oximetry service stopped")
}
