package consumer

import (
	"context"
	"fmt"
	"time"
	"wisefido-oximetry/internal/config"

	"go.uber.org/zap"
)

// TrendEvaluator 趋势评估器接口（由 service 层实现）
type TrendEvaluator interface {
	// EvaluateDevice 对设备的完整滚动序列做一次全量评估
	EvaluateDevice(ctx context.Context, tenantID, deviceID string, samples []int) error
}

// TrendConsumer 趋势评估驱动器（轮询序列缓冲）
// 每个评估周期枚举索引中的设备，逐台交给评估器
type TrendConsumer struct {
	config   *config.Config
	buffer   *SeriesBuffer
	logger   *zap.Logger
	tenantID string
}

// NewTrendConsumer 创建趋势评估驱动器
func NewTrendConsumer(
	cfg *config.Config,
	buffer *SeriesBuffer,
	logger *zap.Logger,
	tenantID string,
) *TrendConsumer {
	return &TrendConsumer{
		config:   cfg,
		buffer:   buffer,
		logger:   logger,
		tenantID: tenantID,
	}
}

// Start 启动评估循环（轮询模式）
func (c *TrendConsumer) Start(ctx context.Context, evaluator TrendEvaluator) error {
	c.logger.Info("Trend consumer started",
		zap.String("tenant_id", c.tenantID),
		zap.Int("eval_interval", c.config.Oximetry.EvalInterval),
	)

	ticker := time.NewTicker(time.Duration(c.config.Oximetry.EvalInterval) * time.Second)
	defer ticker.Stop()

	// 立即执行一次
	if err := c.evaluateAllDevices(ctx, evaluator); err != nil {
		c.logger.Error("Failed to evaluate devices on startup",
			zap.Error(err),
		)
	}

	// 定期轮询
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Trend consumer stopped")
			return nil
		case <-ticker.C:
			if err := c.evaluateAllDevices(ctx, evaluator); err != nil {
				c.logger.Error("Failed to evaluate devices",
					zap.Error(err),
				)
				// 继续执行，不中断
			}
		}
	}
}

// evaluateAllDevices 评估索引中的所有设备
func (c *TrendConsumer) evaluateAllDevices(ctx context.Context, evaluator TrendEvaluator) error {
	devices, err := c.buffer.Devices(ctx, c.tenantID)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	c.logger.Debug("Evaluating devices",
		zap.Int("device_count", len(devices)),
	)

	for _, deviceID := range devices {
		// 检查上下文是否已取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		samples, err := c.buffer.Range(ctx, c.tenantID, deviceID)
		if err != nil {
			c.logger.Error("Failed to read series",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			continue
		}
		if len(samples) == 0 {
			// 序列已过期但索引残留
			continue
		}

		if err := evaluator.EvaluateDevice(ctx, c.tenantID, deviceID, samples); err != nil {
			c.logger.Error("Failed to evaluate device",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
