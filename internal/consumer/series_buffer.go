package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"wisefido-oximetry/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SeriesBuffer 设备 SpO2 滚动分钟序列（Redis List）
// 每设备一个 List，只保留最近 max_points 个采样；
// 租户级索引集合记录近期有上报的设备，供趋势轮询枚举
type SeriesBuffer struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewSeriesBuffer 创建序列缓冲
func NewSeriesBuffer(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *SeriesBuffer {
	return &SeriesBuffer{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// SeriesKey 构建序列键
func (b *SeriesBuffer) SeriesKey(tenantID, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", b.config.Oximetry.Series.KeyPrefix, tenantID, deviceID)
}

// IndexKey 构建租户设备索引键
func (b *SeriesBuffer) IndexKey(tenantID string) string {
	return fmt.Sprintf("%s%s", b.config.Oximetry.Series.IndexPrefix, tenantID)
}

// Append 追加一个采样并裁剪到滚动窗口
func (b *SeriesBuffer) Append(ctx context.Context, tenantID, deviceID string, spo2 int) error {
	key := b.SeriesKey(tenantID, deviceID)
	ttl := time.Duration(b.config.Oximetry.Series.TTL) * time.Second
	maxPoints := int64(b.config.Oximetry.Series.MaxPoints)

	// 1. 追加采样
	if err := b.redisClient.RPush(ctx, key, spo2).Err(); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}

	// 2. 裁剪到滚动窗口（保留最近 max_points 个）
	if err := b.redisClient.LTrim(ctx, key, -maxPoints, -1).Err(); err != nil {
		return fmt.Errorf("failed to trim series: %w", err)
	}

	// 3. 刷新序列 TTL（设备停报后序列自然过期）
	if err := b.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh series TTL: %w", err)
	}

	// 4. 登记到租户设备索引
	indexKey := b.IndexKey(tenantID)
	if err := b.redisClient.SAdd(ctx, indexKey, deviceID).Err(); err != nil {
		return fmt.Errorf("failed to index device: %w", err)
	}
	if err := b.redisClient.Expire(ctx, indexKey, ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh index TTL: %w", err)
	}

	b.logger.Debug("Appended SpO2 sample",
		zap.String("device_id", deviceID),
		zap.Int("spo2", spo2),
	)

	return nil
}

// Range 读取设备的完整滚动序列（时间升序）
func (b *SeriesBuffer) Range(ctx context.Context, tenantID, deviceID string) ([]int, error) {
	vals, err := b.redisClient.LRange(ctx, b.SeriesKey(tenantID, deviceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read series: %w", err)
	}

	samples := make([]int, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt sample in series for device %s: %q", deviceID, v)
		}
		samples = append(samples, n)
	}
	return samples, nil
}

// Devices 列出近期有上报的设备
func (b *SeriesBuffer) Devices(ctx context.Context, tenantID string) ([]string, error) {
	devices, err := b.redisClient.SMembers(ctx, b.IndexKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Clear 清除设备序列并移出索引
func (b *SeriesBuffer) Clear(ctx context.Context, tenantID, deviceID string) error {
	if err := b.redisClient.Del(ctx, b.SeriesKey(tenantID, deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	if err := b.redisClient.SRem(ctx, b.IndexKey(tenantID), deviceID).Err(); err != nil {
		return fmt.Errorf("failed to deindex device: %w", err)
	}
	return nil
}
