package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrStatusNotFound 设备尚无趋势状态缓存
var ErrStatusNotFound = errors.New("trend status not found")

// CacheManager 趋势状态缓存管理器
// 每设备一份最新决策快照，评估周期整体覆盖写入
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// StatusKey 构建状态键
func (c *CacheManager) StatusKey(tenantID, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", c.config.Oximetry.Cache.StatusKeyPrefix, tenantID, deviceID)
}

// UpdateStatus 写入设备最新趋势状态（带 TTL）
func (c *CacheManager) UpdateStatus(ctx context.Context, status *models.DeviceTrendStatus) error {
	key := c.StatusKey(status.TenantID, status.DeviceID)

	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal trend status: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Oximetry.Cache.StatusTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set trend status: %w", err)
	}

	c.logger.Debug("Updated trend status cache",
		zap.String("device_id", status.DeviceID),
		zap.String("alert", status.Alert),
		zap.String("reason", status.Reason),
	)

	return nil
}

// GetStatus 读取设备最新趋势状态
// 缓存未命中返回 ErrStatusNotFound（新设备或快照已过期）
func (c *CacheManager) GetStatus(ctx context.Context, tenantID, deviceID string) (*models.DeviceTrendStatus, error) {
	val, err := c.redisClient.Get(ctx, c.StatusKey(tenantID, deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("failed to get trend status: %w", err)
	}

	var status models.DeviceTrendStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trend status: %w", err)
	}

	return &status, nil
}
