package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/models"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *CacheManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Oximetry.Cache.StatusKeyPrefix = "oximetry:status:"
	cfg.Oximetry.Cache.StatusTTL = 600

	logger := zap.NewNop()
	cacheManager := NewCacheManager(cfg, redisClient, logger)

	return mr, cacheManager
}

func TestCacheManager_UpdateAndGetStatus(t *testing.T) {
	_, cacheManager := setupTestCache(t)

	ctx := context.Background()
	status := &models.DeviceTrendStatus{
		TenantID:  "tenant-1",
		DeviceID:  "device-1",
		Minute:    5,
		SpO2:      88,
		Reserve:   0,
		Alert:     "ON*",
		Reason:    "FLOOR_LIMIT",
		Mode:      "streak_hold",
		UpdatedAt: time.Now().Unix(),
	}

	require.NoError(t, cacheManager.UpdateStatus(ctx, status))

	got, err := cacheManager.GetStatus(ctx, "tenant-1", "device-1")

	require.NoError(t, err)
	assert.Equal(t, 5, got.Minute)
	assert.Equal(t, 88, got.SpO2)
	assert.Equal(t, "ON*", got.Alert)
	assert.Equal(t, "FLOOR_LIMIT", got.Reason)
	assert.Equal(t, "streak_hold", got.Mode)
}

func TestCacheManager_GetStatus_NotFound(t *testing.T) {
	_, cacheManager := setupTestCache(t)

	_, err := cacheManager.GetStatus(context.Background(), "tenant-1", "device-unknown")

	assert.ErrorIs(t, err, ErrStatusNotFound)
}

func TestCacheManager_StatusExpiry(t *testing.T) {
	mr, cacheManager := setupTestCache(t)

	ctx := context.Background()
	status := &models.DeviceTrendStatus{
		TenantID: "tenant-1",
		DeviceID: "device-1",
		Alert:    "OFF",
		Reason:   "NO_TRIGGER",
	}
	require.NoError(t, cacheManager.UpdateStatus(ctx, status))

	mr.FastForward(11 * time.Minute)

	_, err := cacheManager.GetStatus(ctx, "tenant-1", "device-1")
	assert.ErrorIs(t, err, ErrStatusNotFound)
}

// 覆盖写入：快照整体替换
func TestCacheManager_UpdateStatus_Overwrites(t *testing.T) {
	_, cacheManager := setupTestCache(t)

	ctx := context.Background()
	require.NoError(t, cacheManager.UpdateStatus(ctx, &models.DeviceTrendStatus{
		TenantID: "tenant-1", DeviceID: "device-1", Minute: 4, Alert: "OFF", Reason: "NO_TRIGGER",
	}))
	require.NoError(t, cacheManager.UpdateStatus(ctx, &models.DeviceTrendStatus{
		TenantID: "tenant-1", DeviceID: "device-1", Minute: 5, Alert: "ON", Reason: "CRITICAL_PERSIST",
	}))

	got, err := cacheManager.GetStatus(ctx, "tenant-1", "device-1")

	require.NoError(t, err)
	assert.Equal(t, 5, got.Minute)
	assert.Equal(t, "ON", got.Alert)
}
