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
)

func setupTestBuffer(t *testing.T) (*miniredis.Miniredis, *redis.Client, *SeriesBuffer) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Oximetry.Series.KeyPrefix = "oximetry:series:"
	cfg.Oximetry.Series.IndexPrefix = "oximetry:series:index:"
	cfg.Oximetry.Series.MaxPoints = 5
	cfg.Oximetry.Series.TTL = 3600

	logger := zap.NewNop()
	buffer := NewSeriesBuffer(cfg, redisClient, logger)

	return mr, redisClient, buffer
}

func TestSeriesBuffer_AppendAndRange(t *testing.T) {
	_, _, buffer := setupTestBuffer(t)

	ctx := context.Background()
	for _, s := range []int{93, 91, 90} {
		require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", s))
	}

	samples, err := buffer.Range(ctx, "tenant-1", "device-1")

	require.NoError(t, err)
	assert.Equal(t, []int{93, 91, 90}, samples)
}

// 滚动窗口：超出 max_points 时丢弃最旧采样
func TestSeriesBuffer_RollingWindow(t *testing.T) {
	_, _, buffer := setupTestBuffer(t)

	ctx := context.Background()
	for _, s := range []int{99, 98, 97, 96, 95, 94, 93} {
		require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", s))
	}

	samples, err := buffer.Range(ctx, "tenant-1", "device-1")

	require.NoError(t, err)
	assert.Equal(t, []int{97, 96, 95, 94, 93}, samples)
}

func TestSeriesBuffer_DeviceIndex(t *testing.T) {
	_, _, buffer := setupTestBuffer(t)

	ctx := context.Background()
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", 95))
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-2", 92))
	require.NoError(t, buffer.Append(ctx, "tenant-2", "device-3", 90))

	devices, err := buffer.Devices(ctx, "tenant-1")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"device-1", "device-2"}, devices)

	// 租户隔离
	devices, err = buffer.Devices(ctx, "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"device-3"}, devices)
}

// 设备停报后序列与索引随 TTL 过期
func TestSeriesBuffer_Expiry(t *testing.T) {
	mr, _, buffer := setupTestBuffer(t)

	ctx := context.Background()
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", 95))

	mr.FastForward(2 * time.Hour)

	samples, err := buffer.Range(ctx, "tenant-1", "device-1")
	require.NoError(t, err)
	assert.Empty(t, samples)

	devices, err := buffer.Devices(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSeriesBuffer_Clear(t *testing.T) {
	_, _, buffer := setupTestBuffer(t)

	ctx := context.Background()
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", 95))
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-2", 92))

	require.NoError(t, buffer.Clear(ctx, "tenant-1", "device-1"))

	samples, err := buffer.Range(ctx, "tenant-1", "device-1")
	require.NoError(t, err)
	assert.Empty(t, samples)

	devices, err := buffer.Devices(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"device-2"}, devices)
}

func TestSeriesBuffer_RangeEmpty(t *testing.T) {
	_, _, buffer := setupTestBuffer(t)

	samples, err := buffer.Range(context.Background(), "tenant-1", "device-unknown")

	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestSeriesBuffer_CorruptSample(t *testing.T) {
	_, redisClient, buffer := setupTestBuffer(t)

	ctx := context.Background()
	require.NoError(t, buffer.Append(ctx, "tenant-1", "device-1", 95))
	require.NoError(t, redisClient.RPush(ctx, buffer.SeriesKey("tenant-1", "device-1"), "not-a-number").Err())

	_, err := buffer.Range(ctx, "tenant-1", "device-1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt sample in series")
}
