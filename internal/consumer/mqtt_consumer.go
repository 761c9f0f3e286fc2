package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/models"
	"wisefido-oximetry/internal/mqtt"
	"wisefido-oximetry/internal/repository"

	"go.uber.org/zap"
)

// DeviceLookup 设备查询接口（便于测试替身）
type DeviceLookup interface {
	GetDeviceBySerialNumber(serialNumber string) (*repository.Device, error)
	GetDeviceByUID(uid string) (*repository.Device, error)
}

// MQTTConsumer 血氧仪 MQTT 上报消费者
// 订阅 oximeter/{identifier}/data，解析采样后写入序列缓冲
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	buffer     *SeriesBuffer
	deviceRepo DeviceLookup
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	buffer *SeriesBuffer,
	deviceRepo DeviceLookup,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		buffer:     buffer,
		deviceRepo: deviceRepo,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Oximetry.Topics.Data, 1, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to data topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.config.Oximetry.Topics.Data),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Oximetry.Topics.Data); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// HandleMessage 处理一条血氧仪上报
func (c *MQTTConsumer) HandleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// 1. 从主题中提取设备标识符
	// 主题格式: oximeter/{identifier}/data
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	deviceIdentifier := parts[1] // 可能是 serial_number 或 uid

	// 2. 解析采样
	var msg models.SampleMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	// 3. 查询设备信息
	device, err := c.deviceRepo.GetDeviceBySerialNumber(deviceIdentifier)
	if err != nil {
		// 尝试使用 UID 查询
		device, err = c.deviceRepo.GetDeviceByUID(deviceIdentifier)
		if err != nil {
			c.logger.Warn("Device not found",
				zap.String("identifier", deviceIdentifier),
				zap.Error(err),
			)
			return fmt.Errorf("device not found: %s", deviceIdentifier)
		}
	}

	// 4. 未激活设备不进入评估管线
	if device.BusinessAccess != "Activated" {
		c.logger.Debug("Skipping sample from inactive device",
			zap.String("device_id", device.DeviceID),
			zap.String("business_access", device.BusinessAccess),
		)
		return nil
	}

	// 5. 丢弃生理上不可能的读数（传感器脱落或干扰）
	if msg.SpO2 < 1 || msg.SpO2 > 100 {
		c.logger.Warn("Discarding out-of-range SpO2 sample",
			zap.String("device_id", device.DeviceID),
			zap.Int("spo2", msg.SpO2),
		)
		return nil
	}

	// 6. 写入序列缓冲
	if err := c.buffer.Append(context.Background(), device.TenantID, device.DeviceID, msg.SpO2); err != nil {
		c.logger.Error("Failed to buffer sample",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to buffer sample: %w", err)
	}

	return nil
}
