package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TrendNotification 报警转换通知载荷
type TrendNotification struct {
	TenantID     string  `json:"tenant_id"`
	DeviceID     string  `json:"device_id"`
	DeviceName   string  `json:"device_name,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
	BoundBedID   *string `json:"bound_bed_id,omitempty"`
	BoundRoomID  *string `json:"bound_room_id,omitempty"`
	EventID      string  `json:"event_id,omitempty"`
	Transition   string  `json:"transition"` // raised / relieved
	AlarmLevel   string  `json:"alarm_level,omitempty"`
	Minute       int     `json:"minute"`
	SpO2         int     `json:"spo2"`
	Reserve      float64 `json:"reserve"`
	Alert        string  `json:"alert"`
	Reason       string  `json:"reason"`
	Note         string  `json:"note,omitempty"`
	Mode         string  `json:"mode"`
	Timestamp    int64   `json:"timestamp"`
}

// WebhookNotifier 报警转换 webhook 通知器
// 评估周期检测到 OFF→ON / ON→OFF 转换时向外推送一条通知
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建通知器；url 为空时禁用
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Enabled 是否配置了通知地址
func (n *WebhookNotifier) Enabled() bool {
	return n.url != ""
}

// Notify 推送一次报警转换
// 通知失败不应阻断评估周期，调用方记录错误后继续
func (n *WebhookNotifier) Notify(ctx context.Context, notification *TrendNotification) error {
	if !n.Enabled() {
		return nil
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(notification).
		Post(n.url)

	if err != nil {
		n.logger.Error("Webhook notification failed",
			zap.String("device_id", notification.DeviceID),
			zap.String("transition", notification.Transition),
			zap.Error(err),
		)
		return fmt.Errorf("failed to post webhook: %w", err)
	}

	if resp.StatusCode() >= 300 {
		n.logger.Error("Webhook returned non-success status",
			zap.String("device_id", notification.DeviceID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Info("Webhook notification sent",
		zap.String("device_id", notification.DeviceID),
		zap.String("transition", notification.Transition),
		zap.String("reason", notification.Reason),
	)

	return nil
}
