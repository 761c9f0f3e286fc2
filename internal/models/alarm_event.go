package models

import (
	"encoding/json"
	"time"
)

// AlarmEvent 报警事件（对应 alarm_events 表）
type AlarmEvent struct {
	EventID     string          `json:"event_id" db:"event_id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	DeviceID    string          `json:"device_id" db:"device_id"`
	EventType   string          `json:"event_type" db:"event_type"`
	Category    string          `json:"category" db:"category"`         // safety, clinical, behavioral, device
	AlarmLevel  string          `json:"alarm_level" db:"alarm_level"`   // EMERGENCY, ALERT, WARNING
	AlarmStatus string          `json:"alarm_status" db:"alarm_status"` // active, acknowledged, auto_relieved
	TriggeredAt time.Time       `json:"triggered_at" db:"triggered_at"`
	HandTime    *time.Time      `json:"hand_time,omitempty" db:"hand_time"`
	TriggerData json.RawMessage `json:"trigger_data" db:"trigger_data"` // JSONB
	Handler     *string         `json:"handler,omitempty" db:"handler"`
	Operation   *string         `json:"operation,omitempty" db:"operation"`
	Notes       *string         `json:"notes,omitempty" db:"notes"`
	Metadata    json.RawMessage `json:"metadata" db:"metadata"` // JSONB
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// TrendTriggerData 血氧趋势报警的触发数据快照（JSONB 结构）
// Rules 记录触发时实际生效的规则配置（含租户覆盖），便于事后审计
type TrendTriggerData struct {
	Minute  int         `json:"minute"`
	SpO2    int         `json:"spo2"`
	Reserve float64     `json:"reserve"`
	Delta   *float64    `json:"delta,omitempty"`
	Drop    *float64    `json:"drop,omitempty"`
	Alert   string      `json:"alert"`
	Reason  string      `json:"reason"`
	Note    string      `json:"note,omitempty"`
	Mode    string      `json:"mode"`
	Source  string      `json:"source"` // "Oximeter"
	Rules   *RuleConfig `json:"rules,omitempty"`
}
