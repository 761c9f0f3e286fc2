package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"wisefido-oximetry/internal/models"

	"go.uber.org/zap"
)

// AlarmEventsRepository 报警事件仓库（alarm_events 表）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlarmEvent 创建报警事件（需验证 tenant_id）
func (r *AlarmEventsRepository) CreateAlarmEvent(ctx context.Context, tenantID string, event *models.AlarmEvent) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.TenantID != tenantID {
		return fmt.Errorf("event.tenant_id must match tenant_id parameter")
	}

	query := `
		INSERT INTO alarm_events (
			event_id,
			tenant_id,
			device_id,
			event_type,
			category,
			alarm_level,
			alarm_status,
			triggered_at,
			hand_time,
			trigger_data,
			handler,
			operation,
			notes,
			metadata,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.TenantID,
		event.DeviceID,
		event.EventType,
		event.Category,
		event.AlarmLevel,
		event.AlarmStatus,
		event.TriggeredAt,
		event.HandTime,
		event.TriggerData,
		event.Handler,
		event.Operation,
		event.Notes,
		event.Metadata,
		event.CreatedAt,
		event.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	return nil
}

// GetOpenTrendEvent 获取设备当前未处理的血氧趋势报警（没有时返回 nil, nil）
// 用于转换检测去重：已有 active 事件时不再重复创建
func (r *AlarmEventsRepository) GetOpenTrendEvent(ctx context.Context, tenantID, deviceID string) (*models.AlarmEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			event_id,
			tenant_id,
			device_id,
			event_type,
			category,
			alarm_level,
			alarm_status,
			triggered_at,
			hand_time,
			trigger_data,
			handler,
			operation,
			notes,
			metadata,
			created_at,
			updated_at
		FROM alarm_events
		WHERE tenant_id = $1
		  AND device_id = $2
		  AND event_type = 'SpO2TrendAlert'
		  AND alarm_status = 'active'
		  AND (metadata->>'deleted_at' IS NULL)
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	var event models.AlarmEvent
	var handTimePtr sql.NullTime
	var handler, operation, notes sql.NullString
	var triggerData, metadata []byte

	err := r.db.QueryRowContext(ctx, query, tenantID, deviceID).Scan(
		&event.EventID,
		&event.TenantID,
		&event.DeviceID,
		&event.EventType,
		&event.Category,
		&event.AlarmLevel,
		&event.AlarmStatus,
		&event.TriggeredAt,
		&handTimePtr,
		&triggerData,
		&handler,
		&operation,
		&notes,
		&metadata,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 没有未处理的趋势报警
		}
		return nil, fmt.Errorf("failed to query open trend event: %w", err)
	}

	// 处理可空字段
	if handTimePtr.Valid {
		event.HandTime = &handTimePtr.Time
	}
	if handler.Valid {
		event.Handler = &handler.String
	}
	if operation.Valid {
		event.Operation = &operation.String
	}
	if notes.Valid {
		event.Notes = &notes.String
	}

	// 处理 JSONB 字段
	if len(triggerData) > 0 {
		event.TriggerData = triggerData
	} else {
		event.TriggerData = json.RawMessage("{}")
	}
	if len(metadata) > 0 {
		event.Metadata = metadata
	} else {
		event.Metadata = json.RawMessage("{}")
	}

	return &event, nil
}

// AutoRelieveEvent 自动解除报警（储备恢复后由评估周期触发）
// 仅作用于仍为 active 的事件；已被人工处理的事件保持原状
func (r *AlarmEventsRepository) AutoRelieveEvent(ctx context.Context, tenantID, eventID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE alarm_events
		SET alarm_status = 'auto_relieved',
		    operation = 'auto_relieved',
		    hand_time = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE event_id = $1
		  AND tenant_id = $2
		  AND alarm_status = 'active'
		  AND (metadata->>'deleted_at' IS NULL)
	`

	result, err := r.db.ExecContext(ctx, query, eventID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to auto-relieve alarm event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alarm event not active or not found: event_id=%s, tenant_id=%s", eventID, tenantID)
	}

	return nil
}
