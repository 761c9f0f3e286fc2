package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/consumer"
	"wisefido-oximetry/internal/evaluator"
	"wisefido-oximetry/internal/models"
	"wisefido-oximetry/internal/notifier"
	"wisefido-oximetry/internal/repository"
)

// TrendEventType 血氧趋势报警的事件类型（alarm_events.event_type）
const TrendEventType = "SpO2TrendAlert"

// rulesRefreshInterval 租户规则覆盖的重新加载间隔
const rulesRefreshInterval = 5 * time.Minute

// TrendRowsStore 决策行持久化接口
type TrendRowsStore interface {
	InsertRows(ctx context.Context, tenantID, deviceID, mode string, rows []models.TrendRow) (int, error)
	GetLatestRow(ctx context.Context, tenantID, deviceID string) (*models.TrendRow, error)
}

// AlarmEventsStore 报警事件持久化接口
type AlarmEventsStore interface {
	CreateAlarmEvent(ctx context.Context, tenantID string, event *models.AlarmEvent) error
	GetOpenTrendEvent(ctx context.Context, tenantID, deviceID string) (*models.AlarmEvent, error)
	AutoRelieveEvent(ctx context.Context, tenantID, eventID string) error
}

// RuleOverridesStore 租户规则覆盖查询接口
type RuleOverridesStore interface {
	GetTrendRuleOverrides(tenantID string) (json.RawMessage, error)
}

// DeviceStore 设备信息查询接口
type DeviceStore interface {
	GetDeviceByID(tenantID, deviceID string) (*repository.Device, error)
}

// StatusCache 设备趋势状态缓存接口
type StatusCache interface {
	UpdateStatus(ctx context.Context, status *models.DeviceTrendStatus) error
	GetStatus(ctx context.Context, tenantID, deviceID string) (*models.DeviceTrendStatus, error)
}

// TransitionNotifier 报警转换通知接口
type TransitionNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, notification *notifier.TrendNotification) error
}

// tenantEngine 按租户缓存的引擎及其加载时间
type tenantEngine struct {
	engine   *evaluator.Engine
	loadedAt time.Time
}

// TrendService 血氧趋势评估服务（实现 consumer.TrendEvaluator 接口）
// 每个评估周期对每台设备：重放序列 → 持久化决策行 → 处理报警转换 → 刷新状态缓存
type TrendService struct {
	config      *config.Config
	logger      *zap.Logger
	baseRules   models.RuleConfig
	baseEngine  *evaluator.Engine
	mode        string
	trendRows   TrendRowsStore
	alarmEvents AlarmEventsStore
	overrides   RuleOverridesStore
	devices     DeviceStore
	statusCache StatusCache
	notifier    TransitionNotifier

	mu      sync.RWMutex
	engines map[string]*tenantEngine
}

// NewTrendService 创建趋势评估服务
func NewTrendService(
	cfg *config.Config,
	trendRows TrendRowsStore,
	alarmEvents AlarmEventsStore,
	overrides RuleOverridesStore,
	devices DeviceStore,
	statusCache StatusCache,
	transitionNotifier TransitionNotifier,
	logger *zap.Logger,
) (*TrendService, error) {
	baseRules, err := models.RuleConfigForMode(cfg.Oximetry.Engine.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve engine rules: %w", err)
	}
	if cfg.Oximetry.Series.MaxPoints > 0 {
		baseRules.MaxPoints = cfg.Oximetry.Series.MaxPoints
	}

	baseEngine, err := evaluator.NewEngine(baseRules)
	if err != nil {
		return nil, fmt.Errorf("failed to build trend engine: %w", err)
	}

	return &TrendService{
		config:      cfg,
		logger:      logger,
		baseRules:   baseRules,
		baseEngine:  baseEngine,
		mode:        string(baseRules.Mode),
		trendRows:   trendRows,
		alarmEvents: alarmEvents,
		overrides:   overrides,
		devices:     devices,
		statusCache: statusCache,
		notifier:    transitionNotifier,
		engines:     make(map[string]*tenantEngine),
	}, nil
}

// EvaluateDevice 对单台设备执行一次完整的趋势评估周期
// samples 为该设备滚动窗口内的全部采样（按分钟升序）
func (s *TrendService) EvaluateDevice(ctx context.Context, tenantID, deviceID string, samples []int) error {
	if len(samples) == 0 {
		return nil
	}

	// 1. 重放整个窗口，得到逐分钟决策行
	engine := s.engineForTenant(tenantID)
	rows := engine.Evaluate(samples)
	if len(rows) == 0 {
		return nil
	}
	last := rows[len(rows)-1]

	// 2. 读取上一周期的报警状态（缓存优先，数据库回退）
	prevAsserted := s.previousAsserted(ctx, tenantID, deviceID)

	// 3. 持久化决策行（重复行由唯一键跳过）
	inserted, err := s.trendRows.InsertRows(ctx, tenantID, deviceID, s.mode, rows)
	if err != nil {
		return fmt.Errorf("failed to persist trend rows: %w", err)
	}

	// 4. 处理报警转换
	if last.Asserted() && !prevAsserted {
		rules := engine.Config()
		if err := s.handleAlertRaised(ctx, tenantID, deviceID, &last, &rules); err != nil {
			return err
		}
	} else if !last.Asserted() && prevAsserted {
		if err := s.handleAlertRelieved(ctx, tenantID, deviceID, &last); err != nil {
			return err
		}
	}

	// 5. 刷新设备状态缓存（失败不阻断周期）
	status := &models.DeviceTrendStatus{
		TenantID:  tenantID,
		DeviceID:  deviceID,
		Minute:    last.Minute,
		SpO2:      last.SpO2,
		Reserve:   last.Reserve,
		Alert:     last.Alert,
		Reason:    last.Reason,
		Note:      last.Note,
		Mode:      s.mode,
		UpdatedAt: time.Now().Unix(),
	}
	if err := s.statusCache.UpdateStatus(ctx, status); err != nil {
		s.logger.Warn("Failed to update trend status cache",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	s.logger.Debug("Device trend evaluated",
		zap.String("tenant_id", tenantID),
		zap.String("device_id", deviceID),
		zap.Int("window_minutes", len(rows)),
		zap.Int("rows_inserted", inserted),
		zap.String("alert", last.Alert),
		zap.String("reason", last.Reason),
	)

	return nil
}

// previousAsserted 上一周期结束时设备是否处于报警状态
// 缓存未命中或读取失败时回退到数据库最新决策行；均无历史按 OFF 处理
func (s *TrendService) previousAsserted(ctx context.Context, tenantID, deviceID string) bool {
	status, err := s.statusCache.GetStatus(ctx, tenantID, deviceID)
	if err == nil {
		return status.Alert != models.AlertOff
	}
	if err != consumer.ErrStatusNotFound {
		s.logger.Warn("Failed to read trend status cache, falling back to database",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	latest, err := s.trendRows.GetLatestRow(ctx, tenantID, deviceID)
	if err != nil {
		s.logger.Warn("Failed to read latest trend row",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return false
	}
	if latest == nil {
		return false
	}
	return latest.Asserted()
}

// handleAlertRaised OFF→ON 转换：创建报警事件并推送通知
// 已存在未解除的趋势事件时跳过（缓存丢失后的重复保护）
func (s *TrendService) handleAlertRaised(ctx context.Context, tenantID, deviceID string, row *models.TrendRow, rules *models.RuleConfig) error {
	open, err := s.alarmEvents.GetOpenTrendEvent(ctx, tenantID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to check open trend event: %w", err)
	}
	if open != nil {
		s.logger.Debug("Trend event already active, skipping creation",
			zap.String("device_id", deviceID),
			zap.String("event_id", open.EventID),
		)
		return nil
	}

	triggerData, err := json.Marshal(&models.TrendTriggerData{
		Minute:  row.Minute,
		SpO2:    row.SpO2,
		Reserve: row.Reserve,
		Delta:   row.Delta,
		Drop:    row.Drop,
		Alert:   row.Alert,
		Reason:  row.Reason,
		Note:    row.Note,
		Mode:    s.mode,
		Source:  "Oximeter",
		Rules:   rules,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	event := &models.AlarmEvent{
		EventID:     uuid.New().String(),
		TenantID:    tenantID,
		DeviceID:    deviceID,
		EventType:   TrendEventType,
		Category:    "clinical",
		AlarmLevel:  models.AlarmLevelForReason(row.Reason),
		AlarmStatus: "active",
		TriggeredAt: time.Now(),
		TriggerData: triggerData,
		Metadata:    json.RawMessage("{}"),
	}
	if err := s.alarmEvents.CreateAlarmEvent(ctx, tenantID, event); err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	s.logger.Info("Trend alarm event created",
		zap.String("event_id", event.EventID),
		zap.String("device_id", deviceID),
		zap.String("alarm_level", event.AlarmLevel),
		zap.String("reason", row.Reason),
	)

	s.notifyTransition(ctx, tenantID, deviceID, event.EventID, "raised", event.AlarmLevel, row)
	return nil
}

// handleAlertRelieved ON→OFF 转换：自动解除未处理的趋势事件并推送通知
func (s *TrendService) handleAlertRelieved(ctx context.Context, tenantID, deviceID string, row *models.TrendRow) error {
	open, err := s.alarmEvents.GetOpenTrendEvent(ctx, tenantID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to check open trend event: %w", err)
	}
	if open == nil {
		s.logger.Debug("No active trend event to relieve",
			zap.String("device_id", deviceID),
		)
		return nil
	}

	if err := s.alarmEvents.AutoRelieveEvent(ctx, tenantID, open.EventID); err != nil {
		// 事件可能已被人工处理，记录后继续
		s.logger.Warn("Failed to auto-relieve trend event",
			zap.String("event_id", open.EventID),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return nil
	}

	s.logger.Info("Trend alarm event auto-relieved",
		zap.String("event_id", open.EventID),
		zap.String("device_id", deviceID),
	)

	s.notifyTransition(ctx, tenantID, deviceID, open.EventID, "relieved", "", row)
	return nil
}

// notifyTransition 推送报警转换 webhook（通知失败不阻断周期）
func (s *TrendService) notifyTransition(ctx context.Context, tenantID, deviceID, eventID, transition, alarmLevel string, row *models.TrendRow) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}

	notification := &notifier.TrendNotification{
		TenantID:   tenantID,
		DeviceID:   deviceID,
		EventID:    eventID,
		Transition: transition,
		AlarmLevel: alarmLevel,
		Minute:     row.Minute,
		SpO2:       row.SpO2,
		Reserve:    row.Reserve,
		Alert:      row.Alert,
		Reason:     row.Reason,
		Note:       row.Note,
		Mode:       s.mode,
		Timestamp:  time.Now().Unix(),
	}

	// 设备信息仅用于丰富通知内容，查询失败不阻断
	if device, err := s.devices.GetDeviceByID(tenantID, deviceID); err == nil {
		notification.DeviceName = device.DeviceName
		notification.SerialNumber = device.SerialNumber
		notification.BoundBedID = device.BoundBedID
		notification.BoundRoomID = device.BoundRoomID
	} else {
		s.logger.Warn("Failed to load device info for notification",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Warn("Failed to send transition notification",
			zap.String("device_id", deviceID),
			zap.String("transition", transition),
			zap.Error(err),
		)
	}
}

// engineForTenant 获取租户的趋势引擎（预设配置 + alarm_cloud 覆盖）
// 引擎按租户缓存，定期重新加载覆盖；覆盖无效时退回预设配置
func (s *TrendService) engineForTenant(tenantID string) *evaluator.Engine {
	s.mu.RLock()
	cached, ok := s.engines[tenantID]
	s.mu.RUnlock()
	if ok && time.Since(cached.loadedAt) < rulesRefreshInterval {
		return cached.engine
	}

	engine := s.buildEngine(tenantID)

	s.mu.Lock()
	s.engines[tenantID] = &tenantEngine{engine: engine, loadedAt: time.Now()}
	s.mu.Unlock()

	return engine
}

// buildEngine 构建租户引擎；任何一步失败都退回预设配置
func (s *TrendService) buildEngine(tenantID string) *evaluator.Engine {
	rules := s.baseRules

	raw, err := s.overrides.GetTrendRuleOverrides(tenantID)
	if err != nil {
		s.logger.Warn("Failed to load trend rule overrides, using preset rules",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	} else if len(raw) > 0 {
		merged, err := rules.WithOverrides(raw)
		if err != nil {
			s.logger.Warn("Invalid trend rule overrides, using preset rules",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		} else {
			// 覆盖只允许调阈值，引擎模式由部署配置决定
			merged.Mode = s.baseRules.Mode
			rules = merged
		}
	}

	engine, err := evaluator.NewEngine(rules)
	if err != nil {
		s.logger.Warn("Merged trend rules failed validation, using preset rules",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return s.baseEngine
	}

	return engine
}
