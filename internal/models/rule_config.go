package models

import (
	"encoding/json"
	"fmt"
)

// EngineMode 趋势引擎模式
type EngineMode string

const (
	// ModeStreakHold 连续计数触发 + 双保持计时（历史规则集，默认）
	ModeStreakHold EngineMode = "streak_hold"
	// ModeFloorWindow 触底断言窗口 + 提醒冷却（新规则集）
	ModeFloorWindow EngineMode = "floor_window"
)

// RuleConfig 趋势引擎规则配置
// 所有阈值针对归一化后的氧储备（[0,1]）；引擎比较使用全精度
// 字段带 JSON tag：租户侧覆盖存放在 alarm_cloud.conditions JSONB 中
type RuleConfig struct {
	Mode EngineMode `json:"mode"`

	// 储备曲线参考点：s >= good 时储备为 1，s <= bad 时储备为 0
	Good float64 `json:"good"`
	Bad  float64 `json:"bad"`

	// 采样钳制范围（血氧仪合理读数范围）
	ClampMin int `json:"clamp_min"`
	ClampMax int `json:"clamp_max"`

	// 单步恶化阈值：drop > 阈值 → DROP_EVENT
	DropThreshold float64 `json:"drop_threshold"`
	// 平稳阈值：|delta| <= 阈值 → 行注释 "flat"（仅注释，不影响规则）
	FlatThreshold float64 `json:"flat_threshold"`

	// 恢复阈值：reserve >= 阈值 → 清零计数并取消保持
	RecoveryThreshold float64 `json:"recovery_threshold"`

	// 带界：危急带 reserve <= critical_max，警戒带 reserve <= caution_max
	// 危急带是警戒带的子集（critical_max < caution_max）
	CriticalMax float64 `json:"critical_max"`
	CautionMax  float64 `json:"caution_max"`

	// 持续触发长度（恰好命中时触发一次）
	CriticalTriggerLen int `json:"critical_trigger_len"`
	CautionTriggerLen  int `json:"caution_trigger_len"`

	// streak_hold 模式：触发后的保持时长（触发行本身占一分钟）
	CriticalHoldLen int `json:"critical_hold_len"`
	CautionHoldLen  int `json:"caution_hold_len"`

	// floor_window 模式：触底断言窗口、提醒冷却、跌落保持窗口
	FloorWindowLen      int `json:"floor_window_len"`
	ReminderCooldownLen int `json:"reminder_cooldown_len"`
	DropHoldLen         int `json:"drop_hold_len"`

	// floor_window 模式可整体停用警戒持续规则（新规则集取消了该规则）
	DisableCautionRule bool `json:"disable_caution_rule"`

	// 滚动窗口长度（分钟），超出则丢弃最旧采样
	MaxPoints int `json:"max_points"`
}

// ReserveAt 计算样本在当前储备曲线下的氧储备值
// 先钳制到 [clamp_min, clamp_max]，再归一化并施加二次惩罚：
// t = clip((good-s)/(good-bad), 0, 1)，reserve = 1 - t*t
// s <= bad 时恒为 0，s >= good 时恒为 1；对任意整数输入均有定义
func (c *RuleConfig) ReserveAt(sample int) float64 {
	s := float64(sample)
	if s < float64(c.ClampMin) {
		s = float64(c.ClampMin)
	}
	if s > float64(c.ClampMax) {
		s = float64(c.ClampMax)
	}

	t := (c.Good - s) / (c.Good - c.Bad)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return 1 - t*t
}

// Validate 构造期校验；返回第一个发现的配置错误
func (c *RuleConfig) Validate() error {
	if c.Mode != ModeStreakHold && c.Mode != ModeFloorWindow {
		return fmt.Errorf("invalid engine mode: %q", c.Mode)
	}
	if c.Good <= c.Bad {
		return fmt.Errorf("good reference (%.4f) must be above bad reference (%.4f)", c.Good, c.Bad)
	}
	if c.ClampMin >= c.ClampMax {
		return fmt.Errorf("invalid clamp range [%d, %d]", c.ClampMin, c.ClampMax)
	}
	if c.DropThreshold <= 0 || c.DropThreshold > 1 {
		return fmt.Errorf("drop threshold must be in (0, 1], got %.4f", c.DropThreshold)
	}
	if c.FlatThreshold < 0 || c.FlatThreshold >= 1 {
		return fmt.Errorf("flat threshold must be in [0, 1), got %.4f", c.FlatThreshold)
	}
	if c.CriticalMax <= 0 || c.CriticalMax >= 1 {
		return fmt.Errorf("critical band edge must be in (0, 1), got %.4f", c.CriticalMax)
	}
	if c.CautionMax <= 0 || c.CautionMax >= 1 {
		return fmt.Errorf("caution band edge must be in (0, 1), got %.4f", c.CautionMax)
	}
	if c.CriticalMax >= c.CautionMax {
		return fmt.Errorf("critical band edge (%.4f) must sit below caution band edge (%.4f)", c.CriticalMax, c.CautionMax)
	}
	if c.RecoveryThreshold < c.CautionMax {
		return fmt.Errorf("recovery threshold (%.4f) must not sit below caution band edge (%.4f)", c.RecoveryThreshold, c.CautionMax)
	}
	if c.RecoveryThreshold > 1 {
		return fmt.Errorf("recovery threshold must not exceed 1, got %.4f", c.RecoveryThreshold)
	}
	if c.CriticalTriggerLen <= 0 {
		return fmt.Errorf("critical trigger length must be positive, got %d", c.CriticalTriggerLen)
	}
	if c.CautionTriggerLen <= 0 {
		return fmt.Errorf("caution trigger length must be positive, got %d", c.CautionTriggerLen)
	}
	if c.CriticalHoldLen <= 0 {
		return fmt.Errorf("critical hold length must be positive, got %d", c.CriticalHoldLen)
	}
	if c.CautionHoldLen <= 0 {
		return fmt.Errorf("caution hold length must be positive, got %d", c.CautionHoldLen)
	}
	if c.Mode == ModeFloorWindow {
		if c.FloorWindowLen <= 0 {
			return fmt.Errorf("floor window length must be positive, got %d", c.FloorWindowLen)
		}
		if c.ReminderCooldownLen <= 0 {
			return fmt.Errorf("reminder cooldown length must be positive, got %d", c.ReminderCooldownLen)
		}
		if c.DropHoldLen < 0 {
			return fmt.Errorf("drop hold length must not be negative, got %d", c.DropHoldLen)
		}
	}
	if c.MaxPoints <= 0 {
		return fmt.Errorf("max points must be positive, got %d", c.MaxPoints)
	}
	return nil
}

// WithOverrides 在当前配置之上应用 JSON 覆盖（仅覆盖出现的字段）
// 覆盖结果不做校验，由引擎构造时统一校验
func (c RuleConfig) WithOverrides(raw json.RawMessage) (RuleConfig, error) {
	merged := c
	if len(raw) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return c, fmt.Errorf("failed to parse rule config overrides: %w", err)
	}
	return merged, nil
}

// DefaultRuleConfig 血氧趋势引擎的锁定默认配置（streak_hold 模式）
// 带界不写死四舍五入常量，而是锚定在参考样本的曲线值上：
// SpO2=89 属于危急带，SpO2=91 属于警戒带，SpO2=92 触发恢复复位
func DefaultRuleConfig() RuleConfig {
	cfg := RuleConfig{
		Mode:               ModeStreakHold,
		Good:               100,
		Bad:                88,
		ClampMin:           50,
		ClampMax:           100,
		DropThreshold:      0.30,
		FlatThreshold:      0.01,
		CriticalTriggerLen: 3,
		CautionTriggerLen:  5,
		CriticalHoldLen:    5,
		CautionHoldLen:     3,
		MaxPoints:          100,
	}
	cfg.CriticalMax = cfg.ReserveAt(89)
	cfg.CautionMax = cfg.ReserveAt(91)
	cfg.RecoveryThreshold = cfg.ReserveAt(92)
	return cfg
}

// FloorWindowRuleConfig floor_window 模式的预设配置
// 触底断言 5 分钟、冷却 10 分钟后重新提醒；跌落保持 3 分钟；
// 新规则集不再使用警戒持续规则
func FloorWindowRuleConfig() RuleConfig {
	cfg := DefaultRuleConfig()
	cfg.Mode = ModeFloorWindow
	cfg.FloorWindowLen = 5
	cfg.ReminderCooldownLen = 10
	cfg.DropHoldLen = 3
	cfg.DisableCautionRule = true
	return cfg
}

// RuleConfigForMode 按模式名返回预设配置（服务启动与回放工具共用）
func RuleConfigForMode(mode string) (RuleConfig, error) {
	switch EngineMode(mode) {
	case ModeStreakHold, EngineMode(""):
		return DefaultRuleConfig(), nil
	case ModeFloorWindow:
		return FloorWindowRuleConfig(), nil
	default:
		return RuleConfig{}, fmt.Errorf("unknown engine mode: %q", mode)
	}
}
