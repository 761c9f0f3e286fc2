package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-oximetry/internal/models"
)

// ============================================
// 测试辅助
// ============================================

func mustEngine(t *testing.T, cfg models.RuleConfig) *Engine {
	t.Helper()
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	return eng
}

func f(v float64) *float64 {
	return &v
}

func alertsOf(rows []models.TrendRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Alert
	}
	return out
}

func reasonsOf(rows []models.TrendRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Reason
	}
	return out
}

// ============================================
// streak_hold 模式
// ============================================

// 触底复位场景：触底行立即 ON* 并开启新发作，其后计数从零重新累积，
// 不再出现 ON；末行恢复复位
func TestEvaluate_FloorResetScenario(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{93, 91, 90, 89, 88, 89, 89, 91, 92})

	expected := []models.TrendRow{
		{Minute: 1, SpO2: 93, Reserve: 0.6597, Delta: nil, Drop: nil,
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "first sample; reset (reserve>=recovery)"},
		{Minute: 2, SpO2: 91, Reserve: 0.4375, Delta: f(-0.2222), Drop: f(0.2222),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "counting caution persistence"},
		{Minute: 3, SpO2: 90, Reserve: 0.3056, Delta: f(-0.1319), Drop: f(0.1319),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "counting caution persistence"},
		{Minute: 4, SpO2: 89, Reserve: 0.1597, Delta: f(-0.1458), Drop: f(0.1458),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "counting critical persistence"},
		{Minute: 5, SpO2: 88, Reserve: 0, Delta: f(-0.1597), Drop: f(0.1597),
			Alert: "ON*", Reason: "FLOOR_LIMIT", Note: ""},
		{Minute: 6, SpO2: 89, Reserve: 0.1597, Delta: f(0.1597), Drop: f(0),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "counting critical persistence"},
		{Minute: 7, SpO2: 89, Reserve: 0.1597, Delta: f(0), Drop: f(0),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "flat (|delta|<=threshold); counting critical persistence"},
		{Minute: 8, SpO2: 91, Reserve: 0.4375, Delta: f(0.2778), Drop: f(0),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "counting caution persistence"},
		{Minute: 9, SpO2: 92, Reserve: 0.5556, Delta: f(0.1181), Drop: f(0),
			Alert: "OFF", Reason: "NO_TRIGGER", Note: "reset (reserve>=recovery)"},
	}

	require.Equal(t, expected, rows)
}

// 首行：差分与恶化为 null，带 "first sample" 注释
func TestEvaluate_FirstSample(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{95})

	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Delta)
	assert.Nil(t, rows[0].Drop)
	assert.Contains(t, rows[0].Note, "first sample")
	assert.Equal(t, models.AlertOff, rows[0].Alert)
}

// 危急持续触发：恰好命中触发长度时 ON 并武装保持；
// 保持共 5 个 ON 分钟（触发行 + 4），倒计时注释逐行递减
func TestEvaluate_CriticalPersistHold(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 90, 89, 89, 89, 89, 89, 89, 89, 89})

	require.Len(t, rows, 10)
	assert.Equal(t,
		[]string{"OFF", "OFF", "OFF", "OFF", "ON", "ON", "ON", "ON", "ON", "OFF"},
		alertsOf(rows))

	// 步 5：危急计数命中 3，优先级高于同分钟命中的警戒计数
	assert.Equal(t, models.ReasonCriticalPersist, rows[4].Reason)

	// 保持中的倒计时注释
	assert.Contains(t, rows[5].Note, "holding ON (4 min left)")
	assert.Contains(t, rows[6].Note, "holding ON (3 min left)")
	assert.Contains(t, rows[7].Note, "holding ON (2 min left)")
	assert.Contains(t, rows[8].Note, "holding ON (1 min left)")
	assert.Contains(t, rows[8].Note, "hold completed -> next OFF unless retrigger")

	// 保持耗尽后计数已超过触发长度，不再重触发
	assert.Equal(t, models.ReasonNoTrigger, rows[9].Reason)
}

// 警戒持续触发：恰好在警戒带（危急带之外）命中 5 分钟
func TestEvaluate_CautionPersistTrigger(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 91, 91, 91, 91, 91, 91})

	require.Len(t, rows, 7)
	assert.Equal(t,
		[]string{"OFF", "OFF", "OFF", "OFF", "ON", "ON", "ON"},
		alertsOf(rows))
	assert.Equal(t, models.ReasonCautionPersist, rows[4].Reason)

	// 保持 3 分钟：触发行 + 2
	assert.Contains(t, rows[5].Note, "holding ON (2 min left)")
	assert.Contains(t, rows[6].Note, "holding ON (1 min left)")
	assert.Contains(t, rows[6].Note, "hold completed")
}

// 单步恶化：超过阈值立即 ON；恰好等于阈值不触发
func TestEvaluate_DropEvent(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{97, 91})

	require.Len(t, rows, 2)
	assert.Equal(t, models.AlertOn, rows[1].Alert)
	assert.Equal(t, models.ReasonDropEvent, rows[1].Reason)
	assert.Equal(t, 0.5, *rows[1].Drop)

	// 阈值提高到恰好等于本次恶化量：不触发（排他比较）
	cfg := models.DefaultRuleConfig()
	cfg.DropThreshold = 0.5
	rows = mustEngine(t, cfg).Evaluate([]int{97, 91})
	assert.Equal(t, models.AlertOff, rows[1].Alert)
	assert.Equal(t, models.ReasonNoTrigger, rows[1].Reason)
}

// 触底清空保持：保持中的触底行 ON* 并重置全部内部状态
func TestEvaluate_FloorClearsHold(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 90, 89, 89, 89, 88, 89})

	require.Len(t, rows, 7)
	// 步 5 触发危急保持，步 6 触底
	assert.Equal(t, models.ReasonCriticalPersist, rows[4].Reason)
	assert.Equal(t, models.AlertOnFloor, rows[5].Alert)
	assert.Equal(t, models.ReasonFloorLimit, rows[5].Reason)

	// 触底后为新发作：保持已清空，计数从 1 重新累积
	assert.Equal(t, models.AlertOff, rows[6].Alert)
	assert.Contains(t, rows[6].Note, "counting critical persistence")
}

// 保持提前终止：储备离开武装保持的带（未达恢复阈值）
func TestEvaluate_CriticalHoldEarlyCancel(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 90, 89, 89, 89, 90})

	require.Len(t, rows, 6)
	assert.Equal(t, models.ReasonCriticalPersist, rows[4].Reason)
	assert.Equal(t, models.AlertOff, rows[5].Alert)
	assert.Contains(t, rows[5].Note, "hold ended early (left critical band)")
}

// 警戒保持提前终止：恢复阈值上移后，离开警戒带但未恢复
func TestEvaluate_CautionHoldEarlyCancel(t *testing.T) {
	cfg := models.DefaultRuleConfig()
	cfg.RecoveryThreshold = cfg.ReserveAt(93)
	eng := mustEngine(t, cfg)

	rows := eng.Evaluate([]int{91, 91, 91, 91, 91, 92})

	require.Len(t, rows, 6)
	assert.Equal(t, models.ReasonCautionPersist, rows[4].Reason)
	assert.Equal(t, models.AlertOff, rows[5].Alert)
	assert.Contains(t, rows[5].Note, "hold ended early (left caution band)")
}

// 恢复复位取消保持（默认配置下 92 即达恢复阈值）
func TestEvaluate_RecoveryCancelsHold(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 91, 91, 91, 91, 92})

	require.Len(t, rows, 6)
	assert.Equal(t, models.ReasonCautionPersist, rows[4].Reason)
	assert.Equal(t, models.AlertOff, rows[5].Alert)
	assert.Contains(t, rows[5].Note, "hold cancelled (recovered)")
	assert.Contains(t, rows[5].Note, "reset (reserve>=recovery)")
}

// 带重入后重新累积并可再次触发
func TestEvaluate_RetriggerAfterBandReentry(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{91, 90, 89, 89, 89, 90, 89, 89, 89})

	require.Len(t, rows, 9)
	assert.Equal(t, models.ReasonCriticalPersist, rows[4].Reason)
	// 步 6 离带提前终止
	assert.Equal(t, models.AlertOff, rows[5].Alert)
	// 步 7-9 重新累积到 3，再次触发
	assert.Equal(t, models.AlertOff, rows[6].Alert)
	assert.Equal(t, models.AlertOff, rows[7].Alert)
	assert.Equal(t, models.AlertOn, rows[8].Alert)
	assert.Equal(t, models.ReasonCriticalPersist, rows[8].Reason)
}

// 同一引擎重复评估同一序列：结果逐位一致（每次调用全新运行状态）
func TestEvaluate_Idempotent(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())
	series := []int{93, 91, 90, 89, 88, 89, 89, 91, 92}

	first := eng.Evaluate(series)
	second := eng.Evaluate(series)

	require.Equal(t, first, second)
}

// 运行状态不跨序列泄漏
func TestEvaluate_NoStateAcrossSeries(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{89, 89, 89})
	require.Len(t, rows, 3)
	assert.Equal(t, models.AlertOn, rows[2].Alert)

	// 新序列从零开始：单行不可能命中触发长度
	rows = eng.Evaluate([]int{89})
	require.Len(t, rows, 1)
	assert.Equal(t, models.AlertOff, rows[0].Alert)
	assert.Contains(t, rows[0].Note, "counting critical persistence")
}

// 空序列：零行，不出错
func TestEvaluate_EmptySeries(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	assert.Empty(t, eng.Evaluate(nil))
	assert.Empty(t, eng.Evaluate([]int{}))
}

// 极端采样不会产生越界储备（钳制与全函数性）
func TestEvaluate_OutOfRangeSamples(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{-10, 40, 120, 101})

	require.Len(t, rows, 4)
	// 低于钳制下限 → 触底
	assert.Equal(t, models.AlertOnFloor, rows[0].Alert)
	assert.Equal(t, 0.0, rows[0].Reserve)
	// 高于钳制上限 → 满储备
	assert.Equal(t, 1.0, rows[2].Reserve)
	assert.Equal(t, 1.0, rows[3].Reserve)
}

// 显示精度：储备/差分/恶化四舍五入到 4 位小数
func TestEvaluate_DisplayRounding(t *testing.T) {
	eng := mustEngine(t, models.DefaultRuleConfig())

	rows := eng.Evaluate([]int{90, 89})

	require.Len(t, rows, 2)
	assert.Equal(t, 0.3056, rows[0].Reserve)
	assert.Equal(t, 0.1597, rows[1].Reserve)
	assert.Equal(t, -0.1458, *rows[1].Delta)
	assert.Equal(t, 0.1458, *rows[1].Drop)
}

// ============================================
// 构造与便捷入口
// ============================================

func TestNewEngine_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.RuleConfig)
	}{
		{"unknown mode", func(c *models.RuleConfig) { c.Mode = "bogus" }},
		{"good below bad", func(c *models.RuleConfig) { c.Good = 80 }},
		{"inverted clamp range", func(c *models.RuleConfig) { c.ClampMin = 120 }},
		{"zero drop threshold", func(c *models.RuleConfig) { c.DropThreshold = 0 }},
		{"critical above caution", func(c *models.RuleConfig) { c.CriticalMax = 0.9 }},
		{"recovery below caution", func(c *models.RuleConfig) { c.RecoveryThreshold = 0.1 }},
		{"zero critical trigger", func(c *models.RuleConfig) { c.CriticalTriggerLen = 0 }},
		{"negative caution trigger", func(c *models.RuleConfig) { c.CautionTriggerLen = -1 }},
		{"zero critical hold", func(c *models.RuleConfig) { c.CriticalHoldLen = 0 }},
		{"zero caution hold", func(c *models.RuleConfig) { c.CautionHoldLen = 0 }},
		{"zero max points", func(c *models.RuleConfig) { c.MaxPoints = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultRuleConfig()
			tt.mutate(&cfg)

			eng, err := NewEngine(cfg)
			require.Error(t, err)
			assert.Nil(t, eng)
			assert.Contains(t, err.Error(), "invalid rule config")
		})
	}
}

func TestNewEngine_FloorWindowRequiresTimers(t *testing.T) {
	cfg := models.FloorWindowRuleConfig()
	cfg.FloorWindowLen = 0

	_, err := NewEngine(cfg)
	require.Error(t, err)

	cfg = models.FloorWindowRuleConfig()
	cfg.ReminderCooldownLen = 0

	_, err = NewEngine(cfg)
	require.Error(t, err)
}

func TestEvaluateFunc_Success(t *testing.T) {
	rows, err := Evaluate([]int{93, 91, 90}, models.DefaultRuleConfig())
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestEvaluateFunc_InvalidConfig(t *testing.T) {
	cfg := models.DefaultRuleConfig()
	cfg.CriticalTriggerLen = 0

	rows, err := Evaluate([]int{93}, cfg)
	require.Error(t, err)
	assert.Nil(t, rows)
}
