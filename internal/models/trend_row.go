package models

// 报警状态（每分钟一行的决策结果）
const (
	AlertOn      = "ON"  // 规则触发或保持中
	AlertOnFloor = "ON*" // 氧储备触底（最高优先级）
	AlertOff     = "OFF" // 无触发
)

// 决策原因码（稳定 API：持久化、缓存、webhook 均使用原始字符串）
const (
	ReasonFloorLimit      = "FLOOR_LIMIT"      // 氧储备触底（reserve = 0）
	ReasonDropEvent       = "DROP_EVENT"       // 单步恶化超过阈值
	ReasonCriticalPersist = "CRITICAL_PERSIST" // 危急带持续达到触发长度
	ReasonCautionPersist  = "CAUTION_PERSIST"  // 警戒带持续达到触发长度
	ReasonNoTrigger       = "NO_TRIGGER"       // 无规则触发
)

// TrendRow 趋势引擎输出的单分钟决策行
// 每个采样恰好产出一行，按输入顺序追加，发出后不可变
// Reserve/Delta/Drop 为显示值（4 位小数）；引擎内部比较使用全精度
type TrendRow struct {
	Minute  int      `json:"minute"`         // 1-based 分钟序号（序列下标）
	SpO2    int      `json:"spo2"`           // 原始采样值
	Reserve float64  `json:"reserve"`        // 氧储备 [0,1]
	Delta   *float64 `json:"delta"`          // 与上一分钟的储备差；首行为 null
	Drop    *float64 `json:"drop"`           // 单步恶化量 max(0, -delta)；首行为 null
	Alert   string   `json:"alert"`          // ON / ON* / OFF
	Reason  string   `json:"reason"`         // 原因码
	Note    string   `json:"note,omitempty"` // 注释（"; " 连接，检出顺序固定）
}

// Asserted 该行是否处于报警状态（ON 或 ON*）
func (r *TrendRow) Asserted() bool {
	return r.Alert != AlertOff
}

// AlarmLevelForReason 原因码到报警级别的映射（alarm_events.alarm_level）
func AlarmLevelForReason(reason string) string {
	switch reason {
	case ReasonFloorLimit:
		return "EMERGENCY"
	case ReasonDropEvent, ReasonCriticalPersist:
		return "ALERT"
	case ReasonCautionPersist:
		return "WARNING"
	default:
		return "WARNING"
	}
}
