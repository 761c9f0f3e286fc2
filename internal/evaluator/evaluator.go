package evaluator

import (
	"fmt"
	"math"
	"strings"

	"wisefido-oximetry/internal/models"
)

// Epsilon 阈值边界比较的容差
// 恰好落在带界/阈值上的储备值按界内处理（<= x+Epsilon / >= x-Epsilon），
// 吸收浮点误差；单步恶化判定取排他形式（drop > 阈值+Epsilon）
const Epsilon = 1e-9

// Engine 血氧趋势决策引擎
// 每分钟一个采样、每个采样一行决策：归一化 → 差分 → 持续计数 →
// 固定优先级规则 → 发出不可变行。无任何 I/O；同一序列 + 同一配置
// 产出逐位一致的行
type Engine struct {
	cfg models.RuleConfig
}

// NewEngine 创建引擎；配置在此统一校验，非法配置直接拒绝
func NewEngine(cfg models.RuleConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config 返回引擎配置副本
func (e *Engine) Config() models.RuleConfig {
	return e.cfg
}

// Evaluate 对整个序列做单次前向评估
// 每次调用使用全新运行状态：重复调用同一序列产出逐位一致的行；
// 第 t 行只依赖前 t 个采样（前缀性质，增量重评估结果不变）
func (e *Engine) Evaluate(series []int) []models.TrendRow {
	run := newRunState(e.cfg)
	rows := make([]models.TrendRow, 0, len(series))
	for i, sample := range series {
		rows = append(rows, run.step(i+1, sample))
	}
	return rows
}

// Evaluate 一次性评估（构造 + 运行）
func Evaluate(series []int, cfg models.RuleConfig) ([]models.TrendRow, error) {
	eng, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return eng.Evaluate(series), nil
}

// runState 单次评估的运行状态（不跨序列持久化）
type runState struct {
	cfg models.RuleConfig

	hasPrev     bool
	prevReserve float64

	streaks streakState
	hold    holdState
}

func newRunState(cfg models.RuleConfig) *runState {
	return &runState{cfg: cfg}
}

// step 处理一个采样，返回该分钟的决策行
func (r *runState) step(minute, sample int) models.TrendRow {
	if r.cfg.Mode == models.ModeFloorWindow {
		return r.stepFloorWindow(minute, sample)
	}
	return r.stepStreakHold(minute, sample)
}

// stepContext 单步的中间量：归一化与差分结果 + 注释累积
type stepContext struct {
	minute  int
	sample  int
	reserve float64
	delta   *float64
	drop    *float64
	notes   []string
}

// beginStep 归一化 + 差分；产出 "first sample" / "flat" 注释
func (r *runState) beginStep(minute, sample int) *stepContext {
	sc := &stepContext{
		minute:  minute,
		sample:  sample,
		reserve: r.cfg.ReserveAt(sample),
	}

	if r.hasPrev {
		d := sc.reserve - r.prevReserve
		dd := math.Max(0, -d)
		sc.delta = &d
		sc.drop = &dd
		if math.Abs(d) <= r.cfg.FlatThreshold+Epsilon {
			sc.notes = append(sc.notes, "flat (|delta|<=threshold)")
		}
	} else {
		sc.notes = append(sc.notes, "first sample")
	}

	r.hasPrev = true
	r.prevReserve = sc.reserve

	return sc
}

func (sc *stepContext) note(format string, args ...interface{}) {
	if len(args) == 0 {
		sc.notes = append(sc.notes, format)
		return
	}
	sc.notes = append(sc.notes, fmt.Sprintf(format, args...))
}

// atFloor 储备是否触底
func (sc *stepContext) atFloor() bool {
	return sc.reserve <= 0+Epsilon
}

// dropExceeds 单步恶化是否超过阈值（首行无差分，恒为否）
func (sc *stepContext) dropExceeds(threshold float64) bool {
	return sc.drop != nil && *sc.drop > threshold+Epsilon
}

// emit 发出决策行；储备/差分/恶化按 4 位小数显示（比较始终用全精度）
func (sc *stepContext) emit(alert, reason string) models.TrendRow {
	return models.TrendRow{
		Minute:  sc.minute,
		SpO2:    sc.sample,
		Reserve: round4(sc.reserve),
		Delta:   round4Ptr(sc.delta),
		Drop:    round4Ptr(sc.drop),
		Alert:   alert,
		Reason:  reason,
		Note:    strings.Join(sc.notes, "; "),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round4Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round4(*v)
	return &r
}
