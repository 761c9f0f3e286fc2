package evaluator

import (
	"wisefido-oximetry/internal/models"
)

// stepStreakHold 连续计数 + 双保持模式的单步评估（历史规则集）
//
// 步内顺序固定：归一化/差分 → 触底 → 恢复复位 → 计数更新 →
// 计数注释 → 保持提前终止 → 规则判定 → 保持递减
func (r *runState) stepStreakHold(minute, sample int) models.TrendRow {
	cfg := &r.cfg
	sc := r.beginStep(minute, sample)

	// 1. 触底：最高优先级，立即 ON* 并清空全部内部状态（新发作）
	if sc.atFloor() {
		r.streaks.reset()
		r.hold.clear()
		return sc.emit(models.AlertOnFloor, models.ReasonFloorLimit)
	}

	// 2. 恢复复位：清零计数、取消保持
	if sc.reserve >= cfg.RecoveryThreshold-Epsilon {
		r.streaks.reset()
		if r.hold.active() {
			sc.note("hold cancelled (recovered)")
		}
		r.hold.clear()
		sc.note("reset (reserve>=recovery)")
	}

	// 3. 计数更新
	inCritical, inCaution := r.streaks.update(sc.reserve, cfg)

	// 4. 计数注释（未达触发长度时；警戒规则停用则不再提示计数）
	if inCritical && r.streaks.critical < cfg.CriticalTriggerLen {
		sc.note("counting critical persistence")
	} else if !inCritical && inCaution && !cfg.DisableCautionRule &&
		r.streaks.caution < cfg.CautionTriggerLen {
		sc.note("counting caution persistence")
	}

	// 5. 保持提前终止：储备离开武装该保持的带
	if r.hold.active() {
		if r.hold.reason == models.ReasonCriticalPersist && !inCritical {
			sc.note("hold ended early (left critical band)")
			r.hold.clear()
		} else if r.hold.reason == models.ReasonCautionPersist && !inCaution {
			sc.note("hold ended early (left caution band)")
			r.hold.clear()
		}
	}

	// 6. 规则判定（固定优先级，先到先得）
	alert := models.AlertOff
	reason := models.ReasonNoTrigger
	triggeredNow := false

	switch {
	// 优先级 2：单步恶化超阈值
	case sc.dropExceeds(cfg.DropThreshold):
		alert = models.AlertOn
		reason = models.ReasonDropEvent
		triggeredNow = true

	// 优先级 3：危急带持续恰好命中触发长度
	case r.streaks.critical == cfg.CriticalTriggerLen:
		r.hold.arm(models.ReasonCriticalPersist, cfg.CriticalHoldLen)
		alert = models.AlertOn
		reason = models.ReasonCriticalPersist
		triggeredNow = true

	// 优先级 4：警戒带持续恰好命中触发长度（危急带内不触发）
	case !cfg.DisableCautionRule && r.streaks.caution == cfg.CautionTriggerLen && !inCritical:
		r.hold.arm(models.ReasonCautionPersist, cfg.CautionHoldLen)
		alert = models.AlertOn
		reason = models.ReasonCautionPersist
		triggeredNow = true
	}

	// 优先级 5：无新触发但保持仍在生效
	if !triggeredNow && r.hold.active() {
		alert = models.AlertOn
		reason = r.hold.reason
		sc.note("holding ON (%d min left)", r.hold.onLeft)
	}

	// 7. 保持递减：仅在以持续原因断言 ON 的分钟消耗
	if alert == models.AlertOn && r.hold.active() &&
		(reason == models.ReasonCriticalPersist || reason == models.ReasonCautionPersist) {
		r.hold.onLeft--
		if r.hold.onLeft == 0 {
			sc.note("hold completed -> next OFF unless retrigger")
			r.hold.clear()
		}
	}

	return sc.emit(alert, reason)
}
