package evaluator

import (
	"wisefido-oximetry/internal/models"
)

// stepFloorWindow 触底断言窗口 + 提醒冷却模式的单步评估（新规则集）
//
// 与 streak_hold 的差异：触底不再无条件每分钟断言，而是武装一个
// 有限断言窗口；窗口耗尽后若危急带仍被占用则进入冷却，冷却归零时
// 重新武装（周期性提醒）。跌落事件武装/刷新独立的跌落窗口；
// 持续规则只发单步报警，不再携带保持
func (r *runState) stepFloorWindow(minute, sample int) models.TrendRow {
	cfg := &r.cfg
	sc := r.beginStep(minute, sample)

	// 1. 恢复复位：清零计数、取消跌落窗口与触底窗口/冷却
	if sc.reserve >= cfg.RecoveryThreshold-Epsilon {
		r.streaks.reset()
		if r.hold.active() {
			sc.note("hold cancelled (recovered)")
			r.hold.clear()
		}
		if r.hold.floorLeft > 0 {
			sc.note("floor window cancelled (recovered)")
			r.hold.floorLeft = 0
		}
		if r.hold.cooldownLeft > 0 {
			sc.note("reminder cancelled (recovered)")
			r.hold.cooldownLeft = 0
		}
		sc.note("reset (reserve>=recovery)")
	}

	// 2. 计数更新；触底清零计数（新发作从下一分钟起算）
	atFloor := sc.atFloor()
	var inCritical, inCaution bool
	if atFloor {
		r.streaks.reset()
		inCritical, inCaution = true, true
	} else {
		inCritical, inCaution = r.streaks.update(sc.reserve, cfg)
	}

	// 3. 计数注释（触底行由规则 1 说明，不再计数；警戒规则停用则
	// 不再提示计数）
	if !atFloor {
		if inCritical && r.streaks.critical < cfg.CriticalTriggerLen {
			sc.note("counting critical persistence")
		} else if !inCritical && inCaution && !cfg.DisableCautionRule &&
			r.streaks.caution < cfg.CautionTriggerLen {
			sc.note("counting caution persistence")
		}
	}

	// 4. 离带取消：触底窗口与冷却都锚定危急带
	if !inCritical {
		if r.hold.floorLeft > 0 {
			sc.note("floor window cancelled (left critical band)")
			r.hold.floorLeft = 0
		}
		if r.hold.cooldownLeft > 0 {
			sc.note("reminder cancelled (left critical band)")
			r.hold.cooldownLeft = 0
		}
	}

	// 5. 冷却进行中注释（本步结束时递减）
	if r.hold.cooldownLeft > 0 {
		sc.note("reminder cooldown (%d min left)", r.hold.cooldownLeft)
	}

	// 6. 规则判定（固定优先级，先到先得）
	alert := models.AlertOff
	reason := models.ReasonNoTrigger
	triggeredNow := false

	// 优先级 1：触底时武装或继续断言窗口；冷却期内被抑制
	if atFloor {
		switch {
		case r.hold.floorLeft > 0:
			// 窗口进行中：继续断言，不刷新窗口
			alert = models.AlertOnFloor
			reason = models.ReasonFloorLimit
			triggeredNow = true
		case r.hold.cooldownLeft > 0:
			// 冷却期：触底不重新武装，等待提醒
		default:
			r.hold.floorLeft = cfg.FloorWindowLen
			sc.note("floor window armed (%d min)", cfg.FloorWindowLen)
			alert = models.AlertOnFloor
			reason = models.ReasonFloorLimit
			triggeredNow = true
		}
	}

	// 优先级 2：单步恶化超阈值（武装/刷新跌落窗口）
	if !triggeredNow && sc.dropExceeds(cfg.DropThreshold) {
		alert = models.AlertOn
		reason = models.ReasonDropEvent
		triggeredNow = true
		if cfg.DropHoldLen > 0 {
			r.hold.arm(models.ReasonDropEvent, cfg.DropHoldLen)
		}
	}

	// 优先级 3：危急带持续恰好命中触发长度（单步报警，无保持）
	if !triggeredNow && r.streaks.critical == cfg.CriticalTriggerLen {
		alert = models.AlertOn
		reason = models.ReasonCriticalPersist
		triggeredNow = true
	}

	// 优先级 4：警戒带持续（新规则集通常停用）
	if !triggeredNow && !cfg.DisableCautionRule &&
		r.streaks.caution == cfg.CautionTriggerLen && !inCritical {
		alert = models.AlertOn
		reason = models.ReasonCautionPersist
		triggeredNow = true
	}

	// 优先级 5：窗口保持中（触底窗口优先于跌落窗口）
	if !triggeredNow {
		if r.hold.floorLeft > 0 {
			alert = models.AlertOn
			reason = models.ReasonFloorLimit
			sc.note("holding ON (%d min left)", r.hold.floorLeft)
		} else if r.hold.active() {
			alert = models.AlertOn
			reason = r.hold.reason
			sc.note("holding ON (%d min left)", r.hold.onLeft)
		}
	}

	// 7. 计时器递减
	// 触底窗口：仅在以触底原因断言的分钟消耗；耗尽且危急带仍被占用
	// 时武装冷却
	if reason == models.ReasonFloorLimit && alert != models.AlertOff && r.hold.floorLeft > 0 {
		r.hold.floorLeft--
		if r.hold.floorLeft == 0 && inCritical {
			r.hold.cooldownLeft = cfg.ReminderCooldownLen
			sc.note("reminder cooldown started (%d min)", cfg.ReminderCooldownLen)
		}
	} else if r.hold.cooldownLeft > 0 {
		// 冷却逐分钟递减；归零时重新武装断言窗口（离带情况已在
		// 本步前段取消冷却，走到这里危急带必然仍被占用）
		r.hold.cooldownLeft--
		if r.hold.cooldownLeft == 0 {
			r.hold.floorLeft = cfg.FloorWindowLen
			sc.note("floor reminder re-armed")
		}
	}

	// 跌落窗口：仅在以跌落原因断言 ON 的分钟消耗
	if alert == models.AlertOn && reason == models.ReasonDropEvent && r.hold.active() {
		r.hold.onLeft--
		if r.hold.onLeft == 0 {
			sc.note("hold completed -> next OFF unless retrigger")
			r.hold.clear()
		}
	}

	return sc.emit(alert, reason)
}
