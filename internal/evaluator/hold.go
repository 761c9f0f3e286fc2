package evaluator

// holdState 保持/提醒计时器
//
// streak_hold 模式：单一共享保持槽（onLeft/reason），持续规则触发时
// 武装，新触发覆盖旧保持；触发行本身消耗一分钟
//
// floor_window 模式：共享槽由跌落窗口使用；floorLeft/cooldownLeft
// 单独跟踪触底断言窗口与提醒冷却（两族计时器可并存，规则 5 优先触底）
//
// 不变式：计时器永不为负；onLeft > 0 时 reason 非空；
// cooldownLeft 仅在 floorLeft == 0 且危急带仍被占用时有意义
type holdState struct {
	onLeft int
	reason string

	floorLeft    int
	cooldownLeft int
}

func (h *holdState) active() bool {
	return h.onLeft > 0
}

func (h *holdState) arm(reason string, minutes int) {
	h.reason = reason
	h.onLeft = minutes
}

func (h *holdState) clear() {
	h.onLeft = 0
	h.reason = ""
}
