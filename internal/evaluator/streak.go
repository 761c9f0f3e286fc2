package evaluator

import (
	"wisefido-oximetry/internal/models"
)

// streakState 连续占带计数
// 危急带是警戒带的子集：危急带内的分钟同时累加两个计数；
// 离开警戒带两个计数同时归零
type streakState struct {
	critical int
	caution  int
}

func (s *streakState) reset() {
	s.critical = 0
	s.caution = 0
}

// update 按当前储备更新计数，返回带内成员关系
func (s *streakState) update(reserve float64, cfg *models.RuleConfig) (inCritical, inCaution bool) {
	inCritical = reserve <= cfg.CriticalMax+Epsilon
	inCaution = reserve <= cfg.CautionMax+Epsilon

	if inCaution {
		s.caution++
	} else {
		s.caution = 0
	}
	if inCritical {
		s.critical++
	} else {
		s.critical = 0
	}

	return inCritical, inCaution
}
