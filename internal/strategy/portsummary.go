package strategy

import (
	"smartfolio/internal/domain"
)

// PortSummaryStrategy 聪明钱组合汇总来源：
// 准入完全由标签驱动，标签在推送时根据快照重新计算。
type PortSummaryStrategy struct{}

func NewPortSummaryStrategy() *PortSummaryStrategy {
	return &PortSummaryStrategy{}
}

func (s *PortSummaryStrategy) Source() domain.SourceType {
	return domain.SourcePortSummary
}

func (s *PortSummaryStrategy) Evaluate(snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, string) {
	if snap.Price <= 0 {
		return false, "快照缺少价格"
	}
	return checkEntryConditions(snap, cfg.EntryConditions)
}
