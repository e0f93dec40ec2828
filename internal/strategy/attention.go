package strategy

import (
	"smartfolio/internal/domain"
)

// AttentionStrategy 关注度来源：要求快照带有正的关注度评分
type AttentionStrategy struct{}

func NewAttentionStrategy() *AttentionStrategy {
	return &AttentionStrategy{}
}

func (s *AttentionStrategy) Source() domain.SourceType {
	return domain.SourceAttention
}

func (s *AttentionStrategy) Evaluate(snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, string) {
	if snap.AttentionScore <= 0 {
		return false, "快照缺少关注度评分"
	}
	return checkEntryConditions(snap, cfg.EntryConditions)
}
