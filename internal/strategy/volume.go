package strategy

import (
	"smartfolio/internal/domain"
)

// VolumeStrategy 成交量异动来源：要求代币已在 DEX 上架且有成交量数据
type VolumeStrategy struct{}

func NewVolumeStrategy() *VolumeStrategy {
	return &VolumeStrategy{}
}

func (s *VolumeStrategy) Source() domain.SourceType {
	return domain.SourceVolume
}

func (s *VolumeStrategy) Evaluate(snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, string) {
	if !snap.DexStatus {
		return false, "代币未在 DEX 上架"
	}
	if snap.Volume24h <= 0 {
		return false, "快照缺少 24h 成交量"
	}
	return checkEntryConditions(snap, cfg.EntryConditions)
}
