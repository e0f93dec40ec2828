package strategy

import (
	"fmt"

	"smartfolio/internal/domain"
)

// PumpFunStrategy pump.fun 新币来源：
// 除通用条件外要求无 rug 记录且已在 DEX 上架。
type PumpFunStrategy struct{}

func NewPumpFunStrategy() *PumpFunStrategy {
	return &PumpFunStrategy{}
}

func (s *PumpFunStrategy) Source() domain.SourceType {
	return domain.SourcePumpFun
}

func (s *PumpFunStrategy) Evaluate(snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, string) {
	if snap.RugCount > 0 {
		return false, fmt.Sprintf("创建者有 %d 次 rug 记录", snap.RugCount)
	}
	if !snap.DexStatus {
		return false, "代币未在 DEX 上架"
	}
	return checkEntryConditions(snap, cfg.EntryConditions)
}
