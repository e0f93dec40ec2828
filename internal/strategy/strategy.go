// Package strategy 按来源评估代币是否满足策略准入条件。
// 每个来源一个实现，由显式注册表持有，不做动态派发。
package strategy

import (
	"fmt"

	"smartfolio/internal/domain"
)

// Strategy 单一来源的准入评估器
type Strategy interface {
	// Source 本评估器负责的代币来源
	Source() domain.SourceType
	// Evaluate 判断代币是否满足策略准入条件，不满足时返回原因
	Evaluate(snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, string)
}

// Registry 来源到评估器的显式映射
type Registry struct {
	bySource map[domain.SourceType]Strategy
}

// NewRegistry 注册全部可执行来源的评估器。
// SMARTMONEY 仅接收数据推送，没有评估器。
func NewRegistry() *Registry {
	r := &Registry{bySource: make(map[domain.SourceType]Strategy)}
	r.register(NewPortSummaryStrategy())
	r.register(NewAttentionStrategy())
	r.register(NewVolumeStrategy())
	r.register(NewPumpFunStrategy())
	return r
}

func (r *Registry) register(s Strategy) {
	r.bySource[s.Source()] = s
}

// Lookup 取来源对应的评估器
func (r *Registry) Lookup(source domain.SourceType) (Strategy, error) {
	s, ok := r.bySource[source]
	if !ok {
		return nil, fmt.Errorf("来源 %s 没有注册评估器", source)
	}
	return s, nil
}

// 通用准入条件：必需标签超集判断 + 市值/流动性/代币年龄下限
func checkEntryConditions(snap *domain.TokenSnapshot, cond domain.EntryConditions) (bool, string) {
	tokenTags := domain.SplitTags(snap.Tags)
	if !domain.HasAllTags(tokenTags, cond.RequiredTags) {
		return false, fmt.Sprintf("缺少必需标签，现有: %v，要求: %v", tokenTags, cond.RequiredTags)
	}
	if cond.MinMarketCap > 0 && snap.MarketCap < cond.MinMarketCap {
		return false, fmt.Sprintf("市值 %.0f 低于下限 %.0f", snap.MarketCap, cond.MinMarketCap)
	}
	if cond.MinLiquidity > 0 && snap.Liquidity < cond.MinLiquidity {
		return false, fmt.Sprintf("流动性 %.0f 低于下限 %.0f", snap.Liquidity, cond.MinLiquidity)
	}
	if cond.MaxTokenAge > 0 && snap.TokenAge > cond.MaxTokenAge {
		return false, fmt.Sprintf("代币年龄 %d 天超过上限 %d 天", snap.TokenAge, cond.MaxTokenAge)
	}
	return true, ""
}
