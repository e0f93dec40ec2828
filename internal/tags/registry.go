// Package tags 根据代币快照计算组合标签。
// 策略准入条件通过标签名引用这里的判定规则。
package tags

import (
	"sort"

	"smartfolio/internal/domain"
)

// 标签名称常量，与策略配置中的 required_tags 一一对应
const (
	Balance100K = "BALANCE_100K"
	Balance500K = "BALANCE_500K"
	Balance1M   = "BALANCE_1M"

	Huge1DChange  = "HUGE_1D_CHANGE"
	Huge7DChange  = "HUGE_7D_CHANGE"
	Huge30DChange = "HUGE_30D_CHANGE"

	PriceWithinRange = "PRICE_WITHIN_RANGE"

	MCap0To1M     = "MCAP_0_1M"
	MCap1MTo10M   = "MCAP_1M_10M"
	MCap10MTo50M  = "MCAP_10M_50M"
	MCap50MTo100M = "MCAP_50M_100M"
	MCapAbove100M = "MCAP_ABOVE_100M"
)

// 持仓变化超过该百分比视为剧烈变动
const hugeChangeThreshold = 20.0

// 现价偏离均价不超过该百分比视为价格在区间内
const priceRangeThreshold = 20.0

// Predicate 标签判定规则
type Predicate func(snap *domain.TokenSnapshot) bool

var registry = map[string]Predicate{
	Balance100K: func(s *domain.TokenSnapshot) bool { return s.SmartBalance > 100_000 },
	Balance500K: func(s *domain.TokenSnapshot) bool { return s.SmartBalance > 500_000 },
	Balance1M:   func(s *domain.TokenSnapshot) bool { return s.SmartBalance > 1_000_000 },

	Huge1DChange:  func(s *domain.TokenSnapshot) bool { return abs(s.QtyChange1D) > hugeChangeThreshold },
	Huge7DChange:  func(s *domain.TokenSnapshot) bool { return abs(s.QtyChange7D) > hugeChangeThreshold },
	Huge30DChange: func(s *domain.TokenSnapshot) bool { return abs(s.QtyChange30D) > hugeChangeThreshold },

	PriceWithinRange: func(s *domain.TokenSnapshot) bool {
		if s.AvgPrice <= 0 || s.Price <= 0 {
			return false
		}
		deviation := (s.Price - s.AvgPrice) / s.AvgPrice * 100
		return abs(deviation) <= priceRangeThreshold
	},

	MCap0To1M:     func(s *domain.TokenSnapshot) bool { return s.MarketCap > 0 && s.MarketCap < 1_000_000 },
	MCap1MTo10M:   func(s *domain.TokenSnapshot) bool { return s.MarketCap >= 1_000_000 && s.MarketCap < 10_000_000 },
	MCap10MTo50M:  func(s *domain.TokenSnapshot) bool { return s.MarketCap >= 10_000_000 && s.MarketCap < 50_000_000 },
	MCap50MTo100M: func(s *domain.TokenSnapshot) bool { return s.MarketCap >= 50_000_000 && s.MarketCap < 100_000_000 },
	MCapAbove100M: func(s *domain.TokenSnapshot) bool { return s.MarketCap >= 100_000_000 },
}

// Known 标签名是否已注册
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Compute 计算快照命中的全部标签，按字典序返回
func Compute(snap *domain.TokenSnapshot) []string {
	var out []string
	for name, pred := range registry {
		if pred(snap) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// All 全部已注册的标签名，按字典序
func All() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
