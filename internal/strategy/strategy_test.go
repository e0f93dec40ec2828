package strategy

import (
	"testing"

	"smartfolio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(source domain.SourceType) *domain.StrategyConfig {
	return &domain.StrategyConfig{
		StrategyName: "test",
		Source:       source,
		Active:       true,
		Investment: domain.InvestmentInstructions{
			EntryType:     domain.EntryBulk,
			AllotedAmount: 1000,
		},
	}
}

func TestRegistryCoversExecutableSources(t *testing.T) {
	r := NewRegistry()

	for _, source := range []domain.SourceType{
		domain.SourcePortSummary,
		domain.SourceAttention,
		domain.SourceVolume,
		domain.SourcePumpFun,
	} {
		s, err := r.Lookup(source)
		require.NoError(t, err)
		assert.Equal(t, source, s.Source())
	}

	// SMARTMONEY 只推送数据，没有评估器
	_, err := r.Lookup(domain.SourceSmartMoney)
	assert.Error(t, err)
}

func TestPortSummaryEvaluate(t *testing.T) {
	s := NewPortSummaryStrategy()
	cfg := baseConfig(domain.SourcePortSummary)
	cfg.EntryConditions.RequiredTags = []string{"BALANCE_100K", "MCAP_1M_10M"}

	snap := &domain.TokenSnapshot{
		TokenID: "tok", Price: 0.5,
		Tags: "BALANCE_100K,MCAP_1M_10M,HUGE_1D_CHANGE",
	}
	ok, _ := s.Evaluate(snap, cfg)
	assert.True(t, ok, "标签超集应准入")

	snap.Tags = "BALANCE_100K"
	ok, reason := s.Evaluate(snap, cfg)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	// 必需标签大小写敏感
	snap.Tags = "balance_100k,mcap_1m_10m"
	ok, _ = s.Evaluate(snap, cfg)
	assert.False(t, ok)

	snap.Tags = "BALANCE_100K,MCAP_1M_10M"
	snap.Price = 0
	ok, _ = s.Evaluate(snap, cfg)
	assert.False(t, ok, "缺价格不准入")
}

func TestEntryConditionLimits(t *testing.T) {
	s := NewPortSummaryStrategy()
	cfg := baseConfig(domain.SourcePortSummary)
	cfg.EntryConditions.MinMarketCap = 1_000_000
	cfg.EntryConditions.MaxTokenAge = 30

	snap := &domain.TokenSnapshot{TokenID: "tok", Price: 0.5, MarketCap: 2_000_000, TokenAge: 10}
	ok, _ := s.Evaluate(snap, cfg)
	assert.True(t, ok)

	snap.MarketCap = 500_000
	ok, _ = s.Evaluate(snap, cfg)
	assert.False(t, ok)

	snap.MarketCap = 2_000_000
	snap.TokenAge = 60
	ok, _ = s.Evaluate(snap, cfg)
	assert.False(t, ok)
}

func TestAttentionEvaluate(t *testing.T) {
	s := NewAttentionStrategy()
	cfg := baseConfig(domain.SourceAttention)

	ok, _ := s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", AttentionScore: 80}, cfg)
	assert.True(t, ok)

	ok, _ = s.Evaluate(&domain.TokenSnapshot{TokenID: "tok"}, cfg)
	assert.False(t, ok, "无关注度评分不准入")
}

func TestVolumeEvaluate(t *testing.T) {
	s := NewVolumeStrategy()
	cfg := baseConfig(domain.SourceVolume)

	ok, _ := s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", DexStatus: true, Volume24h: 100_000}, cfg)
	assert.True(t, ok)

	ok, _ = s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", Volume24h: 100_000}, cfg)
	assert.False(t, ok, "未上架 DEX 不准入")

	ok, _ = s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", DexStatus: true}, cfg)
	assert.False(t, ok, "无成交量不准入")
}

func TestPumpFunEvaluate(t *testing.T) {
	s := NewPumpFunStrategy()
	cfg := baseConfig(domain.SourcePumpFun)

	ok, _ := s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", DexStatus: true}, cfg)
	assert.True(t, ok)

	ok, reason := s.Evaluate(&domain.TokenSnapshot{TokenID: "tok", DexStatus: true, RugCount: 2}, cfg)
	assert.False(t, ok, "创建者有 rug 记录一票否决")
	assert.NotEmpty(t, reason)
}
