package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *StrategyConfig {
	return &StrategyConfig{
		StrategyName: "portsummary-core",
		Source:       SourcePortSummary,
		Active:       true,
		EntryConditions: EntryConditions{
			RequiredTags: []string{"BALANCE_100K"},
		},
		Investment: InvestmentInstructions{
			EntryType:     EntryBulk,
			AllotedAmount: 1000,
		},
		RiskManagement: RiskManagementInstructions{
			StopLossPct: 30,
			ProfitTargets: []ProfitTarget{
				{PricePct: 50, SellPct: 50},
				{PricePct: 100, SellPct: 100},
			},
		},
	}
}

func TestStrategyConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.StrategyName = "  "
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Source = "UNKNOWN"
	assert.Error(t, cfg.Validate())

	// SMARTMONEY 只推送数据，不允许建可执行策略
	cfg = validConfig()
	cfg.Source = SourceSmartMoney
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Investment.AllotedAmount = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RiskManagement.StopLossPct = 100
	assert.Error(t, cfg.Validate())
}

func TestStrategyConfigValidateDCA(t *testing.T) {
	cfg := validConfig()
	cfg.Investment.EntryType = EntryDCA
	assert.Error(t, cfg.Validate(), "缺少定投规则时应报错")

	cfg.Investment.DCARules = &DCARules{Intervals: 1, IntervalMinutes: 30}
	assert.Error(t, cfg.Validate(), "单批定投没有意义")

	cfg.Investment.DCARules = &DCARules{Intervals: 4, IntervalMinutes: 30, PriceDeviationLimit: 10}
	require.NoError(t, cfg.Validate())
}

func TestStrategyConfigValidateProfitLadder(t *testing.T) {
	cfg := validConfig()
	cfg.RiskManagement.ProfitTargets = []ProfitTarget{
		{PricePct: 100, SellPct: 50},
		{PricePct: 50, SellPct: 50},
	}
	assert.Error(t, cfg.Validate(), "止盈阶梯必须严格递增")

	cfg.RiskManagement.ProfitTargets = []ProfitTarget{
		{PricePct: 50, SellPct: 0},
	}
	assert.Error(t, cfg.Validate(), "卖出比例必须为正")

	cfg.RiskManagement.ProfitTargets = nil
	require.NoError(t, cfg.Validate(), "不配置止盈阶梯是合法的")
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, SplitTags(""))
	assert.Equal(t, []string{"A", "B"}, SplitTags("A,B"))
	assert.Equal(t, []string{"A", "B"}, SplitTags(" A , ,B, "))
}

func TestHasAllTags(t *testing.T) {
	tokenTags := []string{"BALANCE_100K", "MCAP_1M_10M", "HUGE_1D_CHANGE"}

	assert.True(t, HasAllTags(tokenTags, nil), "无必需标签时恒为真")
	assert.True(t, HasAllTags(tokenTags, []string{"BALANCE_100K"}))
	assert.True(t, HasAllTags(tokenTags, []string{"BALANCE_100K", "MCAP_1M_10M"}))
	assert.False(t, HasAllTags(tokenTags, []string{"BALANCE_500K"}))
	// 大小写敏感
	assert.False(t, HasAllTags(tokenTags, []string{"balance_100k"}))
}

func TestExecutionStatus(t *testing.T) {
	assert.True(t, ExecutionActive.IsOpen())
	assert.True(t, ExecutionInvested.IsOpen())
	assert.False(t, ExecutionClosed.IsOpen())
	assert.False(t, ExecutionStopped.IsOpen())

	assert.True(t, ExecutionClosed.IsTerminal())
	assert.True(t, ExecutionStopped.IsTerminal())
	assert.False(t, ExecutionActive.IsTerminal())
}
