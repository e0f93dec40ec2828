package advisor

import (
	"context"
	"testing"

	"smartfolio/internal/config"
	"smartfolio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackWithoutAPIKey(t *testing.T) {
	agent := New(config.Config{})
	_, ok := agent.(*RuleBasedAgent)
	assert.True(t, ok, "未配置 API key 时使用规则复盘")
}

func TestRuleBasedReviewStopped(t *testing.T) {
	agent := &RuleBasedAgent{}

	review, err := agent.Review(context.Background(), &domain.ExecutionReport{
		Execution: domain.ExecutionState{
			Status:             domain.ExecutionStopped,
			InvestedAmount:     1000,
			AmountTakenOut:     650,
			RealizedPnl:        -350,
			RealizedPnlPercent: -35,
		},
		Trades: []domain.TradeLog{{TradeType: domain.TradeBuy}, {TradeType: domain.TradeSell}},
	})
	require.NoError(t, err)
	assert.Contains(t, review, "止损出局")
	assert.Contains(t, review, "-350.00")
	assert.Contains(t, review, "2 笔成交")
}

func TestRuleBasedReviewProfitable(t *testing.T) {
	agent := &RuleBasedAgent{}

	review, err := agent.Review(context.Background(), &domain.ExecutionReport{
		Execution: domain.ExecutionState{
			Status:             domain.ExecutionClosed,
			InvestedAmount:     1000,
			AmountTakenOut:     1750,
			RealizedPnl:        750,
			RealizedPnlPercent: 75,
			ProfitTargetsHit:   2,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, review, "盈利退出")
	assert.Contains(t, review, "2 档止盈")
}
