package orchestrator

import (
	"context"
	"errors"
	"testing"

	"smartfolio/internal/advisor"
	"smartfolio/internal/domain"
	"smartfolio/internal/framework"
	"smartfolio/internal/market"
	"smartfolio/internal/store"
	"smartfolio/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrices struct {
	prices map[string]float64
}

func (s *stubPrices) GetTokenPrice(_ context.Context, tokenID string) (*market.TokenPrice, error) {
	p, ok := s.prices[tokenID]
	if !ok {
		return nil, errors.New("无可用交易对")
	}
	return &market.TokenPrice{TokenID: tokenID, PriceUSD: p, TokenAge: 3}, nil
}

func (s *stubPrices) GetBatchTokenPrices(_ context.Context, tokenIDs []string) (map[string]*market.TokenPrice, error) {
	out := make(map[string]*market.TokenPrice)
	for _, id := range tokenIDs {
		if p, ok := s.prices[id]; ok {
			out[id] = &market.TokenPrice{TokenID: id, PriceUSD: p, TokenAge: 3}
		}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *store.SQLiteRepository, *stubPrices) {
	t.Helper()

	repo, err := store.NewSQLiteRepository("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Init(context.Background()))

	prices := &stubPrices{prices: make(map[string]float64)}
	fw := framework.New(repo, prices, strategy.NewRegistry())
	monitor := framework.NewExecutionMonitor(fw, repo)
	svc := New(repo, fw, monitor, prices, &advisor.RuleBasedAgent{}, true)
	return svc, repo, prices
}

func portStrategy(superuser bool) *domain.StrategyConfig {
	return &domain.StrategyConfig{
		StrategyName: "port-core",
		Source:       domain.SourcePortSummary,
		Active:       true,
		Superuser:    superuser,
		EntryConditions: domain.EntryConditions{
			RequiredTags: []string{"BALANCE_100K"},
		},
		Investment: domain.InvestmentInstructions{
			EntryType:     domain.EntryBulk,
			AllotedAmount: 1000,
		},
		RiskManagement: domain.RiskManagementInstructions{
			StopLossPct: 30,
			ProfitTargets: []domain.ProfitTarget{
				{PricePct: 100, SellPct: 100},
			},
		},
	}
}

func TestCreateStrategyValidates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cfg := portStrategy(false)
	cfg.Investment.AllotedAmount = -5
	_, err := svc.CreateStrategy(ctx, cfg)
	assert.Error(t, err)

	id, err := svc.CreateStrategy(ctx, portStrategy(false))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
}

// 定时批量推送把已存档的代币重新过一遍普通策略池
func TestPushAllTokens(t *testing.T) {
	svc, repo, prices := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateStrategy(ctx, portStrategy(false))
	require.NoError(t, err)

	require.NoError(t, repo.UpsertTokenSnapshot(ctx, &domain.TokenSnapshot{
		TokenID: "tok-a", TokenName: "A", Source: domain.SourcePortSummary,
		Price: 0.01, MarketCap: 2_000_000, SmartBalance: 150_000,
	}))
	require.NoError(t, repo.UpsertTokenSnapshot(ctx, &domain.TokenSnapshot{
		TokenID: "tok-b", TokenName: "B", Source: domain.SourcePortSummary,
		Price: 0.01, MarketCap: 2_000_000, SmartBalance: 10_000, // 不够 BALANCE_100K
	}))

	prices.prices["tok-a"] = 0.02
	prices.prices["tok-b"] = 0.02

	stats, err := svc.PushAllTokens(ctx, domain.SourcePortSummary)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TokensEvaluated)
	assert.Equal(t, 1, stats.ExecutionsCreated)

	execs, err := repo.ListExecutions(ctx, domain.ExecutionInvested, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "tok-a", execs[0].TokenID)
}

func TestReviewExecutionRequiresTerminalState(t *testing.T) {
	svc, repo, prices := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateStrategy(ctx, portStrategy(true))
	require.NoError(t, err)

	prices.prices["tok-rev"] = 0.02
	_, err = svc.PushToken(ctx, &domain.TokenSnapshot{
		TokenID: "tok-rev", TokenName: "REV", Source: domain.SourcePortSummary,
		Price: 0.02, MarketCap: 2_000_000, SmartBalance: 150_000,
	})
	require.NoError(t, err)

	execs, err := repo.ListExecutions(ctx, domain.ExecutionInvested, 0)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	execID := execs[0].ExecutionID

	_, err = svc.ReviewExecution(ctx, execID)
	assert.Error(t, err, "未结束的执行不能复盘")

	// 价格翻倍触发全部止盈并关闭，监控周期顺带自动复盘
	prices.prices["tok-rev"] = 0.05
	_, err = svc.RunMonitorCycle(ctx)
	require.NoError(t, err)

	got, err := repo.GetExecution(ctx, execID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionClosed, got.Status)
	assert.NotEmpty(t, got.Review, "自动复盘已写回")
}
