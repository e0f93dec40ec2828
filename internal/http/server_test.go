package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartfolio/internal/advisor"
	"smartfolio/internal/domain"
	"smartfolio/internal/framework"
	"smartfolio/internal/market"
	"smartfolio/internal/orchestrator"
	"smartfolio/internal/store"
	"smartfolio/internal/strategy"

	"github.com/gin-gonic/gin"
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
	return &market.TokenPrice{TokenID: tokenID, PriceUSD: p}, nil
}

func (s *stubPrices) GetBatchTokenPrices(_ context.Context, tokenIDs []string) (map[string]*market.TokenPrice, error) {
	out := make(map[string]*market.TokenPrice)
	for _, id := range tokenIDs {
		if p, ok := s.prices[id]; ok {
			out[id] = &market.TokenPrice{TokenID: id, PriceUSD: p}
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *stubPrices) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := store.NewSQLiteRepository("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Init(context.Background()))

	prices := &stubPrices{prices: make(map[string]float64)}
	fw := framework.New(repo, prices, strategy.NewRegistry())
	monitor := framework.NewExecutionMonitor(fw, repo)
	svc := orchestrator.New(repo, fw, monitor, prices, &advisor.RuleBasedAgent{}, false)
	return NewRouter(svc, 5), prices
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStrategyEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	cfg := domain.StrategyConfig{
		StrategyName: "http-test",
		Source:       domain.SourcePortSummary,
		Active:       true,
		Superuser:    true,
		EntryConditions: domain.EntryConditions{
			RequiredTags: []string{"BALANCE_100K"},
		},
		Investment: domain.InvestmentInstructions{
			EntryType:     domain.EntryBulk,
			AllotedAmount: 1000,
		},
		RiskManagement: domain.RiskManagementInstructions{StopLossPct: 30},
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/strategies", cfg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		StrategyID int64 `json:"strategy_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Greater(t, created.StrategyID, int64(0))

	w = doJSON(t, router, http.MethodGet, "/api/v1/strategies/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/strategies/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/strategies/1/active", gin.H{"active": false})
	assert.Equal(t, http.StatusOK, w.Code)

	// 非法配置被拒绝
	bad := cfg
	bad.StrategyName = "bad"
	bad.Investment.AllotedAmount = 0
	w = doJSON(t, router, http.MethodPost, "/api/v1/strategies", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushTokenEndpoint(t *testing.T) {
	router, prices := newTestRouter(t)

	cfg := domain.StrategyConfig{
		StrategyName: "push-test",
		Source:       domain.SourcePortSummary,
		Active:       true,
		Superuser:    true,
		EntryConditions: domain.EntryConditions{
			RequiredTags: []string{"BALANCE_100K"},
		},
		Investment: domain.InvestmentInstructions{
			EntryType:     domain.EntryBulk,
			AllotedAmount: 1000,
		},
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/strategies", cfg)
	require.Equal(t, http.StatusCreated, w.Code)

	prices.prices["tok-http"] = 0.02
	snap := domain.TokenSnapshot{
		TokenID:      "tok-http",
		TokenName:    "HTTP",
		Source:       domain.SourcePortSummary,
		Price:        0.02,
		MarketCap:    2_000_000,
		SmartBalance: 150_000,
	}
	w = doJSON(t, router, http.MethodPost, "/api/v1/tokens/push", snap)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats domain.PushStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ExecutionsCreated)

	// 缺 token_id 拒绝
	w = doJSON(t, router, http.MethodPost, "/api/v1/tokens/push", domain.TokenSnapshot{Source: domain.SourcePortSummary})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/executions?status=invested", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/executions/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/performance", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPushAllTokensRejectsBadSource(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/tokens/push-all?source=NOPE", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
