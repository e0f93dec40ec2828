package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTokenPricePicksHighestLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/latest/dex/tokens/"))
		w.Write([]byte(`{"pairs": [
			{"dexId": "raydium", "baseToken": {"address": "tok1", "symbol": "T1"}, "quoteToken": {"symbol": "SOL"},
			 "priceUsd": "0.020", "liquidity": {"usd": 50000}, "fdv": 2000000, "pairCreatedAt": 1700000000000},
			{"dexId": "raydium", "baseToken": {"address": "tok1", "symbol": "T1"}, "quoteToken": {"symbol": "USDC"},
			 "priceUsd": "0.021", "liquidity": {"usd": 150000}, "fdv": 2100000, "pairCreatedAt": 1700000000000},
			{"dexId": "orca", "baseToken": {"address": "tok1", "symbol": "T1"}, "quoteToken": {"symbol": "USDC"},
			 "priceUsd": "0.999", "liquidity": {"usd": 900000}, "fdv": 9000000, "pairCreatedAt": 1700000000000}
		]}`))
	}))
	defer srv.Close()

	client := NewDexScreenerClient(srv.URL, 0)
	price, err := client.GetTokenPrice(context.Background(), "tok1")
	require.NoError(t, err)

	// orca 流动性最高但不在认可名单里，取 USDC 对
	assert.InDelta(t, 0.021, price.PriceUSD, 1e-12)
	assert.InDelta(t, 150000, price.Liquidity, 1e-9)
	assert.InDelta(t, 2100000, price.MarketCap, 1e-9)
	assert.Greater(t, price.TokenAge, 0)
}

func TestGetTokenPriceNoUsablePair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs": [
			{"dexId": "raydium", "baseToken": {"address": "tok1", "symbol": "T1"}, "quoteToken": {"symbol": "BONK"},
			 "priceUsd": "0.020", "liquidity": {"usd": 50000}}
		]}`))
	}))
	defer srv.Close()

	client := NewDexScreenerClient(srv.URL, 0)
	_, err := client.GetTokenPrice(context.Background(), "tok1")
	assert.Error(t, err, "非认可报价币种的交易对不可用")
}

func TestGetBatchTokenPrices(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"pairs": [
			{"dexId": "pumpswap", "baseToken": {"address": "tok1", "symbol": "T1"}, "quoteToken": {"symbol": "SOL"},
			 "priceUsd": "0.5", "liquidity": {"usd": 10000}},
			{"dexId": "raydium", "baseToken": {"address": "tok2", "symbol": "T2"}, "quoteToken": {"symbol": "USDC"},
			 "priceUsd": "1.5", "liquidity": {"usd": 20000}}
		]}`))
	}))
	defer srv.Close()

	client := NewDexScreenerClient(srv.URL, 0)
	prices, err := client.GetBatchTokenPrices(context.Background(), []string{"tok1", "tok2", "tok-missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	require.Len(t, prices, 2, "查不到行情的代币不出现在结果里")
	assert.InDelta(t, 0.5, prices["tok1"].PriceUSD, 1e-12)
	assert.InDelta(t, 1.5, prices["tok2"].PriceUSD, 1e-12)
}

func TestGetBatchTokenPricesSplitsBatches(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// 每批最多 30 个地址
		addrs := strings.Split(strings.TrimPrefix(r.URL.Path, "/latest/dex/tokens/"), ",")
		assert.LessOrEqual(t, len(addrs), maxBatchTokens)
		w.Write([]byte(`{"pairs": []}`))
	}))
	defer srv.Close()

	ids := make([]string, 45)
	for i := range ids {
		ids[i] = "tok" + strings.Repeat("x", i%3)
	}

	client := NewDexScreenerClient(srv.URL, 0)
	_, err := client.GetBatchTokenPrices(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestGetTokenPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewDexScreenerClient(srv.URL, 0)
	_, err := client.GetTokenPrice(context.Background(), "tok1")
	assert.Error(t, err)
}
