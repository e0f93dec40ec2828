package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDexScreenerBase = "https://api.dexscreener.com"
	// 单次批量查询的地址上限（DexScreener 接口限制）
	maxBatchTokens = 30
)

// 只认可这些 DEX 的交易对，其余视为噪音
var allowedDexIDs = map[string]bool{
	"raydium":  true,
	"pumpswap": true,
}

// 只认可这些报价币种的交易对
var allowedQuoteSymbols = map[string]bool{
	"USDC": true,
	"SOL":  true,
}

// TokenPrice 一个代币的实时行情
type TokenPrice struct {
	TokenID   string
	PriceUSD  float64
	MarketCap float64
	Liquidity float64
	TokenAge  int // 交易对创建至今的天数
}

// PriceSource 实时价格来源
type PriceSource interface {
	GetTokenPrice(ctx context.Context, tokenID string) (*TokenPrice, error)
	GetBatchTokenPrices(ctx context.Context, tokenIDs []string) (map[string]*TokenPrice, error)
}

// DexScreenerClient 通过 DexScreener 公共接口获取 Solana 代币行情（无需 API key）
type DexScreenerClient struct {
	baseURL string
	http    *http.Client
}

func NewDexScreenerClient(baseURL string, timeout time.Duration) *DexScreenerClient {
	if baseURL == "" {
		baseURL = defaultDexScreenerBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DexScreenerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type dexPair struct {
	DexID     string `json:"dexId"`
	PairAddr  string `json:"pairAddress"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // 毫秒时间戳
}

type dexResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// GetTokenPrice 查询单个代币的实时价格。
// 在认可的 DEX 与报价币种中取流动性最高的交易对。
func (c *DexScreenerClient) GetTokenPrice(ctx context.Context, tokenID string) (*TokenPrice, error) {
	prices, err := c.GetBatchTokenPrices(ctx, []string{tokenID})
	if err != nil {
		return nil, err
	}
	p, ok := prices[tokenID]
	if !ok {
		return nil, fmt.Errorf("代币 %s 无可用交易对", tokenID)
	}
	return p, nil
}

// GetBatchTokenPrices 批量查询代币价格，每批最多 30 个地址。
// 查不到行情的代币不出现在结果中，不视为错误。
func (c *DexScreenerClient) GetBatchTokenPrices(ctx context.Context, tokenIDs []string) (map[string]*TokenPrice, error) {
	out := make(map[string]*TokenPrice, len(tokenIDs))

	for start := 0; start < len(tokenIDs); start += maxBatchTokens {
		end := start + maxBatchTokens
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		batch := tokenIDs[start:end]

		var resp dexResponse
		url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, strings.Join(batch, ","))
		if err := c.getJSON(ctx, url, &resp); err != nil {
			return nil, fmt.Errorf("dexscreener batch [%d:%d]: %w", start, end, err)
		}

		for _, pair := range resp.Pairs {
			if !allowedDexIDs[strings.ToLower(pair.DexID)] {
				continue
			}
			if !allowedQuoteSymbols[strings.ToUpper(pair.QuoteToken.Symbol)] {
				continue
			}
			price, err := strconv.ParseFloat(pair.PriceUSD, 64)
			if err != nil || price <= 0 {
				continue
			}

			tokenID := pair.BaseToken.Address
			existing, ok := out[tokenID]
			if ok && existing.Liquidity >= pair.Liquidity.USD {
				continue
			}
			out[tokenID] = &TokenPrice{
				TokenID:   tokenID,
				PriceUSD:  price,
				MarketCap: pair.FDV,
				Liquidity: pair.Liquidity.USD,
				TokenAge:  pairAgeDays(pair.PairCreatedAt),
			}
		}
	}

	return out, nil
}

func (c *DexScreenerClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("DexScreener API %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func pairAgeDays(createdAtMs int64) int {
	if createdAtMs <= 0 {
		return 0
	}
	age := time.Since(time.UnixMilli(createdAtMs))
	if age < 0 {
		return 0
	}
	return int(age.Hours() / 24)
}
