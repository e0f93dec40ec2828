package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntryType 建仓方式
type EntryType string

const (
	EntryBulk EntryType = "BULK" // 一次性全额买入
	EntryDCA  EntryType = "DCA"  // 分批定投
)

// EntryConditions 准入条件：代币标签必须包含全部必需标签（大小写敏感）
type EntryConditions struct {
	RequiredTags []string `json:"required_tags"`
	MinMarketCap float64  `json:"min_market_cap,omitempty"`
	MinLiquidity float64  `json:"min_liquidity,omitempty"`
	MaxTokenAge  int      `json:"max_token_age,omitempty"` // 天，0 表示不限
}

// DCARules 定投规则
type DCARules struct {
	Intervals           int     `json:"intervals"`             // 分几批
	IntervalMinutes     int     `json:"interval_minutes"`      // 批间间隔
	PriceDeviationLimit float64 `json:"price_deviation_limit"` // 当前价高于均价该百分比时跳过本批
}

// InvestmentInstructions 投资指令
type InvestmentInstructions struct {
	EntryType     EntryType `json:"entry_type"`
	AllotedAmount float64   `json:"alloted_amount"` // 本策略对单个代币的预算 (USD)
	DCARules      *DCARules `json:"dca_rules,omitempty"`
}

// ProfitTarget 止盈阶梯的一档：价格涨幅达到 PricePct 时卖出 SellPct 比例的剩余持仓
type ProfitTarget struct {
	PricePct float64 `json:"price_pct"` // 相对均价的涨幅百分比
	SellPct  float64 `json:"sell_pct"`  // 卖出剩余持仓的百分比
}

// RiskManagementInstructions 风控指令
type RiskManagementInstructions struct {
	StopLossPct   float64        `json:"stop_loss_pct"`  // 相对均价的最大回撤百分比，触发后全部清仓
	ProfitTargets []ProfitTarget `json:"profit_targets"` // 按 PricePct 升序
}

// StrategyConfig 策略配置。superuser 策略只响应 API 推送，
// 普通策略只响应定时任务推送。
type StrategyConfig struct {
	StrategyID      int64           `json:"strategy_id"`
	StrategyName    string          `json:"strategy_name"`
	Source          SourceType      `json:"source"`
	Description     string          `json:"description,omitempty"`
	Active          bool            `json:"active"`
	Superuser       bool            `json:"superuser"`
	EntryConditions EntryConditions `json:"entry_conditions"`
	Investment      InvestmentInstructions      `json:"investment_instructions"`
	RiskManagement  RiskManagementInstructions  `json:"risk_management_instructions"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate 校验策略配置的完整性
func (c *StrategyConfig) Validate() error {
	if strings.TrimSpace(c.StrategyName) == "" {
		return fmt.Errorf("策略名称不能为空")
	}
	if !IsValidSource(string(c.Source)) {
		return fmt.Errorf("非法来源类型: %s", c.Source)
	}
	if c.Source == SourceSmartMoney {
		return fmt.Errorf("SMARTMONEY 来源仅支持数据推送，不支持可执行策略")
	}
	if c.Investment.AllotedAmount <= 0 {
		return fmt.Errorf("预算金额必须大于 0: %.2f", c.Investment.AllotedAmount)
	}
	switch c.Investment.EntryType {
	case EntryBulk:
	case EntryDCA:
		r := c.Investment.DCARules
		if r == nil {
			return fmt.Errorf("DCA 策略缺少定投规则")
		}
		if r.Intervals < 2 {
			return fmt.Errorf("定投批次必须 ≥ 2: %d", r.Intervals)
		}
		if r.IntervalMinutes <= 0 {
			return fmt.Errorf("定投间隔必须大于 0: %d", r.IntervalMinutes)
		}
	default:
		return fmt.Errorf("非法建仓方式: %s", c.Investment.EntryType)
	}
	if c.RiskManagement.StopLossPct < 0 || c.RiskManagement.StopLossPct >= 100 {
		return fmt.Errorf("止损百分比必须在 [0,100) 区间: %.2f", c.RiskManagement.StopLossPct)
	}
	prev := 0.0
	for i, t := range c.RiskManagement.ProfitTargets {
		if t.PricePct <= prev {
			return fmt.Errorf("止盈阶梯第 %d 档涨幅必须严格递增", i+1)
		}
		if t.SellPct <= 0 || t.SellPct > 100 {
			return fmt.Errorf("止盈阶梯第 %d 档卖出比例必须在 (0,100] 区间: %.2f", i+1, t.SellPct)
		}
		prev = t.PricePct
	}
	return nil
}

// SplitTags 解析逗号分隔的标签串，保留大小写，去除空白项
func SplitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HasAllTags 代币标签是否包含全部必需标签（大小写敏感的超集判断）
func HasAllTags(tokenTags []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(tokenTags))
	for _, t := range tokenTags {
		set[t] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
