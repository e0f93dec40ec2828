package domain

import "time"

// SourceType 代币数据来源
type SourceType string

const (
	SourcePortSummary SourceType = "PORTSUMMARY"
	SourceAttention   SourceType = "ATTENTION"
	SourceVolume      SourceType = "VOLUME"
	SourcePumpFun     SourceType = "PUMPFUN"
	SourceSmartMoney  SourceType = "SMARTMONEY"
)

// IsValidSource 检查来源类型是否合法
func IsValidSource(s string) bool {
	switch SourceType(s) {
	case SourcePortSummary, SourceAttention, SourceVolume, SourcePumpFun, SourceSmartMoney:
		return true
	}
	return false
}

// ExecutionStatus 执行状态机: active → invested → closed，止损触发时进入 stopped。
// closed 和 stopped 为终态，不再参与监控。
type ExecutionStatus string

const (
	ExecutionActive   ExecutionStatus = "active"
	ExecutionInvested ExecutionStatus = "invested"
	ExecutionClosed   ExecutionStatus = "closed"
	ExecutionStopped  ExecutionStatus = "stopped"
)

// IsOpen 是否仍需监控
func (s ExecutionStatus) IsOpen() bool {
	return s == ExecutionActive || s == ExecutionInvested
}

// IsTerminal 是否为终态
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionClosed || s == ExecutionStopped
}

type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// PushSource 代币推送入口：API 推送只匹配 superuser 策略池，
// 定时任务推送只匹配普通策略池。
type PushSource string

const (
	PushSourceAPI       PushSource = "api"
	PushSourceScheduler PushSource = "scheduler"
)

// DCAEntryStatus 定投批次状态
type DCAEntryStatus string

const (
	DCAEntryPending   DCAEntryStatus = "pending"
	DCAEntryExecuted  DCAEntryStatus = "executed"
	DCAEntrySkipped   DCAEntryStatus = "skipped"
	DCAEntryCancelled DCAEntryStatus = "cancelled"
)

// ExecutionState 一次开仓/平仓的完整生命周期记录
type ExecutionState struct {
	ExecutionID        int64           `json:"execution_id"`
	StrategyID         int64           `json:"strategy_id"`
	TokenID            string          `json:"token_id"`
	TokenName          string          `json:"token_name"`
	Status             ExecutionStatus `json:"status"`
	Description        string          `json:"description,omitempty"`
	AllotedAmount      float64         `json:"alloted_amount"`                 // 预算上限 (USD)
	InvestedAmount     float64         `json:"invested_amount"`                // 累计买入金额
	BoughtCoins        float64         `json:"bought_coins"`                   // 累计买入数量
	RemainingCoins     float64         `json:"remaining_coins"`                // 当前持币数量
	AvgEntryPrice      float64         `json:"avg_entry_price"`                // 平均买入价 = 累计买入金额 / 累计买入数量
	AmountTakenOut     float64         `json:"amount_taken_out"`               // 累计卖出金额
	RealizedPnl        float64         `json:"realized_pnl"`                   // 已实现盈亏
	RealizedPnlPercent float64         `json:"realized_pnl_percent"`           // 已实现盈亏百分比
	ProfitTargetsHit   int             `json:"profit_targets_hit"`             // 已触发的止盈档数
	RecordedTokenAge   int             `json:"recorded_token_age,omitempty"`   // 开仓时代币年龄（天）
	CompletedTokenAge  int             `json:"completed_token_age,omitempty"`  // 完全退出时代币年龄（天）
	Notes              string          `json:"notes,omitempty"`
	Review             string          `json:"review,omitempty"` // AI 复盘结论
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TradeLog 单笔成交记录，只追加，不更新不删除
type TradeLog struct {
	TradeID     int64     `json:"trade_id"`
	ExecutionID int64     `json:"execution_id"`
	TokenID     string    `json:"token_id"`
	TokenName   string    `json:"token_name"`
	TradeType   TradeType `json:"trade_type"`
	Amount      float64   `json:"amount"`      // 成交金额 (USD)
	TokenPrice  float64   `json:"token_price"` // 成交价
	Coins       float64   `json:"coins"`       // 成交数量
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenSnapshot 外部来源推送进框架的代币快照（只读）。
// 各来源字段为并集，未提供的字段保持零值。
type TokenSnapshot struct {
	TokenID   string     `json:"token_id"`
	TokenName string     `json:"token_name"`
	ChainName string     `json:"chain_name,omitempty"`
	Source    SourceType `json:"source"`
	Price     float64    `json:"price,omitempty"`
	MarketCap float64    `json:"marketcap,omitempty"`
	Holders   int        `json:"holders,omitempty"`
	TokenAge  int        `json:"token_age,omitempty"` // 代币年龄（天）

	// PORTSUMMARY 来源
	Tags         string  `json:"tags,omitempty"` // 逗号分隔，如 "BALANCE_100K,MCAP_1M_10M"
	AvgPrice     float64 `json:"avg_price,omitempty"`
	SmartBalance float64 `json:"smart_balance,omitempty"`
	QtyChange1D  float64 `json:"qty_change_1d,omitempty"`
	QtyChange7D  float64 `json:"qty_change_7d,omitempty"`
	QtyChange30D float64 `json:"qty_change_30d,omitempty"`

	// ATTENTION 来源
	AttentionScore float64 `json:"attention_score,omitempty"`
	Change1DBps    float64 `json:"change_1d_bps,omitempty"`
	Change7DBps    float64 `json:"change_7d_bps,omitempty"`

	// VOLUME / PUMPFUN 来源
	Liquidity       float64 `json:"liquidity,omitempty"`
	Volume24h       float64 `json:"volume_24h,omitempty"`
	BuySolQty       float64 `json:"buy_sol_qty,omitempty"`
	OccurrenceCount int     `json:"occurrence_count,omitempty"`
	DexStatus       bool    `json:"dex_status,omitempty"`
	RugCount        int     `json:"rug_count,omitempty"` // 仅 PUMPFUN

	// SMARTMONEY 来源（仅推送，无可执行策略）
	WalletAddress  string  `json:"wallet_address,omitempty"`
	UnprocessedPnl float64 `json:"unprocessed_pnl,omitempty"`
	UnprocessedRoi float64 `json:"unprocessed_roi,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// ExecutionWithConfig 监控周期使用的执行与策略联查视图
type ExecutionWithConfig struct {
	Execution ExecutionState `json:"execution"`
	Config    StrategyConfig `json:"config"`
}

// ExecutionReport 执行详情（含全部成交）
type ExecutionReport struct {
	Execution ExecutionState `json:"execution"`
	Strategy  *StrategyConfig `json:"strategy,omitempty"`
	Trades    []TradeLog     `json:"trades"`
}

// PushStats 一次批量推送的统计
type PushStats struct {
	TokensEvaluated   int `json:"tokens_evaluated"`
	ExecutionsCreated int `json:"executions_created"`
	Errors            int `json:"errors"`
}

// MonitorStats 一次监控周期的统计
type MonitorStats struct {
	ExecutionsProcessed int `json:"executions_processed"`
	StopLossesTriggered int `json:"stop_losses_triggered"`
	ProfitTargetsHit    int `json:"profit_targets_hit"`
	DCAEntriesExecuted  int `json:"dca_entries_executed"`
	InvestmentsRetried  int `json:"investments_retried"`
	Errors              int `json:"errors"`
}

// StrategyPerformance 策略绩效汇总视图
type StrategyPerformance struct {
	StrategyID      int64      `json:"strategy_id"`
	StrategyName    string     `json:"strategy_name"`
	Source          SourceType `json:"source"`
	Active          bool       `json:"active"`
	TotalExecutions int        `json:"total_executions"`
	OpenExecutions  int        `json:"open_executions"`
	ClosedCount     int        `json:"closed_count"`
	StoppedCount    int        `json:"stopped_count"`
	TotalInvested   float64    `json:"total_invested"`
	TotalTakenOut   float64    `json:"total_taken_out"`
	RealizedPnl     float64    `json:"realized_pnl"`
}

// DCAEntry 定投计划中的一个延期批次，由执行监控轮询触发
type DCAEntry struct {
	EntryID             int64          `json:"entry_id"`
	ExecutionID         int64          `json:"execution_id"`
	EntryNumber         int            `json:"entry_number"` // 2..intervals（第 1 批在开仓时立即成交）
	Amount              float64        `json:"amount"`
	ScheduledAt         time.Time      `json:"scheduled_at"`
	PriceDeviationLimit float64        `json:"price_deviation_limit,omitempty"` // 相对均价的最大溢价百分比
	Status              DCAEntryStatus `json:"status"`
	ExecutedAt          *time.Time     `json:"executed_at,omitempty"`
}
