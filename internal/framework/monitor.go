package framework

import (
	"context"
	"errors"
	"fmt"
	"log"

	"smartfolio/internal/domain"
	"smartfolio/internal/market"
	"smartfolio/internal/store"
)

// ExecutionMonitor 周期性推进所有未结束的执行：
// 止损优先于止盈，单个执行出错不影响其余执行。
type ExecutionMonitor struct {
	fw   *Framework
	repo store.Repository
}

func NewExecutionMonitor(fw *Framework, repo store.Repository) *ExecutionMonitor {
	return &ExecutionMonitor{fw: fw, repo: repo}
}

// Tick 一个完整的监控周期：
// 重试未完成的建仓 → 批量取价 → 逐执行做止损/止盈判定 → 推进到期定投。
func (m *ExecutionMonitor) Tick(ctx context.Context) (*domain.MonitorStats, error) {
	stats := &domain.MonitorStats{}

	items, err := m.repo.ActiveExecutionsWithConfig(ctx)
	if err != nil {
		return stats, fmt.Errorf("查询活跃执行: %w", err)
	}
	if len(items) == 0 {
		return stats, nil
	}

	tokenIDs := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i := range items {
		id := items[i].Execution.TokenID
		if !seen[id] {
			seen[id] = true
			tokenIDs = append(tokenIDs, id)
		}
	}

	prices, err := m.fw.prices.GetBatchTokenPrices(ctx, tokenIDs)
	if err != nil {
		return stats, fmt.Errorf("批量获取价格: %w", err)
	}

	for i := range items {
		exec := &items[i].Execution
		cfg := &items[i].Config
		if err := m.processExecution(ctx, exec, cfg, prices, stats); err != nil {
			stats.Errors++
			log.Printf("✘ [监控] 执行 %d 处理失败: %v", exec.ExecutionID, err)
		}
		stats.ExecutionsProcessed++
	}

	if err := m.ProcessDueDCAEntries(ctx, stats); err != nil {
		stats.Errors++
		log.Printf("✘ [监控] 定投批次处理失败: %v", err)
	}

	return stats, nil
}

func (m *ExecutionMonitor) processExecution(ctx context.Context, exec *domain.ExecutionState, cfg *domain.StrategyConfig, prices map[string]*market.TokenPrice, stats *domain.MonitorStats) error {
	// 建仓未完成的执行先重试买入
	if exec.Status == domain.ExecutionActive && exec.InvestedAmount <= 0 {
		if err := m.fw.ExecuteInvestment(ctx, exec, cfg); err != nil {
			return fmt.Errorf("重试建仓: %w", err)
		}
		stats.InvestmentsRetried++
		return nil
	}

	price, ok := prices[exec.TokenID]
	if !ok || price.PriceUSD <= 0 {
		// 取不到价就跳过本轮，不算错误
		return nil
	}

	// 止损优先于止盈
	if IsStopLossHit(exec, cfg, price.PriceUSD) {
		if err := m.fw.ExecuteStopLoss(ctx, exec, cfg, price.PriceUSD); err != nil {
			return fmt.Errorf("执行止损: %w", err)
		}
		stats.StopLossesTriggered++
		return nil
	}

	hit, err := m.fw.TakeProfits(ctx, exec, cfg, price.PriceUSD)
	stats.ProfitTargetsHit += hit
	if err != nil {
		return fmt.Errorf("执行止盈: %w", err)
	}
	return nil
}

// ProcessDueDCAEntries 推进全部到期的定投批次。
// 现价高于均价超过偏离上限时跳过本批，不补买。
func (m *ExecutionMonitor) ProcessDueDCAEntries(ctx context.Context, stats *domain.MonitorStats) error {
	entries, err := m.repo.DueDCAEntries(ctx)
	if err != nil {
		return fmt.Errorf("查询到期定投: %w", err)
	}

	for _, entry := range entries {
		if err := m.processDCAEntry(ctx, entry); err != nil {
			stats.Errors++
			log.Printf("✘ [监控] 定投批次 %d 执行失败: %v", entry.EntryID, err)
			continue
		}
		stats.DCAEntriesExecuted++
	}
	return nil
}

func (m *ExecutionMonitor) processDCAEntry(ctx context.Context, entry domain.DCAEntry) error {
	exec, err := m.repo.GetExecution(ctx, entry.ExecutionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return m.repo.SetDCAEntryStatus(ctx, entry.EntryID, domain.DCAEntryCancelled)
		}
		return err
	}
	if !exec.Status.IsOpen() {
		return m.repo.SetDCAEntryStatus(ctx, entry.EntryID, domain.DCAEntryCancelled)
	}

	price, err := m.fw.prices.GetTokenPrice(ctx, exec.TokenID)
	if err != nil {
		return fmt.Errorf("获取实时价格: %w", err)
	}
	if price.PriceUSD <= 0 {
		return fmt.Errorf("实时价格非法: %.10f", price.PriceUSD)
	}

	// 价格偏离保护：现价高于均价超过上限时放弃本批
	if entry.PriceDeviationLimit > 0 && exec.AvgEntryPrice > 0 {
		ceiling := exec.AvgEntryPrice * (1 + entry.PriceDeviationLimit/100)
		if price.PriceUSD > ceiling {
			log.Printf("■ [监控] 定投批次 %d 跳过: 现价 %.10f 超过偏离上限 %.10f",
				entry.EntryID, price.PriceUSD, ceiling)
			return m.repo.SetDCAEntryStatus(ctx, entry.EntryID, domain.DCAEntrySkipped)
		}
	}

	trade := &domain.TradeLog{
		ExecutionID: exec.ExecutionID,
		TokenID:     exec.TokenID,
		TokenName:   exec.TokenName,
		Amount:      entry.Amount,
		TokenPrice:  price.PriceUSD,
		Coins:       entry.Amount / price.PriceUSD,
		Description: fmt.Sprintf("DCA 第 %d 批", entry.EntryNumber),
	}
	if err := m.repo.RecordEntryTrade(ctx, trade); err != nil {
		return fmt.Errorf("记录定投买入: %w", err)
	}

	log.Printf("📦 [监控] 定投批次 %d 完成: 执行 %d 买入 %.2f，价格 %.10f",
		entry.EntryID, exec.ExecutionID, entry.Amount, price.PriceUSD)
	return m.repo.SetDCAEntryStatus(ctx, entry.EntryID, domain.DCAEntryExecuted)
}
