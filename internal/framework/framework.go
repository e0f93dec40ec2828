// Package framework 策略执行框架：
// 接收代币推送，匹配策略池，创建执行并完成建仓；
// 执行监控负责止损、止盈阶梯和定投批次的推进。
package framework

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartfolio/internal/domain"
	"smartfolio/internal/market"
	"smartfolio/internal/store"
	"smartfolio/internal/strategy"
	"smartfolio/internal/tags"
)

// 低于该数量的持仓视为尘埃仓位
const dustCoins = 1e-9

// Framework 策略执行框架入口
type Framework struct {
	repo     store.Repository
	prices   market.PriceSource
	registry *strategy.Registry
}

func New(repo store.Repository, prices market.PriceSource, registry *strategy.Registry) *Framework {
	return &Framework{
		repo:     repo,
		prices:   prices,
		registry: registry,
	}
}

// HandleStrategy 处理一次代币推送：
// 持久化快照，按推送入口取策略池，逐策略评估准入并建仓。
// 单个策略失败不影响其余策略。
func (f *Framework) HandleStrategy(ctx context.Context, snap *domain.TokenSnapshot, push domain.PushSource) (*domain.PushStats, error) {
	stats := &domain.PushStats{TokensEvaluated: 1}

	if snap.TokenID == "" || !domain.IsValidSource(string(snap.Source)) {
		return stats, fmt.Errorf("非法代币推送: token_id=%q source=%q", snap.TokenID, snap.Source)
	}

	// PORTSUMMARY 来源在入口处重算标签，推送方给的标签不可信
	if snap.Source == domain.SourcePortSummary {
		snap.Tags = strings.Join(tags.Compute(snap), ",")
	}

	if err := f.repo.UpsertTokenSnapshot(ctx, snap); err != nil {
		return stats, fmt.Errorf("持久化快照: %w", err)
	}

	// SMARTMONEY 仅存档，不进入策略匹配
	if snap.Source == domain.SourceSmartMoney {
		return stats, nil
	}

	eval, err := f.registry.Lookup(snap.Source)
	if err != nil {
		return stats, err
	}

	configs, err := f.repo.ActiveStrategiesForPush(ctx, snap.Source, push)
	if err != nil {
		return stats, fmt.Errorf("查询策略池: %w", err)
	}

	for i := range configs {
		cfg := &configs[i]
		ok, reason := eval.Evaluate(snap, cfg)
		if !ok {
			log.Printf("■ [框架] 策略 %s 跳过代币 %s: %s", cfg.StrategyName, snap.TokenName, reason)
			continue
		}

		created, err := f.openExecution(ctx, snap, cfg)
		if err != nil {
			stats.Errors++
			log.Printf("✘ [框架] 策略 %s 对代币 %s 建仓失败: %v", cfg.StrategyName, snap.TokenName, err)
			continue
		}
		if created {
			stats.ExecutionsCreated++
		}
	}

	return stats, nil
}

// openExecution 为命中的策略创建执行并完成首次买入。
// 同一策略对同一代币已有未结束执行时静默跳过。
func (f *Framework) openExecution(ctx context.Context, snap *domain.TokenSnapshot, cfg *domain.StrategyConfig) (bool, error) {
	exists, err := f.repo.HasOpenExecution(ctx, snap.TokenID, cfg.StrategyID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	exec := &domain.ExecutionState{
		StrategyID:       cfg.StrategyID,
		TokenID:          snap.TokenID,
		TokenName:        snap.TokenName,
		Status:           domain.ExecutionActive,
		Description:      fmt.Sprintf("%s 来源命中策略 %s", snap.Source, cfg.StrategyName),
		AllotedAmount:    cfg.Investment.AllotedAmount,
		RecordedTokenAge: snap.TokenAge,
	}
	if _, err := f.repo.CreateExecution(ctx, exec); err != nil {
		return false, err
	}

	log.Printf("🚀 [框架] 策略 %s 对代币 %s 创建执行 %d，预算 %.2f",
		cfg.StrategyName, snap.TokenName, exec.ExecutionID, exec.AllotedAmount)

	// 建仓失败不回滚执行记录：监控周期会从快照重试买入
	if err := f.ExecuteInvestment(ctx, exec, cfg); err != nil {
		log.Printf("⚠ [框架] 执行 %d 建仓失败，等待监控重试: %v", exec.ExecutionID, err)
	}
	return true, nil
}

// ExecuteInvestment 按投资指令完成建仓。
// 买入前重新获取实时价格，快照价格只用于准入评估。
// BULK 一次买满预算；DCA 先买第一批，其余批次写入定投计划。
func (f *Framework) ExecuteInvestment(ctx context.Context, exec *domain.ExecutionState, cfg *domain.StrategyConfig) error {
	price, err := f.prices.GetTokenPrice(ctx, exec.TokenID)
	if err != nil {
		return fmt.Errorf("获取实时价格: %w", err)
	}
	if price.PriceUSD <= 0 {
		return fmt.Errorf("实时价格非法: %.10f", price.PriceUSD)
	}

	amount := cfg.Investment.AllotedAmount
	var remaining []domain.DCAEntry

	if cfg.Investment.EntryType == domain.EntryDCA {
		rules := cfg.Investment.DCARules
		if rules == nil || rules.Intervals < 2 {
			return errors.New("DCA 策略缺少定投规则")
		}
		amount = cfg.Investment.AllotedAmount / float64(rules.Intervals)
		for i := 2; i <= rules.Intervals; i++ {
			remaining = append(remaining, domain.DCAEntry{
				ExecutionID:         exec.ExecutionID,
				EntryNumber:         i,
				Amount:              amount,
				ScheduledAt:         time.Now().UTC().Add(time.Duration(i-1) * time.Duration(rules.IntervalMinutes) * time.Minute),
				PriceDeviationLimit: rules.PriceDeviationLimit,
			})
		}
	}

	trade := &domain.TradeLog{
		ExecutionID: exec.ExecutionID,
		TokenID:     exec.TokenID,
		TokenName:   exec.TokenName,
		Amount:      amount,
		TokenPrice:  price.PriceUSD,
		Coins:       amount / price.PriceUSD,
		Description: fmt.Sprintf("%s 建仓", cfg.Investment.EntryType),
	}
	// 首次买入与定投计划同事务落盘，重复建仓被仓储层拒绝
	if err := f.repo.RecordInitialEntry(ctx, trade, remaining); err != nil {
		if errors.Is(err, store.ErrAlreadyInvested) {
			log.Printf("■ [框架] 执行 %d 已完成建仓，跳过重复买入", exec.ExecutionID)
			return nil
		}
		return fmt.Errorf("记录买入成交: %w", err)
	}

	log.Printf("✔ [框架] 执行 %d 买入 %s: 金额 %.2f，价格 %.10f，数量 %.4f",
		exec.ExecutionID, exec.TokenName, amount, price.PriceUSD, trade.Coins)
	return nil
}

// IsStopLossHit 止损判定：现价相对均价的回撤达到止损线。
// 未持仓或未配置止损时恒为假。
func IsStopLossHit(exec *domain.ExecutionState, cfg *domain.StrategyConfig, price float64) bool {
	if exec.RemainingCoins <= 0 || exec.AvgEntryPrice <= 0 {
		return false
	}
	if cfg.RiskManagement.StopLossPct <= 0 {
		return false
	}
	trigger := exec.AvgEntryPrice * (1 - cfg.RiskManagement.StopLossPct/100)
	return price <= trigger
}

// NextProfitTarget 下一个未触发的止盈档，全部触发完时返回 nil
func NextProfitTarget(exec *domain.ExecutionState, cfg *domain.StrategyConfig) *domain.ProfitTarget {
	targets := cfg.RiskManagement.ProfitTargets
	if exec.ProfitTargetsHit >= len(targets) {
		return nil
	}
	t := targets[exec.ProfitTargetsHit]
	return &t
}

// TakeProfits 按止盈阶梯逐档卖出。
// 同一轮价格可能连续触发多档；最后一档或持仓清零后关闭执行。
func (f *Framework) TakeProfits(ctx context.Context, exec *domain.ExecutionState, cfg *domain.StrategyConfig, price float64) (int, error) {
	hit := 0
	for {
		target := NextProfitTarget(exec, cfg)
		if target == nil || exec.RemainingCoins <= 0 {
			break
		}
		trigger := exec.AvgEntryPrice * (1 + target.PricePct/100)
		if price < trigger {
			break
		}

		coins := exec.RemainingCoins * target.SellPct / 100
		if err := f.sellCoins(ctx, exec, coins, price, exec.ProfitTargetsHit+1,
			fmt.Sprintf("止盈第 %d 档 (+%.1f%%)", exec.ProfitTargetsHit+1, target.PricePct)); err != nil {
			return hit, err
		}
		hit++

		log.Printf("📊 [框架] 执行 %d 触发止盈第 %d 档: 价格 %.10f，卖出 %.4f 枚",
			exec.ExecutionID, exec.ProfitTargetsHit, price, coins)
	}

	// 持仓清零才关闭执行；阶梯走完但留有尾仓时继续受止损监控
	if hit > 0 && exec.RemainingCoins <= dustCoins {
		if err := f.closeExecution(ctx, exec, domain.ExecutionClosed, price); err != nil {
			return hit, err
		}
	}
	return hit, nil
}

// ExecuteStopLoss 止损清仓：全部卖出并把执行置为 stopped
func (f *Framework) ExecuteStopLoss(ctx context.Context, exec *domain.ExecutionState, cfg *domain.StrategyConfig, price float64) error {
	log.Printf("⚠ [框架] 执行 %d 触发止损: 均价 %.10f，现价 %.10f，回撤线 %.1f%%",
		exec.ExecutionID, exec.AvgEntryPrice, price, cfg.RiskManagement.StopLossPct)

	if err := f.sellCoins(ctx, exec, exec.RemainingCoins, price, exec.ProfitTargetsHit, "止损清仓"); err != nil {
		return err
	}
	return f.closeExecution(ctx, exec, domain.ExecutionStopped, price)
}

// sellCoins 卖出指定数量并同步内存中的执行状态。
// 数量超过持仓时由仓储层拒绝，不做截断。
func (f *Framework) sellCoins(ctx context.Context, exec *domain.ExecutionState, coins, price float64, targetsHit int, desc string) error {
	if coins <= 0 {
		return nil
	}

	amount := coins * price
	realizedDelta := (price - exec.AvgEntryPrice) * coins

	trade := &domain.TradeLog{
		ExecutionID: exec.ExecutionID,
		TokenID:     exec.TokenID,
		TokenName:   exec.TokenName,
		Amount:      amount,
		TokenPrice:  price,
		Coins:       coins,
		Description: desc,
	}
	if err := f.repo.RecordExitTrade(ctx, trade, realizedDelta, targetsHit); err != nil {
		return fmt.Errorf("记录卖出成交: %w", err)
	}

	exec.RemainingCoins -= coins
	if exec.RemainingCoins < 0 {
		exec.RemainingCoins = 0
	}
	exec.AmountTakenOut += amount
	exec.RealizedPnl += realizedDelta
	if targetsHit > exec.ProfitTargetsHit {
		exec.ProfitTargetsHit = targetsHit
	}
	return nil
}

// closeExecution 关闭执行并取消未到期的定投批次
func (f *Framework) closeExecution(ctx context.Context, exec *domain.ExecutionState, status domain.ExecutionStatus, price float64) error {
	completedAge := exec.RecordedTokenAge
	if p, err := f.prices.GetTokenPrice(ctx, exec.TokenID); err == nil && p.TokenAge > 0 {
		completedAge = p.TokenAge
	}

	if err := f.repo.CloseExecution(ctx, exec.ExecutionID, status, completedAge); err != nil {
		return err
	}
	if err := f.repo.CancelPendingDCAEntries(ctx, exec.ExecutionID); err != nil {
		return err
	}
	exec.Status = status

	log.Printf("■ [框架] 执行 %d 结束 (%s): 退出价 %.10f，已实现盈亏 %.2f",
		exec.ExecutionID, status, price, exec.RealizedPnl)
	return nil
}
