// Package orchestrator 对外服务层：
// 封装代币推送、策略管理、执行报表和 AI 复盘的完整流程。
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"smartfolio/internal/advisor"
	"smartfolio/internal/domain"
	"smartfolio/internal/framework"
	"smartfolio/internal/market"
	"smartfolio/internal/store"

	"github.com/google/uuid"
)

type Service struct {
	repo       store.Repository
	fw         *framework.Framework
	monitor    *framework.ExecutionMonitor
	prices     market.PriceSource
	advisor    advisor.Agent
	autoReview bool
}

func New(repo store.Repository, fw *framework.Framework, monitor *framework.ExecutionMonitor, prices market.PriceSource, adv advisor.Agent, autoReview bool) *Service {
	return &Service{
		repo:       repo,
		fw:         fw,
		monitor:    monitor,
		prices:     prices,
		advisor:    adv,
		autoReview: autoReview,
	}
}

// PushToken API 入口的单代币推送，只命中 superuser 策略池
func (s *Service) PushToken(ctx context.Context, snap *domain.TokenSnapshot) (*domain.PushStats, error) {
	return s.fw.HandleStrategy(ctx, snap, domain.PushSourceAPI)
}

// PushAllTokens 定时任务入口：把指定来源的全部已存档代币重新推送，
// 只命中普通策略池。推送前批量刷新实时价格。
func (s *Service) PushAllTokens(ctx context.Context, source domain.SourceType) (*domain.PushStats, error) {
	batchID := uuid.NewString()
	total := &domain.PushStats{}

	snaps, err := s.repo.ListTokenSnapshots(ctx, source, 0)
	if err != nil {
		return total, fmt.Errorf("读取代币快照: %w", err)
	}
	if len(snaps) == 0 {
		return total, nil
	}

	tokenIDs := make([]string, 0, len(snaps))
	for i := range snaps {
		tokenIDs = append(tokenIDs, snaps[i].TokenID)
	}
	prices, err := s.prices.GetBatchTokenPrices(ctx, tokenIDs)
	if err != nil {
		return total, fmt.Errorf("批量刷新价格: %w", err)
	}

	log.Printf("▶ [推送:%s] 来源 %s 批量推送 %d 个代币", batchID[:8], source, len(snaps))

	for i := range snaps {
		snap := &snaps[i]
		if p, ok := prices[snap.TokenID]; ok {
			snap.Price = p.PriceUSD
			if p.MarketCap > 0 {
				snap.MarketCap = p.MarketCap
			}
			if p.Liquidity > 0 {
				snap.Liquidity = p.Liquidity
			}
			if p.TokenAge > 0 {
				snap.TokenAge = p.TokenAge
			}
		}

		stats, err := s.fw.HandleStrategy(ctx, snap, domain.PushSourceScheduler)
		total.TokensEvaluated += stats.TokensEvaluated
		total.ExecutionsCreated += stats.ExecutionsCreated
		total.Errors += stats.Errors
		if err != nil {
			total.Errors++
			log.Printf("✘ [推送:%s] 代币 %s 处理失败: %v", batchID[:8], snap.TokenName, err)
		}
	}

	log.Printf("✔ [推送:%s] 完成: 评估 %d，建仓 %d，错误 %d",
		batchID[:8], total.TokensEvaluated, total.ExecutionsCreated, total.Errors)
	return total, nil
}

// RunMonitorCycle 执行一个监控周期
func (s *Service) RunMonitorCycle(ctx context.Context) (*domain.MonitorStats, error) {
	runID := uuid.NewString()
	stats, err := s.monitor.Tick(ctx)
	if err != nil {
		return stats, err
	}
	if stats.ExecutionsProcessed > 0 {
		log.Printf("📊 [监控:%s] 处理 %d 个执行: 止损 %d，止盈 %d，定投 %d，重试建仓 %d，错误 %d",
			runID[:8], stats.ExecutionsProcessed, stats.StopLossesTriggered,
			stats.ProfitTargetsHit, stats.DCAEntriesExecuted, stats.InvestmentsRetried, stats.Errors)
	}

	if s.autoReview {
		s.reviewClosedExecutions(ctx)
	}
	return stats, nil
}

// reviewClosedExecutions 给新结束且尚无复盘的执行补写 AI 复盘
func (s *Service) reviewClosedExecutions(ctx context.Context) {
	for _, status := range []domain.ExecutionStatus{domain.ExecutionClosed, domain.ExecutionStopped} {
		execs, err := s.repo.ListExecutions(ctx, status, 20)
		if err != nil {
			log.Printf("⚠ [复盘] 查询 %s 执行失败: %v", status, err)
			continue
		}
		for i := range execs {
			if execs[i].Review != "" {
				continue
			}
			if _, err := s.ReviewExecution(ctx, execs[i].ExecutionID); err != nil {
				log.Printf("⚠ [复盘] 执行 %d 复盘失败: %v", execs[i].ExecutionID, err)
			}
		}
	}
}

// CreateStrategy 校验并落库一条策略配置
func (s *Service) CreateStrategy(ctx context.Context, cfg *domain.StrategyConfig) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("策略配置非法: %w", err)
	}
	return s.repo.InsertStrategy(ctx, cfg)
}

func (s *Service) UpdateStrategy(ctx context.Context, cfg *domain.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("策略配置非法: %w", err)
	}
	return s.repo.UpdateStrategy(ctx, cfg)
}

func (s *Service) SetStrategyActive(ctx context.Context, strategyID int64, active bool) error {
	return s.repo.SetStrategyActive(ctx, strategyID, active)
}

func (s *Service) GetStrategy(ctx context.Context, strategyID int64) (*domain.StrategyConfig, error) {
	return s.repo.GetStrategy(ctx, strategyID)
}

func (s *Service) ListStrategies(ctx context.Context, source domain.SourceType, onlyActive bool) ([]domain.StrategyConfig, error) {
	return s.repo.ListStrategies(ctx, source, onlyActive)
}

func (s *Service) GetExecutionReport(ctx context.Context, executionID int64) (*domain.ExecutionReport, error) {
	return s.repo.ExecutionReport(ctx, executionID)
}

func (s *Service) ListExecutions(ctx context.Context, status domain.ExecutionStatus, limit int) ([]domain.ExecutionState, error) {
	return s.repo.ListExecutions(ctx, status, limit)
}

func (s *Service) StrategyPerformance(ctx context.Context) ([]domain.StrategyPerformance, error) {
	return s.repo.StrategyPerformance(ctx)
}

func (s *Service) ListTokenSnapshots(ctx context.Context, source domain.SourceType, limit int) ([]domain.TokenSnapshot, error) {
	return s.repo.ListTokenSnapshots(ctx, source, limit)
}

// ReviewExecution 对已结束的执行做 AI 复盘并写回结论
func (s *Service) ReviewExecution(ctx context.Context, executionID int64) (string, error) {
	report, err := s.repo.ExecutionReport(ctx, executionID)
	if err != nil {
		return "", err
	}
	if !report.Execution.Status.IsTerminal() {
		return "", fmt.Errorf("执行 %d 尚未结束，不能复盘", executionID)
	}

	review, err := s.advisor.Review(ctx, report)
	if err != nil {
		return "", fmt.Errorf("生成复盘: %w", err)
	}
	if err := s.repo.SetExecutionReview(ctx, executionID, review); err != nil {
		return "", err
	}
	return review, nil
}
