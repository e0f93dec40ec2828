package store

import (
	"context"
	"errors"
	"fmt"

	"smartfolio/internal/domain"
)

// ExecutionReport 执行详情：执行状态 + 策略配置 + 全部成交
func (r *SQLiteRepository) ExecutionReport(ctx context.Context, executionID int64) (*domain.ExecutionReport, error) {
	exec, err := r.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	cfg, err := r.GetStrategy(ctx, exec.StrategyID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	trades, err := r.ListTrades(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return &domain.ExecutionReport{
		Execution: *exec,
		Strategy:  cfg,
		Trades:    trades,
	}, nil
}

// StrategyPerformance 按策略聚合执行绩效
func (r *SQLiteRepository) StrategyPerformance(ctx context.Context) ([]domain.StrategyPerformance, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT s.id, s.strategy_name, s.source, s.active,
			COUNT(e.id),
			COALESCE(SUM(CASE WHEN e.status IN ('active', 'invested') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.status = 'closed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.status = 'stopped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(e.invested_amount), 0),
			COALESCE(SUM(e.amount_taken_out), 0),
			COALESCE(SUM(e.realized_pnl), 0)
		 FROM strategies s
		 LEFT JOIN executions e ON e.strategy_id = s.id
		 GROUP BY s.id
		 ORDER BY s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query strategy performance: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyPerformance
	for rows.Next() {
		var (
			p      domain.StrategyPerformance
			source string
			active int
		)
		err := rows.Scan(
			&p.StrategyID,
			&p.StrategyName,
			&source,
			&active,
			&p.TotalExecutions,
			&p.OpenExecutions,
			&p.ClosedCount,
			&p.StoppedCount,
			&p.TotalInvested,
			&p.TotalTakenOut,
			&p.RealizedPnl,
		)
		if err != nil {
			return nil, fmt.Errorf("scan strategy performance: %w", err)
		}
		p.Source = domain.SourceType(source)
		p.Active = active == 1
		out = append(out, p)
	}
	return out, rows.Err()
}
