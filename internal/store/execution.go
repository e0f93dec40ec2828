package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartfolio/internal/domain"
)

func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *domain.ExecutionState) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx,
		`INSERT INTO executions (strategy_id, token_id, token_name, status, description, alloted_amount, invested_amount, bought_coins, remaining_coins, avg_entry_price, amount_taken_out, realized_pnl, realized_pnl_percent, profit_targets_hit, recorded_token_age, completed_token_age, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.StrategyID,
		exec.TokenID,
		exec.TokenName,
		string(exec.Status),
		nullableString(exec.Description),
		exec.AllotedAmount,
		exec.InvestedAmount,
		exec.BoughtCoins,
		exec.RemainingCoins,
		exec.AvgEntryPrice,
		exec.AmountTakenOut,
		exec.RealizedPnl,
		exec.RealizedPnlPercent,
		exec.ProfitTargetsHit,
		exec.RecordedTokenAge,
		exec.CompletedTokenAge,
		nullableString(exec.Notes),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert execution id: %w", err)
	}
	exec.ExecutionID = id
	exec.CreatedAt = now
	exec.UpdatedAt = now
	return id, nil
}

const executionColumns = `id, strategy_id, token_id, token_name, status, description, alloted_amount, invested_amount, bought_coins, remaining_coins, avg_entry_price, amount_taken_out, realized_pnl, realized_pnl_percent, profit_targets_hit, recorded_token_age, completed_token_age, notes, review, created_at, updated_at`

// 浮点尾差容忍度，卖出校验与持仓清零判定共用
const coinEpsilon = 1e-9

func (r *SQLiteRepository) GetExecution(ctx context.Context, executionID int64) (*domain.ExecutionState, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, executionID)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// HasOpenExecution 同一策略对同一代币是否已有未结束的执行
func (r *SQLiteRepository) HasOpenExecution(ctx context.Context, tokenID string, strategyID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM executions WHERE token_id = ? AND strategy_id = ? AND status IN ('active', 'invested')`,
		tokenID,
		strategyID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count open executions: %w", err)
	}
	return n > 0, nil
}

// ActiveExecutionsWithConfig 联查所有未结束的执行及其策略配置，供监控周期使用
func (r *SQLiteRepository) ActiveExecutionsWithConfig(ctx context.Context) ([]domain.ExecutionWithConfig, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT e.id, e.strategy_id, e.token_id, e.token_name, e.status, e.description, e.alloted_amount, e.invested_amount, e.bought_coins, e.remaining_coins, e.avg_entry_price, e.amount_taken_out, e.realized_pnl, e.realized_pnl_percent, e.profit_targets_hit, e.recorded_token_age, e.completed_token_age, e.notes, e.review, e.created_at, e.updated_at,
		        s.id, s.strategy_name, s.source, s.description, s.active, s.superuser, s.entry_conditions, s.investment_instructions, s.risk_instructions, s.created_at, s.updated_at
		 FROM executions e
		 JOIN strategies s ON s.id = e.strategy_id
		 WHERE e.status IN ('active', 'invested')
		 ORDER BY e.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionWithConfig
	for rows.Next() {
		var (
			item                domain.ExecutionWithConfig
			execStatus          string
			execDesc            sql.NullString
			notes, review       sql.NullString
			source              string
			cfgDesc             sql.NullString
			active, superuser   int
			entry, invest, risk string
		)
		err := rows.Scan(
			&item.Execution.ExecutionID,
			&item.Execution.StrategyID,
			&item.Execution.TokenID,
			&item.Execution.TokenName,
			&execStatus,
			&execDesc,
			&item.Execution.AllotedAmount,
			&item.Execution.InvestedAmount,
			&item.Execution.BoughtCoins,
			&item.Execution.RemainingCoins,
			&item.Execution.AvgEntryPrice,
			&item.Execution.AmountTakenOut,
			&item.Execution.RealizedPnl,
			&item.Execution.RealizedPnlPercent,
			&item.Execution.ProfitTargetsHit,
			&item.Execution.RecordedTokenAge,
			&item.Execution.CompletedTokenAge,
			&notes,
			&review,
			&item.Execution.CreatedAt,
			&item.Execution.UpdatedAt,
			&item.Config.StrategyID,
			&item.Config.StrategyName,
			&source,
			&cfgDesc,
			&active,
			&superuser,
			&entry,
			&invest,
			&risk,
			&item.Config.CreatedAt,
			&item.Config.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution join: %w", err)
		}
		item.Execution.Status = domain.ExecutionStatus(execStatus)
		item.Execution.Description = execDesc.String
		item.Execution.Notes = notes.String
		item.Execution.Review = review.String
		item.Config.Source = domain.SourceType(source)
		item.Config.Description = cfgDesc.String
		item.Config.Active = active == 1
		item.Config.Superuser = superuser == 1
		if err := unmarshalInstructions(&item.Config, entry, invest, risk); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListExecutions(ctx context.Context, status domain.ExecutionStatus, limit int) ([]domain.ExecutionState, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionState
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, *exec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateExecutionNotes(ctx context.Context, executionID int64, notes string) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE executions SET notes = ?, updated_at = ? WHERE id = ?`,
		nullableString(notes),
		time.Now().UTC(),
		executionID,
	)
	if err != nil {
		return fmt.Errorf("update execution notes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetExecutionReview(ctx context.Context, executionID int64, review string) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE executions SET review = ?, updated_at = ? WHERE id = ?`,
		nullableString(review),
		time.Now().UTC(),
		executionID,
	)
	if err != nil {
		return fmt.Errorf("set execution review: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseExecution 将执行置为终态并记录退出时的代币年龄
func (r *SQLiteRepository) CloseExecution(ctx context.Context, executionID int64, status domain.ExecutionStatus, completedTokenAge int) error {
	if !status.IsTerminal() {
		return fmt.Errorf("非终态不能用于关闭执行: %s", status)
	}
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE executions SET status = ?, completed_token_age = ?, updated_at = ? WHERE id = ?`,
		string(status),
		completedTokenAge,
		time.Now().UTC(),
		executionID,
	)
	if err != nil {
		return fmt.Errorf("close execution: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordInitialEntry 在同一事务内完成首次建仓：
// 写入买入成交、更新执行状态、落盘剩余定投批次。
// 执行已有投入时返回 ErrAlreadyInvested，任何一步失败整体回滚。
func (r *SQLiteRepository) RecordInitialEntry(ctx context.Context, trade *domain.TradeLog, schedule []domain.DCAEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin initial entry tx: %w", err)
	}
	defer tx.Rollback()

	var (
		status   string
		invested float64
	)
	err = tx.QueryRowContext(
		ctx,
		`SELECT status, invested_amount FROM executions WHERE id = ?`,
		trade.ExecutionID,
	).Scan(&status, &invested)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read execution for entry: %w", err)
	}
	if !domain.ExecutionStatus(status).IsOpen() {
		return fmt.Errorf("执行 %d 已结束，不能建仓", trade.ExecutionID)
	}
	if invested > 0 {
		return ErrAlreadyInvested
	}

	if err := applyEntryTradeTx(ctx, tx, trade); err != nil {
		return err
	}
	if err := insertDCAEntriesTx(ctx, tx, schedule); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit initial entry: %w", err)
	}
	return nil
}

// RecordEntryTrade 在同一事务内写入追加买入成交（定投批次）并更新执行状态。
func (r *SQLiteRepository) RecordEntryTrade(ctx context.Context, trade *domain.TradeLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry trade tx: %w", err)
	}
	defer tx.Rollback()

	if err := applyEntryTradeTx(ctx, tx, trade); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry trade: %w", err)
	}
	return nil
}

// applyEntryTradeTx 写入买入成交并更新执行状态：
// 累加投入金额、累计买入数量和持币数量，重算加权均价，状态推进为 invested。
func applyEntryTradeTx(ctx context.Context, tx *sql.Tx, trade *domain.TradeLog) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO trades (execution_id, token_id, token_name, trade_type, amount, token_price, coins, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ExecutionID,
		trade.TokenID,
		trade.TokenName,
		string(domain.TradeBuy),
		trade.Amount,
		trade.TokenPrice,
		trade.Coins,
		nullableString(trade.Description),
		now,
	)
	if err != nil {
		return fmt.Errorf("insert entry trade: %w", err)
	}
	trade.TradeID, _ = res.LastInsertId()
	trade.TradeType = domain.TradeBuy
	trade.CreatedAt = now

	// 加权均价 = 累计投入 / 累计买入数量，卖出不影响均价
	upd, err := tx.ExecContext(
		ctx,
		`UPDATE executions SET
			invested_amount = invested_amount + ?,
			bought_coins = bought_coins + ?,
			remaining_coins = remaining_coins + ?,
			avg_entry_price = (invested_amount + ?) / (bought_coins + ?),
			status = ?,
			updated_at = ?
		 WHERE id = ? AND status IN ('active', 'invested')`,
		trade.Amount,
		trade.Coins,
		trade.Coins,
		trade.Amount,
		trade.Coins,
		string(domain.ExecutionInvested),
		now,
		trade.ExecutionID,
	)
	if err != nil {
		return fmt.Errorf("apply entry trade: %w", err)
	}
	n, _ := upd.RowsAffected()
	if n == 0 {
		return fmt.Errorf("执行 %d 不存在或已结束", trade.ExecutionID)
	}
	return nil
}

// RecordExitTrade 在同一事务内写入卖出成交并更新执行状态：
// 累加取出金额、扣减持币、累加已实现盈亏并推进止盈档位计数。
// 卖出数量超过持仓时在写入前拒绝。持币清零时由调用方负责关闭执行。
func (r *SQLiteRepository) RecordExitTrade(ctx context.Context, trade *domain.TradeLog, realizedDelta float64, targetsHit int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exit trade tx: %w", err)
	}
	defer tx.Rollback()

	var remaining float64
	err = tx.QueryRowContext(
		ctx,
		`SELECT remaining_coins FROM executions WHERE id = ? AND status IN ('active', 'invested')`,
		trade.ExecutionID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("执行 %d 不存在或已结束", trade.ExecutionID)
	}
	if err != nil {
		return fmt.Errorf("read execution for exit: %w", err)
	}
	if trade.Coins > remaining+coinEpsilon {
		return fmt.Errorf("执行 %d 卖出数量 %.9f 超过持仓 %.9f", trade.ExecutionID, trade.Coins, remaining)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO trades (execution_id, token_id, token_name, trade_type, amount, token_price, coins, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ExecutionID,
		trade.TokenID,
		trade.TokenName,
		string(domain.TradeSell),
		trade.Amount,
		trade.TokenPrice,
		trade.Coins,
		nullableString(trade.Description),
		now,
	)
	if err != nil {
		return fmt.Errorf("insert exit trade: %w", err)
	}
	trade.TradeID, _ = res.LastInsertId()
	trade.TradeType = domain.TradeSell
	trade.CreatedAt = now

	// 扣减已在上面校验过，MAX 只吸收浮点尾差
	upd, err := tx.ExecContext(
		ctx,
		`UPDATE executions SET
			amount_taken_out = amount_taken_out + ?,
			remaining_coins = MAX(remaining_coins - ?, 0),
			realized_pnl = realized_pnl + ?,
			realized_pnl_percent = CASE WHEN invested_amount > 0 THEN (realized_pnl + ?) * 100.0 / invested_amount ELSE 0 END,
			profit_targets_hit = MAX(profit_targets_hit, ?),
			updated_at = ?
		 WHERE id = ? AND status IN ('active', 'invested')`,
		trade.Amount,
		trade.Coins,
		realizedDelta,
		realizedDelta,
		targetsHit,
		now,
		trade.ExecutionID,
	)
	if err != nil {
		return fmt.Errorf("apply exit trade: %w", err)
	}
	n, _ := upd.RowsAffected()
	if n == 0 {
		return fmt.Errorf("执行 %d 不存在或已结束", trade.ExecutionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exit trade: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTrades(ctx context.Context, executionID int64) ([]domain.TradeLog, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, execution_id, token_id, token_name, trade_type, amount, token_price, coins, description, created_at
		 FROM trades WHERE execution_id = ? ORDER BY id`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLog
	for rows.Next() {
		var (
			t         domain.TradeLog
			tradeType string
			desc      sql.NullString
		)
		err := rows.Scan(&t.TradeID, &t.ExecutionID, &t.TokenID, &t.TokenName, &tradeType, &t.Amount, &t.TokenPrice, &t.Coins, &desc, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.TradeType = domain.TradeType(tradeType)
		t.Description = desc.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*domain.ExecutionState, error) {
	var (
		exec          domain.ExecutionState
		status        string
		desc          sql.NullString
		notes, review sql.NullString
	)
	err := row.Scan(
		&exec.ExecutionID,
		&exec.StrategyID,
		&exec.TokenID,
		&exec.TokenName,
		&status,
		&desc,
		&exec.AllotedAmount,
		&exec.InvestedAmount,
		&exec.BoughtCoins,
		&exec.RemainingCoins,
		&exec.AvgEntryPrice,
		&exec.AmountTakenOut,
		&exec.RealizedPnl,
		&exec.RealizedPnlPercent,
		&exec.ProfitTargetsHit,
		&exec.RecordedTokenAge,
		&exec.CompletedTokenAge,
		&notes,
		&review,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	exec.Status = domain.ExecutionStatus(status)
	exec.Description = desc.String
	exec.Notes = notes.String
	exec.Review = review.String
	return &exec, nil
}

func unmarshalInstructions(cfg *domain.StrategyConfig, entry, invest, risk string) error {
	if err := json.Unmarshal([]byte(entry), &cfg.EntryConditions); err != nil {
		return fmt.Errorf("unmarshal entry conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(invest), &cfg.Investment); err != nil {
		return fmt.Errorf("unmarshal investment instructions: %w", err)
	}
	if err := json.Unmarshal([]byte(risk), &cfg.RiskManagement); err != nil {
		return fmt.Errorf("unmarshal risk instructions: %w", err)
	}
	return nil
}
