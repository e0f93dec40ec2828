package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smartfolio/internal/domain"
)

func (r *SQLiteRepository) InsertDCAEntries(ctx context.Context, entries []domain.DCAEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dca tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertDCAEntriesTx(ctx, tx, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dca entries: %w", err)
	}
	return nil
}

func insertDCAEntriesTx(ctx context.Context, tx *sql.Tx, entries []domain.DCAEntry) error {
	for i := range entries {
		e := &entries[i]
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO dca_entries (execution_id, entry_number, amount, scheduled_at, price_deviation_limit, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ExecutionID,
			e.EntryNumber,
			e.Amount,
			e.ScheduledAt.UTC(),
			e.PriceDeviationLimit,
			string(domain.DCAEntryPending),
		)
		if err != nil {
			return fmt.Errorf("insert dca entry %d: %w", e.EntryNumber, err)
		}
		e.EntryID, _ = res.LastInsertId()
		e.Status = domain.DCAEntryPending
	}
	return nil
}

// DueDCAEntries 已到期且未处理的定投批次，只返回所属执行仍未结束的
func (r *SQLiteRepository) DueDCAEntries(ctx context.Context) ([]domain.DCAEntry, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT d.id, d.execution_id, d.entry_number, d.amount, d.scheduled_at, d.price_deviation_limit, d.status, d.executed_at
		 FROM dca_entries d
		 JOIN executions e ON e.id = d.execution_id
		 WHERE d.status = 'pending' AND d.scheduled_at <= ? AND e.status IN ('active', 'invested')
		 ORDER BY d.scheduled_at`,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due dca entries: %w", err)
	}
	defer rows.Close()

	var out []domain.DCAEntry
	for rows.Next() {
		var (
			e          domain.DCAEntry
			status     string
			executedAt sql.NullTime
		)
		err := rows.Scan(&e.EntryID, &e.ExecutionID, &e.EntryNumber, &e.Amount, &e.ScheduledAt, &e.PriceDeviationLimit, &status, &executedAt)
		if err != nil {
			return nil, fmt.Errorf("scan dca entry: %w", err)
		}
		e.Status = domain.DCAEntryStatus(status)
		if executedAt.Valid {
			t := executedAt.Time
			e.ExecutedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetDCAEntryStatus(ctx context.Context, entryID int64, status domain.DCAEntryStatus) error {
	var executedAt any
	if status == domain.DCAEntryExecuted {
		executedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE dca_entries SET status = ?, executed_at = ? WHERE id = ?`,
		string(status),
		executedAt,
		entryID,
	)
	if err != nil {
		return fmt.Errorf("set dca entry status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPendingDCAEntries 执行结束时取消其全部未到期批次
func (r *SQLiteRepository) CancelPendingDCAEntries(ctx context.Context, executionID int64) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE dca_entries SET status = ? WHERE execution_id = ? AND status = 'pending'`,
		string(domain.DCAEntryCancelled),
		executionID,
	)
	if err != nil {
		return fmt.Errorf("cancel pending dca entries: %w", err)
	}
	return nil
}
