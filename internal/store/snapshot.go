package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartfolio/internal/domain"
)

// UpsertTokenSnapshot 按 (token_id, source) 覆盖式更新代币快照
func (r *SQLiteRepository) UpsertTokenSnapshot(ctx context.Context, snap *domain.TokenSnapshot) error {
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO token_snapshots (token_id, token_name, chain_name, source, price, marketcap, holders, token_age, tags, avg_price, smart_balance, qty_change_1d, qty_change_7d, qty_change_30d, attention_score, change_1d_bps, change_7d_bps, liquidity, volume_24h, buy_sol_qty, occurrence_count, dex_status, rug_count, wallet_address, unprocessed_pnl, unprocessed_roi, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token_id, source) DO UPDATE SET
			token_name = excluded.token_name,
			chain_name = excluded.chain_name,
			price = excluded.price,
			marketcap = excluded.marketcap,
			holders = excluded.holders,
			token_age = excluded.token_age,
			tags = excluded.tags,
			avg_price = excluded.avg_price,
			smart_balance = excluded.smart_balance,
			qty_change_1d = excluded.qty_change_1d,
			qty_change_7d = excluded.qty_change_7d,
			qty_change_30d = excluded.qty_change_30d,
			attention_score = excluded.attention_score,
			change_1d_bps = excluded.change_1d_bps,
			change_7d_bps = excluded.change_7d_bps,
			liquidity = excluded.liquidity,
			volume_24h = excluded.volume_24h,
			buy_sol_qty = excluded.buy_sol_qty,
			occurrence_count = excluded.occurrence_count,
			dex_status = excluded.dex_status,
			rug_count = excluded.rug_count,
			wallet_address = excluded.wallet_address,
			unprocessed_pnl = excluded.unprocessed_pnl,
			unprocessed_roi = excluded.unprocessed_roi,
			recorded_at = excluded.recorded_at`,
		snap.TokenID,
		snap.TokenName,
		nullableString(snap.ChainName),
		string(snap.Source),
		snap.Price,
		snap.MarketCap,
		snap.Holders,
		snap.TokenAge,
		nullableString(snap.Tags),
		snap.AvgPrice,
		snap.SmartBalance,
		snap.QtyChange1D,
		snap.QtyChange7D,
		snap.QtyChange30D,
		snap.AttentionScore,
		snap.Change1DBps,
		snap.Change7DBps,
		snap.Liquidity,
		snap.Volume24h,
		snap.BuySolQty,
		snap.OccurrenceCount,
		boolToInt(snap.DexStatus),
		snap.RugCount,
		nullableString(snap.WalletAddress),
		snap.UnprocessedPnl,
		snap.UnprocessedRoi,
		snap.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert token snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `token_id, token_name, chain_name, source, price, marketcap, holders, token_age, tags, avg_price, smart_balance, qty_change_1d, qty_change_7d, qty_change_30d, attention_score, change_1d_bps, change_7d_bps, liquidity, volume_24h, buy_sol_qty, occurrence_count, dex_status, rug_count, wallet_address, unprocessed_pnl, unprocessed_roi, recorded_at`

func (r *SQLiteRepository) GetTokenSnapshot(ctx context.Context, tokenID string, source domain.SourceType) (*domain.TokenSnapshot, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+snapshotColumns+` FROM token_snapshots WHERE token_id = ? AND source = ?`,
		tokenID,
		string(source),
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token snapshot: %w", err)
	}
	return snap, nil
}

func (r *SQLiteRepository) ListTokenSnapshots(ctx context.Context, source domain.SourceType, limit int) ([]domain.TokenSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM token_snapshots`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY recorded_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list token snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.TokenSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (*domain.TokenSnapshot, error) {
	var (
		snap                  domain.TokenSnapshot
		chain, tags, wallet   sql.NullString
		source                string
		dexStatus             int
	)
	err := row.Scan(
		&snap.TokenID,
		&snap.TokenName,
		&chain,
		&source,
		&snap.Price,
		&snap.MarketCap,
		&snap.Holders,
		&snap.TokenAge,
		&tags,
		&snap.AvgPrice,
		&snap.SmartBalance,
		&snap.QtyChange1D,
		&snap.QtyChange7D,
		&snap.QtyChange30D,
		&snap.AttentionScore,
		&snap.Change1DBps,
		&snap.Change7DBps,
		&snap.Liquidity,
		&snap.Volume24h,
		&snap.BuySolQty,
		&snap.OccurrenceCount,
		&dexStatus,
		&snap.RugCount,
		&wallet,
		&snap.UnprocessedPnl,
		&snap.UnprocessedRoi,
		&snap.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.ChainName = chain.String
	snap.Source = domain.SourceType(source)
	snap.Tags = tags.String
	snap.WalletAddress = wallet.String
	snap.DexStatus = dexStatus == 1
	return &snap, nil
}
