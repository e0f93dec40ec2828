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

// 策略的准入条件、投资指令、风控指令以 JSON 列存储，
// 读取时反序列化回结构体。

func (r *SQLiteRepository) InsertStrategy(ctx context.Context, cfg *domain.StrategyConfig) (int64, error) {
	entry, invest, risk, err := marshalInstructions(cfg)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx,
		`INSERT INTO strategies (strategy_name, source, description, active, superuser, entry_conditions, investment_instructions, risk_instructions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.StrategyName,
		string(cfg.Source),
		nullableString(cfg.Description),
		boolToInt(cfg.Active),
		boolToInt(cfg.Superuser),
		entry,
		invest,
		risk,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert strategy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert strategy id: %w", err)
	}
	cfg.StrategyID = id
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return id, nil
}

func (r *SQLiteRepository) UpdateStrategy(ctx context.Context, cfg *domain.StrategyConfig) error {
	entry, invest, risk, err := marshalInstructions(cfg)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(
		ctx,
		`UPDATE strategies SET strategy_name = ?, description = ?, active = ?, superuser = ?, entry_conditions = ?, investment_instructions = ?, risk_instructions = ?, updated_at = ? WHERE id = ?`,
		cfg.StrategyName,
		nullableString(cfg.Description),
		boolToInt(cfg.Active),
		boolToInt(cfg.Superuser),
		entry,
		invest,
		risk,
		time.Now().UTC(),
		cfg.StrategyID,
	)
	if err != nil {
		return fmt.Errorf("update strategy: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetStrategyActive(ctx context.Context, strategyID int64, active bool) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE strategies SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active),
		time.Now().UTC(),
		strategyID,
	)
	if err != nil {
		return fmt.Errorf("set strategy active: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetStrategy(ctx context.Context, strategyID int64) (*domain.StrategyConfig, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, strategy_name, source, description, active, superuser, entry_conditions, investment_instructions, risk_instructions, created_at, updated_at
		 FROM strategies WHERE id = ?`,
		strategyID,
	)
	cfg, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return cfg, nil
}

func (r *SQLiteRepository) ListStrategies(ctx context.Context, source domain.SourceType, onlyActive bool) ([]domain.StrategyConfig, error) {
	query := `SELECT id, strategy_name, source, description, active, superuser, entry_conditions, investment_instructions, risk_instructions, created_at, updated_at FROM strategies WHERE 1=1`
	args := []any{}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}
	if onlyActive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyConfig
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

// ActiveStrategiesForPush 按推送入口筛选策略池：
// API 推送只命中 superuser 策略，定时任务推送只命中普通策略。
func (r *SQLiteRepository) ActiveStrategiesForPush(ctx context.Context, source domain.SourceType, push domain.PushSource) ([]domain.StrategyConfig, error) {
	superuser := 0
	if push == domain.PushSourceAPI {
		superuser = 1
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, strategy_name, source, description, active, superuser, entry_conditions, investment_instructions, risk_instructions, created_at, updated_at
		 FROM strategies WHERE source = ? AND active = 1 AND superuser = ? ORDER BY id`,
		string(source),
		superuser,
	)
	if err != nil {
		return nil, fmt.Errorf("list push strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyConfig
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		out = append(out, *cfg)
	}
	return out, rows.Err()
}

func marshalInstructions(cfg *domain.StrategyConfig) (entry, invest, risk string, err error) {
	eb, err := json.Marshal(cfg.EntryConditions)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal entry conditions: %w", err)
	}
	ib, err := json.Marshal(cfg.Investment)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal investment instructions: %w", err)
	}
	rb, err := json.Marshal(cfg.RiskManagement)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal risk instructions: %w", err)
	}
	return string(eb), string(ib), string(rb), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (*domain.StrategyConfig, error) {
	var (
		cfg                 domain.StrategyConfig
		source              string
		description         sql.NullString
		active, superuser   int
		entry, invest, risk string
	)
	err := row.Scan(
		&cfg.StrategyID,
		&cfg.StrategyName,
		&source,
		&description,
		&active,
		&superuser,
		&entry,
		&invest,
		&risk,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Source = domain.SourceType(source)
	cfg.Description = description.String
	cfg.Active = active == 1
	cfg.Superuser = superuser == 1
	if err := json.Unmarshal([]byte(entry), &cfg.EntryConditions); err != nil {
		return nil, fmt.Errorf("unmarshal entry conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(invest), &cfg.Investment); err != nil {
		return nil, fmt.Errorf("unmarshal investment instructions: %w", err)
	}
	if err := json.Unmarshal([]byte(risk), &cfg.RiskManagement); err != nil {
		return nil, fmt.Errorf("unmarshal risk instructions: %w", err)
	}
	return &cfg, nil
}
