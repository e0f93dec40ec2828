package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"smartfolio/internal/domain"

	_ "modernc.org/sqlite"
)

// ErrNotFound 查询目标不存在
var ErrNotFound = errors.New("记录不存在")

// ErrAlreadyInvested 执行已完成首次建仓，重复建仓被拒绝
var ErrAlreadyInvested = errors.New("执行已完成建仓")

type Repository interface {
	Init(ctx context.Context) error
	Close() error

	// Strategy 策略配置管理
	InsertStrategy(ctx context.Context, cfg *domain.StrategyConfig) (int64, error)
	UpdateStrategy(ctx context.Context, cfg *domain.StrategyConfig) error
	SetStrategyActive(ctx context.Context, strategyID int64, active bool) error
	GetStrategy(ctx context.Context, strategyID int64) (*domain.StrategyConfig, error)
	ListStrategies(ctx context.Context, source domain.SourceType, onlyActive bool) ([]domain.StrategyConfig, error)
	ActiveStrategiesForPush(ctx context.Context, source domain.SourceType, push domain.PushSource) ([]domain.StrategyConfig, error)

	// Execution 执行状态管理
	CreateExecution(ctx context.Context, exec *domain.ExecutionState) (int64, error)
	GetExecution(ctx context.Context, executionID int64) (*domain.ExecutionState, error)
	HasOpenExecution(ctx context.Context, tokenID string, strategyID int64) (bool, error)
	ActiveExecutionsWithConfig(ctx context.Context) ([]domain.ExecutionWithConfig, error)
	ListExecutions(ctx context.Context, status domain.ExecutionStatus, limit int) ([]domain.ExecutionState, error)
	UpdateExecutionNotes(ctx context.Context, executionID int64, notes string) error
	SetExecutionReview(ctx context.Context, executionID int64, review string) error
	CloseExecution(ctx context.Context, executionID int64, status domain.ExecutionStatus, completedTokenAge int) error

	// Trade 成交记录（与执行状态同事务更新）
	RecordInitialEntry(ctx context.Context, trade *domain.TradeLog, schedule []domain.DCAEntry) error
	RecordEntryTrade(ctx context.Context, trade *domain.TradeLog) error
	RecordExitTrade(ctx context.Context, trade *domain.TradeLog, realizedDelta float64, targetsHit int) error
	ListTrades(ctx context.Context, executionID int64) ([]domain.TradeLog, error)

	// DCA 定投批次
	InsertDCAEntries(ctx context.Context, entries []domain.DCAEntry) error
	DueDCAEntries(ctx context.Context) ([]domain.DCAEntry, error)
	SetDCAEntryStatus(ctx context.Context, entryID int64, status domain.DCAEntryStatus) error
	CancelPendingDCAEntries(ctx context.Context, executionID int64) error

	// Snapshot 代币快照
	UpsertTokenSnapshot(ctx context.Context, snap *domain.TokenSnapshot) error
	GetTokenSnapshot(ctx context.Context, tokenID string, source domain.SourceType) (*domain.TokenSnapshot, error)
	ListTokenSnapshots(ctx context.Context, source domain.SourceType, limit int) ([]domain.TokenSnapshot, error)

	// Report 绩效报表
	ExecutionReport(ctx context.Context, executionID int64) (*domain.ExecutionReport, error)
	StrategyPerformance(ctx context.Context) ([]domain.StrategyPerformance, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			description TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			superuser INTEGER NOT NULL DEFAULT 0,
			entry_conditions TEXT NOT NULL,
			investment_instructions TEXT NOT NULL,
			risk_instructions TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_id INTEGER NOT NULL,
			token_id TEXT NOT NULL,
			token_name TEXT NOT NULL,
			status TEXT NOT NULL,
			description TEXT,
			alloted_amount REAL NOT NULL DEFAULT 0,
			invested_amount REAL NOT NULL DEFAULT 0,
			bought_coins REAL NOT NULL DEFAULT 0,
			remaining_coins REAL NOT NULL DEFAULT 0,
			avg_entry_price REAL NOT NULL DEFAULT 0,
			amount_taken_out REAL NOT NULL DEFAULT 0,
			realized_pnl REAL NOT NULL DEFAULT 0,
			realized_pnl_percent REAL NOT NULL DEFAULT 0,
			profit_targets_hit INTEGER NOT NULL DEFAULT 0,
			recorded_token_age INTEGER NOT NULL DEFAULT 0,
			completed_token_age INTEGER NOT NULL DEFAULT 0,
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (strategy_id) REFERENCES strategies(id)
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id INTEGER NOT NULL,
			token_id TEXT NOT NULL,
			token_name TEXT NOT NULL,
			trade_type TEXT NOT NULL,
			amount REAL NOT NULL,
			token_price REAL NOT NULL,
			coins REAL NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (execution_id) REFERENCES executions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS dca_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id INTEGER NOT NULL,
			entry_number INTEGER NOT NULL,
			amount REAL NOT NULL,
			scheduled_at TIMESTAMP NOT NULL,
			price_deviation_limit REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			executed_at TIMESTAMP,
			FOREIGN KEY (execution_id) REFERENCES executions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS token_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_id TEXT NOT NULL,
			token_name TEXT NOT NULL,
			chain_name TEXT,
			source TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			marketcap REAL NOT NULL DEFAULT 0,
			holders INTEGER NOT NULL DEFAULT 0,
			token_age INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			avg_price REAL NOT NULL DEFAULT 0,
			smart_balance REAL NOT NULL DEFAULT 0,
			qty_change_1d REAL NOT NULL DEFAULT 0,
			qty_change_7d REAL NOT NULL DEFAULT 0,
			qty_change_30d REAL NOT NULL DEFAULT 0,
			attention_score REAL NOT NULL DEFAULT 0,
			change_1d_bps REAL NOT NULL DEFAULT 0,
			change_7d_bps REAL NOT NULL DEFAULT 0,
			liquidity REAL NOT NULL DEFAULT 0,
			volume_24h REAL NOT NULL DEFAULT 0,
			buy_sol_qty REAL NOT NULL DEFAULT 0,
			occurrence_count INTEGER NOT NULL DEFAULT 0,
			dex_status INTEGER NOT NULL DEFAULT 0,
			rug_count INTEGER NOT NULL DEFAULT 0,
			wallet_address TEXT,
			unprocessed_pnl REAL NOT NULL DEFAULT 0,
			unprocessed_roi REAL NOT NULL DEFAULT 0,
			recorded_at TIMESTAMP NOT NULL,
			UNIQUE(token_id, source)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_strategy_id ON executions(strategy_id);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_execution_id ON trades(execution_id);`,
		`CREATE INDEX IF NOT EXISTS idx_dca_entries_status ON dca_entries(status, scheduled_at);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_source ON token_snapshots(source);`,
		// 同一策略对同一代币最多一个未结束的执行
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_open
			ON executions(token_id, strategy_id)
			WHERE status IN ('active', 'invested');`,
		// 兼容旧库：添加 AI 复盘结论列
		`ALTER TABLE executions ADD COLUMN review TEXT;`,
		// 兼容旧库：添加累计买入数量列，均价以此为分母
		`ALTER TABLE executions ADD COLUMN bought_coins REAL NOT NULL DEFAULT 0;`,
	}

	for _, stmt := range stmts {
		_, err := r.db.ExecContext(ctx, stmt)
		if err != nil {
			// ALTER TABLE ADD COLUMN 在列已存在时会报错，忽略此类错误
			if isAlterTableDuplicate(err) {
				continue
			}
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	return nil
}

func isAlterTableDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
