// Package sqlite provides a SettlementAuthority persisted in SQLite.
//
// Accounts keep their inventory and goals as JSON columns. Every transfer
// runs in a single database transaction over a single connection, so two
// conversations spending the same book are serialised and the second one
// fails with core.ErrBookNotOwned.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/ledger"
	"github.com/hupe1980/booktrader/logging"
)

// Ledger is a durable settlement authority.
type Ledger struct {
	db     *sqlx.DB
	logger logging.Logger
	now    func() time.Time
}

var _ core.SettlementAuthority = (*Ledger)(nil)

type accountRow struct {
	AgentID       string `db:"agent_id"`
	Money         string `db:"money"`
	InventoryJSON string `db:"inventory_json"`
	GoalsJSON     string `db:"goals_json"`
}

type transactionRow struct {
	ConversationID string `db:"conversation_id"`
	Sender         string `db:"sender"`
	Receiver       string `db:"receiver"`
	RequestJSON    string `db:"request_json"`
	AppliedAt      int64  `db:"applied_at"`
}

// Open opens or creates a ledger database at path. Use ":memory:" for a
// throwaway database.
func Open(path string, optFns ...func(o *ledger.Options)) (*Ledger, error) {
	opts := ledger.Options{Logger: logging.NoOpLogger{}, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, logger: logging.With(opts.Logger, "component", "sqlite_ledger"), now: opts.Now}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) migrate() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := l.db.Exec(pragma); err != nil {
			return err
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		agent_id TEXT PRIMARY KEY,
		money TEXT NOT NULL,
		inventory_json TEXT NOT NULL,
		goals_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		conversation_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		request_json TEXT NOT NULL,
		applied_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, sender)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(receiver);
	`
	_, err := l.db.Exec(schema)
	return err
}

// OpenAccount seeds an account. Books without instance ids receive one.
func (l *Ledger) OpenAccount(ctx context.Context, snap core.Snapshot) (core.Snapshot, error) {
	if snap.AgentID == "" {
		return core.Snapshot{}, fmt.Errorf("ledger: empty agent id")
	}
	if snap.Money.IsNegative() {
		return core.Snapshot{}, fmt.Errorf("ledger: negative opening balance for %s", snap.AgentID)
	}
	stored := ledger.AssignIDs(snap)
	row, err := toRow(stored)
	if err != nil {
		return core.Snapshot{}, err
	}
	_, err = l.db.NamedExecContext(ctx, `INSERT INTO accounts (agent_id, money, inventory_json, goals_json)
		VALUES (:agent_id, :money, :inventory_json, :goals_json)`, row)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("ledger: open account %s: %w", snap.AgentID, err)
	}
	return stored, nil
}

// Agents returns the ids of all accounts, sorted.
func (l *Ledger) Agents(ctx context.Context) ([]string, error) {
	var ids []string
	if err := l.db.SelectContext(ctx, &ids, "SELECT agent_id FROM accounts ORDER BY agent_id"); err != nil {
		return nil, err
	}
	return ids, nil
}

// SubmitTransaction implements core.SettlementAuthority.
func (l *Ledger) SubmitTransaction(ctx context.Context, req core.TransactionRequest) (core.Confirmation, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: begin: %w", core.ErrSettlementFailure, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var prev transactionRow
	err = tx.GetContext(ctx, &prev, `SELECT conversation_id, sender, receiver, request_json, applied_at
		FROM transactions WHERE conversation_id = ? AND sender = ?`, req.ConversationID, req.Sender)
	switch {
	case err == nil:
		var prevReq core.TransactionRequest
		if err := json.Unmarshal([]byte(prev.RequestJSON), &prevReq); err != nil {
			return core.Confirmation{}, fmt.Errorf("%w: decode stored transaction: %w", core.ErrSettlementFailure, err)
		}
		if !ledger.SameRequest(prevReq, req) {
			return core.Confirmation{}, fmt.Errorf("%w: conflicting resubmission for %s by %s", core.ErrSettlementFailure, req.ConversationID, req.Sender)
		}
		return core.Confirmation{
			ConversationID: req.ConversationID,
			Sender:         req.Sender,
			AppliedAt:      time.UnixMilli(prev.AppliedAt).UTC(),
			Duplicate:      true,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return core.Confirmation{}, fmt.Errorf("%w: lookup: %w", core.ErrSettlementFailure, err)
	}

	sender, err := loadAccount(ctx, tx, req.Sender)
	if err != nil {
		return core.Confirmation{}, err
	}
	receiver, err := loadAccount(ctx, tx, req.Receiver)
	if err != nil {
		return core.Confirmation{}, err
	}

	s, r, err := ledger.Transfer(sender, receiver, req)
	if err != nil {
		l.logger.Warn("transaction rejected", "conversation_id", req.ConversationID, "sender", req.Sender, "error", err)
		return core.Confirmation{}, err
	}
	for _, snap := range []core.Snapshot{s, r} {
		if err := saveAccount(ctx, tx, snap); err != nil {
			return core.Confirmation{}, err
		}
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: encode transaction: %w", core.ErrSettlementFailure, err)
	}
	appliedAt := l.now().UTC()
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO transactions (conversation_id, sender, receiver, request_json, applied_at)
		VALUES (:conversation_id, :sender, :receiver, :request_json, :applied_at)`, transactionRow{
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		Receiver:       req.Receiver,
		RequestJSON:    string(reqJSON),
		AppliedAt:      appliedAt.UnixMilli(),
	}); err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: record transaction: %w", core.ErrSettlementFailure, err)
	}

	var counterpart string
	err = tx.GetContext(ctx, &counterpart, `SELECT request_json FROM transactions WHERE conversation_id = ? AND sender = ?`,
		req.ConversationID, req.Receiver)
	if err == nil {
		var other core.TransactionRequest
		if json.Unmarshal([]byte(counterpart), &other) == nil && !ledger.Mirrors(req, other) {
			l.logger.Warn("transaction halves disagree", "conversation_id", req.ConversationID, "sender", req.Sender, "receiver", req.Receiver)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: commit: %w", core.ErrSettlementFailure, err)
	}
	return core.Confirmation{
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		AppliedAt:      time.UnixMilli(appliedAt.UnixMilli()).UTC(),
	}, nil
}

// FetchAgentSnapshot implements core.SettlementAuthority.
func (l *Ledger) FetchAgentSnapshot(ctx context.Context, agentID string) (core.Snapshot, error) {
	return loadAccount(ctx, l.db, agentID)
}

func loadAccount(ctx context.Context, q sqlx.QueryerContext, agentID string) (core.Snapshot, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT agent_id, money, inventory_json, goals_json
		FROM accounts WHERE agent_id = ?`, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, fmt.Errorf("%w: %w: %s", core.ErrSettlementFailure, core.ErrUnknownAgent, agentID)
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: load %s: %w", core.ErrSettlementFailure, agentID, err)
	}
	return fromRow(row)
}

func saveAccount(ctx context.Context, tx *sqlx.Tx, snap core.Snapshot) error {
	row, err := toRow(snap)
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, `UPDATE accounts
		SET money = :money, inventory_json = :inventory_json, goals_json = :goals_json
		WHERE agent_id = :agent_id`, row); err != nil {
		return fmt.Errorf("%w: save %s: %w", core.ErrSettlementFailure, snap.AgentID, err)
	}
	return nil
}

func toRow(snap core.Snapshot) (accountRow, error) {
	inv, err := json.Marshal(snap.Inventory)
	if err != nil {
		return accountRow{}, err
	}
	goals, err := json.Marshal(snap.Goals)
	if err != nil {
		return accountRow{}, err
	}
	return accountRow{
		AgentID:       snap.AgentID,
		Money:         snap.Money.String(),
		InventoryJSON: string(inv),
		GoalsJSON:     string(goals),
	}, nil
}

func fromRow(row accountRow) (core.Snapshot, error) {
	money, err := decimal.NewFromString(row.Money)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: corrupt balance for %s: %w", core.ErrSettlementFailure, row.AgentID, err)
	}
	snap := core.Snapshot{AgentID: row.AgentID, Money: money}
	if err := json.Unmarshal([]byte(row.InventoryJSON), &snap.Inventory); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: corrupt inventory for %s: %w", core.ErrSettlementFailure, row.AgentID, err)
	}
	if err := json.Unmarshal([]byte(row.GoalsJSON), &snap.Goals); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: corrupt goals for %s: %w", core.ErrSettlementFailure, row.AgentID, err)
	}
	return snap, nil
}
