package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
)

type txKey struct{ conversationID, sender string }

type txRecord struct {
	request      core.TransactionRequest
	confirmation core.Confirmation
}

// Options configures a ledger.
type Options struct {
	Logger logging.Logger
	// Now is the clock used for confirmations.
	Now func() time.Time
}

// InMemoryLedger is a volatile SettlementAuthority keeping accounts in a
// process local map. All transfers are serialised by a single mutex, which
// is what makes double-spend detection exact.
type InMemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]core.Snapshot
	applied  map[txKey]txRecord
	logger   logging.Logger
	now      func() time.Time
}

// NewInMemoryLedger returns an empty ledger.
func NewInMemoryLedger(optFns ...func(o *Options)) *InMemoryLedger {
	opts := Options{Logger: logging.NoOpLogger{}, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryLedger{
		accounts: make(map[string]core.Snapshot),
		applied:  make(map[txKey]txRecord),
		logger:   logging.With(opts.Logger, "component", "ledger"),
		now:      opts.Now,
	}
}

// Open seeds an account. Books without instance ids receive one. The stored
// snapshot is returned.
func (l *InMemoryLedger) Open(snap core.Snapshot) (core.Snapshot, error) {
	if snap.AgentID == "" {
		return core.Snapshot{}, fmt.Errorf("ledger: empty agent id")
	}
	if snap.Money.IsNegative() {
		return core.Snapshot{}, fmt.Errorf("ledger: negative opening balance for %s", snap.AgentID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[snap.AgentID]; exists {
		return core.Snapshot{}, fmt.Errorf("ledger: account %s already open", snap.AgentID)
	}
	stored := AssignIDs(snap)
	l.accounts[snap.AgentID] = stored
	return stored.Clone(), nil
}

// Agents returns the ids of all open accounts, sorted.
func (l *InMemoryLedger) Agents() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubmitTransaction implements core.SettlementAuthority.
func (l *InMemoryLedger) SubmitTransaction(ctx context.Context, tx core.TransactionRequest) (core.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := txKey{tx.ConversationID, tx.Sender}
	if prev, ok := l.applied[key]; ok {
		if !SameRequest(prev.request, tx) {
			return core.Confirmation{}, fmt.Errorf("%w: conflicting resubmission for %s by %s", core.ErrSettlementFailure, tx.ConversationID, tx.Sender)
		}
		dup := prev.confirmation
		dup.Duplicate = true
		return dup, nil
	}

	sender, ok := l.accounts[tx.Sender]
	if !ok {
		return core.Confirmation{}, fmt.Errorf("%w: %w: %s", core.ErrSettlementFailure, core.ErrUnknownAgent, tx.Sender)
	}
	receiver, ok := l.accounts[tx.Receiver]
	if !ok {
		return core.Confirmation{}, fmt.Errorf("%w: %w: %s", core.ErrSettlementFailure, core.ErrUnknownAgent, tx.Receiver)
	}

	s, r, err := Transfer(sender, receiver, tx)
	if err != nil {
		l.logger.Warn("transaction rejected", "conversation_id", tx.ConversationID, "sender", tx.Sender, "error", err)
		return core.Confirmation{}, err
	}
	l.accounts[tx.Sender] = s
	l.accounts[tx.Receiver] = r

	conf := core.Confirmation{ConversationID: tx.ConversationID, Sender: tx.Sender, AppliedAt: l.now().UTC()}
	l.applied[key] = txRecord{request: tx, confirmation: conf}

	if other, ok := l.applied[txKey{tx.ConversationID, tx.Receiver}]; ok && !Mirrors(tx, other.request) {
		l.logger.Warn("transaction halves disagree", "conversation_id", tx.ConversationID, "sender", tx.Sender, "receiver", tx.Receiver)
	}
	l.logger.Debug("transaction applied", "conversation_id", tx.ConversationID, "sender", tx.Sender, "receiver", tx.Receiver)
	return conf, nil
}

// FetchAgentSnapshot implements core.SettlementAuthority.
func (l *InMemoryLedger) FetchAgentSnapshot(ctx context.Context, agentID string) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.accounts[agentID]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %w: %s", core.ErrSettlementFailure, core.ErrUnknownAgent, agentID)
	}
	return snap.Clone(), nil
}
