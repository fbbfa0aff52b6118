package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/booktrader/core"
)

// StubAuthority is a scripted core.SettlementAuthority. It records every
// submission and returns the configured snapshot or errors. Safe for
// concurrent use.
type StubAuthority struct {
	mu          sync.Mutex
	snapshots   map[string]core.Snapshot
	submitted   []core.TransactionRequest
	SubmitErr   error
	FetchErr    error
	AfterSubmit func(tx core.TransactionRequest)
}

var _ core.SettlementAuthority = (*StubAuthority)(nil)

// NewStubAuthority returns a stub serving the given snapshots.
func NewStubAuthority(snaps ...core.Snapshot) *StubAuthority {
	a := &StubAuthority{snapshots: make(map[string]core.Snapshot)}
	for _, s := range snaps {
		a.snapshots[s.AgentID] = s.Clone()
	}
	return a
}

// SetSnapshot replaces what FetchAgentSnapshot returns for snap.AgentID.
func (a *StubAuthority) SetSnapshot(snap core.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[snap.AgentID] = snap.Clone()
}

// Submitted returns the transactions received so far.
func (a *StubAuthority) Submitted() []core.TransactionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.TransactionRequest, len(a.submitted))
	copy(out, a.submitted)
	return out
}

// SubmitTransaction implements core.SettlementAuthority.
func (a *StubAuthority) SubmitTransaction(_ context.Context, tx core.TransactionRequest) (core.Confirmation, error) {
	a.mu.Lock()
	if a.SubmitErr != nil {
		err := a.SubmitErr
		a.mu.Unlock()
		return core.Confirmation{}, err
	}
	a.submitted = append(a.submitted, tx)
	hook := a.AfterSubmit
	a.mu.Unlock()

	if hook != nil {
		hook(tx)
	}
	return core.Confirmation{ConversationID: tx.ConversationID, Sender: tx.Sender}, nil
}

// FetchAgentSnapshot implements core.SettlementAuthority.
func (a *StubAuthority) FetchAgentSnapshot(_ context.Context, agentID string) (core.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FetchErr != nil {
		return core.Snapshot{}, a.FetchErr
	}
	snap, ok := a.snapshots[agentID]
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: %s", core.ErrUnknownAgent, agentID)
	}
	return snap.Clone(), nil
}
