package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
)

// RemoteAuthority reaches the settlement service through the directory.
// Each call is its own conversation with a fresh id.
type RemoteAuthority struct {
	d         *dispatch.Dispatcher
	directory core.Directory
}

var _ core.SettlementAuthority = (*RemoteAuthority)(nil)

// NewRemoteAuthority returns an authority client sending through d.
func NewRemoteAuthority(d *dispatch.Dispatcher, directory core.Directory) *RemoteAuthority {
	return &RemoteAuthority{d: d, directory: directory}
}

// SubmitTransaction implements core.SettlementAuthority.
func (r *RemoteAuthority) SubmitTransaction(ctx context.Context, tx core.TransactionRequest) (core.Confirmation, error) {
	reply, err := r.call(ctx, core.SubmitTransaction{Transaction: tx})
	if err != nil {
		return core.Confirmation{}, err
	}
	conf, ok := reply.(core.TransactionConfirmed)
	if !ok {
		return core.Confirmation{}, fmt.Errorf("%w: unexpected %s reply", core.ErrSettlementFailure, reply.Type())
	}
	return conf.Confirmation, nil
}

// FetchAgentSnapshot implements core.SettlementAuthority.
func (r *RemoteAuthority) FetchAgentSnapshot(ctx context.Context, agentID string) (core.Snapshot, error) {
	reply, err := r.call(ctx, core.FetchSnapshot{AgentID: agentID})
	if err != nil {
		return core.Snapshot{}, err
	}
	res, ok := reply.(core.SnapshotResult)
	if !ok {
		return core.Snapshot{}, fmt.Errorf("%w: unexpected %s reply", core.ErrSettlementFailure, reply.Type())
	}
	return res.Snapshot, nil
}

func (r *RemoteAuthority) call(ctx context.Context, msg core.Message) (core.Message, error) {
	peers, err := r.directory.FindPeers(ctx, core.RoleSettlement)
	if err != nil {
		return nil, fmt.Errorf("%w: find settlement service: %w", core.ErrSettlementFailure, err)
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: no settlement service registered", core.ErrSettlementFailure)
	}

	conv, err := r.d.OpenNew()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}
	defer conv.Close()

	var replyBy time.Time
	if deadline, ok := ctx.Deadline(); ok {
		replyBy = deadline
	}
	if err := conv.Send(ctx, msg, replyBy, peers[0]); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}

	env, err := conv.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}
	reply, err := conv.Decode(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}
	switch m := reply.(type) {
	case core.Failure:
		return nil, fmt.Errorf("%w: %s", core.ErrSettlementFailure, m.Reason)
	case core.NotUnderstood:
		return nil, fmt.Errorf("%w: %w: %s", core.ErrSettlementFailure, core.ErrNotUnderstood, m.Reason)
	}
	return reply, nil
}
