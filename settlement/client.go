// Package settlement connects agents to the settlement authority.
//
// Client is what negotiators use: it submits an agreed transaction, and on
// success replaces the agent's state wholesale with the authority's view.
// RemoteAuthority implements core.SettlementAuthority by talking to the
// settlement service over the agent's own dispatcher.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds each submit-and-refresh cycle.
	Timeout time.Duration
	Logger  logging.Logger
}

// Client settles trades for one agent.
type Client struct {
	authority core.SettlementAuthority
	state     *core.StateStore
	agentID   string
	timeout   time.Duration
	logger    logging.Logger
}

// NewClient returns a client that refreshes state after every settlement.
func NewClient(agentID string, authority core.SettlementAuthority, state *core.StateStore, optFns ...func(o *Options)) *Client {
	opts := Options{Timeout: 5 * time.Second, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		authority: authority,
		state:     state,
		agentID:   agentID,
		timeout:   opts.Timeout,
		logger:    logging.With(opts.Logger, "component", "settlement", "agent_id", agentID),
	}
}

// Settle submits tx and then refreshes the agent state. A failed
// submission leaves the state untouched. All errors wrap
// core.ErrSettlementFailure.
func (c *Client) Settle(ctx context.Context, tx core.TransactionRequest) (core.Confirmation, error) {
	start := time.Now()
	conf, err := c.settle(ctx, tx)
	if tl, ok := c.logger.(*logging.TraderLogger); ok {
		tl.LogSettlement(tx.ConversationID, time.Since(start), err == nil, err)
	} else if err != nil {
		c.logger.Warn("settlement failed", "conversation_id", tx.ConversationID, "error", err)
	}
	return conf, err
}

func (c *Client) settle(ctx context.Context, tx core.TransactionRequest) (core.Confirmation, error) {
	if tx.Sender != c.agentID {
		return core.Confirmation{}, fmt.Errorf("%w: transaction sender %q is not %q", core.ErrSettlementFailure, tx.Sender, c.agentID)
	}
	if err := tx.Validate(); err != nil {
		return core.Confirmation{}, fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conf, err := c.authority.SubmitTransaction(ctx, tx)
	if err != nil {
		return core.Confirmation{}, wrap(err)
	}
	if conf.Duplicate {
		c.logger.Debug("transaction already applied", "conversation_id", tx.ConversationID)
	}
	if err := c.refresh(ctx); err != nil {
		return conf, err
	}
	return conf, nil
}

// Refresh fetches the agent's snapshot and replaces the local state.
func (c *Client) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	snap, err := c.authority.FetchAgentSnapshot(ctx, c.agentID)
	if err != nil {
		return wrap(err)
	}
	if snap.AgentID == "" {
		snap.AgentID = c.agentID
	}
	c.state.Replace(snap)
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrSettlementFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrSettlementFailure, err)
}
