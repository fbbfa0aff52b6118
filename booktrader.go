// Package booktrader provides a high-level façade wiring one autonomous book
// trading agent: its Agent State, valuation engine, dispatcher, buyer and
// seller protocol roles, goal scheduler and settlement client. Most
// applications interact with this package by:
//  1. Joining a transport (transport.Network in-process, transport/ws over the network)
//  2. Creating a Trader via New() with a catalog and optional timing overrides
//  3. Calling Run until the context ends
//
// Without an explicit SettlementAuthority the trader reaches the settlement
// service advertised in the directory under the settlement role.
package booktrader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/logging"
	"github.com/hupe1980/booktrader/negotiation"
	"github.com/hupe1980/booktrader/settlement"
	"github.com/hupe1980/booktrader/valuation"
)

// Options configures a Trader.
type Options struct {
	// Catalog is the public price list. Required.
	Catalog core.Catalog
	// Valuation constants (discounts, markdown, bonus range).
	Valuation valuation.Config
	// Jitter overrides the random source of the sell bonus.
	Jitter func(n int) int

	// ScanInterval is the period of the goal scan.
	ScanInterval time.Duration
	// ResponseTimeout bounds the offer collection window.
	ResponseTimeout time.Duration
	// DecisionTimeout bounds how long a seller waits for the buyer's decision.
	DecisionTimeout time.Duration
	// ConfirmationTimeout bounds how long a buyer waits for the seller's completion.
	ConfirmationTimeout time.Duration
	// SettlementTimeout bounds each settle-and-refresh call.
	SettlementTimeout time.Duration

	// Codec defaults to codec.Default().
	Codec *codec.Codec
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Stats counts finished rounds by role and outcome.
type Stats struct {
	Bought  int
	Sold    int
	NoDeal  int
	Refused int
	Failed  int
}

// Trader is one running agent.
type Trader struct {
	id         string
	opts       Options
	logger     logging.Logger
	state      *core.StateStore
	dispatcher *dispatch.Dispatcher
	settler    *settlement.Client
	initiator  *negotiation.Initiator
	scheduler  *negotiation.Scheduler

	mu    sync.Mutex
	stats Stats
}

// New wires a trader on t. directory locates trading peers (and the
// settlement service when authority is nil).
func New(t core.Transport, directory core.Directory, authority core.SettlementAuthority, optFns ...func(o *Options)) (*Trader, error) {
	opts := Options{
		Valuation:           valuation.DefaultConfig,
		ScanInterval:        time.Second,
		ResponseTimeout:     5 * time.Second,
		DecisionTimeout:     10 * time.Second,
		ConfirmationTimeout: 10 * time.Second,
		SettlementTimeout:   5 * time.Second,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.Catalog) == 0 {
		return nil, errors.New("booktrader: empty catalog")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	id := t.ID()
	logger := logging.With(opts.Logger, "agent_id", id)

	d, err := dispatch.New(t, func(o *dispatch.Options) {
		o.Codec = opts.Codec
		o.Logger = logger
	})
	if err != nil {
		return nil, fmt.Errorf("booktrader: %w", err)
	}
	if authority == nil {
		authority = settlement.NewRemoteAuthority(d, directory)
	}

	tr := &Trader{
		id:         id,
		opts:       opts,
		logger:     logger,
		state:      core.NewStateStore(core.Snapshot{AgentID: id}),
		dispatcher: d,
	}
	tr.settler = settlement.NewClient(id, authority, tr.state, func(o *settlement.Options) {
		o.Timeout = opts.SettlementTimeout
		o.Logger = logger
	})

	engine := valuation.New(opts.Catalog, func(o *valuation.Options) {
		o.Config = opts.Valuation
		if opts.Jitter != nil {
			o.Jitter = opts.Jitter
		}
	})
	env := negotiation.Env{
		Dispatcher: d,
		Directory:  directory,
		Valuation:  engine,
		State:      tr.state,
		Settler:    tr.settler,
	}
	roleOpts := func(o *negotiation.Options) {
		o.ResponseTimeout = opts.ResponseTimeout
		o.DecisionTimeout = opts.DecisionTimeout
		o.ConfirmationTimeout = opts.ConfirmationTimeout
		o.Logger = logger
		o.OnResult = tr.record
	}
	negotiation.NewResponder(env, roleOpts).Register(d)
	tr.initiator = negotiation.NewInitiator(env, roleOpts)
	tr.scheduler = negotiation.NewScheduler(tr.initiator, tr.state, func(o *negotiation.SchedulerOptions) {
		o.Interval = opts.ScanInterval
		o.Logger = logger
	})

	return tr, nil
}

// ID returns the agent id.
func (t *Trader) ID() string { return t.id }

// Run fetches the agent's state from the settlement authority, then serves
// incoming requests and scans goals until ctx ends or the transport closes.
// Only the bootstrap fetch can fail; round failures are counted in Stats.
func (t *Trader) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	// The dispatcher must run before the bootstrap fetch so a remote
	// authority's reply can be routed.
	g.Go(func() error {
		defer cancel()
		return t.dispatcher.Run(gctx)
	})

	if err := t.settler.Refresh(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("booktrader: bootstrap %s: %w", t.id, err)
	}
	snap := t.state.Snapshot()
	t.logger.Info("trader started", "books", len(snap.Inventory), "goals", len(snap.Goals), "money", snap.Money.String())

	g.Go(func() error {
		return t.scheduler.Run(gctx)
	})

	err := g.Wait()
	t.logger.Info("trader stopped")
	return err
}

// Negotiate runs a single buyer round for book outside the scheduler.
func (t *Trader) Negotiate(ctx context.Context, book string) negotiation.Result {
	return t.initiator.Negotiate(ctx, book)
}

// Snapshot returns the current Agent State.
func (t *Trader) Snapshot() core.Snapshot { return t.state.Snapshot() }

// Stats returns round counters.
func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// ActiveConversations returns the number of open conversations.
func (t *Trader) ActiveConversations() int { return t.dispatcher.Active() }

func (t *Trader) record(r negotiation.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch r.Outcome {
	case core.OutcomeTraded:
		if r.Role == negotiation.RoleInitiator {
			t.stats.Bought++
		} else {
			t.stats.Sold++
		}
	case core.OutcomeNoDeal:
		t.stats.NoDeal++
	case core.OutcomeRefused:
		t.stats.Refused++
	case core.OutcomeFailed:
		t.stats.Failed++
	}
}
