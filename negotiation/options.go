package negotiation

import (
	"context"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/logging"
	"github.com/hupe1980/booktrader/valuation"
)

// Settler executes the local half of an agreed trade and refreshes Agent
// State. *settlement.Client implements it.
type Settler interface {
	Settle(ctx context.Context, tx core.TransactionRequest) (core.Confirmation, error)
}

// Env bundles the collaborators shared by both roles.
type Env struct {
	Dispatcher *dispatch.Dispatcher
	Directory  core.Directory
	Valuation  *valuation.Engine
	State      *core.StateStore
	Settler    Settler
}

// Role names used in logs and results.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// Result summarises one negotiation round.
type Result struct {
	Role           string
	ConversationID string
	Book           string
	Counterparty   string
	Outcome        core.Outcome
	Offer          core.Offer
	Duration       time.Duration
	Err            error
}

// Options configures both roles.
type Options struct {
	// ResponseTimeout bounds the offer collection window.
	ResponseTimeout time.Duration
	// DecisionTimeout bounds how long a responder waits for accept or reject.
	DecisionTimeout time.Duration
	// ConfirmationTimeout bounds how long the buyer waits for the seller's completion.
	ConfirmationTimeout time.Duration
	Logger              logging.Logger
	// OnResult, if set, observes every finished round.
	OnResult func(Result)
}

func defaultOptions() Options {
	return Options{
		ResponseTimeout:     5 * time.Second,
		DecisionTimeout:     10 * time.Second,
		ConfirmationTimeout: 10 * time.Second,
		Logger:              logging.NoOpLogger{},
	}
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return opts
}
