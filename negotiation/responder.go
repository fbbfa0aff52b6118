package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/logging"
)

// ResponderState enumerates the seller-side protocol states.
type ResponderState int

const (
	ResponderAwaitingRequest ResponderState = iota
	ResponderProposing
	ResponderAwaitingDecision
	ResponderSettling
	ResponderDone
	ResponderRefused
	ResponderFailed
)

func (s ResponderState) String() string {
	switch s {
	case ResponderAwaitingRequest:
		return "awaiting_request"
	case ResponderProposing:
		return "proposing"
	case ResponderAwaitingDecision:
		return "awaiting_decision"
	case ResponderSettling:
		return "settling"
	case ResponderDone:
		return "done"
	case ResponderRefused:
		return "refused"
	case ResponderFailed:
		return "failed"
	default:
		return fmt.Sprintf("responder_state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s ResponderState) Terminal() bool {
	return s == ResponderDone || s == ResponderRefused || s == ResponderFailed
}

// Responder answers calls for proposals. Register it with a dispatcher via
// Register; each incoming request runs its own state machine.
type Responder struct {
	env  Env
	opts Options
}

// NewResponder creates a responder over env.
func NewResponder(env Env, optFns ...func(o *Options)) *Responder {
	return &Responder{env: env, opts: buildOptions(optFns)}
}

// Register installs the responder as the cfp handler of d.
func (rs *Responder) Register(d *dispatch.Dispatcher) {
	d.Handle(core.PerformativeCFP, func(ctx context.Context, conv *dispatch.Conversation, first core.Envelope) {
		rs.Serve(ctx, conv, first)
	})
}

type sellRound struct {
	rs     *Responder
	logger logging.Logger
	conv   *dispatch.Conversation
	buyer  string
	state  ResponderState

	request  core.Envelope
	proposal core.ProposalSet
	lastIn   core.Envelope
	selected core.Offer

	result Result
}

// Serve runs one seller round for the request first on conv.
func (rs *Responder) Serve(ctx context.Context, conv *dispatch.Conversation, first core.Envelope) Result {
	start := time.Now()
	r := &sellRound{
		rs:      rs,
		logger:  conversationLogger(rs.opts.Logger, conv.Self(), conv.ID()),
		conv:    conv,
		buyer:   first.Sender,
		state:   ResponderAwaitingRequest,
		request: first,
		lastIn:  first,
		result: Result{
			Role:           RoleResponder,
			ConversationID: conv.ID(),
			Counterparty:   first.Sender,
			Outcome:        core.OutcomeNoDeal,
		},
	}

	for !r.state.Terminal() {
		var next ResponderState
		switch r.state {
		case ResponderAwaitingRequest:
			next = r.evaluate(ctx)
		case ResponderProposing:
			next = r.propose(ctx)
		case ResponderAwaitingDecision:
			next = r.awaitDecision(ctx)
		case ResponderSettling:
			next = r.settle(ctx)
		default:
			next = r.fail(ctx, fmt.Errorf("unexpected state %s", r.state), "")
		}
		r.transition(next)
	}

	r.result.Duration = time.Since(start)
	logRound(r.logger, r.result)
	if rs.opts.OnResult != nil {
		rs.opts.OnResult(r.result)
	}
	return r.result
}

func (r *sellRound) transition(to ResponderState) {
	logTransition(r.logger, RoleResponder, r.state.String(), to.String())
	r.state = to
}

// fail ends the round. A non-empty reason is sent to the buyer as failure.
func (r *sellRound) fail(ctx context.Context, err error, reason string) ResponderState {
	if reason != "" {
		r.reply(ctx, core.Failure{Reason: reason}, time.Time{})
	}
	r.result.Outcome = core.OutcomeFailed
	r.result.Err = err
	return ResponderFailed
}

// evaluate decodes the request and runs the offer generator against the
// current snapshot.
func (r *sellRound) evaluate(ctx context.Context) ResponderState {
	req, err := codec.Expect[core.Request](r.conv.Codec(), r.request)
	if err != nil {
		r.reply(ctx, core.NotUnderstood{Reason: err.Error()}, time.Time{})
		r.result.Outcome = core.OutcomeFailed
		r.result.Err = err
		return ResponderFailed
	}
	if len(req.BookNames) > 0 {
		r.result.Book = req.BookNames[0]
	}

	snap := r.rs.env.State.Snapshot()
	set, err := Generate(r.rs.env.Valuation, snap, req.BookNames)
	switch {
	case errors.Is(err, core.ErrInfeasible):
		r.reply(ctx, core.Refusal{Reason: err.Error()}, time.Time{})
		r.result.Outcome = core.OutcomeRefused
		return ResponderRefused
	case err != nil:
		return r.fail(ctx, err, err.Error())
	}
	r.proposal = set
	return ResponderProposing
}

func (r *sellRound) propose(ctx context.Context) ResponderState {
	if err := r.conv.Reply(ctx, r.request, r.proposal, deadline(r.rs.opts.DecisionTimeout)); err != nil {
		return r.fail(ctx, err, "")
	}
	return ResponderAwaitingDecision
}

// awaitDecision waits for the buyer's accept or reject. An accepted offer
// must match one we proposed and the books we offered must still be ours.
func (r *sellRound) awaitDecision(ctx context.Context) ResponderState {
	wctx, cancel := context.WithTimeout(ctx, r.rs.opts.DecisionTimeout)
	defer cancel()

	for {
		env, err := r.conv.Recv(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx, ctx.Err(), "")
			}
			return r.fail(ctx, err, "")
		}
		if env.Sender != r.buyer {
			continue
		}
		r.lastIn = env

		msg, err := r.conv.Decode(env)
		if err != nil {
			r.reply(ctx, core.NotUnderstood{Reason: err.Error()}, time.Time{})
			return r.fail(ctx, err, "")
		}
		switch m := msg.(type) {
		case core.Rejection:
			r.result.Outcome = core.OutcomeNoDeal
			return ResponderDone
		case core.Selection:
			if !r.proposed(m.Offer) {
				return r.fail(ctx, fmt.Errorf("%w: selection does not match any proposed offer", core.ErrNotUnderstood), "selection does not match any proposed offer")
			}
			if !r.stillHeld() {
				return r.fail(ctx, fmt.Errorf("%w: offered books no longer held", core.ErrBookNotOwned), "offered books no longer held")
			}
			r.selected = m.Offer
			r.result.Offer = m.Offer
			return ResponderSettling
		default:
			r.reply(ctx, core.NotUnderstood{Reason: "unexpected " + m.Type()}, time.Time{})
			return r.fail(ctx, fmt.Errorf("%w: unexpected %s", core.ErrNotUnderstood, m.Type()), "")
		}
	}
}

func (r *sellRound) proposed(offer core.Offer) bool {
	for _, o := range r.proposal.Offers {
		if o.SameTerms(offer) {
			return true
		}
	}
	return false
}

func (r *sellRound) stillHeld() bool {
	snap := r.rs.env.State.Snapshot()
	for _, want := range r.proposal.WillSell {
		held := false
		for _, b := range snap.Inventory {
			if b == want {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	return true
}

// settle submits the seller's half, then informs the buyer.
func (r *sellRound) settle(ctx context.Context) ResponderState {
	tx := core.TransactionRequest{
		Sender:         r.conv.Self(),
		Receiver:       r.buyer,
		ConversationID: r.conv.ID(),
		SendingBooks:   r.proposal.WillSell,
		ReceivingBooks: r.selected.Books,
		ReceivingMoney: r.selected.Money,
	}
	if _, err := r.rs.env.Settler.Settle(ctx, tx); err != nil {
		return r.fail(ctx, err, err.Error())
	}
	r.reply(ctx, core.Completion{}, time.Time{})
	r.result.Outcome = core.OutcomeTraded
	r.logger.Info("sold", "books", core.BookNames(r.proposal.WillSell), "to", r.buyer, "money", r.selected.Money.String())
	return ResponderDone
}

func (r *sellRound) reply(ctx context.Context, msg core.Message, replyBy time.Time) {
	if err := r.conv.Reply(ctx, r.lastIn, msg, replyBy); err != nil {
		r.logger.Warn("send failed", "to", r.buyer, "type", msg.Type(), "error", err)
	}
}
