package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/logging"
)

// InitiatorState enumerates the buyer-side protocol states.
type InitiatorState int

const (
	InitiatorIdle InitiatorState = iota
	InitiatorRequesting
	InitiatorCollectingOffers
	InitiatorDeciding
	InitiatorAwaitingConfirmation
	InitiatorSettling
	InitiatorDone
	InitiatorFailed
)

func (s InitiatorState) String() string {
	switch s {
	case InitiatorIdle:
		return "idle"
	case InitiatorRequesting:
		return "requesting"
	case InitiatorCollectingOffers:
		return "collecting_offers"
	case InitiatorDeciding:
		return "deciding"
	case InitiatorAwaitingConfirmation:
		return "awaiting_confirmation"
	case InitiatorSettling:
		return "settling"
	case InitiatorDone:
		return "done"
	case InitiatorFailed:
		return "failed"
	default:
		return fmt.Sprintf("initiator_state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s InitiatorState) Terminal() bool { return s == InitiatorDone || s == InitiatorFailed }

// Initiator runs buyer rounds. One Initiator serves any number of
// concurrent rounds; each Negotiate call owns its own state machine.
type Initiator struct {
	env  Env
	opts Options
}

// NewInitiator creates an initiator over env.
func NewInitiator(env Env, optFns ...func(o *Options)) *Initiator {
	return &Initiator{env: env, opts: buildOptions(optFns)}
}

// buyRound is the per-round state of the buyer state machine.
type buyRound struct {
	in     *Initiator
	logger logging.Logger
	book   string
	state  InitiatorState

	conv      *dispatch.Conversation
	replyBy   time.Time
	awaiting  map[string]bool
	proposals []Proposal
	choice    Choice

	result Result
}

// Negotiate runs one complete round for the named book and returns its
// result. Failures are reported in the result, never panicked or
// propagated beyond the round.
func (in *Initiator) Negotiate(ctx context.Context, book string) Result {
	start := time.Now()
	r := &buyRound{
		in:     in,
		book:   book,
		state:  InitiatorIdle,
		logger: in.opts.Logger,
		result: Result{Role: RoleInitiator, Book: book, Outcome: core.OutcomeNoDeal},
	}
	defer func() {
		if r.conv != nil {
			r.conv.Close()
		}
	}()

	r.transition(InitiatorRequesting)
	for !r.state.Terminal() {
		var next InitiatorState
		switch r.state {
		case InitiatorRequesting:
			next = r.request(ctx)
		case InitiatorCollectingOffers:
			next = r.collect(ctx)
		case InitiatorDeciding:
			next = r.decide(ctx)
		case InitiatorAwaitingConfirmation:
			next = r.awaitConfirmation(ctx)
		case InitiatorSettling:
			next = r.settle(ctx)
		default:
			next = r.fail(fmt.Errorf("unexpected state %s", r.state))
		}
		r.transition(next)
	}

	r.result.Duration = time.Since(start)
	logRound(r.logger, r.result)
	if in.opts.OnResult != nil {
		in.opts.OnResult(r.result)
	}
	return r.result
}

func (r *buyRound) transition(to InitiatorState) {
	logTransition(r.logger, RoleInitiator, r.state.String(), to.String())
	r.state = to
}

func (r *buyRound) fail(err error) InitiatorState {
	r.result.Outcome = core.OutcomeFailed
	r.result.Err = err
	return InitiatorFailed
}

func (r *buyRound) noDeal() InitiatorState {
	r.result.Outcome = core.OutcomeNoDeal
	return InitiatorDone
}

// request opens the conversation and sends the call for proposals to every
// trading peer except ourselves.
func (r *buyRound) request(ctx context.Context) InitiatorState {
	d := r.in.env.Dispatcher
	peers, err := r.in.env.Directory.FindPeers(ctx, core.RoleTrading)
	if err != nil {
		return r.fail(fmt.Errorf("%w: find peers: %w", core.ErrTransportFailure, err))
	}

	conv, err := d.OpenNew()
	if err != nil {
		return r.fail(err)
	}
	r.conv = conv
	r.result.ConversationID = conv.ID()
	r.logger = conversationLogger(r.in.opts.Logger, d.ID(), conv.ID())

	r.replyBy = deadline(r.in.opts.ResponseTimeout)
	r.awaiting = make(map[string]bool)
	var lastErr error
	for _, p := range peers {
		if p == d.ID() {
			continue
		}
		if err := conv.Send(ctx, core.Request{BookNames: []string{r.book}}, r.replyBy, p); err != nil {
			r.logger.Warn("request not delivered", "peer", p, "error", err)
			lastErr = err
			continue
		}
		r.awaiting[p] = true
	}

	if len(r.awaiting) == 0 {
		if lastErr != nil {
			return r.fail(lastErr)
		}
		return r.noDeal()
	}
	return InitiatorCollectingOffers
}

// collect gathers proposal sets until every peer answered or the window
// closes. Refusals, failures and malformed answers drop the peer.
func (r *buyRound) collect(ctx context.Context) InitiatorState {
	wctx, cancel := context.WithDeadline(ctx, r.replyBy)
	defer cancel()

	for len(r.awaiting) > 0 {
		env, err := r.conv.Recv(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx.Err())
			}
			if errors.Is(err, core.ErrTimeout) {
				r.logger.Debug("collection window closed", "missing", len(r.awaiting))
				break
			}
			return r.fail(err)
		}
		if !r.awaiting[env.Sender] {
			r.logger.Debug("ignoring envelope", "from", env.Sender, "performative", env.Performative)
			continue
		}
		delete(r.awaiting, env.Sender)

		msg, err := r.conv.Decode(env)
		if err != nil {
			r.replyNotUnderstood(ctx, env, err)
			continue
		}
		switch m := msg.(type) {
		case core.ProposalSet:
			r.proposals = append(r.proposals, Proposal{Proposer: env.Sender, Set: m})
		case core.Refusal, core.Failure, core.NotUnderstood:
			r.logger.Debug("peer declined", "from", env.Sender, "type", m.Type())
		default:
			r.replyNotUnderstood(ctx, env, fmt.Errorf("%w: unexpected %s", core.ErrNotUnderstood, m.Type()))
		}
	}

	if len(r.proposals) == 0 {
		return r.noDeal()
	}
	return InitiatorDeciding
}

// decide picks the winner against a fresh snapshot. Without a positive
// utility every proposer is rejected.
func (r *buyRound) decide(ctx context.Context) InitiatorState {
	snap := r.in.env.State.Snapshot()
	choice, ok := Select(r.in.env.Valuation, snap, r.proposals)
	if !ok {
		for _, p := range r.proposals {
			r.send(ctx, core.Rejection{}, time.Time{}, p.Proposer)
		}
		return r.noDeal()
	}
	r.choice = choice
	r.result.Counterparty = choice.Proposer
	r.result.Offer = choice.Offer
	return InitiatorAwaitingConfirmation
}

// awaitConfirmation accepts the winner, rejects the others and waits for
// the winner's completion.
func (r *buyRound) awaitConfirmation(ctx context.Context) InitiatorState {
	replyBy := deadline(r.in.opts.ConfirmationTimeout)
	if err := r.conv.Send(ctx, core.Selection{Offer: r.choice.Offer}, replyBy, r.choice.Proposer); err != nil {
		r.rejectLosers(ctx)
		return r.fail(err)
	}
	r.rejectLosers(ctx)

	wctx, cancel := context.WithDeadline(ctx, replyBy)
	defer cancel()
	for {
		env, err := r.conv.Recv(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx.Err())
			}
			return r.fail(err)
		}
		if env.Sender != r.choice.Proposer {
			continue
		}
		msg, err := r.conv.Decode(env)
		if err != nil {
			return r.fail(err)
		}
		switch m := msg.(type) {
		case core.Completion:
			return InitiatorSettling
		case core.Failure:
			return r.fail(fmt.Errorf("%w: seller aborted: %s", core.ErrSettlementFailure, m.Reason))
		case core.NotUnderstood:
			return r.fail(fmt.Errorf("%w: %s", core.ErrNotUnderstood, m.Reason))
		default:
			return r.fail(fmt.Errorf("%w: unexpected %s", core.ErrNotUnderstood, m.Type()))
		}
	}
}

func (r *buyRound) rejectLosers(ctx context.Context) {
	for _, p := range r.proposals {
		if p.Proposer != r.choice.Proposer {
			r.send(ctx, core.Rejection{}, time.Time{}, p.Proposer)
		}
	}
}

// settle submits the buyer's half: the resolved books and money we give,
// the seller's books we receive.
func (r *buyRound) settle(ctx context.Context) InitiatorState {
	tx := core.TransactionRequest{
		Sender:         r.in.env.Dispatcher.ID(),
		Receiver:       r.choice.Proposer,
		ConversationID: r.conv.ID(),
		SendingBooks:   r.choice.Offer.Books,
		SendingMoney:   r.choice.Offer.Money,
		ReceivingBooks: r.choice.WillSell,
	}
	if _, err := r.in.env.Settler.Settle(ctx, tx); err != nil {
		return r.fail(err)
	}
	r.result.Outcome = core.OutcomeTraded
	r.logger.Info("bought", "book", r.book, "from", r.choice.Proposer, "money", r.choice.Offer.Money.String(), "utility", r.choice.Utility.String())
	return InitiatorDone
}

func (r *buyRound) send(ctx context.Context, msg core.Message, replyBy time.Time, to string) {
	if err := r.conv.Send(ctx, msg, replyBy, to); err != nil {
		r.logger.Warn("send failed", "to", to, "type", msg.Type(), "error", err)
	}
}

func (r *buyRound) replyNotUnderstood(ctx context.Context, env core.Envelope, cause error) {
	r.logger.Warn("dropping malformed answer", "from", env.Sender, "error", cause)
	if err := r.conv.Reply(ctx, env, core.NotUnderstood{Reason: cause.Error()}, time.Time{}); err != nil {
		r.logger.Warn("send failed", "to", env.Sender, "error", err)
	}
}
