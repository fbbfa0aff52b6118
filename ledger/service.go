package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/logging"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Logger logging.Logger
	// Timeout bounds each call into the authority.
	Timeout time.Duration
}

// Service answers settlement requests arriving through a dispatcher by
// delegating to a SettlementAuthority. Agents may submit only their own
// half of a transaction and fetch only their own snapshot.
type Service struct {
	authority core.SettlementAuthority
	logger    logging.Logger
	timeout   time.Duration
}

// NewService wraps authority.
func NewService(authority core.SettlementAuthority, optFns ...func(o *ServiceOptions)) *Service {
	opts := ServiceOptions{Logger: logging.NoOpLogger{}, Timeout: 5 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{
		authority: authority,
		logger:    logging.With(opts.Logger, "component", "settlement_service"),
		timeout:   opts.Timeout,
	}
}

// Register installs the service as d's handler for request envelopes.
func (s *Service) Register(d *dispatch.Dispatcher) {
	d.Handle(core.PerformativeRequest, s.handle)
}

func (s *Service) handle(ctx context.Context, conv *dispatch.Conversation, first core.Envelope) {
	msg, err := conv.Decode(first)
	if err != nil {
		s.reply(ctx, conv, first, core.NotUnderstood{Reason: err.Error()})
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch m := msg.(type) {
	case core.SubmitTransaction:
		if m.Transaction.Sender != first.Sender {
			s.reply(ctx, conv, first, core.Failure{Reason: "transaction sender does not match envelope sender"})
			return
		}
		conf, err := s.authority.SubmitTransaction(callCtx, m.Transaction)
		if err != nil {
			s.reply(ctx, conv, first, core.Failure{Reason: err.Error()})
			return
		}
		s.reply(ctx, conv, first, core.TransactionConfirmed{Confirmation: conf})
	case core.FetchSnapshot:
		agentID := m.AgentID
		if agentID == "" {
			agentID = first.Sender
		}
		if agentID != first.Sender {
			s.reply(ctx, conv, first, core.Failure{Reason: "agents may only fetch their own snapshot"})
			return
		}
		snap, err := s.authority.FetchAgentSnapshot(callCtx, agentID)
		if err != nil {
			s.reply(ctx, conv, first, core.Failure{Reason: err.Error()})
			return
		}
		s.reply(ctx, conv, first, core.SnapshotResult{Snapshot: snap})
	default:
		s.reply(ctx, conv, first, core.NotUnderstood{Reason: "unsupported request " + msg.Type()})
	}
}

func (s *Service) reply(ctx context.Context, conv *dispatch.Conversation, in core.Envelope, msg core.Message) {
	if err := conv.Reply(ctx, in, msg, time.Time{}); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("settlement reply failed", "conversation_id", conv.ID(), "to", in.Sender, "error", err)
	}
}
