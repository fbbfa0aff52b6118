package negotiation

import (
	"time"

	"github.com/hupe1980/booktrader/logging"
)

func conversationLogger(l logging.Logger, agentID, conversationID string) logging.Logger {
	if tl, ok := l.(*logging.TraderLogger); ok {
		return tl.WithConversation(agentID, conversationID)
	}
	return logging.With(l, "agent_id", agentID, "conversation_id", conversationID)
}

func logTransition(l logging.Logger, role, from, to string) {
	if tl, ok := l.(*logging.TraderLogger); ok {
		tl.LogTransition(role, from, to)
		return
	}
	l.Debug("state transition", "role", role, "from", from, "to", to)
}

func logRound(l logging.Logger, r Result) {
	if tl, ok := l.(*logging.TraderLogger); ok {
		tl.LogRound(r.Role, r.Outcome.String(), r.Duration, r.Err)
		return
	}
	args := []any{"role", r.Role, "outcome", r.Outcome.String(), "duration_ms", r.Duration.Milliseconds()}
	if r.Err != nil {
		l.Warn("round finished", append(args, "error", r.Err)...)
		return
	}
	l.Debug("round finished", args...)
}

func deadline(d time.Duration) time.Time { return time.Now().Add(d) }
