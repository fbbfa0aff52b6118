package core

import "context"

// Transport delivers envelopes between agents. Implementations set no
// ordering guarantee across senders; delivery errors wrap ErrTransportFailure.
type Transport interface {
	// ID returns the local agent id envelopes are delivered to.
	ID() string
	// Send delivers env to every receiver listed in it.
	Send(ctx context.Context, env Envelope) error
	// Receive returns the inbound envelope stream. It is closed when the
	// transport closes.
	Receive() <-chan Envelope
	// Close releases the transport.
	Close() error
}

// Directory locates peers by advertised role.
type Directory interface {
	FindPeers(ctx context.Context, role string) ([]string, error)
}

// SettlementAuthority is the external system of record that executes agreed
// trades and owns every agent's inventory and money. It must reject
// double-spent books and apply each (conversation id, sender) pair at most
// once.
type SettlementAuthority interface {
	SubmitTransaction(ctx context.Context, tx TransactionRequest) (Confirmation, error)
	FetchAgentSnapshot(ctx context.Context, agentID string) (Snapshot, error)
}
