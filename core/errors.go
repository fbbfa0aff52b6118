package core

import "errors"

var (
	// ErrNotUnderstood marks malformed or unrecognised message content.
	ErrNotUnderstood = errors.New("not understood")

	// ErrInfeasible is returned when the requested books or money cannot be
	// provided from the current Agent State.
	ErrInfeasible = errors.New("infeasible")

	// ErrTimeout is returned when no response arrives before a deadline.
	ErrTimeout = errors.New("timeout")

	// ErrSettlementFailure is returned when the settlement authority rejects
	// a transaction or cannot be reached.
	ErrSettlementFailure = errors.New("settlement failure")

	// ErrTransportFailure wraps delivery-layer errors.
	ErrTransportFailure = errors.New("transport failure")

	// ErrUnknownBook is returned for book names missing from the catalog.
	ErrUnknownBook = errors.New("unknown book")

	// ErrBookNotOwned is returned by an authority when a sender does not
	// (or no longer) own a book it tries to send.
	ErrBookNotOwned = errors.New("book not owned")

	// ErrInsufficientFunds is returned by an authority on overdraft.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownAgent is returned for agent ids an authority or transport
	// does not know.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrConversationExists is returned when opening a conversation id that
	// is already active.
	ErrConversationExists = errors.New("conversation already exists")

	// ErrClosed is returned by operations on closed transports or
	// conversations.
	ErrClosed = errors.New("closed")
)
