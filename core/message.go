package core

// Message is the closed set of content variants carried by an Envelope.
// Each variant reports its wire type tag and the performative it travels
// with; the unexported marker keeps the set closed to this package.
type Message interface {
	Type() string
	Performative() Performative
	isMessage()
}

// Wire type tags.
const (
	TypeRequest              = "request"
	TypeProposalSet          = "proposal_set"
	TypeRefusal              = "refusal"
	TypeSelection            = "selection"
	TypeRejection            = "rejection"
	TypeCompletion           = "completion"
	TypeFailure              = "failure"
	TypeNotUnderstood        = "not_understood"
	TypeSubmitTransaction    = "submit_transaction"
	TypeFetchSnapshot        = "fetch_snapshot"
	TypeTransactionConfirmed = "transaction_confirmed"
	TypeSnapshotResult       = "snapshot_result"
)

// Request is the call for proposals naming the wanted books.
type Request struct {
	BookNames []string `json:"book_names"`
}

// Refusal is a responder's bare refusal to propose.
type Refusal struct {
	Reason string `json:"reason,omitempty"`
}

// Selection echoes the chosen Offer back to the winning responder.
type Selection struct {
	Offer Offer `json:"offer"`
}

// Rejection tells a non-chosen responder the round is over for it.
type Rejection struct{}

// Completion informs the counterparty that this side's settlement succeeded.
type Completion struct{}

// Failure reports that a round was aborted by the sender.
type Failure struct {
	Reason string `json:"reason"`
}

// NotUnderstood answers content that could not be decoded or dispatched.
type NotUnderstood struct {
	Reason string `json:"reason"`
}

// SubmitTransaction asks the settlement authority to apply a transaction.
type SubmitTransaction struct {
	Transaction TransactionRequest `json:"transaction"`
}

// FetchSnapshot asks the settlement authority for an agent's state.
type FetchSnapshot struct {
	AgentID string `json:"agent_id"`
}

// TransactionConfirmed carries the authority's confirmation.
type TransactionConfirmed struct {
	Confirmation Confirmation `json:"confirmation"`
}

// SnapshotResult carries an agent's state as recorded by the authority.
type SnapshotResult struct {
	Snapshot Snapshot `json:"snapshot"`
}

func (Request) Type() string              { return TypeRequest }
func (ProposalSet) Type() string          { return TypeProposalSet }
func (Refusal) Type() string              { return TypeRefusal }
func (Selection) Type() string            { return TypeSelection }
func (Rejection) Type() string            { return TypeRejection }
func (Completion) Type() string           { return TypeCompletion }
func (Failure) Type() string              { return TypeFailure }
func (NotUnderstood) Type() string        { return TypeNotUnderstood }
func (SubmitTransaction) Type() string    { return TypeSubmitTransaction }
func (FetchSnapshot) Type() string        { return TypeFetchSnapshot }
func (TransactionConfirmed) Type() string { return TypeTransactionConfirmed }
func (SnapshotResult) Type() string       { return TypeSnapshotResult }

func (Request) Performative() Performative              { return PerformativeCFP }
func (ProposalSet) Performative() Performative          { return PerformativePropose }
func (Refusal) Performative() Performative              { return PerformativeRefuse }
func (Selection) Performative() Performative            { return PerformativeAcceptProposal }
func (Rejection) Performative() Performative            { return PerformativeRejectProposal }
func (Completion) Performative() Performative           { return PerformativeInform }
func (Failure) Performative() Performative              { return PerformativeFailure }
func (NotUnderstood) Performative() Performative        { return PerformativeNotUnderstood }
func (SubmitTransaction) Performative() Performative    { return PerformativeRequest }
func (FetchSnapshot) Performative() Performative        { return PerformativeRequest }
func (TransactionConfirmed) Performative() Performative { return PerformativeInform }
func (SnapshotResult) Performative() Performative       { return PerformativeInform }

func (Request) isMessage()              {}
func (ProposalSet) isMessage()          {}
func (Refusal) isMessage()              {}
func (Selection) isMessage()            {}
func (Rejection) isMessage()            {}
func (Completion) isMessage()           {}
func (Failure) isMessage()              {}
func (NotUnderstood) isMessage()        {}
func (SubmitTransaction) isMessage()    {}
func (FetchSnapshot) isMessage()        {}
func (TransactionConfirmed) isMessage() {}
func (SnapshotResult) isMessage()       {}
