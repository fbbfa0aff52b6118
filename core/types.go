package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Roles advertised in the Directory.
const (
	RoleTrading    = "trading"
	RoleSettlement = "settlement"
)

// Book identifies one copy of a catalogued title. Name is the catalog key;
// ID is the instance identifier assigned once the book is owned and is empty
// when a book is referenced by name only (e.g. inside a Request).
type Book struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// String returns name#id (or just the name for unresolved books).
func (b Book) String() string {
	if b.ID == "" {
		return b.Name
	}
	return b.Name + "#" + b.ID
}

// Goal pairs a desired book name with the value the agent assigns to owning it.
type Goal struct {
	Book  string          `json:"book"`
	Value decimal.Decimal `json:"value"`
}

// Offer is one alternative exchange unit: the books the proposer wants from
// the counterparty plus a requested amount of money (never negative).
type Offer struct {
	Books []Book          `json:"books,omitempty"`
	Money decimal.Decimal `json:"money"`
}

// SameTerms reports whether two offers ask for the same money and the same
// multiset of book names. Instance ids are ignored because the buyer resolves
// them against its own inventory before echoing the offer back.
func (o Offer) SameTerms(other Offer) bool {
	if !o.Money.Equal(other.Money) || len(o.Books) != len(other.Books) {
		return false
	}
	a, b := BookNames(o.Books), BookNames(other.Books)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the offer.
func (o Offer) Clone() Offer {
	return Offer{Books: cloneBooks(o.Books), Money: o.Money}
}

// ProposalSet is a responder's answer to a Request: the books it will part
// with and independent alternative offers the requester may choose among.
type ProposalSet struct {
	WillSell []Book  `json:"will_sell"`
	Offers   []Offer `json:"offers"`
}

// TransactionRequest is one side's view of an agreed trade as submitted to
// the settlement authority.
type TransactionRequest struct {
	Sender         string          `json:"sender"`
	Receiver       string          `json:"receiver"`
	ConversationID string          `json:"conversation_id"`
	SendingBooks   []Book          `json:"sending_books"`
	SendingMoney   decimal.Decimal `json:"sending_money"`
	ReceivingBooks []Book          `json:"receiving_books"`
	ReceivingMoney decimal.Decimal `json:"receiving_money"`
}

// Validate performs the local sanity checks every submitted request must pass.
func (t TransactionRequest) Validate() error {
	if t.Sender == "" || t.Receiver == "" {
		return fmt.Errorf("transaction %s: sender and receiver are required", t.ConversationID)
	}
	if t.ConversationID == "" {
		return fmt.Errorf("transaction %s->%s: conversation id is required", t.Sender, t.Receiver)
	}
	if t.SendingMoney.IsNegative() || t.ReceivingMoney.IsNegative() {
		return fmt.Errorf("transaction %s: negative money amount", t.ConversationID)
	}
	return nil
}

// Confirmation acknowledges an applied (or previously applied) transaction.
type Confirmation struct {
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	AppliedAt      time.Time `json:"applied_at"`
	Duplicate      bool      `json:"duplicate,omitempty"`
}

// Snapshot is the Agent State: inventory, goals and money as last reported
// by the settlement authority. Snapshots are values; use Clone before
// handing one to code that may mutate it.
type Snapshot struct {
	AgentID   string          `json:"agent_id"`
	Inventory []Book          `json:"inventory"`
	Goals     []Goal          `json:"goals"`
	Money     decimal.Decimal `json:"money"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	goals := make([]Goal, len(s.Goals))
	copy(goals, s.Goals)
	return Snapshot{AgentID: s.AgentID, Inventory: cloneBooks(s.Inventory), Goals: goals, Money: s.Money}
}

// Holds reports whether the inventory contains at least one book named name.
func (s Snapshot) Holds(name string) bool {
	for _, b := range s.Inventory {
		if b.Name == name {
			return true
		}
	}
	return false
}

// Catalog is the public price list keyed by book name.
type Catalog map[string]decimal.Decimal

// Price returns the catalog price of the named book or ErrUnknownBook.
func (c Catalog) Price(name string) (decimal.Decimal, error) {
	p, ok := c[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownBook, name)
	}
	return p, nil
}

// BookNames returns the names of the given books preserving order.
func BookNames(books []Book) []string {
	names := make([]string, len(books))
	for i, b := range books {
		names[i] = b.Name
	}
	return names
}

// NewID generates a new unique identifier for conversations, envelopes and
// book instances.
func NewID() string { return uuid.NewString() }

func cloneBooks(books []Book) []Book {
	if books == nil {
		return nil
	}
	out := make([]Book, len(books))
	copy(out, books)
	return out
}
