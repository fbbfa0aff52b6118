package core

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffer_SameTerms(t *testing.T) {
	base := Offer{Books: []Book{{Name: "Dune", ID: "1"}, {Name: "Emma"}}, Money: decimal.NewFromInt(10)}

	tests := []struct {
		name  string
		other Offer
		want  bool
	}{
		{"ids ignored and order ignored", Offer{Books: []Book{{Name: "Emma", ID: "x"}, {Name: "Dune"}}, Money: decimal.RequireFromString("10.0")}, true},
		{"different money", Offer{Books: base.Books, Money: decimal.NewFromInt(11)}, false},
		{"missing book", Offer{Books: []Book{{Name: "Dune"}}, Money: decimal.NewFromInt(10)}, false},
		{"different name", Offer{Books: []Book{{Name: "Dune"}, {Name: "Ulysses"}}, Money: decimal.NewFromInt(10)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.SameTerms(tt.other))
		})
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	s := Snapshot{
		AgentID:   "a",
		Inventory: []Book{{Name: "Dune", ID: "1"}},
		Goals:     []Goal{{Book: "Emma", Value: decimal.NewFromInt(50)}},
		Money:     decimal.NewFromInt(100),
	}

	c := s.Clone()
	c.Inventory[0].Name = "changed"
	c.Goals[0].Book = "changed"

	assert.Equal(t, "Dune", s.Inventory[0].Name)
	assert.Equal(t, "Emma", s.Goals[0].Book)
	assert.True(t, s.Holds("Dune"))
	assert.False(t, s.Holds("Emma"))
}

func TestCatalog_Price(t *testing.T) {
	c := Catalog{"Dune": decimal.NewFromInt(100)}

	p, err := c.Price("Dune")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(100)))

	_, err = c.Price("Nope")
	assert.ErrorIs(t, err, ErrUnknownBook)
}

func TestTransactionRequest_Validate(t *testing.T) {
	ok := TransactionRequest{Sender: "a", Receiver: "b", ConversationID: "c"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.ConversationID = ""
	assert.Error(t, missing.Validate())

	negative := ok
	negative.SendingMoney = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())
}

func TestStateStore_ReplaceIsWholesale(t *testing.T) {
	store := NewStateStore(Snapshot{AgentID: "a", Money: decimal.NewFromInt(1)})
	assert.Equal(t, uint64(0), store.Version())

	read := store.Snapshot()
	read.Inventory = append(read.Inventory, Book{Name: "leak"})
	assert.Empty(t, store.Snapshot().Inventory)

	store.Replace(Snapshot{AgentID: "a", Inventory: []Book{{Name: "Dune", ID: "1"}}, Money: decimal.NewFromInt(2)})
	got := store.Snapshot()
	assert.Len(t, got.Inventory, 1)
	assert.True(t, got.Money.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, uint64(1), store.Version())
}

func TestStateStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := NewStateStore(Snapshot{AgentID: "a"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n%2 == 0 {
					store.Replace(Snapshot{
						AgentID:   "a",
						Inventory: []Book{{Name: "x"}, {Name: "y"}},
						Money:     decimal.NewFromInt(int64(j)),
					})
					continue
				}
				s := store.Snapshot()
				// Inventory is either the initial empty one or a full two-book one.
				assert.Contains(t, []int{0, 2}, len(s.Inventory))
			}
		}(i)
	}
	wg.Wait()
}

func TestEnvelope_ReplyAndExpiry(t *testing.T) {
	env := Envelope{ID: "e1", ConversationID: "c1", Sender: "buyer", Performative: PerformativeCFP, ReplyBy: time.Now().Add(time.Minute)}
	r := env.Reply(PerformativePropose, []byte(`{}`))

	assert.Equal(t, "c1", r.ConversationID)
	assert.Equal(t, []string{"buyer"}, r.Receivers)
	assert.Equal(t, "e1", r.InReplyTo)
	assert.NotEmpty(t, r.ID)

	assert.False(t, env.Expired(time.Now()))
	assert.True(t, env.Expired(time.Now().Add(2*time.Minute)))
	assert.False(t, r.Expired(time.Now().Add(time.Hour)))
}

func TestMessage_Performatives(t *testing.T) {
	tests := []struct {
		msg  Message
		typ  string
		perf Performative
	}{
		{Request{}, TypeRequest, PerformativeCFP},
		{ProposalSet{}, TypeProposalSet, PerformativePropose},
		{Refusal{}, TypeRefusal, PerformativeRefuse},
		{Selection{}, TypeSelection, PerformativeAcceptProposal},
		{Rejection{}, TypeRejection, PerformativeRejectProposal},
		{Completion{}, TypeCompletion, PerformativeInform},
		{SubmitTransaction{}, TypeSubmitTransaction, PerformativeRequest},
		{SnapshotResult{}, TypeSnapshotResult, PerformativeInform},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.typ, tt.msg.Type())
		assert.Equal(t, tt.perf, tt.msg.Performative())
	}
}
