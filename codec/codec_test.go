package codec

import (
	"testing"

	"github.com/hupe1980/booktrader/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CompilesEmbeddedSchemas(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Len(t, c.bodies, len(decoders))
}

func TestEncodeDecode_ProposalSet(t *testing.T) {
	c := Default()
	in := core.ProposalSet{
		WillSell: []core.Book{{Name: "Dune", ID: "d1"}},
		Offers: []core.Offer{
			{Money: decimal.NewFromInt(80)},
			{Books: []core.Book{{Name: "Foundation"}}, Money: decimal.Zero},
		},
	}

	payload, err := c.Encode(in)
	require.NoError(t, err)

	msg, err := c.Decode(payload)
	require.NoError(t, err)
	out, ok := msg.(core.ProposalSet)
	require.True(t, ok)
	assert.Equal(t, in.WillSell, out.WillSell)
	require.Len(t, out.Offers, 2)
	assert.True(t, out.Offers[0].Money.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "Foundation", out.Offers[1].Books[0].Name)
}

func TestDecode_RejectsMalformedContent(t *testing.T) {
	c := Default()
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `{nope`},
		{"unknown type", `{"type":"gossip","body":{}}`},
		{"missing body", `{"type":"request"}`},
		{"request without names", `{"type":"request","body":{"book_names":[]}}`},
		{"negative money", `{"type":"selection","body":{"offer":{"money":"-5"}}}`},
		{"proposal without offers", `{"type":"proposal_set","body":{"will_sell":[],"offers":[]}}`},
		{"book without name", `{"type":"proposal_set","body":{"will_sell":[{"id":"x"}],"offers":[{"money":1}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, core.ErrNotUnderstood)
		})
	}
}

func TestDecode_AcceptsNumericMoney(t *testing.T) {
	msg, err := Default().Decode([]byte(`{"type":"selection","body":{"offer":{"money":12.5}}}`))
	require.NoError(t, err)
	sel := msg.(core.Selection)
	assert.True(t, sel.Offer.Money.Equal(decimal.RequireFromString("12.5")))
}

func TestDecodeEnvelope_PerformativeMismatch(t *testing.T) {
	c := Default()
	env, err := c.NewEnvelope("conv", "alice", []string{"bob"}, core.Request{BookNames: []string{"Dune"}})
	require.NoError(t, err)
	assert.Equal(t, core.PerformativeCFP, env.Performative)

	req, err := Expect[core.Request](c, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, req.BookNames)

	_, err = Expect[core.Selection](c, env)
	assert.ErrorIs(t, err, core.ErrNotUnderstood)

	env.Performative = core.PerformativePropose
	_, err = c.DecodeEnvelope(env)
	assert.ErrorIs(t, err, core.ErrNotUnderstood)
}

func TestReply(t *testing.T) {
	c := Default()
	env, err := c.NewEnvelope("conv", "alice", []string{"bob"}, core.Request{BookNames: []string{"Dune"}})
	require.NoError(t, err)

	r, err := c.Reply(env, core.Refusal{Reason: "not held"})
	require.NoError(t, err)
	assert.Equal(t, core.PerformativeRefuse, r.Performative)
	assert.Equal(t, []string{"alice"}, r.Receivers)
	assert.Equal(t, "conv", r.ConversationID)

	msg, err := c.DecodeEnvelope(r)
	require.NoError(t, err)
	assert.Equal(t, core.Refusal{Reason: "not held"}, msg)
}

func TestSettlementMessages(t *testing.T) {
	c := Default()
	tx := core.TransactionRequest{
		Sender:         "a",
		Receiver:       "b",
		ConversationID: "c",
		SendingBooks:   []core.Book{{Name: "Dune", ID: "1"}},
		SendingMoney:   decimal.Zero,
		ReceivingMoney: decimal.NewFromInt(40),
	}
	payload, err := c.Encode(core.SubmitTransaction{Transaction: tx})
	require.NoError(t, err)

	msg, err := c.Decode(payload)
	require.NoError(t, err)
	got := msg.(core.SubmitTransaction).Transaction
	assert.Equal(t, tx.SendingBooks, got.SendingBooks)
	assert.True(t, got.ReceivingMoney.Equal(decimal.NewFromInt(40)))
	assert.Nil(t, got.ReceivingBooks)
}
