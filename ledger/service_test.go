package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/dispatch"
	"github.com/hupe1980/booktrader/transport"
)

func startService(t *testing.T) (*InMemoryLedger, *dispatch.Dispatcher, *transport.Endpoint) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	net := transport.NewNetwork()
	l := NewInMemoryLedger()
	openPair(t, l)

	svcEP, err := net.Join("ledger", core.RoleSettlement)
	require.NoError(t, err)
	svcD, err := dispatch.New(svcEP)
	require.NoError(t, err)
	NewService(l).Register(svcD)

	buyerEP, err := net.Join("buyer", core.RoleTrading)
	require.NoError(t, err)
	buyerD, err := dispatch.New(buyerEP)
	require.NoError(t, err)

	go func() { _ = svcD.Run(ctx) }()
	go func() { _ = buyerD.Run(ctx) }()
	return l, buyerD, buyerEP
}

func call(t *testing.T, d *dispatch.Dispatcher, msg core.Message) core.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conv, err := d.OpenNew()
	require.NoError(t, err)
	defer conv.Close()

	require.NoError(t, conv.Send(ctx, msg, time.Time{}, "ledger"))
	env, err := conv.Recv(ctx)
	require.NoError(t, err)
	reply, err := conv.Decode(env)
	require.NoError(t, err)
	return reply
}

func TestService_FetchOwnSnapshot(t *testing.T) {
	_, buyer, _ := startService(t)

	reply := call(t, buyer, core.FetchSnapshot{})
	res, ok := reply.(core.SnapshotResult)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, "buyer", res.Snapshot.AgentID)
	assert.True(t, res.Snapshot.Money.Equal(dec(50)))

	reply = call(t, buyer, core.FetchSnapshot{AgentID: "seller"})
	assert.IsType(t, core.Failure{}, reply)
}

func TestService_SubmitTransaction(t *testing.T) {
	l, buyer, _ := startService(t)
	seller, err := l.FetchAgentSnapshot(context.Background(), "seller")
	require.NoError(t, err)
	sellerHalf, buyerHalf := halves("c1", seller, core.Snapshot{}, 40)

	reply := call(t, buyer, core.SubmitTransaction{Transaction: buyerHalf})
	conf, ok := reply.(core.TransactionConfirmed)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, "c1", conf.Confirmation.ConversationID)

	// Submitting the counterparty's half is refused.
	reply = call(t, buyer, core.SubmitTransaction{Transaction: sellerHalf})
	assert.IsType(t, core.Failure{}, reply)
}

func TestService_WrongContent(t *testing.T) {
	_, buyer, ep := startService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conv, err := buyer.OpenNew()
	require.NoError(t, err)
	defer conv.Close()

	// cfp content inside a request envelope.
	env, err := codec.Default().NewEnvelope(conv.ID(), "buyer", []string{"ledger"}, core.Request{BookNames: []string{"Dune"}})
	require.NoError(t, err)
	env.Performative = core.PerformativeRequest
	require.NoError(t, ep.Send(ctx, env))

	got, err := conv.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PerformativeNotUnderstood, got.Performative)
}
