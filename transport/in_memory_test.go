package transport

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/booktrader/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var (
	_ core.Transport = (*Endpoint)(nil)
	_ core.Directory = (*Network)(nil)
)

func TestNetwork_SendAndReceive(t *testing.T) {
	n := NewNetwork()
	alice, err := n.Join("alice", core.RoleTrading)
	require.NoError(t, err)
	bob, err := n.Join("bob", core.RoleTrading)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = alice.Send(ctx, core.Envelope{ID: "e1", ConversationID: "c1", Performative: core.PerformativeCFP, Sender: "spoofed", Receivers: []string{"bob"}})
	require.NoError(t, err)

	select {
	case env := <-bob.Receive():
		assert.Equal(t, "e1", env.ID)
		assert.Equal(t, "alice", env.Sender)
	case <-ctx.Done():
		t.Fatal("envelope not delivered")
	}
}

func TestNetwork_FindPeers(t *testing.T) {
	n := NewNetwork()
	_, _ = n.Join("carol", core.RoleTrading)
	_, _ = n.Join("alice", core.RoleTrading)
	env, _ := n.Join("env", core.RoleSettlement)

	peers, err := n.FindPeers(context.Background(), core.RoleTrading)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, peers)

	require.NoError(t, env.Close())
	peers, err = n.FindPeers(context.Background(), core.RoleSettlement)
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestNetwork_Errors(t *testing.T) {
	n := NewNetwork(func(o *NetworkOptions) { o.InboxSize = 1 })
	alice, _ := n.Join("alice")
	_, err := n.Join("alice")
	assert.Error(t, err)

	err = alice.Send(context.Background(), core.Envelope{ID: "x", Receivers: []string{"ghost"}})
	assert.ErrorIs(t, err, core.ErrTransportFailure)
	assert.ErrorIs(t, err, core.ErrUnknownAgent)

	err = alice.Send(context.Background(), core.Envelope{ID: "x"})
	assert.ErrorIs(t, err, core.ErrTransportFailure)

	bob, _ := n.Join("bob")
	require.NoError(t, alice.Send(context.Background(), core.Envelope{ID: "1", Receivers: []string{"bob"}}))

	// Inbox full: send blocks until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = alice.Send(ctx, core.Envelope{ID: "2", Receivers: []string{"bob"}})
	assert.ErrorIs(t, err, core.ErrTransportFailure)

	require.NoError(t, bob.Close())
	_, open := <-bob.Receive()
	assert.True(t, open, "buffered envelope is still readable")
	_, open = <-bob.Receive()
	assert.False(t, open)

	require.NoError(t, alice.Close())
	err = alice.Send(context.Background(), core.Envelope{ID: "3", Receivers: []string{"bob"}})
	assert.ErrorIs(t, err, core.ErrClosed)
}
