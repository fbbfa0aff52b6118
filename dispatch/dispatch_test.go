package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	network *transport.Network
	buyer   *Dispatcher
	seller  *Dispatcher
	cancel  context.CancelFunc
	ctx     context.Context
}

func newPair(t *testing.T) *pair {
	t.Helper()
	n := transport.NewNetwork()
	b, err := n.Join("buyer", core.RoleTrading)
	require.NoError(t, err)
	s, err := n.Join("seller", core.RoleTrading)
	require.NoError(t, err)

	bd, err := New(b)
	require.NoError(t, err)
	sd, err := New(s)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return &pair{network: n, buyer: bd, seller: sd, cancel: cancel, ctx: ctx}
}

func (p *pair) run() {
	go func() { _ = p.buyer.Run(p.ctx) }()
	go func() { _ = p.seller.Run(p.ctx) }()
}

func TestDispatcher_HandlerAndReplyRouting(t *testing.T) {
	p := newPair(t)

	p.seller.Handle(core.PerformativeCFP, func(ctx context.Context, conv *Conversation, first core.Envelope) {
		req, err := codec.Expect[core.Request](codec.Default(), first)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, []string{"Dune"}, req.BookNames)
		assert.NoError(t, conv.Reply(ctx, first, core.Refusal{Reason: "none"}, time.Time{}))
	})
	p.run()

	conv, err := p.buyer.OpenNew()
	require.NoError(t, err)
	defer conv.Close()

	require.NoError(t, conv.Send(p.ctx, core.Request{BookNames: []string{"Dune"}}, time.Now().Add(time.Second), "seller"))

	env, err := conv.Recv(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PerformativeRefuse, env.Performative)
	assert.Equal(t, "seller", env.Sender)
	assert.Equal(t, conv.ID(), env.ConversationID)

	msg, err := conv.Decode(env)
	require.NoError(t, err)
	assert.Equal(t, core.Refusal{Reason: "none"}, msg)
}

func TestDispatcher_OpenDuplicate(t *testing.T) {
	p := newPair(t)
	conv, err := p.buyer.Open("c1")
	require.NoError(t, err)
	_, err = p.buyer.Open("c1")
	assert.ErrorIs(t, err, core.ErrConversationExists)
	assert.Equal(t, 1, p.buyer.Active())

	conv.Close()
	conv.Close()
	assert.Equal(t, 0, p.buyer.Active())
	_, err = conv.Recv(context.Background())
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestConversation_RecvTimeout(t *testing.T) {
	p := newPair(t)
	conv, err := p.buyer.OpenNew()
	require.NoError(t, err)
	defer conv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = conv.Recv(ctx)
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestDispatcher_UnroutableGetsNotUnderstood(t *testing.T) {
	p := newPair(t)
	p.run()

	// The seller has no handler for accept-proposal and no open conversation.
	conv, err := p.buyer.OpenNew()
	require.NoError(t, err)
	defer conv.Close()
	require.NoError(t, conv.Send(p.ctx, core.Selection{}, time.Time{}, "seller"))

	env, err := conv.Recv(p.ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PerformativeNotUnderstood, env.Performative)
}

func TestDispatcher_LateEnvelopeDropped(t *testing.T) {
	p := newPair(t)
	handled := make(chan struct{}, 2)
	p.seller.Handle(core.PerformativeCFP, func(ctx context.Context, conv *Conversation, first core.Envelope) {
		handled <- struct{}{}
	})
	p.run()

	conv, err := p.buyer.Open("late-conv")
	require.NoError(t, err)
	require.NoError(t, conv.Send(p.ctx, core.Request{BookNames: []string{"Dune"}}, time.Time{}, "seller"))

	select {
	case <-handled:
	case <-p.ctx.Done():
		t.Fatal("handler not invoked")
	}

	// Handler returned so the seller side is closed; a repeated cfp with the
	// same id is late and must not spawn a second handler.
	assert.Eventually(t, func() bool { return p.seller.Active() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conv.Send(p.ctx, core.Request{BookNames: []string{"Dune"}}, time.Time{}, "seller"))

	select {
	case <-handled:
		t.Fatal("late envelope spawned a handler")
	case <-time.After(50 * time.Millisecond):
	}

	// And the buyer receives no not-understood either.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conv.Recv(ctx)
	assert.ErrorIs(t, err, core.ErrTimeout)
	conv.Close()
}
