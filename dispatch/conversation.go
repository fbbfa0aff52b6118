package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
)

// Conversation is one negotiation or settlement exchange identified by a
// conversation id. Receiving is single-consumer; sending is safe from any
// goroutine.
type Conversation struct {
	id      string
	d       *Dispatcher
	mailbox chan core.Envelope

	mu     sync.Mutex
	closed bool
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Self returns the local agent id.
func (c *Conversation) Self() string { return c.d.ID() }

// Codec returns the codec of the owning dispatcher.
func (c *Conversation) Codec() *codec.Codec { return c.d.codec }

// Send encodes msg and sends it to the receivers within this conversation.
// A non-zero replyBy is attached as the response deadline.
func (c *Conversation) Send(ctx context.Context, msg core.Message, replyBy time.Time, to ...string) error {
	env, err := c.d.codec.NewEnvelope(c.id, c.d.ID(), to, msg)
	if err != nil {
		return err
	}
	env.ReplyBy = replyBy
	return c.send(ctx, env)
}

// Reply answers in with msg.
func (c *Conversation) Reply(ctx context.Context, in core.Envelope, msg core.Message, replyBy time.Time) error {
	env, err := c.d.codec.Reply(in, msg)
	if err != nil {
		return err
	}
	env.ConversationID = c.id
	env.Sender = c.d.ID()
	env.ReplyBy = replyBy
	return c.send(ctx, env)
}

func (c *Conversation) send(ctx context.Context, env core.Envelope) error {
	if err := c.d.transport.Send(ctx, env); err != nil {
		if errors.Is(err, core.ErrTransportFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrTransportFailure, err)
	}
	return nil
}

// Recv waits for the next envelope. A context deadline surfaces as
// core.ErrTimeout; a closed conversation as core.ErrClosed.
func (c *Conversation) Recv(ctx context.Context) (core.Envelope, error) {
	select {
	case env, ok := <-c.mailbox:
		if !ok {
			return core.Envelope{}, core.ErrClosed
		}
		return env, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.Envelope{}, fmt.Errorf("%w: conversation %s", core.ErrTimeout, c.id)
		}
		return core.Envelope{}, ctx.Err()
	}
}

// Decode decodes env's content, checking it against the envelope performative.
func (c *Conversation) Decode(env core.Envelope) (core.Message, error) {
	return c.d.codec.DecodeEnvelope(env)
}

// Close unregisters the conversation. Envelopes arriving afterwards are
// treated as late and dropped. Close is idempotent.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.d.release(c.id)
	close(c.mailbox)
}

func (c *Conversation) deliver(env core.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		// Closed between lookup and delivery: same as late.
		return true
	}
	select {
	case c.mailbox <- env:
		return true
	default:
		return false
	}
}
