package testutil

import (
	"time"

	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
)

// EnvelopeBuilder constructs encoded envelopes for tests.
// Example:
//
//	env := NewEnvelopeBuilder("seller").Conversation("c1").To("buyer").Build(core.Refusal{})
type EnvelopeBuilder struct {
	sender         string
	conversationID string
	receivers      []string
	inReplyTo      string
	replyBy        time.Time
}

// NewEnvelopeBuilder creates a builder for envelopes sent by sender.
func NewEnvelopeBuilder(sender string) *EnvelopeBuilder {
	return &EnvelopeBuilder{sender: sender, conversationID: core.NewID()}
}

// Conversation sets the conversation id (chainable).
func (b *EnvelopeBuilder) Conversation(id string) *EnvelopeBuilder { b.conversationID = id; return b }

// To sets the receivers (chainable).
func (b *EnvelopeBuilder) To(ids ...string) *EnvelopeBuilder { b.receivers = ids; return b }

// InReplyTo sets the answered envelope id (chainable).
func (b *EnvelopeBuilder) InReplyTo(id string) *EnvelopeBuilder { b.inReplyTo = id; return b }

// ReplyBy sets the response deadline (chainable).
func (b *EnvelopeBuilder) ReplyBy(t time.Time) *EnvelopeBuilder { b.replyBy = t; return b }

// Build encodes msg with the default codec. It panics on encoding errors,
// which only happen for programming mistakes in tests.
func (b *EnvelopeBuilder) Build(msg core.Message) core.Envelope {
	env, err := codec.Default().NewEnvelope(b.conversationID, b.sender, b.receivers, msg)
	if err != nil {
		panic(err)
	}
	env.InReplyTo = b.inReplyTo
	env.ReplyBy = b.replyBy
	return env
}
