package core

import (
	"encoding/json"
	"time"
)

// Performative is the communicative act of an envelope.
type Performative string

const (
	PerformativeCFP            Performative = "cfp"
	PerformativePropose        Performative = "propose"
	PerformativeRefuse         Performative = "refuse"
	PerformativeAcceptProposal Performative = "accept-proposal"
	PerformativeRejectProposal Performative = "reject-proposal"
	PerformativeInform         Performative = "inform"
	PerformativeFailure        Performative = "failure"
	PerformativeNotUnderstood  Performative = "not-understood"
	PerformativeRequest        Performative = "request"
)

// Envelope is the unit handed to a Transport. Payload holds encoded Message
// content (see package codec); the envelope itself is transport-neutral.
type Envelope struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Performative   Performative    `json:"performative"`
	Sender         string          `json:"sender"`
	Receivers      []string        `json:"receivers"`
	InReplyTo      string          `json:"in_reply_to,omitempty"`
	ReplyBy        time.Time       `json:"reply_by,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Reply creates an envelope answering e, addressed to e's sender within the
// same conversation.
func (e Envelope) Reply(p Performative, payload []byte) Envelope {
	return Envelope{
		ID:             NewID(),
		ConversationID: e.ConversationID,
		Performative:   p,
		Receivers:      []string{e.Sender},
		InReplyTo:      e.ID,
		Payload:        payload,
	}
}

// Expired reports whether the envelope's reply-by deadline has passed at now.
// Envelopes without a deadline never expire.
func (e Envelope) Expired(now time.Time) bool {
	return !e.ReplyBy.IsZero() && now.After(e.ReplyBy)
}
