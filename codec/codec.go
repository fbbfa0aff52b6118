// Package codec encodes negotiation and settlement messages to JSON payloads
// and decodes them back into the closed set of core.Message variants.
//
// Every inbound payload is validated against an embedded JSON schema before
// it is unmarshalled, so malformed content surfaces as core.ErrNotUnderstood
// instead of a half-populated struct.
package codec

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/booktrader/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://booktrader.local/schemas/"

type wireMessage struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Codec holds the compiled schemas. It is safe for concurrent use.
type Codec struct {
	message *jsonschema.Schema
	bodies  map[string]*jsonschema.Schema
}

var decoders = map[string]func(json.RawMessage) (core.Message, error){
	core.TypeRequest:              decodeAs[core.Request],
	core.TypeProposalSet:          decodeAs[core.ProposalSet],
	core.TypeRefusal:              decodeAs[core.Refusal],
	core.TypeSelection:            decodeAs[core.Selection],
	core.TypeRejection:            decodeAs[core.Rejection],
	core.TypeCompletion:           decodeAs[core.Completion],
	core.TypeFailure:              decodeAs[core.Failure],
	core.TypeNotUnderstood:        decodeAs[core.NotUnderstood],
	core.TypeSubmitTransaction:    decodeAs[core.SubmitTransaction],
	core.TypeFetchSnapshot:        decodeAs[core.FetchSnapshot],
	core.TypeTransactionConfirmed: decodeAs[core.TransactionConfirmed],
	core.TypeSnapshotResult:       decodeAs[core.SnapshotResult],
}

// New compiles the embedded schemas.
func New() (*Codec, error) {
	compiler := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}

	c := &Codec{bodies: make(map[string]*jsonschema.Schema, len(decoders))}
	if c.message, err = compiler.Compile(schemaBase + "message.json"); err != nil {
		return nil, fmt.Errorf("compile message schema: %w", err)
	}
	for typ := range decoders {
		s, err := compiler.Compile(schemaBase + typ + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", typ, err)
		}
		c.bodies[typ] = s
	}
	return c, nil
}

var (
	defaultOnce  sync.Once
	defaultCodec *Codec
)

// Default returns the shared Codec. It panics if the embedded schemas do
// not compile, which is a build defect rather than a runtime condition.
func Default() *Codec {
	defaultOnce.Do(func() {
		c, err := New()
		if err != nil {
			panic(fmt.Sprintf("codec: %v", err))
		}
		defaultCodec = c
	})
	return defaultCodec
}

// Encode serialises msg as {"type": ..., "body": ...}.
func (c *Codec) Encode(msg core.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("codec: nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(wireMessage{Type: msg.Type(), Body: body})
}

// Decode validates payload and returns the concrete message variant.
func (c *Codec) Decode(payload []byte) (core.Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", core.ErrNotUnderstood)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotUnderstood, err)
	}
	if err := c.message.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotUnderstood, err)
	}

	var wm wireMessage
	if err := json.Unmarshal(payload, &wm); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotUnderstood, err)
	}

	// message.json guarantees the type is one we know.
	body := doc.(map[string]any)["body"]
	if err := c.bodies[wm.Type].Validate(body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrNotUnderstood, wm.Type, err)
	}
	return decoders[wm.Type](wm.Body)
}

// DecodeEnvelope decodes env's payload and checks that the content agrees
// with the envelope performative.
func (c *Codec) DecodeEnvelope(env core.Envelope) (core.Message, error) {
	msg, err := c.Decode(env.Payload)
	if err != nil {
		return nil, err
	}
	if msg.Performative() != env.Performative {
		return nil, fmt.Errorf("%w: %s content in %s envelope", core.ErrNotUnderstood, msg.Type(), env.Performative)
	}
	return msg, nil
}

// NewEnvelope builds an envelope carrying msg, using msg's performative.
func (c *Codec) NewEnvelope(conversationID, sender string, receivers []string, msg core.Message) (core.Envelope, error) {
	payload, err := c.Encode(msg)
	if err != nil {
		return core.Envelope{}, err
	}
	return core.Envelope{
		ID:             core.NewID(),
		ConversationID: conversationID,
		Performative:   msg.Performative(),
		Sender:         sender,
		Receivers:      receivers,
		Payload:        payload,
	}, nil
}

// Reply builds an envelope answering env with msg.
func (c *Codec) Reply(env core.Envelope, msg core.Message) (core.Envelope, error) {
	payload, err := c.Encode(msg)
	if err != nil {
		return core.Envelope{}, err
	}
	return env.Reply(msg.Performative(), payload), nil
}

// Expect decodes env and asserts the variant is T.
func Expect[T core.Message](c *Codec, env core.Envelope) (T, error) {
	var zero T
	msg, err := c.DecodeEnvelope(env)
	if err != nil {
		return zero, err
	}
	v, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %s content", core.ErrNotUnderstood, msg.Type())
	}
	return v, nil
}

func decodeAs[T core.Message](raw json.RawMessage) (core.Message, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotUnderstood, err)
	}
	return v, nil
}
