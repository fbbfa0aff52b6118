// Package dispatch routes envelopes arriving on a core.Transport to the
// negotiation conversations that are waiting for them.
//
// A Dispatcher owns the transport inbox. Envelopes belonging to an open
// conversation are queued in that conversation's mailbox; envelopes that
// start a new interaction (a cfp for a seller, a request for the
// settlement service) spawn the handler registered for their performative
// in a goroutine of its own. Replies that arrive after a conversation closed
// are recognised through a bounded cache of recently closed ids and
// dropped quietly.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hupe1980/booktrader/codec"
	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
)

// Handler serves a conversation started by a remote peer. first is the
// initiating envelope; later envelopes arrive through conv.Recv. The
// dispatcher closes conv when the handler returns.
type Handler func(ctx context.Context, conv *Conversation, first core.Envelope)

// Options configures a Dispatcher.
type Options struct {
	// Codec encodes outbound and decodes inbound content. Defaults to codec.Default().
	Codec *codec.Codec
	// MailboxSize bounds each conversation's mailbox.
	MailboxSize int
	// ClosedCacheSize bounds the number of recently closed conversation ids remembered.
	ClosedCacheSize int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Dispatcher demultiplexes a transport into conversations. Public methods
// are safe for concurrent use.
type Dispatcher struct {
	transport   core.Transport
	codec       *codec.Codec
	logger      logging.Logger
	mailboxSize int

	mu            sync.RWMutex
	conversations map[string]*Conversation
	handlers      map[core.Performative]Handler

	closed *lru.ARCCache
	wg     sync.WaitGroup
}

// New creates a Dispatcher reading from t.
func New(t core.Transport, optFns ...func(o *Options)) (*Dispatcher, error) {
	opts := Options{
		MailboxSize:     32,
		ClosedCacheSize: 1024,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default()
	}

	closed, err := lru.NewARC(opts.ClosedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dispatch: closed cache: %w", err)
	}

	return &Dispatcher{
		transport:     t,
		codec:         opts.Codec,
		logger:        logging.With(opts.Logger, "component", "dispatcher", "agent_id", t.ID()),
		mailboxSize:   opts.MailboxSize,
		conversations: make(map[string]*Conversation),
		handlers:      make(map[core.Performative]Handler),
		closed:        closed,
	}, nil
}

// ID returns the local agent id.
func (d *Dispatcher) ID() string { return d.transport.ID() }

// Codec returns the codec used for conversation content.
func (d *Dispatcher) Codec() *codec.Codec { return d.codec }

// Handle registers h for envelopes with performative p that do not belong
// to an open conversation. A later registration replaces an earlier one.
func (d *Dispatcher) Handle(p core.Performative, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[p] = h
}

// Open registers a conversation with the given id.
func (d *Dispatcher) Open(id string) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked(id)
}

// OpenNew registers a conversation with a fresh id.
func (d *Dispatcher) OpenNew() (*Conversation, error) {
	return d.Open(core.NewID())
}

// Active returns the number of open conversations.
func (d *Dispatcher) Active() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conversations)
}

// Run reads the transport inbox until ctx ends or the transport closes,
// then waits for spawned handlers to return.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()

	in := d.transport.Receive()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-in:
			if !ok {
				d.logger.Debug("transport inbox closed")
				return nil
			}
			d.route(ctx, env)
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, env core.Envelope) {
	d.mu.Lock()
	if conv, ok := d.conversations[env.ConversationID]; ok {
		d.mu.Unlock()
		if !conv.deliver(env) {
			d.logger.Warn("conversation mailbox full, envelope dropped",
				"conversation_id", env.ConversationID, "performative", env.Performative, "sender", env.Sender)
		}
		return
	}

	h, ok := d.handlers[env.Performative]
	if ok && !d.closed.Contains(env.ConversationID) {
		if env.ConversationID == "" {
			env.ConversationID = core.NewID()
		}
		conv, err := d.openLocked(env.ConversationID)
		d.mu.Unlock()
		if err != nil {
			d.logger.Warn("cannot open conversation", "conversation_id", env.ConversationID, "error", err)
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer conv.Close()
			h(ctx, conv, env)
		}()
		return
	}
	d.mu.Unlock()

	if d.closed.Contains(env.ConversationID) {
		d.logger.Debug("late envelope for closed conversation dropped",
			"conversation_id", env.ConversationID, "performative", env.Performative, "sender", env.Sender)
		return
	}

	d.logger.Warn("unroutable envelope", "conversation_id", env.ConversationID, "performative", env.Performative, "sender", env.Sender)
	if env.Performative == core.PerformativeNotUnderstood || env.Sender == "" {
		return
	}
	reply, err := d.codec.Reply(env, core.NotUnderstood{Reason: fmt.Sprintf("no conversation %q and no handler for %s", env.ConversationID, env.Performative)})
	if err != nil {
		return
	}
	reply.Sender = d.ID()
	if err := d.transport.Send(ctx, reply); err != nil {
		d.logger.Warn("not-understood reply failed", "error", err)
	}
}

func (d *Dispatcher) openLocked(id string) (*Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("dispatch: empty conversation id")
	}
	if _, exists := d.conversations[id]; exists {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationExists, id)
	}
	conv := &Conversation{id: id, d: d, mailbox: make(chan core.Envelope, d.mailboxSize)}
	d.conversations[id] = conv
	return conv, nil
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conversations, id)
	d.closed.Add(id, struct{}{})
}
