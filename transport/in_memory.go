package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/booktrader/core"
)

// DefaultInboxSize is the per-endpoint buffered inbox capacity.
const DefaultInboxSize = 256

// Network is a volatile in-process message router and role directory. It is
// safe for concurrent access. Each joined agent receives an Endpoint whose
// inbox is a bounded channel; Send blocks while a receiver's inbox is full
// until the context ends.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	roles     map[string]map[string]struct{} // role -> agent ids
	inboxSize int
}

// NewNetwork constructs an empty network.
func NewNetwork(optFns ...func(o *NetworkOptions)) *Network {
	opts := NetworkOptions{InboxSize: DefaultInboxSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Network{
		endpoints: make(map[string]*Endpoint),
		roles:     make(map[string]map[string]struct{}),
		inboxSize: opts.InboxSize,
	}
}

// NetworkOptions configures a Network.
type NetworkOptions struct {
	// InboxSize bounds each endpoint's inbox.
	InboxSize int
}

// Join attaches agent id to the network advertising roles.
func (n *Network) Join(id string, roles ...string) (*Endpoint, error) {
	if id == "" {
		return nil, fmt.Errorf("transport: empty agent id")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.endpoints[id]; exists {
		return nil, fmt.Errorf("transport: agent %q already joined", id)
	}
	ep := &Endpoint{id: id, network: n, inbox: make(chan core.Envelope, n.inboxSize), done: make(chan struct{})}
	n.endpoints[id] = ep
	for _, r := range roles {
		if n.roles[r] == nil {
			n.roles[r] = make(map[string]struct{})
		}
		n.roles[r][id] = struct{}{}
	}
	return ep, nil
}

// FindPeers implements core.Directory. Results are sorted for stable
// broadcast order.
func (n *Network) FindPeers(_ context.Context, role string) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.roles[role]))
	for id := range n.roles[role] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (n *Network) leave(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, id)
	for _, members := range n.roles {
		delete(members, id)
	}
}

func (n *Network) endpoint(id string) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[id]
	return ep, ok
}

// Endpoint is one agent's attachment to a Network. It implements core.Transport.
type Endpoint struct {
	id      string
	network *Network
	inbox   chan core.Envelope

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex // guards inbox close against concurrent deliveries
	closed    bool
}

// ID returns the agent id.
func (e *Endpoint) ID() string { return e.id }

// Receive returns the inbox.
func (e *Endpoint) Receive() <-chan core.Envelope { return e.inbox }

// Send delivers env to each receiver. The sender field is forced to the
// endpoint id. Delivery stops at the first failing receiver.
func (e *Endpoint) Send(ctx context.Context, env core.Envelope) error {
	select {
	case <-e.done:
		return fmt.Errorf("%w: endpoint %s: %w", core.ErrTransportFailure, e.id, core.ErrClosed)
	default:
	}
	env.Sender = e.id
	if len(env.Receivers) == 0 {
		return fmt.Errorf("%w: envelope %s has no receivers", core.ErrTransportFailure, env.ID)
	}
	for _, to := range env.Receivers {
		dst, ok := e.network.endpoint(to)
		if !ok {
			return fmt.Errorf("%w: %w: %s", core.ErrTransportFailure, core.ErrUnknownAgent, to)
		}
		if err := dst.deliver(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) deliver(ctx context.Context, env core.Envelope) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("%w: %s: %w", core.ErrTransportFailure, e.id, core.ErrClosed)
	}
	select {
	case e.inbox <- env:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: deliver to %s: %w", core.ErrTransportFailure, e.id, ctx.Err())
	case <-e.done:
		return fmt.Errorf("%w: %s: %w", core.ErrTransportFailure, e.id, core.ErrClosed)
	}
}

// Close detaches the endpoint from the network and closes its inbox.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.network.leave(e.id)
		close(e.done)
		e.mu.Lock()
		e.closed = true
		close(e.inbox)
		e.mu.Unlock()
	})
	return nil
}
