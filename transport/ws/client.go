package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Logger logging.Logger
	// InboxSize bounds received envelopes not yet consumed.
	InboxSize int
	Dialer    *websocket.Dialer
}

// Client is an agent's connection to a Hub. It implements core.Transport
// and core.Directory.
type Client struct {
	id     string
	conn   *websocket.Conn
	logger logging.Logger
	inbox  chan core.Envelope

	writeMu sync.Mutex

	mu      sync.Mutex
	queries map[string]chan []string

	done      chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
}

var (
	_ core.Transport = (*Client)(nil)
	_ core.Directory = (*Client)(nil)
)

// Dial connects to the hub at url as agent id advertising roles.
func Dial(ctx context.Context, url, id string, roles []string, optFns ...func(o *ClientOptions)) (*Client, error) {
	opts := ClientOptions{Logger: logging.NoOpLogger{}, InboxSize: defaultOutSize, Dialer: websocket.DefaultDialer}
	for _, fn := range optFns {
		fn(&opts)
	}

	conn, _, err := opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", core.ErrTransportFailure, url, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	if err := writeFrame(conn, frame{Type: TypeHello, AgentID: id, Roles: roles}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: hello: %w", core.ErrTransportFailure, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	welcome, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: handshake: %w", core.ErrTransportFailure, err)
	}
	if welcome.Type != TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: hub refused %s: %s", core.ErrTransportFailure, id, welcome.Error)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		id:       id,
		conn:     conn,
		logger:   logging.With(opts.Logger, "component", "ws_client", "agent_id", id),
		inbox:    make(chan core.Envelope, opts.InboxSize),
		queries:  make(map[string]chan []string),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID returns the agent id.
func (c *Client) ID() string { return c.id }

// Receive returns the inbox. It is closed when the connection ends.
func (c *Client) Receive() <-chan core.Envelope { return c.inbox }

// Send implements core.Transport. Delivery to the receivers is
// asynchronous; routing errors reported by the hub are logged.
func (c *Client) Send(ctx context.Context, env core.Envelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransportFailure, err)
	}
	if len(env.Receivers) == 0 {
		return fmt.Errorf("%w: envelope %s has no receivers", core.ErrTransportFailure, env.ID)
	}
	env.Sender = c.id
	return c.write(frame{Type: TypeEnvelope, Envelope: &env})
}

// FindPeers implements core.Directory by asking the hub.
func (c *Client) FindPeers(ctx context.Context, role string) ([]string, error) {
	qid := core.NewID()
	reply := make(chan []string, 1)
	c.mu.Lock()
	c.queries[qid] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.queries, qid)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Type: TypeFindPeers, QueryID: qid, Role: role}); err != nil {
		return nil, err
	}
	select {
	case peers := <-reply:
		return peers, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: %w", core.ErrTransportFailure, core.ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: find peers: %w", core.ErrTransportFailure, ctx.Err())
	}
}

// Close ends the connection and waits for the reader to stop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.readDone
	return err
}

func (c *Client) write(f frame) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %s: %w", core.ErrTransportFailure, c.id, core.ErrClosed)
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.conn, f); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransportFailure, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.inbox)

	for {
		f, err := readFrame(c.conn)
		if errors.Is(err, errBadFrame) {
			c.logger.Warn("dropping frame", "error", err)
			continue
		}
		if err != nil {
			var closeErr *websocket.CloseError
			select {
			case <-c.done:
			default:
				if !errors.As(err, &closeErr) {
					c.logger.Warn("connection lost", "error", err)
				}
				c.closeOnce.Do(func() {
					close(c.done)
					_ = c.conn.Close()
				})
			}
			return
		}

		switch f.Type {
		case TypeEnvelope:
			if f.Envelope == nil {
				continue
			}
			select {
			case c.inbox <- *f.Envelope:
			case <-c.done:
				return
			}
		case TypePeers:
			c.mu.Lock()
			reply, ok := c.queries[f.QueryID]
			c.mu.Unlock()
			if ok {
				select {
				case reply <- f.Peers:
				default:
				}
			}
		case TypeError:
			c.logger.Warn("hub error", "error", f.Error)
		}
	}
}
