package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/booktrader/logging"
)

// HubOptions configures a Hub.
type HubOptions struct {
	Logger logging.Logger
	// OutboxSize bounds the frames queued for one connection.
	OutboxSize int
}

type peer struct {
	id    string
	roles []string
	out   chan []byte
}

// Hub is an http.Handler relaying envelopes between connected agents.
type Hub struct {
	logger   logging.Logger
	outSize  int
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[string]*peer
}

// NewHub creates an empty hub.
func NewHub(optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Logger: logging.NoOpLogger{}, OutboxSize: defaultOutSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{
		logger:  logging.With(opts.Logger, "component", "ws_hub"),
		outSize: opts.OutboxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers: make(map[string]*peer),
	}
}

// FindPeers implements core.Directory over the hub's connected agents.
func (h *Hub) FindPeers(_ context.Context, role string) ([]string, error) {
	return h.lookup(role), nil
}

// Connected returns the ids of all connected agents, sorted.
func (h *Hub) Connected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) lookup(role string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, p := range h.peers {
		for _, r := range p.roles {
			if r == role {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// ServeHTTP upgrades the connection and serves one agent until it leaves.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	p := h.handshake(conn)
	if p == nil {
		return
	}
	defer h.leave(p)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-p.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader loop.
	for {
		f, err := readFrame(conn)
		if errors.Is(err, errBadFrame) {
			h.push(p, frame{Type: TypeError, Error: err.Error()})
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("connection closed", "agent_id", p.id, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch f.Type {
		case TypeEnvelope:
			if f.Envelope == nil {
				continue
			}
			env := *f.Envelope
			env.Sender = p.id
			h.route(p, env.ID, env.Receivers, frame{Type: TypeEnvelope, Envelope: &env})
		case TypeFindPeers:
			h.push(p, frame{Type: TypePeers, QueryID: f.QueryID, Role: f.Role, Peers: h.lookup(f.Role)})
		default:
			h.push(p, frame{Type: TypeError, Error: fmt.Sprintf("unexpected frame %q", f.Type)})
		}
	}
}

func (h *Hub) handshake(conn *websocket.Conn) *peer {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))
	hello, err := readFrame(conn)
	if err != nil || hello.Type != TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"), time.Now().Add(time.Second))
		return nil
	}
	if hello.AgentID == "" {
		_ = writeFrame(conn, frame{Type: TypeError, Error: "empty agent id"})
		return nil
	}

	p := &peer{id: hello.AgentID, roles: hello.Roles, out: make(chan []byte, h.outSize)}
	h.mu.Lock()
	if _, exists := h.peers[p.id]; exists {
		h.mu.Unlock()
		_ = writeFrame(conn, frame{Type: TypeError, Error: fmt.Sprintf("agent %q already connected", p.id)})
		return nil
	}
	h.peers[p.id] = p
	h.mu.Unlock()

	if err := writeFrame(conn, frame{Type: TypeWelcome, AgentID: p.id}); err != nil {
		h.leave(p)
		return nil
	}
	h.logger.Info("agent connected", "agent_id", p.id, "roles", p.roles)
	return p
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	if cur, ok := h.peers[p.id]; ok && cur == p {
		delete(h.peers, p.id)
	}
	h.mu.Unlock()
	h.logger.Info("agent disconnected", "agent_id", p.id)
}

// route forwards f to every receiver; unknown or congested receivers are
// reported back to the sender.
func (h *Hub) route(from *peer, envelopeID string, receivers []string, f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	for _, to := range receivers {
		h.mu.RLock()
		dst, ok := h.peers[to]
		h.mu.RUnlock()
		if !ok {
			h.push(from, frame{Type: TypeError, Error: fmt.Sprintf("envelope %s: unknown agent %q", envelopeID, to)})
			continue
		}
		select {
		case dst.out <- b:
		default:
			h.logger.Warn("outbox full, dropping envelope", "to", to, "envelope_id", envelopeID)
			h.push(from, frame{Type: TypeError, Error: fmt.Sprintf("envelope %s: agent %q is congested", envelopeID, to)})
		}
	}
}

func (h *Hub) push(p *peer, f frame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case p.out <- b:
	default:
		h.logger.Warn("outbox full, dropping frame", "to", p.id, "type", f.Type)
	}
}
