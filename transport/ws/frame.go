// Package ws carries envelopes between trading agents over websockets.
//
// A Hub accepts agent connections, routes envelope frames to their
// receivers and answers directory queries from its registry of connected
// agents and their roles. Dial connects an agent to a hub and returns a
// Client implementing both core.Transport and core.Directory.
//
// Frames are JSON text messages. A connection opens with hello (agent id
// and roles) answered by welcome or error; afterwards either side may send
// envelope frames, and clients may send find_peers queries answered by
// peers frames carrying the same query id.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/booktrader/core"
)

// Frame types.
const (
	TypeHello     = "hello"
	TypeWelcome   = "welcome"
	TypeEnvelope  = "envelope"
	TypeFindPeers = "find_peers"
	TypePeers     = "peers"
	TypeError     = "error"
)

const (
	writeWait      = 5 * time.Second
	handshakeWait  = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameBytes  = 1 << 20
	defaultOutSize = 256
)

var errBadFrame = errors.New("ws: malformed frame")

type frame struct {
	Type     string         `json:"type"`
	AgentID  string         `json:"agent_id,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Envelope *core.Envelope `json:"envelope,omitempty"`
	QueryID  string         `json:"query_id,omitempty"`
	Role     string         `json:"role,omitempty"`
	Peers    []string       `json:"peers,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func writeFrame(conn *websocket.Conn, f frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func readFrame(conn *websocket.Conn) (frame, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return f, nil
}
