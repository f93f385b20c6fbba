package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Network is the persistent duplex connection to a room-scoped endpoint.
// After connecting it expects one history envelope followed by zero or
// more live message envelopes on the same channel.
type Network struct {
	endpoint string
	room     string
	ev       Events

	state atomic.Int32

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewNetwork builds the network variant for room against a relay base URL
// (e.g. "ws://localhost:8080"). The room is normalized into the endpoint
// path.
func NewNetwork(baseURL, room string, ev Events) *Network {
	room = models.NormalizeRoom(room)
	return &Network{
		endpoint: strings.TrimRight(baseURL, "/") + "/ws/" + url.PathEscape(room),
		room:     room,
		ev:       ev,
	}
}

// Connect dials the endpoint and starts the receive loop. There is no
// reconnect policy here; callers decide if and when to build a new
// attempt after a failure.
func (n *Network) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	n.mu.Unlock()

	n.setState(Connecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, n.endpoint, nil)
	if err != nil {
		n.setState(Disconnected)
		return fmt.Errorf("dial %s: %w", n.endpoint, err)
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("transport closed")
	}
	n.conn = conn
	n.mu.Unlock()

	logger.Info("network_connected", "room", n.room, "endpoint", n.endpoint)
	n.setState(Connected)
	go n.readLoop(conn)
	return nil
}

// Send writes m as a flattened message envelope. While not Connected it
// returns ErrNotConnected so the caller can queue the message instead.
func (n *Network) Send(m models.Message) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if n.State() != Connected || conn == nil {
		return ErrNotConnected
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(models.OutboundFrom(m)); err != nil {
		return fmt.Errorf("encode outbound envelope: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, buf.B); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	logger.Debug("network_sent", "room", n.room, "msg_id", m.ID)
	return nil
}

// State returns the current connection state.
func (n *Network) State() State {
	return State(n.state.Load())
}

// Close tears the connection down without emitting a state change; local
// state elsewhere (log, ledger, queue) is untouched.
func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.state.Store(int32(Disconnected))
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
	return nil
}

func (n *Network) setState(s State) {
	n.state.Store(int32(s))
	n.ev.stateChange(s)
}

func (n *Network) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			n.mu.Lock()
			closed := n.closed
			n.mu.Unlock()
			if !closed {
				logger.Warn("network_read_failed", "room", n.room, "error", err)
				n.setState(Disconnected)
			}
			return
		}
		n.handleFrame(raw)
	}
}

// handleFrame applies one inbound frame. Malformed payloads are dropped;
// the receive loop never dies on bad input.
func (n *Network) handleFrame(raw []byte) {
	env, err := models.DecodeInbound(raw)
	if err != nil {
		logger.Warn("inbound_frame_dropped", "room", n.room, "error", err)
		return
	}
	switch env.Type {
	case models.KindHistory:
		msgs, err := env.HistoryPayload()
		if err != nil {
			logger.Warn("history_payload_dropped", "room", n.room, "error", err)
			return
		}
		logger.Info("history_received", "room", n.room, "count", len(msgs))
		n.ev.history(msgs)
	case models.KindMessage:
		m, err := env.MessagePayload()
		if err != nil {
			logger.Warn("message_payload_dropped", "room", n.room, "error", err)
			return
		}
		if !m.Sender.Valid() {
			logger.Warn("message_unknown_sender_dropped", "room", n.room, "sender", m.Sender)
			return
		}
		n.ev.message(m, SourceLive)
	}
}
