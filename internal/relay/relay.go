// Package relay is the reference network endpoint the engine's network
// transport talks to: per-room websocket fan-out with a one-time history
// replay on connect backed by the shared durable store. The engine's
// guarantees never depend on relay internals; this exists so tests and
// deployments have a collaborator that honors the wire contract.
package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/utils"
)

// Options tune the relay.
type Options struct {
	// RPS/Burst bound per-client frame rates. Zero values pick defaults.
	RPS   float64
	Burst int
}

// Relay accepts websocket clients and fans room messages out.
type Relay struct {
	st  *store.Store
	lim *limiterPool

	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New builds a relay over st.
func New(st *store.Store, opts Options) *Relay {
	return &Relay{
		st:  st,
		lim: newLimiterPool(opts.RPS, opts.Burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// same-device tooling and tests; origin policy is the
			// hosting deployment's concern
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

// Router returns the relay's HTTP surface.
func (r *Relay) Router() *mux.Router {
	m := mux.NewRouter()
	m.HandleFunc("/ws/{room}", r.handleWS)
	m.HandleFunc("/healthz", r.handleHealth).Methods(http.MethodGet)
	m.Handle("/metrics", promhttp.Handler())
	return m
}

func (r *Relay) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	room := models.NormalizeRoom(mux.Vars(req)["room"])
	if room == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing room")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn("relay_upgrade_failed", "room", room, "remote", req.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	go c.writePump()

	// the history snapshot and the room join happen under one lock so no
	// fanned-out message can fall between them; the history frame is
	// queued first, so the client always sees it before live traffic
	if err := r.joinWithHistory(room, c); err != nil {
		logger.Warn("relay_history_failed", "room", room, "error", err)
		c.close()
		return
	}
	telemetry.RelayConnections.WithLabelValues(room).Inc()
	logger.Info("relay_client_joined", "room", room, "remote", req.RemoteAddr)

	r.readLoop(c, room, req.RemoteAddr)

	r.leave(room, c)
	telemetry.RelayConnections.WithLabelValues(room).Dec()
	c.close()
	logger.Info("relay_client_left", "room", room, "remote", req.RemoteAddr)
}

func (r *Relay) joinWithHistory(room string, c *client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs, err := r.st.RoomLog(room)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(models.Inbound{Type: models.KindHistory, Data: payload})
	if err != nil {
		return err
	}
	c.send <- frame

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[*client]struct{})
		r.rooms[room] = set
	}
	set[c] = struct{}{}
	return nil
}

func (r *Relay) readLoop(c *client, room, remote string) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !r.lim.Allow(remote) {
			telemetry.RelayRateLimited.Inc()
			logger.Debug("relay_frame_rate_limited", "room", room, "remote", remote)
			continue
		}
		var out models.Outbound
		if err := json.Unmarshal(raw, &out); err != nil || out.Type != models.KindMessage || out.ID == "" {
			logger.Warn("relay_frame_dropped", "room", room, "remote", remote)
			continue
		}
		msg := out.Message()
		msg.Room = room // the endpoint is room-scoped; the path wins
		if !msg.Sender.Valid() {
			logger.Warn("relay_unknown_sender_dropped", "room", room, "sender", msg.Sender)
			continue
		}
		if msg.At == "" {
			msg.At = models.Stamp(time.Now())
		}
		if err := r.st.AppendRoomLog(room, msg); err != nil {
			logger.Error("relay_persist_failed", "room", room, "msg_id", msg.ID, "error", err)
			continue
		}
		r.fanout(room, msg)
		telemetry.RelayMessages.Inc()
	}
}

// fanout delivers msg to every client of the room, the sender included;
// clients own deduplication of their echo.
func (r *Relay) fanout(room string, msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	frame, err := json.Marshal(models.Inbound{Type: models.KindMessage, Data: data})
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.rooms[room] {
		select {
		case c.send <- frame:
		default:
			logger.Debug("relay_fanout_dropped", "room", room)
		}
	}
}

func (r *Relay) leave(room string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
}

func (c *client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
	_ = c.conn.Close()
}
