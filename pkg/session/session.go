// Package session is the per-room synchronization engine. A Session owns
// the visible message log, the dedup ledger, and the outbound queue from
// a single goroutine; transports, broadcast echoes, store fallbacks, and
// user sends all funnel into that loop, so none of the owned state needs
// locks and arrival order decides log position.
package session

import (
	"context"
	"time"

	"chatsync/pkg/codec"
	"chatsync/pkg/dedup"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/notify"
	"chatsync/pkg/outbox"
	"chatsync/pkg/readstate"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/transport"
	"chatsync/pkg/utils"
)

// Options configure a session. Tracker and Notifier are optional.
type Options struct {
	Room string
	Role models.Role

	Tracker  *readstate.Tracker
	Notifier notify.Notifier

	// TransportLabel tags outbound metrics ("network" or "local").
	TransportLabel string
}

// Session synchronizes one room for one local role.
type Session struct {
	room string
	role models.Role
	opts Options

	tr transport.Transport

	cmds chan func()
	quit chan struct{}

	// owned exclusively by the run loop
	log          []models.Message
	ledger       *dedup.Ledger
	queue        *outbox.Queue
	retryNoticed bool

	now func() time.Time
}

// New builds a session and its transport. The build callback receives the
// session's event hooks so the transport can be constructed against them;
// the variant choice (network vs local) stays with the caller's config.
func New(opts Options, build func(transport.Events) transport.Transport) *Session {
	room := models.NormalizeRoom(opts.Room)
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.TransportLabel == "" {
		opts.TransportLabel = "network"
	}
	s := &Session{
		room:   room,
		role:   opts.Role,
		opts:   opts,
		cmds:   make(chan func(), 64),
		quit:   make(chan struct{}),
		ledger: dedup.NewLedger(room),
		queue:  outbox.NewQueue(),
		now:    time.Now,
	}
	go s.run()
	s.tr = build(transport.Events{
		OnHistory:     s.onHistory,
		OnMessage:     s.onMessage,
		OnStateChange: s.onStateChange,
	})
	return s
}

// Connect brings the transport up. For the local variant this also loads
// the persisted history; for the network variant history arrives as the
// first inbound frame.
func (s *Session) Connect(ctx context.Context) error {
	return s.tr.Connect(ctx)
}

// Send runs the full pipeline for user input: reject no-ops, encode
// attachments, stamp a client id and timestamp, append optimistically,
// then deliver or queue. It returns once the message is visible in the
// log; delivery itself is fire-and-forget.
func (s *Session) Send(text string, files []codec.File) error {
	if err := models.ValidateDraft(text, len(files)); err != nil {
		return err
	}
	atts, err := codec.EncodeFiles(files)
	if err != nil {
		// no partial message exists; surface and stop
		s.opts.Notifier.Notify("Message failed", "Could not read the selected files")
		return err
	}
	m := models.Message{
		ID:          utils.GenMessageID(),
		Room:        s.room,
		Sender:      s.role,
		Text:        text,
		At:          models.Stamp(s.now()),
		Attachments: atts,
	}
	s.do(func() { s.applyOutbound(m) })

	// sending implies the sender has seen the room up to this point
	if s.opts.Tracker != nil {
		if err := s.opts.Tracker.MarkRead(s.room, s.role); err != nil {
			logger.Warn("mark_read_failed", "room", s.room, "role", s.role, "error", err)
		}
	}
	return nil
}

// Log returns a copy of the visible message log in arrival order.
func (s *Session) Log() []models.Message {
	var out []models.Message
	s.do(func() {
		out = make([]models.Message, len(s.log))
		copy(out, s.log)
	})
	return out
}

// QueueLen returns the number of sends awaiting a connected transport.
func (s *Session) QueueLen() int {
	var n int
	s.do(func() { n = s.queue.Len() })
	return n
}

// SeenCount returns the size of the dedup ledger.
func (s *Session) SeenCount() int {
	var n int
	s.do(func() { n = s.ledger.Len() })
	return n
}

// State reports the transport's connection state.
func (s *Session) State() transport.State {
	return s.tr.State()
}

// Reconcile asks the transport to re-deliver the authoritative stored
// list; only the local variant does anything. The dedup gate keeps the
// operation idempotent.
func (s *Session) Reconcile(ctx context.Context) error {
	if r, ok := s.tr.(interface{ Reconcile(context.Context) error }); ok {
		return r.Reconcile(ctx)
	}
	return nil
}

// Close tears down the transport and stops the loop. Queued sends are
// discarded with the session, matching the reload-while-disconnected
// behavior.
func (s *Session) Close() error {
	err := s.tr.Close()
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	return err
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// do executes fn on the owning loop and waits for it. After Close it
// becomes a no-op rather than blocking the caller.
func (s *Session) do(fn func()) {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-s.quit:
		return
	}
	select {
	case <-done:
	case <-s.quit:
	}
}

// post is the asynchronous variant used by transport callbacks.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.quit:
	}
}

// applyOutbound appends the sender's own message and routes delivery.
// Runs on the loop.
func (s *Session) applyOutbound(m models.Message) {
	s.ledger.Add(m.ID)
	s.log = append(s.log, m)
	logger.Debug("message_appended", "room", s.room, "msg_id", m.ID, "path", "outbound")

	if s.tr.State() == transport.Connected {
		if err := s.tr.Send(m); err == nil {
			telemetry.MessagesSent.WithLabelValues(s.opts.TransportLabel).Inc()
			return
		} else if err != transport.ErrNotConnected {
			logger.Warn("send_failed_queueing", "room", s.room, "msg_id", m.ID, "error", err)
		}
	}
	s.enqueue(m)
}

func (s *Session) enqueue(m models.Message) {
	s.queue.Enqueue(m)
	telemetry.OutboxQueued.Inc()
	if !s.retryNoticed {
		s.retryNoticed = true
		s.opts.Notifier.Notify("Message queued", "Will be sent when the connection is back")
	}
}

func (s *Session) onHistory(msgs []models.Message) {
	s.post(func() {
		// the payload is authoritative: replace the visible log wholesale
		// and re-seed the ledger from it. Messages queued while offline
		// are not in the payload, so their echoes after the drain must be
		// admittable again or they would never render.
		ledger := dedup.NewLedger(s.room)
		replaced := make([]models.Message, 0, len(msgs))
		for _, m := range msgs {
			if !ledger.Admit(m.ID) {
				continue
			}
			replaced = append(replaced, m)
		}
		s.ledger = ledger
		s.log = replaced
		telemetry.MessagesReceived.WithLabelValues("history").Add(float64(len(replaced)))
		logger.Info("history_applied", "room", s.room, "count", len(replaced))
	})
}

func (s *Session) onMessage(m models.Message, src transport.Source) {
	s.post(func() {
		if !s.ledger.Admit(m.ID) {
			telemetry.MessagesDeduplicated.Inc()
			return
		}
		s.log = append(s.log, m)
		telemetry.MessagesReceived.WithLabelValues(string(src)).Inc()
		logger.Debug("message_appended", "room", s.room, "msg_id", m.ID, "path", string(src))

		if m.Sender != s.role {
			s.maybeNotify(m)
		}
	})
}

// maybeNotify raises a toast for an inbound non-self message unless the
// room was already read past the message's timestamp.
func (s *Session) maybeNotify(m models.Message) {
	if s.opts.Tracker != nil {
		if at, ok := models.ParseStamp(m.At); ok {
			unread, err := s.opts.Tracker.IsUnread(s.room, s.role, at)
			if err == nil && !unread {
				return
			}
		}
	}
	body := m.Text
	if body == "" && len(m.Attachments) > 0 {
		body = m.Attachments[0].Name
	}
	s.opts.Notifier.Notify("New message in "+s.room, body)
	telemetry.Notifications.Inc()
}

func (s *Session) onStateChange(st transport.State) {
	s.post(func() {
		logger.Info("transport_state", "room", s.room, "state", st.String())
		if st != transport.Connected {
			return
		}
		s.retryNoticed = false
		n, err := s.queue.DrainInto(func(m models.Message) error {
			if err := s.tr.Send(m); err != nil {
				return err
			}
			telemetry.MessagesSent.WithLabelValues(s.opts.TransportLabel).Inc()
			telemetry.OutboxReplayed.Inc()
			return nil
		})
		if err != nil {
			logger.Warn("queue_drain_interrupted", "room", s.room, "replayed", n, "error", err)
		}
	})
}
