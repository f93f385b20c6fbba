package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"chatsync/pkg/broadcast"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

// Local is the same-device variant: no network endpoint, all views of a
// room share one durable store and one broadcast hub. It becomes
// Connected as soon as the initial store read succeeds and never
// transitions back on its own.
type Local struct {
	room string
	ev   Events
	st   *store.Store
	hub  *broadcast.Hub

	state atomic.Int32

	mu     sync.Mutex
	sub    *broadcast.Subscription
	watch  *store.Watcher
	closed bool
}

// NewLocal builds the local variant over the shared store and hub.
func NewLocal(st *store.Store, hub *broadcast.Hub, room string, ev Events) *Local {
	return &Local{room: models.NormalizeRoom(room), ev: ev, st: st, hub: hub}
}

// Connect reads the room's persisted history, delivers it as the history
// payload, then subscribes to the broadcast topic and to the store's
// change signal (the resilience fallback).
func (l *Local) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	l.mu.Unlock()

	l.setState(Connecting)
	msgs, err := l.st.RoomLog(l.room)
	if err != nil {
		l.setState(Disconnected)
		return fmt.Errorf("load room history: %w", err)
	}

	l.mu.Lock()
	l.sub = l.hub.Subscribe(l.room, 64)
	l.watch = l.st.Watch(16)
	sub, watch := l.sub, l.watch
	l.mu.Unlock()

	logger.Info("local_connected", "room", l.room, "history", len(msgs))
	l.ev.history(msgs)
	l.setState(Connected)

	go l.broadcastLoop(sub)
	go l.fallbackLoop(watch)
	return nil
}

// Send appends to the durable store (full-list read-modify-write) and
// broadcasts the new message to the other same-device views. The sender's
// own subscription is excluded, as a broadcast channel does not echo into
// the posting view.
func (l *Local) Send(m models.Message) error {
	if l.State() != Connected {
		return ErrNotConnected
	}
	if err := l.st.AppendRoomLog(l.room, m); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	l.mu.Lock()
	sub := l.sub
	l.mu.Unlock()
	msg := m
	l.hub.Publish(l.room, broadcast.Event{
		Type: broadcast.EventMessage,
		Room: l.room,
		Msg:  &msg,
	}, sub)
	logger.Debug("local_sent", "room", l.room, "msg_id", m.ID)
	return nil
}

// State returns the current connection state.
func (l *Local) State() State {
	return State(l.state.Load())
}

// Close detaches from the hub and the store signal.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.state.Store(int32(Disconnected))
	if l.sub != nil {
		l.sub.Close()
		l.sub = nil
	}
	if l.watch != nil {
		l.watch.Close()
		l.watch = nil
	}
	return nil
}

// Reconcile re-reads the persisted list and re-delivers it through the
// fallback path; the session's ledger drops everything already applied.
// The scheduled sweeper calls this to cover dropped change signals.
func (l *Local) Reconcile(ctx context.Context) error {
	if l.State() != Connected {
		return nil
	}
	return l.redeliver()
}

func (l *Local) setState(s State) {
	l.state.Store(int32(s))
	l.ev.stateChange(s)
}

func (l *Local) broadcastLoop(sub *broadcast.Subscription) {
	for ev := range sub.C {
		if ev.Type != broadcast.EventMessage || ev.Msg == nil {
			continue
		}
		l.ev.message(*ev.Msg, SourceBroadcast)
	}
}

// fallbackLoop reacts to external store writes by re-reading the room's
// list and delivering every entry; ids already seen are absorbed by the
// session's dedup gate, so only genuinely new messages land.
func (l *Local) fallbackLoop(watch *store.Watcher) {
	for ch := range watch.C {
		if ch.Room != l.room {
			continue
		}
		if err := l.redeliver(); err != nil {
			logger.Warn("store_fallback_failed", "room", l.room, "error", err)
		}
	}
}

func (l *Local) redeliver() error {
	msgs, err := l.st.RoomLog(l.room)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		l.ev.message(m, SourceFallback)
	}
	return nil
}
