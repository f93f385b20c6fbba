// Package transport moves messages across the process/device boundary
// (Network) or between same-device views (Local). Exactly one variant is
// active per session, chosen by configuration at construction time; the
// engine never probes or negotiates at runtime.
package transport

import (
	"context"
	"errors"

	"chatsync/pkg/models"
)

// State is the shared connection state machine for both variants.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Source labels the path an inbound message arrived through.
type Source string

const (
	SourceLive      Source = "live"
	SourceBroadcast Source = "broadcast"
	SourceFallback  Source = "fallback"
)

// Events are the receive-side callbacks a transport is constructed with.
// They are invoked from the transport's own goroutines; the session posts
// them into its serializing loop.
type Events struct {
	// OnHistory delivers the one-time prior-message payload after connect.
	OnHistory func(msgs []models.Message)
	// OnMessage delivers one live message.
	OnMessage func(m models.Message, src Source)
	// OnStateChange fires on every state transition except teardown.
	OnStateChange func(s State)
}

// ErrNotConnected is returned by Send while the transport is not in the
// Connected state. Callers route the message to the outbound queue.
var ErrNotConnected = errors.New("transport not connected")

// Transport is the closed two-variant abstraction: Network and Local.
type Transport interface {
	// Connect brings the transport to Connected. No timeout is applied
	// beyond what ctx carries; a stalled attempt stays in Connecting.
	Connect(ctx context.Context) error
	// Send delivers m immediately or returns ErrNotConnected.
	Send(m models.Message) error
	// State returns the current connection state.
	State() State
	// Close forcibly tears the transport down. No state-change event is
	// emitted; the instance is discarded afterwards.
	Close() error
}

func (e Events) history(msgs []models.Message) {
	if e.OnHistory != nil {
		e.OnHistory(msgs)
	}
}

func (e Events) message(m models.Message, src Source) {
	if e.OnMessage != nil {
		e.OnMessage(m, src)
	}
}

func (e Events) stateChange(s State) {
	if e.OnStateChange != nil {
		e.OnStateChange(s)
	}
}
