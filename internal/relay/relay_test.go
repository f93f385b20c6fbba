package relay

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/models"
	"chatsync/pkg/session"
	"chatsync/pkg/store"
	"chatsync/pkg/transport"
)

func startRelay(t *testing.T) (*httptest.Server, *store.Store, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "relay-db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	srv := httptest.NewServer(New(st, Options{}).Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, st, wsURL
}

func newNetworkSession(t *testing.T, wsURL, room string, role models.Role) *session.Session {
	t.Helper()
	s := session.New(session.Options{Room: room, Role: role, TransportLabel: "network"},
		func(ev transport.Events) transport.Transport {
			return transport.NewNetwork(wsURL, room, ev)
		})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestHistoryReplayOnConnect(t *testing.T) {
	_, st, wsURL := startRelay(t)
	seed := []models.Message{
		{ID: "m1", Room: "room-7", Sender: models.RoleCoach, Text: "uno", At: models.Stamp(time.Now())},
		{ID: "m2", Room: "room-7", Sender: models.RoleAdmin, Text: "dos", At: models.Stamp(time.Now())},
	}
	for _, m := range seed {
		if err := st.AppendRoomLog("room-7", m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	s := newNetworkSession(t, wsURL, "room-7", models.RoleStudent)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool { return len(s.Log()) == 2 })
	log := s.Log()
	if log[0].ID != "m1" || log[1].ID != "m2" {
		t.Fatalf("history order lost: %+v", log)
	}
}

func TestLiveFanoutAndSelfEchoDedup(t *testing.T) {
	_, st, wsURL := startRelay(t)

	a := newNetworkSession(t, wsURL, "room-1", models.RoleStudent)
	b := newNetworkSession(t, wsURL, "room-1", models.RoleCoach)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("a.Connect: %v", err)
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("b.Connect: %v", err)
	}

	if err := a.Send("hola", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, func() bool { return len(b.Log()) == 1 })
	if got := b.Log(); got[0].Text != "hola" || got[0].Sender != models.RoleStudent {
		t.Fatalf("b received %+v", got[0])
	}

	// the relay echoes to the sender too; the ledger absorbs it
	waitFor(t, func() bool {
		stored, err := st.RoomLog("room-1")
		return err == nil && len(stored) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if n := len(a.Log()); n != 1 {
		t.Fatalf("sender log = %d entries, echo was not deduplicated", n)
	}
}

func TestQueuedSendsReplayInOrderOverNetwork(t *testing.T) {
	_, st, wsURL := startRelay(t)

	s := newNetworkSession(t, wsURL, "room-2", models.RoleAdmin)
	// not connected yet: everything queues in order
	for _, text := range []string{"A", "B", "C"} {
		if err := s.Send(text, nil); err != nil {
			t.Fatalf("Send %s: %v", text, err)
		}
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, func() bool {
		stored, err := st.RoomLog("room-2")
		return err == nil && len(stored) == 3
	})
	stored, _ := st.RoomLog("room-2")
	for i, want := range []string{"A", "B", "C"} {
		if stored[i].Text != want {
			t.Fatalf("relay observed %v, want A B C", stored)
		}
	}
	// echoes of its own queued sends must not duplicate
	time.Sleep(50 * time.Millisecond)
	if n := len(s.Log()); n != 3 {
		t.Fatalf("sender log = %d entries, want 3", n)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	_, st, wsURL := startRelay(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/room-3", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	// skip the history frame
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read history: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","id":"ok-1","room":"room-3","sender":"coach","text":"still alive"}`)); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	waitFor(t, func() bool {
		stored, err := st.RoomLog("room-3")
		return err == nil && len(stored) == 1
	})
	stored, _ := st.RoomLog("room-3")
	if stored[0].ID != "ok-1" {
		t.Fatalf("valid frame lost after garbage: %+v", stored)
	}
	if stored[0].At == "" {
		t.Fatalf("relay must stamp missing timestamps")
	}
}

func TestUnknownSenderRejected(t *testing.T) {
	_, st, wsURL := startRelay(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/room-4", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read history: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","id":"x1","room":"room-4","sender":"intruder","text":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","id":"x2","room":"room-4","sender":"student","text":"ok"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool {
		stored, err := st.RoomLog("room-4")
		return err == nil && len(stored) == 1
	})
	stored, _ := st.RoomLog("room-4")
	if stored[0].ID != "x2" {
		t.Fatalf("unknown sender should be dropped, got %+v", stored)
	}
}
