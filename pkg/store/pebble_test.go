package store

import (
	"path/filepath"
	"testing"

	"chatsync/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoomLogRoundTrip(t *testing.T) {
	s := openTestStore(t)

	msgs, err := s.RoomLog("room-42")
	if err != nil {
		t.Fatalf("RoomLog empty: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("fresh room should have empty log, got %d", len(msgs))
	}

	m := models.Message{ID: "m1", Room: "room-42", Sender: models.RoleStudent, Text: "hola"}
	if err := s.AppendRoomLog("room-42", m); err != nil {
		t.Fatalf("AppendRoomLog: %v", err)
	}
	got, err := s.RoomLog("room-42")
	if err != nil {
		t.Fatalf("RoomLog: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" || got[0].Text != "hola" {
		t.Fatalf("unexpected log: %+v", got)
	}
}

func TestRoomKeyIsNormalized(t *testing.T) {
	s := openTestStore(t)
	m := models.Message{ID: "m1", Room: "room-42", Sender: models.RoleCoach, Text: "x"}
	if err := s.AppendRoomLog("  Room-42 ", m); err != nil {
		t.Fatalf("AppendRoomLog: %v", err)
	}
	got, err := s.RoomLog("room-42")
	if err != nil {
		t.Fatalf("RoomLog: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("normalized room should resolve to same key, got %d entries", len(got))
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AppendRoomLog("room-1", models.Message{ID: id, Room: "room-1", Sender: models.RoleAdmin}); err != nil {
			t.Fatalf("AppendRoomLog %s: %v", id, err)
		}
	}
	got, err := s.RoomLog("room-1")
	if err != nil {
		t.Fatalf("RoomLog: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, got[i].ID, want[i])
		}
	}
}

func TestWatcherObservesWrites(t *testing.T) {
	s := openTestStore(t)
	w := s.Watch(4)
	defer w.Close()

	if err := s.AppendRoomLog("room-9", models.Message{ID: "m1", Room: "room-9", Sender: models.RoleStudent}); err != nil {
		t.Fatalf("AppendRoomLog: %v", err)
	}
	select {
	case ch := <-w.C:
		if ch.Room != "room-9" {
			t.Fatalf("change room = %q, want room-9", ch.Room)
		}
	default:
		t.Fatalf("expected buffered change notification")
	}
}

func TestLastReadWatermark(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LastRead("room-1", models.RoleStudent)
	if err != nil {
		t.Fatalf("LastRead: %v", err)
	}
	if ok {
		t.Fatalf("watermark should be absent before any MarkRead")
	}

	if err := s.SetLastRead("room-1", models.RoleStudent, 1725100000000); err != nil {
		t.Fatalf("SetLastRead: %v", err)
	}
	ms, ok, err := s.LastRead("room-1", models.RoleStudent)
	if err != nil || !ok {
		t.Fatalf("LastRead after set: ms=%d ok=%v err=%v", ms, ok, err)
	}
	if ms != 1725100000000 {
		t.Fatalf("watermark = %d, want 1725100000000", ms)
	}

	// roles are independent namespaces
	_, ok, err = s.LastRead("room-1", models.RoleCoach)
	if err != nil {
		t.Fatalf("LastRead coach: %v", err)
	}
	if ok {
		t.Fatalf("coach watermark must be independent of student")
	}
}
