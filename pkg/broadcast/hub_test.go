package broadcast

import (
	"testing"

	"chatsync/pkg/models"
)

func TestPublishReachesAllButOrigin(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("room-1", 4)
	b := h.Subscribe("room-1", 4)
	defer a.Close()
	defer b.Close()

	msg := &models.Message{ID: "m1", Room: "room-1", Sender: models.RoleCoach, Text: "hi"}
	h.Publish("room-1", Event{Type: EventMessage, Room: "room-1", Msg: msg}, a)

	select {
	case ev := <-b.C:
		if ev.Msg == nil || ev.Msg.ID != "m1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("subscriber b should have received the event")
	}
	select {
	case ev := <-a.C:
		t.Fatalf("origin subscription must not echo, got %+v", ev)
	default:
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	h := NewHub()
	other := h.Subscribe("room-2", 4)
	defer other.Close()

	h.Publish("room-1", Event{Type: EventMessage, Room: "room-1"}, nil)
	select {
	case ev := <-other.C:
		t.Fatalf("room-2 subscriber got room-1 event: %+v", ev)
	default:
	}
}

func TestCloseIsIdempotentAndDetaches(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("room-1", 1)
	s.Close()
	s.Close()

	// publishing after close must not panic on the closed channel
	h.Publish("room-1", Event{Type: EventReadPing, Room: "room-1", Role: models.RoleAdmin}, nil)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("room-1", 1)
	defer s.Close()

	h.Publish("room-1", Event{Type: EventMessage, Room: "room-1"}, nil)
	h.Publish("room-1", Event{Type: EventMessage, Room: "room-1"}, nil) // dropped, not blocked

	if len(s.C) != 1 {
		t.Fatalf("buffer should hold exactly one event, got %d", len(s.C))
	}
}
