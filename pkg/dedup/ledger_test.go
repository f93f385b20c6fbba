package dedup

import "testing"

func TestAdmitIsIdempotent(t *testing.T) {
	l := NewLedger("room-1")
	if !l.Admit("m1") {
		t.Fatalf("first Admit should succeed")
	}
	if l.Admit("m1") {
		t.Fatalf("second Admit for same id should be rejected")
	}
	if !l.Seen("m1") {
		t.Fatalf("id should be recorded")
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestAdmitRejectsEmptyID(t *testing.T) {
	l := NewLedger("room-1")
	if l.Admit("") {
		t.Fatalf("empty id must never be admitted")
	}
	if l.Len() != 0 {
		t.Fatalf("ledger should stay empty")
	}
}

func TestLedgersAreDisjointPerRoom(t *testing.T) {
	a := NewLedger("room-a")
	b := NewLedger("room-b")
	a.Add("m1")
	if b.Seen("m1") {
		t.Fatalf("room-b ledger must not see room-a ids")
	}
	if a.Room() != "room-a" || b.Room() != "room-b" {
		t.Fatalf("room scoping lost")
	}
}
