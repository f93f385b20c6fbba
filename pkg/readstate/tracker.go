// Package readstate keeps the per-room, per-role "last seen" watermark
// used for unread badges and notification suppression. Watermarks are
// epoch milliseconds persisted in the durable store so they survive
// restarts; every update also pings other same-device views.
package readstate

import (
	"sort"
	"time"

	"chatsync/pkg/broadcast"
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

// Tracker reads and writes read-state watermarks.
type Tracker struct {
	st  *store.Store
	hub *broadcast.Hub

	// now is injectable for tests.
	now func() time.Time
}

// NewTracker returns a tracker over st. hub may be nil when no other
// views need ping notifications.
func NewTracker(st *store.Store, hub *broadcast.Hub) *Tracker {
	return &Tracker{st: st, hub: hub, now: time.Now}
}

// MarkRead records "now" as the watermark for (room, role) and pings
// other views so unread badges recompute.
func (t *Tracker) MarkRead(room string, role models.Role) error {
	room = models.NormalizeRoom(room)
	ms := t.now().UnixMilli()
	if err := t.st.SetLastRead(room, role, ms); err != nil {
		return err
	}
	logger.Debug("marked_read", "room", room, "role", role, "at_ms", ms)
	if t.hub != nil {
		t.hub.Publish(broadcast.ReadStateTopic, broadcast.Event{
			Type: broadcast.EventReadPing,
			Room: room,
			Role: role,
		}, nil)
	}
	return nil
}

// LastRead returns the stored watermark, with ok=false when none exists.
func (t *Tracker) LastRead(room string, role models.Role) (time.Time, bool, error) {
	ms, ok, err := t.st.LastRead(room, role)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return time.UnixMilli(ms), true, nil
}

// IsUnread reports whether a room with activity at lastActivityAt holds
// messages the role has not seen. A room with activity but no recorded
// watermark counts as unread; a room with no activity never does.
func (t *Tracker) IsUnread(room string, role models.Role, lastActivityAt time.Time) (bool, error) {
	if lastActivityAt.IsZero() {
		return false, nil
	}
	last, ok, err := t.LastRead(room, role)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return lastActivityAt.After(last), nil
}

// UnreadRooms filters activity (room -> most recent activity time) down
// to the rooms the role has unread messages in, sorted for stable output.
func (t *Tracker) UnreadRooms(role models.Role, activity map[string]time.Time) ([]string, error) {
	var rooms []string
	for room, at := range activity {
		unread, err := t.IsUnread(room, role, at)
		if err != nil {
			return nil, err
		}
		if unread {
			rooms = append(rooms, models.NormalizeRoom(room))
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}
