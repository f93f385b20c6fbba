package models

import (
	"errors"
	"strings"
	"time"
)

// Role identifies the local participant kind in a room. The set is closed;
// inbound payloads carrying anything else are rejected at parse time.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleCoach   Role = "coach"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStudent, RoleCoach:
		return true
	}
	return false
}

// Message is the canonical chat message shape. ID is client-generated for
// outbound messages and never remapped afterwards; the client id stays
// authoritative across echoes and history replays.
type Message struct {
	ID          string       `json:"id"`
	Room        string       `json:"room"`
	Sender      Role         `json:"sender"`
	Text        string       `json:"text"`
	At          string       `json:"at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment carries a file inline with its message. Data is the full
// base64-encoded content; there is no out-of-band blob store.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// ErrEmptyDraft is returned for a send with no text and no attachments.
var ErrEmptyDraft = errors.New("empty message: no text and no attachments")

// NormalizeRoom canonicalizes a room identifier (trimmed, lowercased).
func NormalizeRoom(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}

// ValidateDraft rejects no-op sends before any state is touched.
func ValidateDraft(text string, attachmentCount int) error {
	if strings.TrimSpace(text) == "" && attachmentCount == 0 {
		return ErrEmptyDraft
	}
	return nil
}

// Stamp returns the client-side timestamp for an outbound message.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseStamp parses a message timestamp. The zero time and false are
// returned for anything that does not parse as RFC 3339.
func ParseStamp(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
