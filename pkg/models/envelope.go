package models

import (
	"encoding/json"
	"fmt"
)

// Envelope kinds shared by the network wire protocol and the same-device
// broadcast channel.
const (
	KindMessage = "message"
	KindHistory = "history"
)

// Inbound is the envelope for frames received from the network endpoint.
// Data is decoded lazily once the kind is known.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is the flattened envelope for frames sent to the network
// endpoint: the message fields ride at the top level next to "type".
type Outbound struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Room        string       `json:"room"`
	Sender      Role         `json:"sender"`
	Text        string       `json:"text"`
	At          string       `json:"at,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// OutboundFrom wraps a message for the wire.
func OutboundFrom(m Message) Outbound {
	return Outbound{
		Type:        KindMessage,
		ID:          m.ID,
		Room:        m.Room,
		Sender:      m.Sender,
		Text:        m.Text,
		At:          m.At,
		Attachments: m.Attachments,
	}
}

// Message reconstructs the canonical message from an outbound frame.
func (o Outbound) Message() Message {
	return Message{
		ID:          o.ID,
		Room:        NormalizeRoom(o.Room),
		Sender:      o.Sender,
		Text:        o.Text,
		At:          o.At,
		Attachments: o.Attachments,
	}
}

// DecodeInbound parses a raw frame into its envelope. It rejects unknown
// kinds so the receive loop can drop them without touching any state.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env Inbound
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("malformed envelope: %w", err)
	}
	switch env.Type {
	case KindMessage, KindHistory:
		return env, nil
	default:
		return Inbound{}, fmt.Errorf("unknown envelope type %q", env.Type)
	}
}

// HistoryPayload decodes a history envelope's message list.
func (e Inbound) HistoryPayload() ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(e.Data, &msgs); err != nil {
		return nil, fmt.Errorf("malformed history payload: %w", err)
	}
	return msgs, nil
}

// MessagePayload decodes a live message envelope.
func (e Inbound) MessagePayload() (Message, error) {
	var m Message
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return Message{}, fmt.Errorf("malformed message payload: %w", err)
	}
	if m.ID == "" {
		return Message{}, fmt.Errorf("message payload missing id")
	}
	return m, nil
}
