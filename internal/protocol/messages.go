// Package protocol defines the websocket payloads exchanged with the GUI.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antoniostano/airis/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientText    MessageType = "client_text"
	TypeClientControl MessageType = "client_control"
	TypeAssistantText MessageType = "assistant_text"
	TypeStatusEvent   MessageType = "status_event"
	TypeMemoryEvent   MessageType = "memory_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions accepted on client_control.
const (
	ActionInterrupt = "interrupt"
	ActionExtract   = "extract"
	ActionEnd       = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientText is a typed user utterance. Nickname is set when the text comes
// from a live-chat collector rather than the local user.
type ClientText struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	Nickname string      `json:"nickname,omitempty"`
	TSMs     int64       `json:"ts_ms,omitempty"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type AssistantText struct {
	Type       MessageType `json:"type"`
	ExchangeID string      `json:"exchange_id"`
	Text       string      `json:"text"`
}

// StatusEvent mirrors the conversation state machine for the GUI.
type StatusEvent struct {
	Type              MessageType    `json:"type"`
	Status            session.Status `json:"status"`
	ActiveExchangeID  string         `json:"active_exchange_id,omitempty"`
	InterruptionCount int            `json:"interruption_count"`
	LastError         string         `json:"last_error,omitempty"`
}

// MemoryEvent announces the outcome of an extraction pass.
type MemoryEvent struct {
	Type     MessageType `json:"type"`
	Source   string      `json:"source"`
	Accepted int         `json:"accepted"`
	Created  int         `json:"created"`
	Merged   int         `json:"merged"`
	Stale    bool        `json:"stale"`
}

type ErrorEvent struct {
	Type MessageType `json:"type"`
	Code string      `json:"code"`
	// Kind is the reliability failure bucket (transient_external,
	// resource_contention, data_integrity, protocol_mismatch).
	Kind      string `json:"kind,omitempty"`
	Source    string `json:"source"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// NewStatusEvent builds a status_event from a state snapshot.
func NewStatusEvent(snap session.Snapshot) StatusEvent {
	return StatusEvent{
		Type:              TypeStatusEvent,
		Status:            snap.Status,
		ActiveExchangeID:  snap.ActiveExchangeID,
		InterruptionCount: snap.InterruptionCount,
		LastError:         snap.LastError,
	}
}

// ParseClientMessage validates and decodes a raw client payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_text: empty text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionInterrupt, ActionExtract, ActionEnd:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
