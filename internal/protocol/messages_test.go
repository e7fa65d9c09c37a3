package protocol

import (
	"errors"
	"testing"

	"github.com/antoniostano/airis/internal/session"
)

func TestParseClientText(t *testing.T) {
	raw := []byte(`{"type":"client_text","text":"hello there","nickname":"viewer42"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	text, ok := msg.(ClientText)
	if !ok {
		t.Fatalf("message type = %T, want ClientText", msg)
	}
	if text.Text != "hello there" || text.Nickname != "viewer42" {
		t.Fatalf("unexpected message: %+v", text)
	}
}

func TestParseClientTextRejectsEmpty(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_text","text":""}`)); err == nil {
		t.Fatalf("empty text should be rejected")
	}
}

func TestParseClientControlActions(t *testing.T) {
	for _, action := range []string{ActionInterrupt, ActionExtract, ActionEnd} {
		raw := []byte(`{"type":"client_control","action":"` + action + `"}`)
		msg, err := ParseClientMessage(raw)
		if err != nil {
			t.Fatalf("action %q: error = %v", action, err)
		}
		if got := msg.(ClientControl).Action; got != action {
			t.Fatalf("action = %q, want %q", got, action)
		}
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"reboot"}`)); err == nil {
		t.Fatalf("unknown action should be rejected")
	}
}

func TestParseRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"status_event"}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("server-only type: err = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("malformed payload should be rejected")
	}
}

func TestNewStatusEvent(t *testing.T) {
	snap := session.Snapshot{
		Status:            session.StatusSpeaking,
		ActiveExchangeID:  "ex-1",
		InterruptionCount: 3,
		LastError:         "model timeout",
	}
	ev := NewStatusEvent(snap)
	if ev.Type != TypeStatusEvent || ev.Status != session.StatusSpeaking || ev.InterruptionCount != 3 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
