package brain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/antoniostano/airis/internal/memory"
)

func TestParseMemoryPayloadValid(t *testing.T) {
	raw := json.RawMessage(`[
		{"memory_text":"User prefers fast TTS speed","importance_level":"high","category":"user_preference","timestamp":"2025-07-18 14:23:01"},
		{"memory_text":"Lives in Seoul","importance_level":"critical","category":"personal_info","timestamp":"2025-07-18 14:23:02"}
	]`)

	items, err := ParseMemoryPayload(raw)
	if err != nil {
		t.Fatalf("ParseMemoryPayload() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].MemoryText != "User prefers fast TTS speed" || items[0].Importance != memory.ImportanceHigh {
		t.Fatalf("first item = %+v", items[0])
	}
	if got := items[0].Timestamp.Format(memory.TimeLayout); got != "2025-07-18 14:23:01" {
		t.Fatalf("timestamp = %q", got)
	}
}

func TestParseMemoryPayloadDefaults(t *testing.T) {
	raw := json.RawMessage(`[{"memory_text":"Some fact","importance_level":"extreme"}]`)
	items, err := ParseMemoryPayload(raw)
	if err != nil {
		t.Fatalf("ParseMemoryPayload() error = %v", err)
	}
	if items[0].Category != "context" {
		t.Fatalf("category = %q, want default context", items[0].Category)
	}
	if items[0].Importance != memory.ImportanceMedium {
		t.Fatalf("unknown importance should degrade to medium, got %q", items[0].Importance)
	}
	if items[0].Timestamp.IsZero() {
		t.Fatalf("missing timestamp should default to now")
	}
}

func TestParseMemoryPayloadMalformed(t *testing.T) {
	cases := []string{
		`{"memory_text":"not an array"}`,
		`[{"memory_text":""}]`,
		`[{"importance_level":"high"}]`,
		`[{"memory_text":"x","timestamp":"18/07/2025"}]`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseMemoryPayload(json.RawMessage(raw)); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("payload %q: err = %v, want ErrMalformedPayload", raw, err)
		}
	}
}

func TestParseMemoryPayloadEmpty(t *testing.T) {
	items, err := ParseMemoryPayload(nil)
	if err != nil || items != nil {
		t.Fatalf("empty payload = (%v, %v), want (nil, nil)", items, err)
	}
}
