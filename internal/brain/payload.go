package brain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/airis/internal/memory"
)

// memoryItemWire is the function-call payload schema the model emits.
type memoryItemWire struct {
	MemoryText      string `json:"memory_text"`
	ImportanceLevel string `json:"importance_level"`
	Category        string `json:"category"`
	Timestamp       string `json:"timestamp"`
}

// ParseMemoryPayload validates and decodes an ordered function-call payload.
// A payload that is not a JSON array of items with non-empty memory_text is
// a protocol mismatch; unknown importance levels degrade to medium and a
// missing category defaults to "context".
func ParseMemoryPayload(raw json.RawMessage) ([]memory.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var items []memoryItemWire
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := make([]memory.Record, 0, len(items))
	for i, item := range items {
		text := strings.TrimSpace(item.MemoryText)
		if text == "" {
			return nil, fmt.Errorf("%w: item %d has empty memory_text", ErrMalformedPayload, i)
		}

		category := strings.TrimSpace(item.Category)
		if category == "" {
			category = "context"
		}

		ts := time.Now().UTC()
		if strings.TrimSpace(item.Timestamp) != "" {
			parsed, err := time.Parse(memory.TimeLayout, strings.TrimSpace(item.Timestamp))
			if err != nil {
				return nil, fmt.Errorf("%w: item %d timestamp %q", ErrMalformedPayload, i, item.Timestamp)
			}
			ts = parsed
		}

		out = append(out, memory.Record{
			MemoryText: text,
			Importance: memory.ParseImportance(item.ImportanceLevel),
			Category:   category,
			Timestamp:  ts,
		})
	}
	return out, nil
}
