// Package bridge turns a room's inbound data-channel messages into
// transcript events.
package bridge

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/teknolabs/vocameet-server/internal/model"
)

// Decode never fails: anything that is not a recognized JSON object is
// shown as raw text.
func Decode(payload []byte) model.TranscriptEvent {
	raw := strings.ToValidUTF8(string(payload), "\uFFFD")
	ev := model.TranscriptEvent{Text: raw}

	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil || msg == nil {
		ev.ID = uuid.NewString()
		return ev
	}

	typ, _ := msg["type"].(string)
	if text, ok := msg["text"].(string); ok && typ == "transcript" {
		ev.Text = text
	} else if text, ok := stringify(msg["text"]); ok {
		ev.Text = text
	}

	if id, ok := msg["id"].(string); ok && id != "" {
		ev.ID = id
	} else {
		ev.ID = uuid.NewString()
	}
	if speaker, ok := msg["speaker"].(string); ok && model.Speaker(speaker).Valid() {
		ev.Speaker = model.Speaker(speaker)
	}
	if ts, ok := msg["timestamp"].(string); ok {
		ev.Timestamp = ts
	}
	return ev
}

// stringify renders a present, non-empty text field. Empty strings, zero,
// false and null count as absent.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case float64:
		if t == 0 {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return "true", t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}
