package apiclient

import (
	"encoding/json"
	"strings"
)

// serverMessage extracts a human-readable message from an error body.
// Recognised shapes, in order: {"message"}, {"error": "..."}, {"error": {"message"}}, {"detail"}.
// Message arrays are joined with "; ".
func serverMessage(body []byte, fallback string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fallback
	}

	for _, key := range []string{"message", "error", "detail"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if msg := messageValue(raw); msg != "" {
			return msg
		}
	}
	return fallback
}

func messageValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, "; "))
	}

	var nested struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Message) > 0 {
		return messageValue(nested.Message)
	}
	return ""
}
