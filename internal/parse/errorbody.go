package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// HTMLBodyMessage replaces HTML error pages, usually served by a misrouted proxy.
const HTMLBodyMessage = "server returned HTML instead of JSON"

// ErrorBody extracts a human readable message from a non-2xx response body.
// JSON bodies yield their "error" or "message" field verbatim.
func ErrorBody(status int, contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if LooksLikeHTML(contentType, trimmed) {
		return HTMLBodyMessage
	}

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		for _, key := range []string{"error", "message"} {
			if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// LooksLikeHTML sniffs the content type and the start of the body.
func LooksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	body = bytes.TrimSpace(body)
	lower := bytes.ToLower(body[:min(len(body), 64)])
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}
