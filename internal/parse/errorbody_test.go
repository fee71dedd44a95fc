package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorBody(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{"error field", 400, "application/json", `{"error":"device not found"}`, "device not found"},
		{"message field", 500, "application/json", `{"message":"database down"}`, "database down"},
		{"error wins over message", 409, "", `{"error":"a","message":"b"}`, "a"},
		{"html content type", 502, "text/html; charset=utf-8", `Bad gateway`, HTMLBodyMessage},
		{"html sniffed", 404, "", "  <!DOCTYPE html><html><body>nope</body></html>", HTMLBodyMessage},
		{"plain text", 503, "text/plain", "unavailable", "request failed with status 503"},
		{"empty", 500, "", "", "request failed with status 500"},
		{"blank error", 400, "application/json", `{"error":"  "}`, "request failed with status 400"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorBody(tc.status, tc.contentType, []byte(tc.body)))
		})
	}
}
