package command

import (
	"fmt"
	"strings"

	"signage-control-backend/internal/model"
)

// Intent is what an operator asks for: {type, value?, ...extra}.
type Intent = model.CommandPayload

// ValidationError is returned before anything is written or sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var knownTypes = map[model.CommandType]bool{
	model.CommandSetBrightness: true,
	model.CommandSetVolume:     true,
	model.CommandMute:          true,
	model.CommandUnmute:        true,
	model.CommandScreenOn:      true,
	model.CommandScreenOff:     true,
	model.CommandShutdown:      true,
	model.CommandReboot:        true,
	model.CommandPing:          true,
	model.CommandScreenshot:    true,
	model.CommandRecord:        true,
	model.CommandPlayContent:   true,
	model.CommandClearCache:    true,
	model.CommandSyncContent:   true,
}

// IsNumeric reports whether t carries a 0..100 value.
func IsNumeric(t model.CommandType) bool {
	return t == model.CommandSetBrightness || t == model.CommandSetVolume
}

// Validate checks an intent against the command catalogue.
func Validate(intent Intent) error {
	if !knownTypes[intent.Type] {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown command type %q", intent.Type)}
	}
	if IsNumeric(intent.Type) {
		if intent.Value == nil {
			return &ValidationError{Field: "value", Message: fmt.Sprintf("%s requires a value", intent.Type)}
		}
		if *intent.Value < 0 || *intent.Value > 100 {
			return &ValidationError{Field: "value", Message: "must be between 0 and 100"}
		}
	} else if intent.Value != nil {
		return &ValidationError{Field: "value", Message: fmt.Sprintf("%s does not take a value", intent.Type)}
	}
	if intent.Type == model.CommandPlayContent {
		id, _ := intent.Extra["contentId"].(string)
		if strings.TrimSpace(id) == "" {
			return &ValidationError{Field: "contentId", Message: "PLAY_CONTENT requires a contentId"}
		}
	}
	return nil
}
