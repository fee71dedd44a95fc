package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
)

// CommandType identifies the instruction carried by a command.
type CommandType string

const (
	CommandSetBrightness CommandType = "SET_BRIGHTNESS"
	CommandSetVolume     CommandType = "SET_VOLUME"
	CommandMute          CommandType = "MUTE"
	CommandUnmute        CommandType = "UNMUTE"
	CommandScreenOn      CommandType = "SCREEN_ON"
	CommandScreenOff     CommandType = "SCREEN_OFF"
	CommandShutdown      CommandType = "SHUTDOWN"
	CommandReboot        CommandType = "REBOOT"
	CommandPing          CommandType = "PING"
	CommandScreenshot    CommandType = "SCREENSHOT"
	CommandRecord        CommandType = "RECORD"
	CommandPlayContent   CommandType = "PLAY_CONTENT"
	CommandClearCache    CommandType = "CLEAR_CACHE"
	CommandSyncContent   CommandType = "SYNC_CONTENT"
)

// CommandState is derived from the sent/executed flags.
type CommandState string

const (
	CommandPending  CommandState = "pending"
	CommandSent     CommandState = "sent"
	CommandExecuted CommandState = "executed"
)

// Rank orders states so transitions can be checked for monotonicity.
func (s CommandState) Rank() int {
	switch s {
	case CommandSent:
		return 1
	case CommandExecuted:
		return 2
	}
	return 0
}

// Command is a single instruction addressed to one device. Payload columns
// (type, value, extra) are written once on insert.
type Command struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID   string            `gorm:"size:64;not null;index:idx_commands_device_created,priority:1" json:"deviceId"`
	Type       CommandType       `gorm:"size:32;not null" json:"-"`
	Value      *int              `json:"-"`
	Extra      datatypes.JSONMap `json:"-"`
	Sent       bool              `gorm:"not null;default:false" json:"sent"`
	SentAt     *time.Time        `json:"sentAt"`
	Executed   bool              `gorm:"not null;default:false" json:"executed"`
	ExecutedAt *time.Time        `json:"executedAt"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_commands_device_created,priority:2" json:"createdAt"`

	// Stale marks a sent command whose confirmation is overdue. Computed on read.
	Stale bool `gorm:"-" json:"stale,omitempty"`

	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// State returns the lifecycle state implied by the flags.
func (c Command) State() CommandState {
	switch {
	case c.Executed:
		return CommandExecuted
	case c.Sent:
		return CommandSent
	}
	return CommandPending
}

// Payload returns the tagged payload of the command.
func (c Command) Payload() CommandPayload {
	return CommandPayload{Type: c.Type, Value: c.Value, Extra: map[string]any(c.Extra)}
}

func (c Command) MarshalJSON() ([]byte, error) {
	type alias Command
	return json.Marshal(struct {
		alias
		Payload CommandPayload `json:"payload"`
		State   CommandState   `json:"state"`
	}{alias(c), c.Payload(), c.State()})
}

func (c *Command) UnmarshalJSON(b []byte) error {
	type alias Command
	aux := struct {
		*alias
		Payload CommandPayload `json:"payload"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Type = aux.Payload.Type
	c.Value = aux.Payload.Value
	if len(aux.Payload.Extra) > 0 {
		c.Extra = datatypes.JSONMap(aux.Payload.Extra)
	}
	return nil
}

// CommandPayload is the wire body sent to a device: {type, value?, ...extra}.
type CommandPayload struct {
	Type  CommandType
	Value *int
	Extra map[string]any
}

func (p CommandPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["type"] = p.Type
	if p.Value != nil {
		out["value"] = *p.Value
	}
	return json.Marshal(out)
}

func (p *CommandPayload) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = CommandPayload{}
	if t, ok := raw["type"].(string); ok {
		p.Type = CommandType(t)
	}
	delete(raw, "type")
	if v, ok := raw["value"]; ok && v != nil {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("command value must be an integer, got %v", v)
		}
		n := int(f)
		p.Value = &n
	}
	delete(raw, "value")
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}
