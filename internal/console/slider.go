package console

import (
	"context"
	"sync"

	"signage-control-backend/internal/model"
)

// Slider sends nothing while dragged; Release commits the final value as a
// single command.
type Slider struct {
	view  *DeviceView
	field Field

	mu       sync.Mutex
	value    int
	dragging bool
}

// Drag records an intermediate value, clamped to 0..100.
func (s *Slider) Drag(value int) {
	value = max(0, min(100, value))
	s.mu.Lock()
	s.value = value
	s.dragging = true
	s.mu.Unlock()
	s.view.notify()
}

// Release dispatches the last dragged value. A release without a drag sends
// nothing and returns nil.
func (s *Slider) Release(ctx context.Context) (*model.Command, error) {
	s.mu.Lock()
	if !s.dragging {
		s.mu.Unlock()
		return nil, nil
	}
	value := s.value
	s.dragging = false
	s.mu.Unlock()

	s.view.setOverlay(s.field, value)
	cmd, err := s.view.Send(ctx, model.CommandPayload{Type: s.field.commandType(), Value: &value})
	if err != nil {
		s.view.clearOverlay(s.field)
	}
	return cmd, err
}

func (s *Slider) dragValue() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.dragging
}
