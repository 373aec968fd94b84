package events

import (
	"context"
	"slices"
	"sync"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// Dispatcher routes outbox entries to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]DeliveryHandler
	logger   *logging.Logger
}

func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{handlers: make(map[string]DeliveryHandler), logger: logger}
}

// Register binds eventType to h, replacing any previous handler.
func (d *Dispatcher) Register(eventType string, h DeliveryHandler) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = h
	return d
}

// Types returns the registered event types.
func (d *Dispatcher) Types() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for _, t := range BookingTypes {
		if _, ok := d.handlers[t]; ok {
			out = append(out, t)
		}
	}
	for t := range d.handlers {
		if !slices.Contains(BookingTypes, t) {
			out = append(out, t)
		}
	}
	return out
}

// Handle implements DeliveryHandler. Entries without a handler are dropped
// with a warning so they do not block the outbox.
func (d *Dispatcher) Handle(ctx context.Context, entry OutboxEntry) error {
	d.mu.RLock()
	h, ok := d.handlers[entry.Type]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("no handler for outbox entry", "event_id", entry.ID, "type", entry.Type)
		return nil
	}
	return h.Handle(ctx, entry)
}
