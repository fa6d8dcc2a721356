package kafka

import (
	"context"
	"encoding/json"

	"github.com/pulseboard/feedsync/internal/domain/notification"
)

// ChangeHandler decodes change-feed payloads before handing them on.
func ChangeHandler(handle func(ctx context.Context, key []byte, ev *notification.ChangeEvent) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var ev notification.ChangeEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		return handle(ctx, key, &ev)
	}
}

// ChangeEventsKafka publishes notification change events, keyed by
// recipient so per-recipient delivery order is preserved.
type ChangeEventsKafka struct {
	p *Producer
}

func NewChangeEventsKafka(p *Producer) *ChangeEventsKafka { return &ChangeEventsKafka{p: p} }

func (e *ChangeEventsKafka) Publish(ctx context.Context, ev *notification.ChangeEvent) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.RecipientID), ev)
}
