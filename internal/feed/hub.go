package feed

import (
	"context"

	"github.com/pulseboard/feedsync/internal/domain/notification"
	"go.uber.org/zap"
)

// Hub is the message-passing boundary between the shared change-feed
// transport and the per-session engines: one consumer feeds it, and it
// routes each event to the engine registered for the event's recipient.
type Hub struct {
	log      *zap.Logger
	sessions *Sessions
}

func NewHub(log *zap.Logger, sessions *Sessions) *Hub {
	return &Hub{
		log:      log.With(zap.String("component", "feed.hub")),
		sessions: sessions,
	}
}

// Route dispatches one event. Events for recipients without an active
// session are dropped; they will be picked up by that user's next bulk load.
func (h *Hub) Route(ev *notification.ChangeEvent) {
	eng := h.sessions.engine(ev.RecipientID)
	if eng == nil {
		h.log.Debug("no session for recipient, event dropped",
			zap.Int64("recipient_id", ev.RecipientID), zap.Int64("id", ev.ID))
		return
	}
	eng.Deliver(ev)
}

// Handler adapts Route to the change-feed consumer callback.
func (h *Hub) Handler() func(ctx context.Context, key []byte, ev *notification.ChangeEvent) error {
	return func(_ context.Context, _ []byte, ev *notification.ChangeEvent) error {
		h.Route(ev)
		return nil
	}
}
