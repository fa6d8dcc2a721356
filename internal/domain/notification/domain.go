package notification

import (
	"context"
	"time"
)

// Closed set of notification kinds the platform emits.
const (
	TypeReply      = "reply"
	TypeMention    = "mention"
	TypeVote       = "vote"
	TypeTaskAssign = "task_assignment"
	TypeDigest     = "digest"
)

type Actor struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Notification is a single addressed event record shown to one recipient.
// Every field except IsRead is immutable after creation.
type Notification struct {
	ID          int64             `json:"id"`
	RecipientID int64             `json:"recipient_id"`
	ActorID     *int64            `json:"actor_id,omitempty"`
	Actor       *Actor            `json:"actor,omitempty"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IsRead      bool              `json:"is_read"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Alerter is the fire-and-forget side channel for freshly merged
// notifications. Failures must never affect the feed itself.
type Alerter interface {
	Alert(ctx context.Context, n *Notification) error
}

type Clock interface {
	Now() time.Time
}
