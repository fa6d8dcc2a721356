package notification

import "context"

// Repo is the backing store's query and write capability. Reads resolve the
// actor join eagerly so merged records are display-ready.
type Repo interface {
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*Notification, error)
	GetByID(ctx context.Context, id, recipientID int64) (*Notification, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
}
