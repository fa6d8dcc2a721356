package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pulseboard/feedsync/internal/domain/notification"
	domoutbox "github.com/pulseboard/feedsync/internal/domain/outbox"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

// NotificationRepoImpl is the backing store's query and write capability.
// Read-state writes enqueue the matching change event in the same
// transaction, so other sessions of the recipient see the transition.
type NotificationRepoImpl struct {
	db     *DB
	outbox domoutbox.Repository
	tx     Transactor
}

func NewNotificationRepo(db *DB, ob domoutbox.Repository, tx Transactor) *NotificationRepoImpl {
	return &NotificationRepoImpl{db: db, outbox: ob, tx: tx}
}

const (
	qNotifCols = `
n.id, n.recipient_id, n.actor_id, n.type, n.title, n.message, n.metadata, n.is_read, n.created_at,
a.display_name, a.avatar_url`

	qNotifByRecipient = `
SELECT ` + qNotifCols + `
FROM notifications n
LEFT JOIN actors a ON a.id = n.actor_id
WHERE n.recipient_id = $1
ORDER BY n.created_at DESC
LIMIT $2;`

	qNotifByID = `
SELECT ` + qNotifCols + `
FROM notifications n
LEFT JOIN actors a ON a.id = n.actor_id
WHERE n.id = $1 AND n.recipient_id = $2;`

	qMarkRead = `
UPDATE notifications
SET is_read = TRUE
WHERE id = $1 AND recipient_id = $2 AND NOT is_read
RETURNING id, recipient_id, actor_id, type, title, message, metadata, is_read, created_at;`

	qMarkAllRead = `
UPDATE notifications
SET is_read = TRUE
WHERE recipient_id = $1 AND NOT is_read
RETURNING id, recipient_id, actor_id, type, title, message, metadata, is_read, created_at;`
)

func (r *NotificationRepoImpl) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByRecipient, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)
	for rows.Next() {
		n, err := scanJoined(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepoImpl) GetByID(ctx context.Context, id, recipientID int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifByID, id, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanJoined(rows)
}

func (r *NotificationRepoImpl) MarkRead(ctx context.Context, id, recipientID int64) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		eq := r.db.execQueryer(ctx)
		row, err := scanRaw(eq.QueryRow(ctx, qMarkRead, id, recipientID))
		if errors.Is(err, pgx.ErrNoRows) {
			// already read, or not owned by this recipient
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		return r.enqueueUpdate(ctx, row)
	})
}

func (r *NotificationRepoImpl) MarkAllRead(ctx context.Context, recipientID int64) error {
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		rows, err := r.db.querier(ctx).Query(ctx, qMarkAllRead, recipientID)
		if err != nil {
			return fmt.Errorf("mark all read: %w", err)
		}
		defer rows.Close()

		var updated []*notification.Notification
		for rows.Next() {
			n, err := scanRaw(rows)
			if err != nil {
				return err
			}
			updated = append(updated, n)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		for _, n := range updated {
			if err := r.enqueueUpdate(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// enqueueUpdate records the read transition in the outbox; is_read is
// terminal, so the per-id idempotency key cannot collide with a later event.
func (r *NotificationRepoImpl) enqueueUpdate(ctx context.Context, n *notification.Notification) error {
	ev := notification.ChangeEvent{
		Op:          notification.OpUpdate,
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Row:         n,
		At:          time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	key := fmt.Sprintf("notification-read-%d", n.ID)
	if err := r.outbox.Enqueue(ctx, key, domoutbox.KindNotificationChanged, data); err != nil {
		return fmt.Errorf("enqueue change event: %w", err)
	}
	return nil
}

func scanJoined(row pgx.Row) (*notification.Notification, error) {
	var (
		n           notification.Notification
		meta        []byte
		displayName *string
		avatarURL   *string
	)
	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.ActorID, &n.Type, &n.Title, &n.Message, &meta, &n.IsRead, &n.CreatedAt,
		&displayName, &avatarURL,
	); err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if err := unmarshalMeta(meta, &n); err != nil {
		return nil, err
	}
	if n.ActorID != nil && displayName != nil {
		n.Actor = &notification.Actor{ID: *n.ActorID, DisplayName: *displayName}
		if avatarURL != nil {
			n.Actor.AvatarURL = *avatarURL
		}
	}
	return &n, nil
}

func scanRaw(row pgx.Row) (*notification.Notification, error) {
	var (
		n    notification.Notification
		meta []byte
	)
	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.ActorID, &n.Type, &n.Title, &n.Message, &meta, &n.IsRead, &n.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if err := unmarshalMeta(meta, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func unmarshalMeta(meta []byte, n *notification.Notification) error {
	if len(meta) == 0 {
		return nil
	}
	if err := json.Unmarshal(meta, &n.Metadata); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}
