package notification

import "time"

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// ChangeEvent is one row change delivered over the push channel. The row is
// the raw table row without joins: insert events are resolved to the full
// joined record before merging, update events are applied as-is on top of
// the cached entry.
type ChangeEvent struct {
	Op          Op            `json:"op"`
	ID          int64         `json:"id"`
	RecipientID int64         `json:"recipient_id"`
	Row         *Notification `json:"row,omitempty"`
	At          time.Time     `json:"at"`
}
