package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseboard/feedsync/internal/domain/notification"
	"go.uber.org/zap"
)

type Config struct {
	Window         int
	ResolveTimeout time.Duration
	EventBuffer    int
	Alerts         bool
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 50
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 3 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// Engine keeps one recipient's notification window synchronized across the
// bulk load, the live change feed and local read-state mutations. All
// stream-driven mutations run on the Run goroutine; the store's own locking
// makes the API-driven mutators safe against them.
type Engine struct {
	log     *zap.Logger
	repo    notification.Repo
	alerter notification.Alerter

	recipientID int64
	cfg         Config

	store   *Store
	events  chan *notification.ChangeEvent
	loading atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

func NewEngine(log *zap.Logger, repo notification.Repo, alerter notification.Alerter, recipientID int64, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		log:         log.With(zap.String("component", "feed.engine"), zap.Int64("recipient_id", recipientID)),
		repo:        repo,
		alerter:     alerter,
		recipientID: recipientID,
		cfg:         cfg,
		store:       NewStore(cfg.Window),
		events:      make(chan *notification.ChangeEvent, cfg.EventBuffer),
		closed:      make(chan struct{}),
	}
}

func (e *Engine) RecipientID() int64 { return e.recipientID }

// Load fetches the most recent window and replaces the store wholesale.
// On failure the store keeps its prior state and the error is returned for
// the caller to surface; there is no built-in retry.
func (e *Engine) Load(ctx context.Context) error {
	e.loading.Store(true)
	defer e.loading.Store(false)

	items, err := e.repo.ListByRecipient(ctx, e.recipientID, e.cfg.Window)
	if err != nil {
		mBulkLoads.WithLabelValues("error").Inc()
		e.log.Error("bulk load failed", zap.Error(err))
		return err
	}
	if e.isClosed() {
		return nil
	}
	e.store.ReplaceAll(items)
	mBulkLoads.WithLabelValues("ok").Inc()
	e.log.Debug("bulk load done", zap.Int("items", len(items)), zap.Int("unread", e.store.UnreadCount()))
	return nil
}

// Deliver hands a change event to the engine's reconciliation loop. It
// never blocks the transport; a full buffer drops the event (the next
// refresh reconciles).
func (e *Engine) Deliver(ev *notification.ChangeEvent) {
	select {
	case <-e.closed:
	case e.events <- ev:
		return
	default:
		mEventsDropped.Inc()
		e.log.Warn("event buffer full, dropping", zap.Int64("id", ev.ID), zap.String("op", string(ev.Op)))
	}
}

// Run consumes delivered events one at a time, in arrival order, until the
// context is canceled or the engine is closed.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closed:
			return
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev *notification.ChangeEvent) {
	mEventsConsumed.WithLabelValues(string(ev.Op)).Inc()
	switch ev.Op {
	case notification.OpInsert:
		e.handleInsert(ctx, ev)
	case notification.OpUpdate:
		e.handleUpdate(ev)
	default:
		e.log.Warn("unknown change op", zap.String("op", string(ev.Op)))
	}
}

func (e *Engine) handleInsert(ctx context.Context, ev *notification.ChangeEvent) {
	// The push event carries the raw row only; display needs the joined
	// actor profile, so resolve before merging.
	rctx, cancel := context.WithTimeout(ctx, e.cfg.ResolveTimeout)
	defer cancel()

	n, err := e.repo.GetByID(rctx, ev.ID, e.recipientID)
	if err != nil {
		mResolveFailures.Inc()
		e.log.Error("resolve failed, dropping insert", zap.Int64("id", ev.ID), zap.Error(err))
		return
	}
	if !e.store.Insert(n) {
		mDuplicatesDropped.Inc()
		e.log.Debug("duplicate insert dropped", zap.Int64("id", ev.ID))
		return
	}
	mInsertsMerged.Inc()

	if e.cfg.Alerts && e.alerter != nil {
		go func() {
			actx, acancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer acancel()
			if err := e.alerter.Alert(actx, n); err != nil {
				mAlertFailures.Inc()
				e.log.Warn("alert failed", zap.Int64("id", n.ID), zap.Error(err))
			}
		}()
	}
}

func (e *Engine) handleUpdate(ev *notification.ChangeEvent) {
	row := ev.Row
	if row == nil {
		e.log.Warn("update event without row", zap.Int64("id", ev.ID))
		return
	}
	if !e.store.ApplyUpdate(row) {
		mUpdatesIgnored.Inc()
		e.log.Debug("update outside window ignored", zap.Int64("id", ev.ID))
	}
}

// MarkAsRead flips the item locally first, then persists. A persistence
// failure is logged, not surfaced, and the local state is not rolled back;
// the next refresh reconciles.
func (e *Engine) MarkAsRead(ctx context.Context, id int64) {
	e.store.MarkRead(id)
	if err := e.repo.MarkRead(ctx, id, e.recipientID); err != nil {
		mWriteFailures.Inc()
		e.log.Error("mark-as-read persist failed", zap.Int64("id", id), zap.Error(err))
	}
}

func (e *Engine) MarkAllAsRead(ctx context.Context) {
	e.store.MarkAllRead()
	if err := e.repo.MarkAllRead(ctx, e.recipientID); err != nil {
		mWriteFailures.Inc()
		e.log.Error("mark-all-as-read persist failed", zap.Error(err))
	}
}

// Snapshot exposes the current window, unread counter and loading flag.
func (e *Engine) Snapshot() ([]*notification.Notification, int, bool) {
	items, unread := e.store.Snapshot()
	return items, unread, e.loading.Load()
}

// Close tears the engine down: the store empties and every later mutation,
// including results of fetches still in flight, becomes a no-op.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.store.Close()
	})
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}
