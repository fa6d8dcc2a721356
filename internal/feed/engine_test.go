package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulseboard/feedsync/internal/domain/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRepo struct {
	mu       sync.Mutex
	rows     map[int64]*notification.Notification
	failList bool
	failGet  bool
	failMark bool
	marked   []int64
	markAll  int
}

func newFakeRepo(rows ...*notification.Notification) *fakeRepo {
	m := make(map[int64]*notification.Notification, len(rows))
	for _, n := range rows {
		m[n.ID] = n
	}
	return &fakeRepo{rows: m}
}

func (f *fakeRepo) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("list: connection refused")
	}
	out := make([]*notification.Notification, 0, limit)
	for _, n := range f.rows {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id, recipientID int64) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("get: connection refused")
	}
	n, ok := f.rows[id]
	if !ok || n.RecipientID != recipientID {
		return nil, errors.New("not found")
	}
	cp := *n
	return &cp, nil
}

func (f *fakeRepo) MarkRead(_ context.Context, id, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark {
		return errors.New("mark: connection refused")
	}
	f.marked = append(f.marked, id)
	if n, ok := f.rows[id]; ok {
		n.IsRead = true
	}
	return nil
}

func (f *fakeRepo) MarkAllRead(_ context.Context, recipientID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark {
		return errors.New("mark all: connection refused")
	}
	f.markAll++
	for _, n := range f.rows {
		if n.RecipientID == recipientID {
			n.IsRead = true
		}
	}
	return nil
}

func (f *fakeRepo) add(n *notification.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[n.ID] = n
}

type recordingAlerter struct {
	mu    sync.Mutex
	seen  []int64
	fail  bool
	calls int
}

func (a *recordingAlerter) Alert(_ context.Context, n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.fail {
		return errors.New("alert: no permission")
	}
	a.seen = append(a.seen, n.ID)
	return nil
}

func recipientNotif(id, recipient int64, read bool) *notification.Notification {
	n := notif(id, read)
	n.RecipientID = recipient
	return n
}

func startEngine(t *testing.T, repo notification.Repo, alerter notification.Alerter, cfg Config) *Engine {
	t.Helper()
	eng := NewEngine(zaptest.NewLogger(t), repo, alerter, 7, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(func() {
		cancel()
		eng.Close()
	})
	return eng
}

func insertEvent(id int64) *notification.ChangeEvent {
	return &notification.ChangeEvent{Op: notification.OpInsert, ID: id, RecipientID: 7, At: time.Now().UTC()}
}

func updateEvent(row *notification.Notification) *notification.ChangeEvent {
	return &notification.ChangeEvent{Op: notification.OpUpdate, ID: row.ID, RecipientID: row.RecipientID, Row: row, At: time.Now().UTC()}
}

func TestEngine_LoadThenLiveInsert(t *testing.T) {
	repo := newFakeRepo(
		recipientNotif(1, 7, false),
		recipientNotif(2, 7, true),
		recipientNotif(3, 7, false),
	)
	eng := startEngine(t, repo, nil, Config{})

	require.NoError(t, eng.Load(context.Background()))
	items, unread, loading := eng.Snapshot()
	require.Len(t, items, 3)
	assert.Equal(t, 2, unread)
	assert.False(t, loading)

	repo.add(recipientNotif(4, 7, false))
	eng.Deliver(insertEvent(4))

	require.Eventually(t, func() bool {
		items, unread, _ := eng.Snapshot()
		return len(items) == 4 && unread == 3
	}, time.Second, 5*time.Millisecond)

	items, _, _ = eng.Snapshot()
	assert.Equal(t, int64(4), items[0].ID, "new item must be first")
}

func TestEngine_LoadFailureKeepsPriorState(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	repo.mu.Lock()
	repo.failList = true
	repo.mu.Unlock()

	require.Error(t, eng.Load(context.Background()))
	items, unread, loading := eng.Snapshot()
	assert.Len(t, items, 1)
	assert.Equal(t, 1, unread)
	assert.False(t, loading)
}

func TestEngine_DuplicateInsertDelivery(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	// live event races a bulk reload that already contains the row
	eng.Deliver(insertEvent(1))
	eng.Deliver(insertEvent(1))

	require.Never(t, func() bool {
		items, unread, _ := eng.Snapshot()
		return len(items) != 1 || unread != 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_ResolveFailureDropsEvent(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	repo.mu.Lock()
	repo.failGet = true
	repo.mu.Unlock()

	eng.Deliver(insertEvent(2))

	require.Never(t, func() bool {
		items, _, _ := eng.Snapshot()
		return len(items) != 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_ReadThenDuplicateUpdateEcho(t *testing.T) {
	repo := newFakeRepo(
		recipientNotif(1, 7, false),
		recipientNotif(2, 7, true),
		recipientNotif(3, 7, false),
	)
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))
	_, unread, _ := eng.Snapshot()
	require.Equal(t, 2, unread)

	repo.add(recipientNotif(4, 7, false))
	eng.Deliver(insertEvent(4))
	require.Eventually(t, func() bool {
		items, unread, _ := eng.Snapshot()
		return len(items) == 4 && unread == 3
	}, time.Second, 5*time.Millisecond)

	eng.MarkAsRead(context.Background(), 4)
	_, unread, _ = eng.Snapshot()
	assert.Equal(t, 2, unread)
	assert.Equal(t, []int64{4}, repo.marked)

	// the change feed echoes the same transition back
	eng.Deliver(updateEvent(recipientNotif(4, 7, true)))

	require.Never(t, func() bool {
		_, unread, _ := eng.Snapshot()
		return unread != 2
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_RemoteReadUpdateFromOtherTab(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false), recipientNotif(2, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	eng.Deliver(updateEvent(recipientNotif(2, 7, true)))

	require.Eventually(t, func() bool {
		_, unread, _ := eng.Snapshot()
		return unread == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_UpdateOutsideWindowIsNoop(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	eng.Deliver(updateEvent(recipientNotif(99, 7, true)))

	require.Never(t, func() bool {
		items, unread, _ := eng.Snapshot()
		return len(items) != 1 || unread != 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_MarkAsReadPersistFailureKeepsLocalState(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	repo.mu.Lock()
	repo.failMark = true
	repo.mu.Unlock()

	eng.MarkAsRead(context.Background(), 1)

	// optimistic local state sticks; the error is only logged
	_, unread, _ := eng.Snapshot()
	assert.Equal(t, 0, unread)
}

func TestEngine_MarkAllAsRead(t *testing.T) {
	repo := newFakeRepo(
		recipientNotif(1, 7, false),
		recipientNotif(2, 7, true),
		recipientNotif(3, 7, false),
	)
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	eng.MarkAllAsRead(context.Background())

	items, unread, _ := eng.Snapshot()
	assert.Equal(t, 0, unread)
	for _, n := range items {
		assert.True(t, n.IsRead)
	}
	assert.Equal(t, 1, repo.markAll)
}

func TestEngine_AlertFiredOnMergedInsertOnly(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	alerter := &recordingAlerter{}
	eng := startEngine(t, repo, alerter, Config{Alerts: true})
	require.NoError(t, eng.Load(context.Background()))

	repo.add(recipientNotif(2, 7, false))
	eng.Deliver(insertEvent(2))
	// duplicate merge must not alert again
	eng.Deliver(insertEvent(2))

	require.Eventually(t, func() bool {
		alerter.mu.Lock()
		defer alerter.mu.Unlock()
		return len(alerter.seen) == 1 && alerter.seen[0] == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	alerter.mu.Lock()
	assert.Equal(t, 1, alerter.calls)
	alerter.mu.Unlock()
}

func TestEngine_AlertFailureDoesNotAffectMerge(t *testing.T) {
	repo := newFakeRepo()
	alerter := &recordingAlerter{fail: true}
	eng := startEngine(t, repo, alerter, Config{Alerts: true})
	require.NoError(t, eng.Load(context.Background()))

	repo.add(recipientNotif(1, 7, false))
	eng.Deliver(insertEvent(1))

	require.Eventually(t, func() bool {
		items, unread, _ := eng.Snapshot()
		return len(items) == 1 && unread == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_CloseDiscardsStateAndIgnoresStaleResults(t *testing.T) {
	repo := newFakeRepo(recipientNotif(1, 7, false))
	eng := startEngine(t, repo, nil, Config{})
	require.NoError(t, eng.Load(context.Background()))

	eng.Close()

	items, unread, _ := eng.Snapshot()
	assert.Empty(t, items)
	assert.Equal(t, 0, unread)

	// a load that was in flight when the session ended must be a no-op
	_ = eng.Load(context.Background())
	eng.Deliver(insertEvent(1))

	items, unread, _ = eng.Snapshot()
	assert.Empty(t, items)
	assert.Equal(t, 0, unread)
}
