package feed

import (
	"sync"

	"github.com/pulseboard/feedsync/internal/domain/notification"
)

// Store holds the loaded notification window for one session plus the
// derived unread counter. All mutators are atomic; unreadCount is cached
// incrementally but always reconcilable against a recount of items.
type Store struct {
	mu     sync.Mutex
	items  []*notification.Notification
	unread int
	window int
	closed bool
}

func NewStore(window int) *Store {
	if window <= 0 {
		window = 50
	}
	return &Store{window: window}
}

// ReplaceAll swaps the whole window in one step and recounts unread from
// scratch. Used by the bulk load; a failed load never reaches this point.
func (s *Store) ReplaceAll(items []*notification.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(items) > s.window {
		items = items[:s.window]
	}
	s.items = items
	s.unread = recount(items)
}

// Insert prepends a resolved record unless its id is already present.
// Returns false on duplicate delivery (e.g. a race between a bulk reload
// and the live event for the same row).
func (s *Store) Insert(n *notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.indexOf(n.ID) >= 0 {
		return false
	}
	s.items = append([]*notification.Notification{n}, s.items...)
	if len(s.items) > s.window {
		evicted := s.items[len(s.items)-1]
		if !evicted.IsRead {
			s.unread--
		}
		s.items = s.items[:len(s.items)-1]
	}
	if !n.IsRead {
		s.unread++
	}
	return true
}

// ApplyUpdate replaces an existing record in place. The unread counter only
// moves on an actual is_read transition, which makes duplicate update
// events (the common echo of a local mark-as-read) a no-op. Updates for ids
// outside the loaded window are ignored.
func (s *Store) ApplyUpdate(n *notification.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	i := s.indexOf(n.ID)
	if i < 0 {
		return false
	}
	prev := s.items[i]
	if n.Actor == nil {
		n.Actor = prev.Actor
	}
	s.items[i] = n
	switch {
	case !prev.IsRead && n.IsRead:
		s.unread--
	case prev.IsRead && !n.IsRead:
		s.unread++
	}
	return true
}

// MarkRead flips one item read locally. Returns true if the item was
// present and previously unread.
func (s *Store) MarkRead(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	i := s.indexOf(id)
	if i < 0 || s.items[i].IsRead {
		return false
	}
	cp := *s.items[i]
	cp.IsRead = true
	s.items[i] = &cp
	s.unread--
	return true
}

func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i, n := range s.items {
		if !n.IsRead {
			cp := *n
			cp.IsRead = true
			s.items[i] = &cp
		}
	}
	s.unread = 0
}

// Snapshot returns a copy of the window and the unread counter.
func (s *Store) Snapshot() ([]*notification.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Notification, len(s.items))
	copy(out, s.items)
	return out, s.unread
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close empties the store and makes every further mutation a no-op, so a
// stale fetch resolving after session teardown cannot resurrect state.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.unread = 0
	s.closed = true
}

// Reconciled reports whether the cached counter matches a recount.
func (s *Store) Reconciled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread == recount(s.items)
}

func (s *Store) indexOf(id int64) int {
	for i, n := range s.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func recount(items []*notification.Notification) int {
	c := 0
	for _, n := range items {
		if !n.IsRead {
			c++
		}
	}
	return c
}
