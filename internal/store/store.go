// Package store is the in-memory authoritative notification list for the
// current session: the list itself, the unread counter, and the mutation
// operations the UI triggers. Remote synchronization wraps these operations
// one level up.
package store

import (
	"sync"
	"time"

	"github.com/nextbill/gateway/internal/notify"
)

// Store owns the session's notifications and unread counter. All methods
// are safe for concurrent use, though mutations are additionally serialized
// by the sync layer.
type Store struct {
	mu            sync.RWMutex
	notifications []notify.Notification
	unread        int
	now           func() time.Time
}

// New creates an empty store. now is injectable for tests; nil means
// time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

// Snapshot is a full copy of the store state, used by the rollback engine.
// Restoring a snapshot is all-or-nothing.
type Snapshot struct {
	notifications []notify.Notification
	unread        int
}

// Snapshot captures the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]notify.Notification, len(s.notifications))
	copy(cp, s.notifications)
	return Snapshot{notifications: cp, unread: s.unread}
}

// Restore replaces the store state with a previously captured snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]notify.Notification, len(snap.notifications))
	copy(s.notifications, snap.notifications)
	s.unread = snap.unread
}

// Insert prepends a notification and bumps the unread counter if it is
// unread.
func (s *Store) Insert(n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]notify.Notification{n}, s.notifications...)
	if !n.IsRead {
		s.unread++
	}
}

// PrependNew dedupes candidates against the current contents (same-day
// window) and prepends the survivors. Returns how many were added.
func (s *Store) PrependNew(candidates []notify.Notification) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := notify.Dedupe(s.notifications, candidates)
	if len(fresh) == 0 {
		return 0
	}
	s.notifications = append(fresh, s.notifications...)
	s.unread = notify.CountUnread(s.notifications)
	return len(fresh)
}

// MarkRead flags one notification as read. Already-read notifications are
// a no-op, keeping the operation idempotent.
func (s *Store) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID != id {
			continue
		}
		if s.notifications[i].IsRead {
			return
		}
		readAt := s.now()
		s.notifications[i].IsRead = true
		s.notifications[i].ReadAt = &readAt
		if s.unread > 0 {
			s.unread--
		}
		return
	}
}

// MarkAllRead flags every notification read with a single shared readAt and
// sets the counter to exactly zero. The counter is assigned, not decremented
// per item, so partial failures cannot leave it drifted.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	readAt := s.now()
	for i := range s.notifications {
		if s.notifications[i].IsRead {
			continue
		}
		s.notifications[i].IsRead = true
		s.notifications[i].ReadAt = &readAt
	}
	s.unread = 0
}

// Delete removes one notification, decrementing the counter if it was
// unread.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID != id {
			continue
		}
		if !s.notifications[i].IsRead && s.unread > 0 {
			s.unread--
		}
		s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
		return
	}
}

// ClearAll empties the list and zeroes the counter unconditionally.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
	s.unread = 0
}

// Replace swaps in an authoritative list and counter fetched from the
// remote source. No merge: remote wins wholesale.
func (s *Store) Replace(list []notify.Notification, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]notify.Notification, len(list))
	copy(s.notifications, list)
	if unread < 0 {
		unread = notify.CountUnread(s.notifications)
	}
	s.unread = unread
}

// List returns the notifications in display order. The order is recomputed
// on every call since read flags mutate in place.
func (s *Store) List() []notify.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return notify.SortForDisplay(s.notifications)
}

// Raw returns an unsorted copy, insertion order preserved. Used by the
// refresh strategies and the session cache.
func (s *Store) Raw() []notify.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]notify.Notification, len(s.notifications))
	copy(cp, s.notifications)
	return cp
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of notifications held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}
