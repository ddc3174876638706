// Package ledger tracks which user created which DNS record through this
// system. It is the authorization source for modify/delete, not the
// authoritative DNS state: the provider is.
//
// Locking discipline: the map lock is never held across a store write. A
// per-user mutation lock serializes each user's mutate-then-flush, so one
// user's slow flush cannot stall another user's reads or mutations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"zonebot/internal/model"
)

const DefaultQuota = 15

// ErrPersistence marks a mutation that took effect in memory but could not
// be flushed to the durable store.
var ErrPersistence = errors.New("ledger persistence failure")

// ErrDuplicate is returned when the user already owns a record with the
// same fully-qualified name and type.
var ErrDuplicate = errors.New("record already registered")

type QuotaError struct {
	Count int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("record quota exceeded (%d of %d used)", e.Count, e.Limit)
}

// Store persists the ledger. Implementations must flush before returning.
type Store interface {
	LoadRecords(ctx context.Context) (map[int64][]model.Record, error)
	SaveUserRecords(ctx context.Context, userID int64, records []model.Record) error
}

type Ledger struct {
	store Store
	quota int
	log   *slog.Logger

	mu     sync.RWMutex
	byUser map[int64][]model.Record

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

func New(store Store, quota int, log *slog.Logger) *Ledger {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Ledger{
		store:  store,
		quota:  quota,
		log:    log,
		byUser: make(map[int64][]model.Record),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// Load reads persisted state. Missing or unreadable state yields an empty
// ledger; startup never fails on it.
func (l *Ledger) Load(ctx context.Context) {
	records, err := l.store.LoadRecords(ctx)
	if err != nil {
		l.log.Warn("could not load ownership ledger, starting empty", "error", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, recs := range records {
		l.byUser[id] = recs
	}
}

func (l *Ledger) Quota() int {
	return l.quota
}

func (l *Ledger) Count(userID int64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byUser[userID])
}

// Total counts records tracked across all users.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, recs := range l.byUser {
		total += len(recs)
	}
	return total
}

// Register adds a confirmed provider record to the user's set. The caller
// must only invoke this after the provider reported the record created.
func (l *Ledger) Register(ctx context.Context, rec model.Record) error {
	lock := l.userLock(rec.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	owned := l.byUser[rec.OwnerID]
	if len(owned) >= l.quota {
		count := len(owned)
		l.mu.Unlock()
		return &QuotaError{Count: count, Limit: l.quota}
	}
	for _, r := range owned {
		if r.Name == rec.Name && r.Type == rec.Type {
			l.mu.Unlock()
			return ErrDuplicate
		}
	}
	next := make([]model.Record, 0, len(owned)+1)
	next = append(next, owned...)
	next = append(next, rec)
	l.byUser[rec.OwnerID] = next
	l.mu.Unlock()

	return l.flush(ctx, rec.OwnerID, next)
}

// Unregister removes a record from the user's set. Removing a record that
// is not present is a no-op, not an error.
func (l *Ledger) Unregister(ctx context.Context, userID int64, recordID string) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	owned := l.byUser[userID]
	idx := -1
	for i, r := range owned {
		if r.ID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return nil
	}

	next := make([]model.Record, 0, len(owned)-1)
	next = append(next, owned[:idx]...)
	next = append(next, owned[idx+1:]...)
	if len(next) == 0 {
		delete(l.byUser, userID)
	} else {
		l.byUser[userID] = next
	}
	l.mu.Unlock()

	return l.flush(ctx, userID, next)
}

// SetContent updates the mirrored content of an owned record after the
// provider confirmed the change.
func (l *Ledger) SetContent(ctx context.Context, userID int64, recordID, content string) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	owned := l.byUser[userID]
	idx := -1
	for i, r := range owned {
		if r.ID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return nil
	}
	owned[idx].Content = content
	snapshot := append([]model.Record(nil), owned...)
	l.mu.Unlock()

	return l.flush(ctx, userID, snapshot)
}

func (l *Ledger) IsOwner(userID int64, recordID string) bool {
	_, ok := l.Find(userID, recordID)
	return ok
}

func (l *Ledger) Find(userID int64, recordID string) (model.Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.byUser[userID] {
		if r.ID == recordID {
			return r, true
		}
	}
	return model.Record{}, false
}

// Owned returns the user's records in insertion order.
func (l *Ledger) Owned(userID int64) []model.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.Record(nil), l.byUser[userID]...)
}

// flush writes one user's list to the store. Called with the user's
// mutation lock held but never the map lock.
func (l *Ledger) flush(ctx context.Context, userID int64, records []model.Record) error {
	if err := l.store.SaveUserRecords(ctx, userID, records); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// userLock returns the mutex serializing this user's mutate-then-flush.
func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}
