// Package auth holds the approval set: the users allowed to talk to the
// bot. Identity comes from the chat platform, so approval is the only
// credential this system keeps.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrAdminImmutable is returned when an admin tries to revoke their own
// approval.
var ErrAdminImmutable = errors.New("the administrator cannot be unapproved")

var ErrPersistence = errors.New("approval persistence failure")

type Store interface {
	LoadApprovals(ctx context.Context) ([]int64, error)
	SaveApprovals(ctx context.Context, ids []int64) error
}

// Approvals never holds the set lock across a store write: mutations take
// flushMu for the whole mutate-then-flush, the set lock only for the map
// touch, so approval checks stay fast while a flush is in flight.
type Approvals struct {
	store   Store
	adminID int64
	log     *slog.Logger

	flushMu sync.Mutex

	mu  sync.RWMutex
	ids map[int64]struct{}
}

func New(store Store, adminID int64, log *slog.Logger) *Approvals {
	return &Approvals{
		store:   store,
		adminID: adminID,
		log:     log,
		ids:     make(map[int64]struct{}),
	}
}

// Load reads the persisted approval set. Missing or unreadable state
// yields a set containing only the administrator; startup never fails.
func (a *Approvals) Load(ctx context.Context) {
	ids, err := a.store.LoadApprovals(ctx)
	if err != nil {
		a.log.Warn("could not load approval set, starting with admin only", "error", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.ids[id] = struct{}{}
	}
}

func (a *Approvals) IsAdmin(userID int64) bool {
	return userID == a.adminID
}

// IsApproved reports whether the user may use the bot. The administrator
// is always approved.
func (a *Approvals) IsApproved(userID int64) bool {
	if userID == a.adminID {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[userID]
	return ok
}

func (a *Approvals) Approve(ctx context.Context, userID int64) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if _, ok := a.ids[userID]; ok {
		a.mu.Unlock()
		return nil
	}
	a.ids[userID] = struct{}{}
	snapshot := a.snapshot()
	a.mu.Unlock()

	if err := a.store.SaveApprovals(ctx, snapshot); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (a *Approvals) Unapprove(ctx context.Context, userID int64) error {
	if userID == a.adminID {
		return ErrAdminImmutable
	}
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if _, ok := a.ids[userID]; !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.ids, userID)
	snapshot := a.snapshot()
	a.mu.Unlock()

	if err := a.store.SaveApprovals(ctx, snapshot); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (a *Approvals) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}

// snapshot must be called with the lock held.
func (a *Approvals) snapshot() []int64 {
	ids := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
