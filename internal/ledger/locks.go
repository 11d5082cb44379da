package ledger

import (
	"context"
	"slices"
	"sync"
)

// keyedLocks is a per-account mutex table whose Lock honours context
// cancellation. Each slot is a one-element channel, reference counted by
// its holder and waiters and dropped from the table when the count hits
// zero, so ids that are never used again cost nothing.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[int64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[int64]*lockSlot)}
}

func (k *keyedLocks) acquire(id int64) *lockSlot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[id]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	return s
}

func (k *keyedLocks) release(id int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
}

func (k *keyedLocks) lock(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := k.acquire(id)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(id)
		return ctx.Err()
	}
}

func (k *keyedLocks) unlock(id int64) {
	k.mu.Lock()
	s := k.slots[id]
	k.mu.Unlock()
	<-s.ch
	k.release(id)
}

// lockAll acquires every id in ascending order. On failure nothing stays
// held. The returned release func unlocks in reverse order.
func (k *keyedLocks) lockAll(ctx context.Context, ids []int64) (func(), error) {
	ordered := lockOrder(ids)
	held := make([]int64, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
	for _, id := range ordered {
		if err := k.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	return release, nil
}

// lockOrder returns the distinct ids sorted ascending.
func lockOrder(ids []int64) []int64 {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}
