// ============================================================================
// lazyApply Work Queue
// ============================================================================
//
// Package: internal/queue
// File: queue.go
// Purpose: Ordered, de-duplicated queue of pending submission attempts
//
// Ordering:
//   PushBack  - new refs and retries, FIFO
//   PushFront - the item interrupted for authentication, so it is the very
//               next one processed on resume
//
// Identity:
//   A ref appears at most once. The index map mirrors the slice and both
//   are updated under the same lock.
//
// ============================================================================

package queue

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

var (
	// ErrDuplicate is returned when a ref is already queued.
	ErrDuplicate = errors.New("job already queued")
	// ErrEmptyRef is returned for a blank ref.
	ErrEmptyRef = errors.New("empty job ref")
)

// Queue is safe for concurrent use.
type Queue struct {
	mu    sync.RWMutex
	items []types.WorkItem
	index map[types.JobRef]struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		items: make([]types.WorkItem, 0),
		index: make(map[types.JobRef]struct{}),
	}
}

// PushBack appends item unless its ref is already queued.
func (q *Queue) PushBack(item types.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.admitLocked(item.Ref); err != nil {
		return err
	}
	q.items = append(q.items, item)
	q.index[item.Ref] = struct{}{}
	return nil
}

// PushFront inserts item at the head. An existing entry for the same ref
// is moved rather than duplicated.
func (q *Queue) PushFront(item types.WorkItem) error {
	if item.Ref == "" {
		return ErrEmptyRef
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[item.Ref]; ok {
		q.removeLocked(item.Ref)
	}
	q.items = append([]types.WorkItem{item}, q.items...)
	q.index[item.Ref] = struct{}{}
	return nil
}

// Enqueue appends fresh items for refs not already queued, in order,
// and returns the refs actually added.
func (q *Queue) Enqueue(refs ...types.JobRef) []types.JobRef {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := make([]types.JobRef, 0, len(refs))
	for _, ref := range refs {
		if q.admitLocked(ref) != nil {
			continue
		}
		q.items = append(q.items, types.WorkItem{Ref: ref})
		q.index[ref] = struct{}{}
		added = append(added, ref)
	}
	return added
}

// Pop removes and returns the head.
func (q *Queue) Pop() (types.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return types.WorkItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	delete(q.index, item.Ref)
	return item, true
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (types.WorkItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return types.WorkItem{}, false
	}
	return q.items[0], true
}

// Remove drops ref from the queue and reports whether it was present.
func (q *Queue) Remove(ref types.JobRef) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(ref)
}

// Contains reports whether ref is queued.
func (q *Queue) Contains(ref types.JobRef) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.index[ref]
	return ok
}

// Clear empties the queue and returns how many items were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = make([]types.WorkItem, 0)
	q.index = make(map[types.JobRef]struct{})
	return n
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Items returns a copy of the queue in processing order.
func (q *Queue) Items() []types.WorkItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]types.WorkItem, len(q.items))
	copy(out, q.items)
	return out
}

// Restore replaces the contents with items, dropping blanks and repeats.
func (q *Queue) Restore(items []types.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]types.WorkItem, 0, len(items))
	q.index = make(map[types.JobRef]struct{}, len(items))
	for _, it := range items {
		if q.admitLocked(it.Ref) != nil {
			continue
		}
		q.items = append(q.items, it)
		q.index[it.Ref] = struct{}{}
	}
}

func (q *Queue) admitLocked(ref types.JobRef) error {
	if ref == "" {
		return ErrEmptyRef
	}
	if _, ok := q.index[ref]; ok {
		return errors.Wrapf(ErrDuplicate, "ref %s", ref)
	}
	return nil
}

func (q *Queue) removeLocked(ref types.JobRef) bool {
	if _, ok := q.index[ref]; !ok {
		return false
	}
	for i, it := range q.items {
		if it.Ref == ref {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			break
		}
	}
	delete(q.index, ref)
	return true
}
