package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// MemoryStore is an in-process Store. It also keeps the sequence of
// statuses each job went through.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[types.JobRef]types.Job
	history map[types.JobRef][]types.JobStatus
	now     func() time.Time
}

// NewMemoryStore returns a store seeded with jobs.
func NewMemoryStore(jobs ...types.Job) *MemoryStore {
	m := &MemoryStore{
		jobs:    make(map[types.JobRef]types.Job),
		history: make(map[types.JobRef][]types.JobStatus),
		now:     time.Now,
	}
	for _, j := range jobs {
		m.jobs[j.Ref] = cloneJob(j)
	}
	return m
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, ref types.JobRef) (types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[ref]
	if !ok {
		return types.Job{}, notFound(ref)
	}
	return cloneJob(j), nil
}

// UpdateStatus implements Store.
func (m *MemoryStore) UpdateStatus(ctx context.Context, ref types.JobRef, status types.JobStatus, reason string) error {
	if !status.Valid() {
		return errors.Newf("unknown status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[ref]
	if !ok {
		return notFound(ref)
	}
	j.Status = status
	j.Reason = reason
	j.Fields = nil
	j.UpdatedAt = m.now()
	m.jobs[ref] = j
	m.history[ref] = append(m.history[ref], status)
	return nil
}

// SetNeedsInput implements Store.
func (m *MemoryStore) SetNeedsInput(ctx context.Context, ref types.JobRef, fields []types.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[ref]
	if !ok {
		return notFound(ref)
	}
	j.Status = types.StatusNeedsInput
	j.Reason = ""
	j.Fields = append([]types.Field(nil), fields...)
	j.UpdatedAt = m.now()
	m.jobs[ref] = j
	m.history[ref] = append(m.history[ref], types.StatusNeedsInput)
	return nil
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, job types.Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.jobs[job.Ref]; ok {
		job.Status, job.Reason, job.Fields = old.Status, old.Reason, old.Fields
	}
	job.UpdatedAt = m.now()
	m.jobs[job.Ref] = cloneJob(job)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if status == "" || j.Status == status {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Ref < out[k].Ref })
	return out, nil
}

// History returns the statuses ref was moved through, oldest first.
func (m *MemoryStore) History(ref types.JobRef) []types.JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.JobStatus(nil), m.history[ref]...)
}

func cloneJob(j types.Job) types.Job {
	j.Fields = append([]types.Field(nil), j.Fields...)
	if len(j.Fields) == 0 {
		j.Fields = nil
	}
	return j
}
