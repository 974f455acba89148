// Package jobstore holds job records and receives status updates from the
// orchestrator.
package jobstore

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// ErrNotFound is returned when no job has the given ref.
var ErrNotFound = errors.New("job not found")

// Store is the job state sink.
type Store interface {
	Get(ctx context.Context, ref types.JobRef) (types.Job, error)
	// UpdateStatus sets status and reason. Any recorded field list is
	// cleared.
	UpdateStatus(ctx context.Context, ref types.JobRef, status types.JobStatus, reason string) error
	// SetNeedsInput parks the job with the fields the operator must answer.
	SetNeedsInput(ctx context.Context, ref types.JobRef, fields []types.Field) error
	// Upsert inserts a job or refreshes its descriptive columns. Status of
	// an existing job is kept.
	Upsert(ctx context.Context, job types.Job) error
	// List returns jobs with the given status, all jobs when status is "".
	List(ctx context.Context, status types.JobStatus) ([]types.Job, error)
}

func validateJob(job types.Job) error {
	if job.Ref == "" {
		return errors.New("job ref is required")
	}
	if job.URL == "" {
		return errors.Newf("job %s has no url", job.Ref)
	}
	if job.Status != "" && !job.Status.Valid() {
		return errors.Newf("job %s has unknown status %q", job.Ref, job.Status)
	}
	return nil
}

func notFound(ref types.JobRef) error {
	return errors.Wrapf(ErrNotFound, "ref %s", ref)
}
