// ============================================================================
// lazyApply Queue Orchestrator
// ============================================================================
//
// Package: internal/orchestrator
// File: orchestrator.go
// Purpose: Serial control loop driving one submission at a time
//
// States:
//   Idle          no loop goroutine
//   Running       loop is dequeuing
//   Paused        loop stops before the next dequeue
//   FrozenForAuth interrupt coordinator holds the page, loop stopped
//
// Per item:
//   submitting -> rate gate -> page -> navigate -> routine -> branch
//
//   Submitted     record with governor, "submitted"
//   NeedsInput    "needs-input" + fields, not requeued
//   Failed        retry at the back while RetryCount < MaxRetries and not
//                 a detection, otherwise "failed"
//   AuthRequired  page handed to the coordinator, item back at the front,
//                 loop exits
//
// Store writes use their own short context so a cancelled loop can still
// record why it stopped.
//
// ============================================================================

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sumanthpn07/lazyApply/internal/governor"
	"github.com/sumanthpn07/lazyApply/internal/interrupt"
	"github.com/sumanthpn07/lazyApply/internal/jobstore"
	"github.com/sumanthpn07/lazyApply/internal/logger"
	"github.com/sumanthpn07/lazyApply/internal/metrics"
	"github.com/sumanthpn07/lazyApply/internal/queue"
	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/internal/submission"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

const (
	storeTimeout = 10 * time.Second
	reasonCancel = "cancelled"
	warnInterval = time.Minute
	warnFirst    = 1
)

// Config tunes the loop.
type Config struct {
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
	MaxRateWait time.Duration `mapstructure:"max_rate_wait" validate:"gte=0"`
}

// DefaultConfig returns the standard retry and rate-wait settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  2,
		MaxRateWait: 2 * time.Minute,
	}
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Governor   *governor.Governor
	Sessions   *session.Manager
	Interrupts *interrupt.Coordinator
	Registry   *submission.Registry
	Store      jobstore.Store
	Profile    submission.Profile
	Metrics    *metrics.Collector // optional
	Logger     *zap.SugaredLogger // optional
}

func (d Deps) validate() error {
	switch {
	case d.Governor == nil:
		return errors.New("orchestrator needs a governor")
	case d.Sessions == nil:
		return errors.New("orchestrator needs a session manager")
	case d.Interrupts == nil:
		return errors.New("orchestrator needs an interrupt coordinator")
	case d.Registry == nil:
		return errors.New("orchestrator needs a routine registry")
	case d.Store == nil:
		return errors.New("orchestrator needs a job store")
	}
	return nil
}

// Status is a point-in-time view for the control surface.
type Status struct {
	QueueLength   int                  `json:"queue_length"`
	Running       bool                 `json:"running"`
	Paused        bool                 `json:"paused"`
	FrozenForAuth bool                 `json:"frozen_for_auth"`
	CurrentJobRef types.JobRef         `json:"current_job_ref,omitempty"`
	Interrupt     types.InterruptState `json:"interrupt"`
	Items         []types.WorkItem     `json:"items"`
}

// ResumeResult tells the caller what ResumeAfterAuth did.
type ResumeResult struct {
	Ref types.JobRef `json:"ref"`
	// FreshAttempt is set when no page was retained and the job restarts
	// from scratch.
	FreshAttempt bool `json:"fresh_attempt"`
	// Started is set when a loop was started by this call.
	Started bool `json:"started"`
}

// Orchestrator runs the submission queue.
type Orchestrator struct {
	cfg      Config
	gov      *governor.Governor
	sessions *session.Manager
	coord    *interrupt.Coordinator
	registry *submission.Registry
	store    jobstore.Store
	profile  submission.Profile
	metrics  *metrics.Collector
	log      *zap.SugaredLogger
	queue    *queue.Queue

	mu       sync.Mutex
	running  bool
	paused   bool
	current  *types.WorkItem
	resuming types.JobRef // next attempt of this ref follows a sign-in
	stopping bool         // Shutdown in progress, items stopped at the gate are requeued
	cancel   context.CancelFunc
	done     chan struct{}

	warnMu sync.Mutex
	warn   map[string]*rate.Sometimes
}

// New creates an idle orchestrator with an empty queue.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Orchestrator{
		cfg:      cfg,
		gov:      deps.Governor,
		sessions: deps.Sessions,
		coord:    deps.Interrupts,
		registry: deps.Registry,
		store:    deps.Store,
		profile:  deps.Profile,
		metrics:  deps.Metrics,
		log:      logger.OrNop(deps.Logger),
		queue:    queue.New(),
		warn:     make(map[string]*rate.Sometimes),
	}, nil
}

// ============================================================================
// Control surface
// ============================================================================

// Enqueue appends refs not already queued or in flight, marks each one
// "queued" and returns how many were added.
func (o *Orchestrator) Enqueue(refs ...types.JobRef) int {
	o.mu.Lock()
	fresh := make([]types.JobRef, 0, len(refs))
	for _, ref := range refs {
		if o.current != nil && o.current.Ref == ref {
			continue
		}
		fresh = append(fresh, ref)
	}
	o.mu.Unlock()

	added := o.queue.Enqueue(fresh...)
	for _, ref := range added {
		o.setStatus(ref, types.StatusQueued, "")
	}
	o.metrics.RecordEnqueue(len(added))
	o.metrics.SetQueueLength(o.queue.Len())
	if len(added) > 0 {
		o.log.Infow("Enqueued jobs", logger.FieldCount, len(added), logger.FieldQueueLen, o.queue.Len())
	}
	return len(added)
}

// Run starts the loop unless it is running, paused, frozen or has nothing
// to do. It reports whether a loop was started.
func (o *Orchestrator) Run() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running || o.paused || o.coord.Frozen() || o.queue.Len() == 0 {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})

	runID := uuid.NewString()
	go o.loop(ctx, o.done, o.log.With(logger.FieldRunID, runID))
	return true
}

// Wait blocks until the current loop, if any, has exited.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause stops the loop before its next dequeue. An in-flight submission
// runs to completion.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	o.log.Infow("Queue paused")
}

// Resume clears Paused and starts the loop again.
func (o *Orchestrator) Resume() bool {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	o.log.Infow("Queue resumed")
	return o.Run()
}

// Clear empties the queue. An authentication freeze and job statuses are
// left as they are.
func (o *Orchestrator) Clear() int {
	n := o.queue.Clear()
	o.dropResume()
	o.metrics.SetQueueLength(0)
	o.log.Infow("Queue cleared", logger.FieldCount, n)
	return n
}

// Cancel aborts everything: the loop stops, the queue is emptied and the
// browser shut down. A submission in flight runs to completion first and
// its outcome is recorded. A pending interrupt stays recorded but loses
// its page.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.paused = false
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	n := o.queue.Clear()
	o.dropResume()
	if p := o.coord.DropPage(); p != nil {
		if err := p.Close(); err != nil {
			o.log.Warnw("Failed to close retained page", logger.FieldError, err)
		}
	}
	o.sessions.Shutdown()
	o.metrics.SetQueueLength(0)
	o.log.Infow("Queue cancelled", logger.FieldCount, n)
}

// Shutdown stops the loop and the browser without dropping queued work.
// A submission in flight runs to completion and its outcome is applied;
// an item still waiting on the rate gate returns to the front of the
// queue. The queue is left paused. The returned checkpoint reflects
// the final state.
func (o *Orchestrator) Shutdown() types.QueueSnapshot {
	o.mu.Lock()
	o.paused = true
	o.stopping = true
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	o.mu.Lock()
	o.stopping = false
	o.mu.Unlock()

	snap := o.Checkpoint()
	if p := o.coord.DropPage(); p != nil {
		if err := p.Close(); err != nil {
			o.log.Warnw("Failed to close retained page", logger.FieldError, err)
		}
	}
	o.sessions.Shutdown()
	o.metrics.SetQueueLength(o.queue.Len())
	o.log.Infow("Queue shut down", logger.FieldQueueLen, o.queue.Len())
	return snap
}

// Status reports the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{Running: o.running, Paused: o.paused}
	if o.current != nil {
		st.CurrentJobRef = o.current.Ref
	}
	o.mu.Unlock()

	st.FrozenForAuth = o.coord.Frozen()
	st.Interrupt = o.coord.State()
	st.Items = o.queue.Items()
	st.QueueLength = len(st.Items)
	return st
}

// ResumeAfterAuth continues after the operator signed in. With a retained
// page the interrupted item is retried on it next, skipping the rate gate;
// without one the job restarts as a fresh attempt.
func (o *Orchestrator) ResumeAfterAuth() (ResumeResult, error) {
	// freeze lift, resume mark and requeue share the loop's pop section
	o.mu.Lock()
	cp, err := o.coord.BeginResume()
	if err != nil {
		o.mu.Unlock()
		return ResumeResult{}, err
	}
	res := ResumeResult{Ref: cp.Item.Ref}
	item := cp.Item
	if cp.Page == nil {
		o.coord.Finish()
		res.FreshAttempt = true
		item = types.WorkItem{Ref: cp.Item.Ref}
	} else {
		o.sessions.Adopt(cp.Page)
		o.resuming = item.Ref
	}
	if err := o.queue.PushFront(item); err != nil {
		if o.resuming == item.Ref {
			o.resuming = ""
			o.coord.Finish()
		}
		o.mu.Unlock()
		o.metrics.SetFrozen(false)
		return res, errors.Wrap(err, "requeue interrupted job")
	}
	looping := o.running && !o.paused
	o.mu.Unlock()
	o.metrics.SetFrozen(false)

	if res.FreshAttempt {
		o.setStatus(cp.Item.Ref, types.StatusQueued, "")
		o.log.Infow("Resuming without retained page, starting over",
			logger.FieldJobRef, cp.Item.Ref, logger.FieldTarget, cp.Target)
	} else {
		o.log.Infow("Resuming after sign-in",
			logger.FieldJobRef, cp.Item.Ref, logger.FieldTarget, cp.Target)
	}
	o.metrics.SetQueueLength(o.queue.Len())
	// a loop that has not yet reached its exit check picks the item up itself
	res.Started = o.Run() || looping
	return res, nil
}

// Checkpoint captures queue order. An item in flight is written first so
// a crash retries it.
func (o *Orchestrator) Checkpoint() types.QueueSnapshot {
	o.mu.Lock()
	var current *types.WorkItem
	if o.current != nil {
		c := *o.current
		current = &c
	}
	o.mu.Unlock()

	items := o.queue.Items()
	if current != nil {
		items = append([]types.WorkItem{*current}, items...)
	}
	snap := types.QueueSnapshot{Items: items}
	if st := o.coord.State(); st.Active {
		snap.Interrupt = &st
	}
	return snap
}

// Restore loads a checkpoint into an idle orchestrator. A recorded
// interrupt has no page any more, so it is discarded and its job goes to
// the front as a fresh attempt.
func (o *Orchestrator) Restore(snap types.QueueSnapshot) error {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()
	if running {
		return errors.New("cannot restore while the queue is running")
	}

	o.queue.Restore(snap.Items)
	o.coord.Reset()
	for _, it := range o.queue.Items() {
		o.setStatus(it.Ref, types.StatusQueued, "")
	}
	if snap.Interrupt != nil && snap.Interrupt.Active && snap.Interrupt.Ref != "" {
		if err := o.queue.PushFront(types.WorkItem{Ref: snap.Interrupt.Ref}); err != nil {
			return errors.Wrap(err, "restore interrupted job")
		}
		o.log.Infow("Discarded interrupt from checkpoint",
			logger.FieldJobRef, snap.Interrupt.Ref, logger.FieldTarget, snap.Interrupt.Target)
	}
	o.metrics.SetQueueLength(o.queue.Len())
	o.metrics.SetFrozen(false)
	o.log.Infow("Queue restored", logger.FieldQueueLen, o.queue.Len())
	return nil
}

// ============================================================================
// Loop
// ============================================================================

func (o *Orchestrator) loop(ctx context.Context, done chan struct{}, log *zap.SugaredLogger) {
	defer func() {
		o.mu.Lock()
		o.stopLocked(done)
		o.mu.Unlock()
		o.metrics.SetInFlight(false)
		close(done)
		log.Debugw("Loop exited")
	}()
	log.Infow("Loop started", logger.FieldQueueLen, o.queue.Len())

	for {
		o.mu.Lock()
		if ctx.Err() != nil || o.paused || o.coord.Frozen() {
			o.stopLocked(done)
			o.mu.Unlock()
			return
		}
		item, ok := o.queue.Pop()
		if !ok {
			o.stopLocked(done)
			o.mu.Unlock()
			log.Infow("Queue drained")
			return
		}
		o.current = &item
		o.mu.Unlock()
		o.metrics.SetQueueLength(o.queue.Len())

		target, cont := o.process(ctx, item, log)

		o.mu.Lock()
		o.current = nil
		halt := o.paused || o.coord.Frozen()
		o.mu.Unlock()

		if !cont || halt || o.queue.Len() == 0 {
			continue
		}
		if d := o.gov.RandomSpacing(target); d > 0 {
			log.Debugw("Spacing before next item", logger.FieldWait, d.String())
			if !sleep(ctx, d) {
				return
			}
		}
	}
}

// stopLocked marks the loop owning done as stopped, in the same critical
// section as its exit check. Callers hold o.mu.
func (o *Orchestrator) stopLocked(done chan struct{}) {
	if o.done != done {
		return
	}
	o.running = false
	o.current = nil
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// process runs one item end to end. It returns the item's target and
// whether the loop may go on. Cancellation is honoured up to the rate
// gate; once the routine starts it runs to completion and its outcome is
// always applied.
func (o *Orchestrator) process(ctx context.Context, item types.WorkItem, log *zap.SugaredLogger) (string, bool) {
	log = log.With(logger.FieldJobRef, item.Ref, logger.FieldRetry, item.RetryCount)

	job, err := o.store.Get(ctx, item.Ref)
	if err != nil {
		if ctx.Err() != nil {
			o.abandon(item)
			return "", false
		}
		log.Errorw("Job record unavailable, dropping item", logger.FieldError, err)
		o.setStatus(item.Ref, types.StatusFailed, "job record unavailable: "+err.Error())
		return "", true
	}
	target := normalizeTarget(job.Target)
	log = log.With(logger.FieldTarget, target)

	o.mu.Lock()
	resumed := o.resuming == item.Ref
	o.resuming = ""
	o.mu.Unlock()

	o.setStatus(item.Ref, types.StatusSubmitting, "")

	if !resumed {
		allowed, cont := o.gate(ctx, item, target, log)
		if !allowed {
			return target, cont
		}
	}

	o.metrics.SetInFlight(true)
	started := time.Now()
	out := o.attempt(context.WithoutCancel(ctx), job, target)
	elapsed := time.Since(started)
	o.metrics.SetInFlight(false)

	o.metrics.RecordOutcome(target, out.Label(), elapsed)
	log = log.With(logger.FieldOutcome, out.Label(), logger.FieldDurationMS, elapsed.Milliseconds())
	return target, o.handle(item, target, out, log)
}

// gate waits for the rate governor. It returns whether the submission may
// proceed and, when it may not, whether the loop may go on.
func (o *Orchestrator) gate(ctx context.Context, item types.WorkItem, target string, log *zap.SugaredLogger) (bool, bool) {
	for {
		d := o.gov.CanSubmit(target)
		if d.Allowed {
			return true, true
		}
		o.metrics.RecordRateLimited(target, string(d.Reason))

		if d.Wait > o.cfg.MaxRateWait {
			log.Warnw("Rate limited, skipping job",
				logger.FieldReason, d.Message, logger.FieldWait, d.Wait.String())
			o.setStatus(item.Ref, types.StatusSkipped, d.Message)
			return false, true
		}

		o.sometimes(target).Do(func() {
			log.Infow("Rate limited, waiting", logger.FieldReason, d.Message, logger.FieldWait, d.Wait.String())
		})
		if !sleep(ctx, d.Wait) {
			o.abandon(item)
			return false, false
		}
	}
}

// attempt acquires the page, navigates and invokes the routine. Errors and
// panics become Failed.
func (o *Orchestrator) attempt(ctx context.Context, job types.Job, target string) (out submission.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("Routine panicked", logger.FieldJobRef, job.Ref, logger.FieldError, r)
			out = submission.Failed(fmt.Sprintf("routine panicked: %v", r))
		}
	}()

	page, err := o.sessions.ActivePage(ctx)
	if err != nil {
		return submission.Failed(errors.Wrap(err, "acquire page").Error())
	}
	if err := page.Navigate(ctx, job.URL); err != nil {
		return submission.Failed(errors.Wrapf(err, "navigate to %s", job.URL).Error())
	}

	res, err := o.registry.Resolve(target).Submit(ctx, page, job, o.profile)
	if err != nil {
		if errors.Is(err, submission.ErrDetectionTriggered) {
			return submission.DetectionTriggered(err.Error())
		}
		return submission.Failed(err.Error())
	}
	if !res.Valid() {
		return submission.Failed("routine returned no outcome")
	}
	return res
}

// handle applies an outcome. It returns false when the loop must stop.
func (o *Orchestrator) handle(item types.WorkItem, target string, out submission.Outcome, log *zap.SugaredLogger) bool {
	switch out.Kind() {
	case submission.KindSubmitted:
		o.gov.RecordSubmission(target)
		o.sessions.ReleasePage()
		o.setStatus(item.Ref, types.StatusSubmitted, "")
		log.Infow("Application submitted")

	case submission.KindNeedsInput:
		o.sessions.ReleasePage()
		ctx, cancel := storeContext()
		defer cancel()
		if err := o.store.SetNeedsInput(ctx, item.Ref, out.Fields()); err != nil {
			log.Errorw("Failed to record needed input", logger.FieldError, err)
		}
		log.Infow("Job needs operator input", logger.FieldCount, len(out.Fields()))

	case submission.KindFailed:
		o.sessions.ReleasePage()
		if !out.Detection() && item.RetryCount < o.cfg.MaxRetries {
			next := types.WorkItem{Ref: item.Ref, RetryCount: item.RetryCount + 1}
			if err := o.queue.PushBack(next); err != nil {
				log.Warnw("Retry not queued", logger.FieldError, err)
			} else {
				o.metrics.RecordRetry()
			}
			o.setStatus(item.Ref, types.StatusQueued, out.Reason())
			log.Warnw("Submission failed, will retry", logger.FieldReason, out.Reason())
		} else {
			o.setStatus(item.Ref, types.StatusFailed, out.Reason())
			log.Errorw("Submission failed", logger.FieldReason, out.Reason(), "detection", out.Detection())
		}

	case submission.KindAuthRequired:
		page := o.sessions.Detach()
		if err := o.queue.PushFront(item); err != nil {
			log.Errorw("Failed to hold interrupted item", logger.FieldError, err)
		}
		o.coord.Freeze(item, target, out.AuthURL(), out.Message(), page)
		o.setStatus(item.Ref, types.StatusQueued, "authentication required")
		o.metrics.SetFrozen(true)
		o.metrics.SetQueueLength(o.queue.Len())
		log.Warnw("Authentication required, queue frozen",
			logger.FieldAuthURL, out.AuthURL(), "message", out.Message())
		return false
	}

	o.coord.Finish()
	o.metrics.SetQueueLength(o.queue.Len())
	return true
}

// ============================================================================
// Helpers
// ============================================================================

func (o *Orchestrator) setStatus(ref types.JobRef, status types.JobStatus, reason string) {
	ctx, cancel := storeContext()
	defer cancel()
	if err := o.store.UpdateStatus(ctx, ref, status, reason); err != nil {
		o.log.Warnw("Failed to update job status",
			logger.FieldJobRef, ref, logger.FieldStatus, status, logger.FieldError, err)
	}
}

// sometimes throttles the "waiting" log line per target.
func (o *Orchestrator) sometimes(target string) *rate.Sometimes {
	o.warnMu.Lock()
	defer o.warnMu.Unlock()
	s, ok := o.warn[target]
	if !ok {
		s = &rate.Sometimes{First: warnFirst, Interval: warnInterval}
		o.warn[target] = s
	}
	return s
}

// abandon settles an item stopped by cancellation before its routine ran.
func (o *Orchestrator) abandon(item types.WorkItem) {
	o.mu.Lock()
	stopping := o.stopping
	o.mu.Unlock()

	if stopping {
		if err := o.queue.PushFront(item); err == nil {
			o.setStatus(item.Ref, types.StatusQueued, "")
			return
		}
	}
	o.setStatus(item.Ref, types.StatusSkipped, reasonCancel)
}

// dropResume forgets a resume whose item is no longer queued.
func (o *Orchestrator) dropResume() {
	o.mu.Lock()
	pending := o.resuming != ""
	o.resuming = ""
	o.mu.Unlock()
	if pending {
		o.coord.Finish()
	}
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func normalizeTarget(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return governor.DefaultTarget
	}
	return t
}

// sleep waits for d or ctx, reporting whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
