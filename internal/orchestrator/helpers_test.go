package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sumanthpn07/lazyApply/internal/governor"
	"github.com/sumanthpn07/lazyApply/internal/interrupt"
	"github.com/sumanthpn07/lazyApply/internal/jobstore"
	"github.com/sumanthpn07/lazyApply/internal/metrics"
	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/internal/session/sessiontest"
	"github.com/sumanthpn07/lazyApply/internal/submission"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// ============================================================================
// Scripted routine
// ============================================================================

type step struct {
	out   submission.Outcome
	err   error
	panic any
	block bool // wait for release, ignoring ctx
}

type scriptedRoutine struct {
	mu      sync.Mutex
	steps   map[types.JobRef][]step
	calls   []types.JobRef
	pages   []session.Page
	ctxErrs []error // ctx.Err() seen on return from each blocked step
	started chan types.JobRef
	release chan struct{}
}

func newRoutine() *scriptedRoutine {
	return &scriptedRoutine{
		steps:   make(map[types.JobRef][]step),
		started: make(chan types.JobRef, 64),
		release: make(chan struct{}),
	}
}

func (r *scriptedRoutine) script(ref types.JobRef, steps ...step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[ref] = append(r.steps[ref], steps...)
}

func (r *scriptedRoutine) Target() string { return "*" }

func (r *scriptedRoutine) Submit(ctx context.Context, page session.Page, job types.Job, _ submission.Profile) (submission.Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, job.Ref)
	r.pages = append(r.pages, page)
	st := step{out: submission.Submitted()}
	if q := r.steps[job.Ref]; len(q) > 0 {
		st, r.steps[job.Ref] = q[0], q[1:]
	}
	r.mu.Unlock()

	r.started <- job.Ref

	if st.block {
		<-r.release
		r.mu.Lock()
		r.ctxErrs = append(r.ctxErrs, ctx.Err())
		r.mu.Unlock()
	}
	if st.panic != nil {
		panic(st.panic)
	}
	return st.out, st.err
}

func (r *scriptedRoutine) Calls() []types.JobRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.JobRef(nil), r.calls...)
}

func (r *scriptedRoutine) CtxErrs() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.ctxErrs...)
}

func (r *scriptedRoutine) Pages() []session.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Page(nil), r.pages...)
}

func submitted() step             { return step{out: submission.Submitted()} }
func fail(reason string) step     { return step{out: submission.Failed(reason)} }
func detect(reason string) step   { return step{out: submission.DetectionTriggered(reason)} }
func authWall(url string) step    { return step{out: submission.AuthRequired(url, "sign in first")} }
func needs(f ...types.Field) step { return step{out: submission.NeedsInput(f)} }
func blocked() step               { return step{out: submission.Submitted(), block: true} }

func blockedFail(reason string) step { return step{out: submission.Failed(reason), block: true} }

// ============================================================================
// Harness
// ============================================================================

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

type harness struct {
	o       *Orchestrator
	store   *jobstore.MemoryStore
	driver  *sessiontest.Driver
	routine *scriptedRoutine
	gov     *governor.Governor
	coord   *interrupt.Coordinator
	metrics *metrics.Collector
	reg     *prometheus.Registry
}

func unlimited() governor.Policies {
	return governor.Policies{governor.DefaultTarget: {}}
}

func jobFor(ref types.JobRef) types.Job {
	return types.Job{Ref: ref, Target: "Acme", URL: fmt.Sprintf("https://jobs.acme.test/%s", ref)}
}

func newHarness(t *testing.T, cfg Config, policies governor.Policies, refs ...types.JobRef) *harness {
	t.Helper()
	jobs := make([]types.Job, 0, len(refs))
	for _, ref := range refs {
		jobs = append(jobs, jobFor(ref))
	}

	h := &harness{
		store:   jobstore.NewMemoryStore(jobs...),
		driver:  &sessiontest.Driver{},
		routine: newRoutine(),
		coord:   interrupt.New(),
		reg:     prometheus.NewRegistry(),
	}
	h.metrics = metrics.NewCollector(h.reg)
	clock := &mockClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	gov, err := governor.New(policies, governor.WithClock(clock.Now))
	require.NoError(t, err)
	h.gov = gov

	registry, err := submission.NewRegistry(h.routine)
	require.NoError(t, err)

	h.o, err = New(cfg, Deps{
		Governor:   h.gov,
		Sessions:   session.NewManager(h.driver, nil),
		Interrupts: h.coord,
		Registry:   registry,
		Store:      h.store,
		Profile:    submission.MapProfile{"email": "op@example.test"},
		Metrics:    h.metrics,
	})
	require.NoError(t, err)
	t.Cleanup(h.o.Cancel)
	return h
}

// runToEnd starts the loop and waits for it to exit.
func (h *harness) runToEnd(t *testing.T) {
	t.Helper()
	require.True(t, h.o.Run(), "loop should start")
	h.wait(t)
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.o.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
	}
}

func (h *harness) awaitStart(t *testing.T, want types.JobRef) {
	t.Helper()
	select {
	case got := <-h.routine.started:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("routine never started for %s", want)
	}
}

func (h *harness) job(t *testing.T, ref types.JobRef) types.Job {
	t.Helper()
	j, err := h.store.Get(context.Background(), ref)
	require.NoError(t, err)
	return j
}

// metric reads one counter or gauge sample; labels are name/value pairs.
func (h *harness) metric(t *testing.T, name string, labels ...string) float64 {
	t.Helper()
	families, err := h.reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			have := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if have[labels[i]] != labels[i+1] {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func queuedRefs(st Status) []types.JobRef {
	out := make([]types.JobRef, 0, len(st.Items))
	for _, it := range st.Items {
		out = append(out, it.Ref)
	}
	return out
}
