// Package interrupt holds the authentication interrupt state machine.
//
//	Clear --Freeze--> Frozen --BeginResume--> Resuming --Finish--> Clear
//
// While Frozen the coordinator owns the page the routine was using so the
// operator can sign in on it. BeginResume hands that page back exactly once.
package interrupt

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// ErrNothingToResume is returned by BeginResume when no interrupt is pending.
var ErrNothingToResume = errors.New("no authentication interrupt pending")

// Phase is the coordinator state.
type Phase int

const (
	PhaseClear Phase = iota
	PhaseFrozen
	PhaseResuming
)

func (p Phase) String() string {
	switch p {
	case PhaseClear:
		return "clear"
	case PhaseFrozen:
		return "frozen"
	case PhaseResuming:
		return "resuming"
	}
	return "unknown"
}

// Checkpoint is what a resume needs to retry the interrupted item.
// Page is nil when the page was lost (cancel, restart).
type Checkpoint struct {
	Item    types.WorkItem
	Target  string
	AuthURL string
	Page    session.Page
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	mu    sync.Mutex
	phase Phase
	state types.InterruptState
	item  types.WorkItem
	page  session.Page
	now   func() time.Time
}

// New creates a coordinator in the Clear phase.
func New() *Coordinator {
	return &Coordinator{now: time.Now}
}

// Freeze records an interrupt and takes ownership of page. A second
// Freeze replaces the first; the caller is responsible for the old page.
func (c *Coordinator) Freeze(item types.WorkItem, target, authURL, message string, page session.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseFrozen
	c.item = item
	c.page = page
	c.state = types.InterruptState{
		Active:  true,
		Target:  target,
		AuthURL: authURL,
		Message: message,
		Ref:     item.Ref,
		Since:   c.now(),
	}
}

// BeginResume moves Frozen to Resuming and returns the checkpoint.
// The stored page is handed over and forgotten, so a racing second call
// gets ErrNothingToResume.
func (c *Coordinator) BeginResume() (Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseFrozen {
		return Checkpoint{}, ErrNothingToResume
	}
	cp := Checkpoint{
		Item:    c.item,
		Target:  c.state.Target,
		AuthURL: c.state.AuthURL,
		Page:    c.page,
	}
	c.phase = PhaseResuming
	c.page = nil
	c.state = types.InterruptState{}
	return cp, nil
}

// Finish returns to Clear once the resumed item has been handed to the
// loop.
func (c *Coordinator) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseResuming {
		c.phase = PhaseClear
	}
}

// DropPage forgets the stored page without leaving Frozen. Used when the
// session is torn down under a pending interrupt.
func (c *Coordinator) DropPage() session.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.page
	c.page = nil
	return p
}

// Reset discards any interrupt.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseClear
	c.page = nil
	c.item = types.WorkItem{}
	c.state = types.InterruptState{}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Frozen reports whether an interrupt is pending.
func (c *Coordinator) Frozen() bool {
	return c.Phase() == PhaseFrozen
}

// State returns a copy of the pending interrupt, zero when none.
func (c *Coordinator) State() types.InterruptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Item returns the interrupted work item, zero when none is pending.
func (c *Coordinator) Item() (types.WorkItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseFrozen {
		return types.WorkItem{}, false
	}
	return c.item, true
}

// HasPage reports whether the coordinator holds a page.
func (c *Coordinator) HasPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page != nil
}
