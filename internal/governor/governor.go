// ============================================================================
// lazyApply Rate Governor
// ============================================================================
//
// Package: internal/governor
// File: governor.go
// Purpose: Per-target submission ceilings and inter-submission spacing.
//
// Windows:
//   Hourly and daily counters roll over lazily. Every check or record first
//   compares now against the window end; once passed, the counter resets and
//   a new end (now + window length) is computed. No background timer.
//
// Guards (CanSubmit), first violation wins:
//   1. daily cap   -> wait until the daily window ends
//   2. hourly cap  -> wait until the hourly window ends
//   3. min spacing -> wait until minSpacing has elapsed since the last submit
//
// Usage is process-local and never persisted; a restart starts clean.
//
// ============================================================================

package governor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Reason names the guard that denied a submission.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonDailyLimit  Reason = "daily_limit"
	ReasonHourlyLimit Reason = "hourly_limit"
	ReasonSpacing     Reason = "min_spacing"
)

// Decision is the answer of CanSubmit.
type Decision struct {
	Allowed bool
	Wait    time.Duration // zero when allowed
	Reason  Reason
	Message string
}

// Usage is the per-target counter state.
type Usage struct {
	HourlyCount     int       `json:"hourly_count"`
	DailyCount      int       `json:"daily_count"`
	LastSubmission  time.Time `json:"last_submission"`
	HourlyWindowEnd time.Time `json:"hourly_window_end"`
	DailyWindowEnd  time.Time `json:"daily_window_end"`
}

// Governor tracks submission usage per target.
type Governor struct {
	mu       sync.Mutex
	policies Policies
	usage    map[string]*Usage
	now      func() time.Time // Injectable for testing
	rnd      *rand.Rand
}

// Option customizes a Governor.
type Option func(*Governor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithRand replaces the random source used by RandomSpacing.
func WithRand(r *rand.Rand) Option {
	return func(g *Governor) { g.rnd = r }
}

// New creates a Governor over policies. A nil table means DefaultPolicies;
// any other table must pass Validate.
func New(policies Policies, opts ...Option) (*Governor, error) {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	g := &Governor{
		policies: policies.Clone(),
		usage:    make(map[string]*Usage),
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CanSubmit reports whether target may receive a submission now.
func (g *Governor) CanSubmit(target string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	pol := g.policies.For(target)
	u := g.usageLocked(target, now)

	if pol.DailyLimit > 0 && u.DailyCount >= pol.DailyLimit {
		return Decision{
			Wait:    u.DailyWindowEnd.Sub(now),
			Reason:  ReasonDailyLimit,
			Message: fmt.Sprintf("daily limit reached for %s (%d/day)", target, pol.DailyLimit),
		}
	}
	if pol.HourlyLimit > 0 && u.HourlyCount >= pol.HourlyLimit {
		return Decision{
			Wait:    u.HourlyWindowEnd.Sub(now),
			Reason:  ReasonHourlyLimit,
			Message: fmt.Sprintf("hourly limit reached for %s (%d/hour)", target, pol.HourlyLimit),
		}
	}
	if !u.LastSubmission.IsZero() && pol.MinSpacing > 0 {
		elapsed := now.Sub(u.LastSubmission)
		if elapsed < pol.MinSpacing {
			return Decision{
				Wait:    pol.MinSpacing - elapsed,
				Reason:  ReasonSpacing,
				Message: fmt.Sprintf("minimum spacing for %s not met (%s since last, need %s)", target, elapsed.Round(time.Second), pol.MinSpacing),
			}
		}
	}
	return Decision{Allowed: true}
}

// RecordSubmission counts one accepted submission against target.
// Call it only for a Submitted outcome.
func (g *Governor) RecordSubmission(target string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	u := g.usageLocked(target, now)
	u.HourlyCount++
	u.DailyCount++
	u.LastSubmission = now
}

// RandomSpacing returns a uniform delay within the target's spacing window.
func (g *Governor) RandomSpacing(target string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	pol := g.policies.For(target)
	if pol.MaxSpacing <= pol.MinSpacing {
		return pol.MinSpacing
	}
	span := int64(pol.MaxSpacing - pol.MinSpacing)
	return pol.MinSpacing + time.Duration(g.rnd.Int63n(span+1))
}

// Usage returns a copy of target's counters after rolling its windows.
func (g *Governor) Usage(target string) Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.usageLocked(target, g.now())
}

// Targets lists every target with recorded usage.
func (g *Governor) Targets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.usage))
	for t := range g.usage {
		out = append(out, t)
	}
	return out
}

// Reset forgets target's usage.
func (g *Governor) Reset(target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.usage, target)
}

// ResetAll forgets all usage.
func (g *Governor) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage = make(map[string]*Usage)
}

// Policy returns the effective policy of target.
func (g *Governor) Policy(target string) Policy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policies.For(target)
}

// SetPolicies swaps the policy table. Usage is kept.
func (g *Governor) SetPolicies(p Policies) error {
	if err := p.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.policies = p.Clone()
	g.mu.Unlock()
	return nil
}

// usageLocked returns target's usage, creating it and rolling windows.
// Must be called with lock held.
func (g *Governor) usageLocked(target string, now time.Time) *Usage {
	u, ok := g.usage[target]
	if !ok {
		u = &Usage{
			HourlyWindowEnd: now.Add(hourWindow),
			DailyWindowEnd:  now.Add(dayWindow),
		}
		g.usage[target] = u
		return u
	}
	if !now.Before(u.HourlyWindowEnd) {
		u.HourlyCount = 0
		u.HourlyWindowEnd = now.Add(hourWindow)
	}
	if !now.Before(u.DailyWindowEnd) {
		u.DailyCount = 0
		u.DailyWindowEnd = now.Add(dayWindow)
	}
	return u
}
