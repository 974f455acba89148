package submission

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sumanthpn07/lazyApply/internal/session"
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// ErrDetectionTriggered may be wrapped by a routine's returned error to
// signal that the target flagged the session. The orchestrator then treats
// the failure as non-retryable.
var ErrDetectionTriggered = errors.New("automation detected by target")

// Profile answers form questions from the operator's stored profile.
type Profile interface {
	Lookup(key string) (string, bool)
}

// Routine drives one target's application form on a page.
//
// Submit must bound its own waits; the orchestrator imposes no timeout
// beyond ctx, which is cancelled only when the queue is cancelled.
// Any returned error is converted to Failed(err.Error()).
type Routine interface {
	Target() string
	Submit(ctx context.Context, page session.Page, job types.Job, profile Profile) (Outcome, error)
}

// Registry resolves a target to its routine, falling back to a generic one.
// It is built once at startup and read-only afterwards.
type Registry struct {
	fallback Routine
	routines map[string]Routine
}

// NewRegistry builds a registry. fallback must not be nil.
func NewRegistry(fallback Routine, routines ...Routine) (*Registry, error) {
	if fallback == nil {
		return nil, errors.New("registry needs a fallback routine")
	}
	r := &Registry{
		fallback: fallback,
		routines: make(map[string]Routine, len(routines)),
	}
	for _, rt := range routines {
		key := normalizeTarget(rt.Target())
		if key == "" {
			return nil, errors.New("routine reports an empty target")
		}
		if _, dup := r.routines[key]; dup {
			return nil, errors.Newf("duplicate routine for target %q", key)
		}
		r.routines[key] = rt
	}
	return r, nil
}

// Resolve returns the routine for target. Never nil.
func (r *Registry) Resolve(target string) Routine {
	if rt, ok := r.routines[normalizeTarget(target)]; ok {
		return rt
	}
	return r.fallback
}

// Targets lists the targets with a dedicated routine.
func (r *Registry) Targets() []string {
	out := make([]string, 0, len(r.routines))
	for t := range r.routines {
		out = append(out, t)
	}
	return out
}

func normalizeTarget(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// MapProfile is a Profile backed by a static map.
type MapProfile map[string]string

// Lookup matches keys case-insensitively and ignores separators, so
// "Years Experience", "years_experience" and "years-experience" agree.
func (m MapProfile) Lookup(key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	want := canonicalKey(key)
	for k, v := range m {
		if canonicalKey(k) == want {
			return v, true
		}
	}
	return "", false
}

func canonicalKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
