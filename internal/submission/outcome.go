// ============================================================================
// lazyApply Submission Routine Contract
// ============================================================================
//
// Package: internal/submission
// File: outcome.go
// Purpose: Outcome vocabulary a per-target routine reports back.
//
// Every routine invocation yields exactly one Outcome:
//   Submitted                      target accepted the application
//   NeedsInput(fields)             parked until the operator answers fields
//   Failed(reason[, detection])    attempt failed; detection disables retry
//   AuthRequired(authURL, message) queue freezes until the operator logs in
//
// ============================================================================

package submission

import (
	"github.com/sumanthpn07/lazyApply/pkg/types"
)

// Kind tags the Outcome variant.
type Kind int

const (
	KindSubmitted Kind = iota + 1
	KindNeedsInput
	KindFailed
	KindAuthRequired
)

func (k Kind) String() string {
	switch k {
	case KindSubmitted:
		return "submitted"
	case KindNeedsInput:
		return "needs_input"
	case KindFailed:
		return "failed"
	case KindAuthRequired:
		return "auth_required"
	default:
		return "unknown"
	}
}

// Outcome is the immutable result of one routine invocation.
// Build it with the constructors below; the zero value is not valid.
type Outcome struct {
	kind      Kind
	fields    []types.Field
	reason    string
	detection bool
	authURL   string
	message   string
}

// Submitted reports an accepted application.
func Submitted() Outcome {
	return Outcome{kind: KindSubmitted}
}

// NeedsInput reports fields the routine could not answer.
func NeedsInput(fields []types.Field) Outcome {
	cp := make([]types.Field, len(fields))
	copy(cp, fields)
	return Outcome{kind: KindNeedsInput, fields: cp}
}

// Failed reports a failed attempt with a human-readable reason.
func Failed(reason string) Outcome {
	return Outcome{kind: KindFailed, reason: reason}
}

// DetectionTriggered reports that the target flagged the session as
// automated. Such failures are never retried.
func DetectionTriggered(reason string) Outcome {
	return Outcome{kind: KindFailed, reason: reason, detection: true}
}

// AuthRequired reports a login wall at authURL.
func AuthRequired(authURL, message string) Outcome {
	return Outcome{kind: KindAuthRequired, authURL: authURL, message: message}
}

// WithDetection marks a Failed outcome as a detection event.
func (o Outcome) WithDetection() Outcome {
	if o.kind == KindFailed {
		o.detection = true
	}
	return o
}

func (o Outcome) Kind() Kind { return o.kind }

// Valid reports whether o was built by a constructor.
func (o Outcome) Valid() bool { return o.kind >= KindSubmitted && o.kind <= KindAuthRequired }

// Fields returns a copy of the NeedsInput field list.
func (o Outcome) Fields() []types.Field {
	if len(o.fields) == 0 {
		return nil
	}
	cp := make([]types.Field, len(o.fields))
	copy(cp, o.fields)
	return cp
}

func (o Outcome) Reason() string  { return o.reason }
func (o Outcome) Detection() bool { return o.detection }
func (o Outcome) AuthURL() string { return o.authURL }
func (o Outcome) Message() string { return o.message }

// Label is the metrics/log label of the outcome.
func (o Outcome) Label() string {
	if o.kind == KindFailed && o.detection {
		return "detection"
	}
	return o.kind.String()
}
