// Package types defines the domain model shared across lazyApply packages.
package types

import (
	"time"
)

// JobRef is the opaque external identifier of a job record.
type JobRef string

// JobStatus is the externally visible state of a job record.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"      // waiting in the submission queue
	StatusSubmitting JobStatus = "submitting"  // a routine is driving the page right now
	StatusSubmitted  JobStatus = "submitted"   // target accepted the application
	StatusNeedsInput JobStatus = "needs-input" // parked until the operator supplies answers
	StatusFailed     JobStatus = "failed"      // terminal failure, reason recorded
	StatusSkipped    JobStatus = "skipped"     // not attempted (rate ceiling, cancel)
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusSubmitting, StatusSubmitted,
		StatusNeedsInput, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Job is the external job record the orchestrator reads by ref.
type Job struct {
	Ref     JobRef `json:"ref" yaml:"ref"`
	Target  string `json:"target" yaml:"target"` // destination platform, selects routine and policy
	URL     string `json:"url" yaml:"url"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Company string `json:"company,omitempty" yaml:"company,omitempty"`

	Status    JobStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Fields    []Field   `json:"fields,omitempty" yaml:"fields,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Field describes one form input a routine could not answer on its own.
type Field struct {
	Key      string `json:"key" yaml:"key"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"` // text, select, checkbox, file ...
	Required bool   `json:"required" yaml:"required"`
}

// WorkItem is one queued submission attempt. Identity is Ref.
type WorkItem struct {
	Ref        JobRef `json:"ref"`
	RetryCount int    `json:"retry_count"`
}

// InterruptState records an authentication interrupt while the queue is frozen.
type InterruptState struct {
	Active  bool      `json:"active"`
	Target  string    `json:"target,omitempty"`
	AuthURL string    `json:"auth_url,omitempty"`
	Message string    `json:"message,omitempty"`
	Ref     JobRef    `json:"ref,omitempty"`
	Since   time.Time `json:"since,omitempty"`
}

// QueueSnapshot is the on-disk checkpoint of queue order.
// Rate usage is deliberately absent: it resets on restart.
type QueueSnapshot struct {
	SchemaVer int             `json:"schema_ver"`
	Items     []WorkItem      `json:"items"`
	Interrupt *InterruptState `json:"interrupt,omitempty"`
	TakenAt   time.Time       `json:"taken_at"`
}
