package logger

// Standard field names for structured logging. Use these instead of raw
// strings so log queries stay stable.
const (
	FieldJobRef     = "job_ref"
	FieldTarget     = "target"
	FieldStatus     = "status"
	FieldOutcome    = "outcome"
	FieldReason     = "reason"
	FieldRetry      = "retry"
	FieldRunID      = "run_id"
	FieldSessionID  = "session_id"
	FieldAuthURL    = "auth_url"
	FieldWait       = "wait"
	FieldQueueLen   = "queue_len"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldAddress    = "address"
	FieldPath       = "path"
	FieldCount      = "count"
)
