// Package poolrt assigns uuid-based task ids to asynchronous pool
// runtime work — proposal-assembly batches and finalize jobs — so that
// logs and RPC responses can correlate a single assembly run across
// goroutines.
package poolrt

import "github.com/google/uuid"

// TaskId identifies one asynchronous pool runtime task.
type TaskId = uuid.UUID

// NewTaskId mints a fresh random task id.
func NewTaskId() TaskId {
	return uuid.New()
}

// ParseTaskId parses a task id previously rendered with String().
func ParseTaskId(s string) (TaskId, error) {
	return uuid.Parse(s)
}
