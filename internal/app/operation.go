package app

import "time"

// opIDLayout formats operation ids; ids sort by start time.
const opIDLayout = "20060102T150405Z"

// Operation tracks the CLI command being run. Its ID tags every log line the
// command writes, so one run can be picked out of the shared log file.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
	Err     error
}

// NewOperation creates an operation for the named command started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      now.UTC().Format(opIDLayout),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the operation as failed. A nil err is ignored.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = "error"
	op.Err = err
}

// Failed returns true if Fail was called with an error.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.Started)
}
