package app

import "strings"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Operation tracks a CLI command that may mutate the changeset index.
// Operations start in memory with ID=0; only commands that write to the
// index persist them, and only persisted operations trigger an upload of the
// index snapshot on Close.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation. Arguments are joined into
// the parameter string as given.
func NewOperation(operation string, args ...string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Status:     statusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. It is recorded when the app closes.
func (op *Operation) Fail() {
	op.Status = statusError
}
