package service

import (
	"errors"
	"fmt"
)

// ErrBadConfig marks fatal configuration problems (missing credentials,
// invalid plan settings). These abort the run and surface to the operator.
var ErrBadConfig = errors.New("bad configuration")

// Failure kinds recorded for a single row.
const (
	KindContentEmpty   = "content_empty"
	KindLengthExceeded = "length_exceeded"
	KindAPI            = "api"
)

// PublishError is the row-scoped failure result of a publish operation. The
// row's status and result field are already written by the time it is
// returned; whether it aborts the run depends on its kind and the configured
// policy.
type PublishError struct {
	RowID  int
	Kind   string
	Detail string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: %s: %v", e.RowID, e.Kind, e.Err)
	}
	return fmt.Sprintf("row %d: %s: %s", e.RowID, e.Kind, e.Detail)
}

func (e *PublishError) Unwrap() error { return e.Err }
