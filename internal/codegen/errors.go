package codegen

import (
	"errors"
	"fmt"
)

// ErrInternal marks a broken precondition inside the merging engine. It always
// means the grouping stage admitted a set of groups that cannot share one
// layout; it is never caused by user input directly.
var ErrInternal = errors.New("codegen: internal consistency error")

type InternalError struct {
	Op  string
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("codegen: %s: %s", e.Op, e.Msg)
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

func fatalf(op, format string, args ...any) {
	panic(&InternalError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a panic raised by this package into an error stored in
// *errp. Any other panic is re-raised. It must be called directly by defer.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*errp = ie
		return
	}
	panic(r)
}
