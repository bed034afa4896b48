package exec

import (
	"fmt"

	"github.com/riverdb/riverdb/backtrace"
)

// RuntimeError reports a failure while evaluating a typechecked query: a
// wrong dynamic kind, a missing attribute, an out-of-range index.  The
// backtrace names the position in the term tree that raised it.
type RuntimeError struct {
	Msg       string
	Backtrace backtrace.T
}

func (e *RuntimeError) Error() string {
	return e.Msg
}

func runtimef(bt backtrace.T, format string, args ...any) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...), Backtrace: bt}
}
