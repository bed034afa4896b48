package check

import (
	"fmt"

	"github.com/riverdb/riverdb/backtrace"
)

// Error reports a well-formed but ill-typed query.  It blames the end user
// rather than the client driver, so it maps to a bad-query response with the
// descent backtrace attached.
type Error struct {
	Msg       string
	Backtrace backtrace.T
}

func (e *Error) Error() string {
	return e.Msg
}

func errf(bt backtrace.T, format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...), Backtrace: bt}
}
