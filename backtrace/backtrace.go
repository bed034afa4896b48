// Package backtrace records the path of descent through a query tree so
// static and runtime errors can name the exact position that produced them.
package backtrace

import (
	"fmt"
	"strings"
)

// T is an immutable descent path.  Frame returns an extended child path
// without mutating the receiver, so sibling descents never see each other's
// frames.
type T struct {
	frames []string
}

// Frame appends one descent step, e.g. "argument:2" or "predicate".
func (t T) Frame(name string) T {
	frames := make([]string, len(t.frames), len(t.frames)+1)
	copy(frames, t.frames)
	return T{frames: append(frames, name)}
}

// Framef is Frame with fmt-style formatting.
func (t T) Framef(format string, args ...any) T {
	return t.Frame(fmt.Sprintf(format, args...))
}

// Frames returns the descent steps from root to the current position.
func (t T) Frames() []string {
	return t.frames
}

func (t T) String() string {
	return strings.Join(t.frames, "/")
}
