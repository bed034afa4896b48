package backtrace_test

import (
	"testing"

	"github.com/riverdb/riverdb/backtrace"
	"github.com/stretchr/testify/require"
)

func TestFrameDoesNotMutateParent(t *testing.T) {
	var root backtrace.T
	call := root.Frame("call")
	arg1 := call.Framef("argument:%d", 1)
	arg2 := call.Framef("argument:%d", 2)
	require.Empty(t, root.Frames())
	require.Equal(t, []string{"call"}, call.Frames())
	require.Equal(t, []string{"call", "argument:1"}, arg1.Frames())
	require.Equal(t, []string{"call", "argument:2"}, arg2.Frames())
}

func TestString(t *testing.T) {
	var bt backtrace.T
	bt = bt.Frame("bind:x").Frame("body")
	require.Equal(t, "bind:x/body", bt.String())
}
