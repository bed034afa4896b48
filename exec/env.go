// Package exec evaluates typechecked queries.  Eval produces a single
// document, EvalStream a lazy stream, EvalView a stream with a mutable table
// handle; Run dispatches a whole read or write query.  Everything here may
// assume the checker proved variable resolution and argument types, so kind
// mismatches discovered during evaluation are runtime errors, not bugs.
package exec

import (
	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/extproc"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo"
	"github.com/riverdb/riverdb/scope"
	"github.com/riverdb/riverdb/stream"
)

// Env is the per-query evaluation environment.  Variables bind in the value
// scope or the stream scope depending on their static type; the parallel
// type scope lets Let re-derive that type for each binding.  A stream
// binding holds a multiplexer so every reference replays the same sequence.
type Env struct {
	Scope    scope.Scope[riverdb.Value]
	Streams  scope.Scope[*stream.Multiplexer]
	Types    check.Env
	Implicit scope.Implicit[riverdb.Value]

	Pool *extproc.Pool
	Repo nsrepo.Repo
	Meta *metadata.Snapshot
}

// NewEnv returns an environment with one open frame on each stack.
func NewEnv(pool *extproc.Pool, repo nsrepo.Repo, meta *metadata.Snapshot) *Env {
	env := &Env{Pool: pool, Repo: repo, Meta: meta}
	env.Scope.Push()
	env.Streams.Push()
	env.Types.Scope.Push()
	env.Types.Implicit.Push()
	env.Implicit.Push()
	return env
}
