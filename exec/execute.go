package exec

import (
	"context"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

// Result is the outcome of one read or write query.  Stream is non-nil for
// stream-typed reads; Doc carries the document otherwise.
type Result struct {
	Doc    riverdb.Value
	Stream stream.Stream
}

// Run executes a typechecked read or write query.  CONTINUE and STOP are
// session concerns and never reach here.
func Run(ctx context.Context, q *protocol.Query, env *Env) (*Result, error) {
	switch q.Type {
	case protocol.QueryRead:
		return runRead(ctx, q.Read, env)
	case protocol.QueryWrite:
		doc, err := ExecWrite(ctx, q.Write, env, backtrace.T{})
		if err != nil {
			return nil, err
		}
		return &Result{Doc: doc}, nil
	}
	return nil, runtimef(backtrace.T{}, "query type %s does not execute", q.Type)
}

// runRead picks evaluation mode from the term's static type: stream-typed
// terms stream their documents, everything else produces one document.
func runRead(ctx context.Context, r *protocol.ReadQuery, env *Env) (*Result, error) {
	typ, err := check.TypeOf(r.Term, &env.Types, backtrace.T{})
	if err != nil {
		return nil, runtimef(backtrace.T{}, "%s", err)
	}
	if typ.Satisfies(check.TypeStream) && typ != check.TypeArbitrary {
		s, err := EvalStream(ctx, r.Term, env, backtrace.T{})
		if err != nil {
			return nil, err
		}
		return &Result{Stream: s}, nil
	}
	doc, err := Eval(ctx, r.Term, env, backtrace.T{})
	if err != nil {
		return nil, err
	}
	return &Result{Doc: doc}, nil
}
