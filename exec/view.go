package exec

import (
	"context"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

// View couples a document stream with the mutable access handle of the table
// it reads from.  Write queries iterate the stream and apply changes through
// the handle.
type View struct {
	Access nsrepo.Access
	Info   metadata.TableInfo
	Stream stream.Stream
}

// evalTableRef resolves a table reference and opens its access handle.
func evalTableRef(ctx context.Context, ref protocol.TableRef, env *Env, bt backtrace.T) (nsrepo.Access, metadata.TableInfo, error) {
	info, err := env.Meta.Resolve(ref.DBName, ref.TableName)
	if err != nil {
		return nil, metadata.TableInfo{}, runtimef(bt, "%s", err)
	}
	access, err := env.Repo.Access(ctx, ref.DBName, ref.TableName)
	if err != nil {
		return nil, metadata.TableInfo{}, runtimef(bt, "%s", err)
	}
	return access, info, nil
}

// EvalView evaluates a term that denotes a view: a table, or a filter over
// a view.  The filter case keeps the underlying table's access handle so the
// filtered rows remain writable.
func EvalView(ctx context.Context, t *protocol.Term, env *Env, bt backtrace.T) (*View, error) {
	switch t.Kind {
	case protocol.TermTable:
		access, info, err := evalTableRef(ctx, t.Table.TableRef, env, bt)
		if err != nil {
			return nil, err
		}
		s, err := access.Scan(ctx)
		if err != nil {
			return nil, runtimef(bt, "%s", err)
		}
		return &View{Access: access, Info: info, Stream: s}, nil
	case protocol.TermCall:
		if t.Call.Builtin.Kind == protocol.BuiltinFilter {
			parent, err := EvalView(ctx, t.Call.Args[0], env, bt.Frame("argument:1"))
			if err != nil {
				return nil, err
			}
			pred := predicateFunc(t.Call.Builtin.Filter, env, bt.Frame("predicate"))
			parent.Stream = stream.NewFilter(parent.Stream, pred)
			return parent, nil
		}
	}
	return nil, runtimef(bt, "term is not a view")
}

// predicateFunc builds a stream predicate that binds the predicate's
// argument and the implicit row before evaluating its body as a boolean.
func predicateFunc(p *protocol.Predicate, env *Env, bt backtrace.T) stream.Predicate {
	return func(ctx context.Context, doc riverdb.Value) (bool, error) {
		out, err := evalBoundBody(ctx, p.Arg, p.Body, doc, env, bt.Frame("body"))
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, runtimef(bt, "predicate must evaluate to a boolean")
		}
		return b, nil
	}
}

// mapperFunc builds a stream mapper from a mapping in the same way.
func mapperFunc(m *protocol.Mapping, env *Env, bt backtrace.T) stream.Mapper {
	return func(ctx context.Context, doc riverdb.Value) (riverdb.Value, error) {
		return evalBoundBody(ctx, m.Arg, m.Body, doc, env, bt.Frame("body"))
	}
}

// evalBoundBody evaluates body with name bound to doc and doc pushed as the
// implicit row, the shared shape of predicates and mappings.
func evalBoundBody(ctx context.Context, name string, body *protocol.Term, doc riverdb.Value, env *Env, bt backtrace.T) (riverdb.Value, error) {
	defer newScopes(env)()
	defer pushImplicit(env, doc)()
	env.Scope.Put(name, doc)
	env.Types.Scope.Put(name, check.TypeJSON)
	return Eval(ctx, body, env, bt)
}
