package exec

import (
	"context"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/scope"
	"github.com/riverdb/riverdb/stream"
)

// newScopes pushes one frame on every variable stack and returns the func
// that pops them all.
func newScopes(env *Env) func() {
	popVals := scope.New(&env.Scope)
	popStreams := scope.New(&env.Streams)
	popTypes := scope.New(&env.Types.Scope)
	return func() {
		popTypes()
		popStreams()
		popVals()
	}
}

// pushImplicit binds doc as the implicit row on both the value and type
// stacks and returns the func that pops both.
func pushImplicit(env *Env, doc riverdb.Value) func() {
	popVal := scope.EnterValue(&env.Implicit, doc)
	popType := scope.EnterValue(&env.Types.Implicit, check.TypeJSON)
	return func() {
		popType()
		popVal()
	}
}

// Eval evaluates t to a single document.
func Eval(ctx context.Context, t *protocol.Term, env *Env, bt backtrace.T) (riverdb.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case protocol.TermJSONNull:
		return nil, nil
	case protocol.TermBool:
		return *t.Bool, nil
	case protocol.TermNumber:
		return *t.Number, nil
	case protocol.TermString:
		return *t.Str, nil
	case protocol.TermArray:
		arr := make([]riverdb.Value, 0, len(t.Array))
		for i, elem := range t.Array {
			v, err := Eval(ctx, elem, env, bt.Framef("element:%d", i+1))
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case protocol.TermObject:
		obj := make(map[string]riverdb.Value, len(t.Object))
		for _, field := range t.Object {
			v, err := Eval(ctx, field.Term, env, bt.Framef("attr:%s", field.Var))
			if err != nil {
				return nil, err
			}
			obj[field.Var] = v
		}
		return obj, nil
	case protocol.TermVar:
		return env.Scope.Get(*t.Var), nil
	case protocol.TermLet:
		return evalLet(ctx, t.Let, env, bt, func(ctx context.Context) (riverdb.Value, error) {
			return Eval(ctx, t.Let.Expr, env, bt.Frame("expr"))
		})
	case protocol.TermIf:
		branch, frame, err := evalTest(ctx, t.If, env, bt)
		if err != nil {
			return nil, err
		}
		return Eval(ctx, branch, env, bt.Frame(frame))
	case protocol.TermCall:
		return evalCall(ctx, t.Call, env, bt)
	case protocol.TermError:
		return nil, runtimef(bt, "%s", *t.Error)
	case protocol.TermGetByKey:
		return evalGetByKey(ctx, t.GetByKey, env, bt)
	case protocol.TermJavaScript:
		return evalJS(ctx, *t.JavaScript, env, bt)
	case protocol.TermImplicitVar:
		return env.Implicit.Value(), nil
	}
	return nil, runtimef(bt, "term of kind %s does not evaluate to a value", t.Kind)
}

// EvalStream evaluates t to a stream.
func EvalStream(ctx context.Context, t *protocol.Term, env *Env, bt backtrace.T) (stream.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case protocol.TermVar:
		return env.Streams.Get(*t.Var).NewStream(), nil
	case protocol.TermLet:
		return evalLet(ctx, t.Let, env, bt, func(ctx context.Context) (stream.Stream, error) {
			return EvalStream(ctx, t.Let.Expr, env, bt.Frame("expr"))
		})
	case protocol.TermIf:
		branch, frame, err := evalTest(ctx, t.If, env, bt)
		if err != nil {
			return nil, err
		}
		return EvalStream(ctx, branch, env, bt.Frame(frame))
	case protocol.TermCall:
		return evalCallStream(ctx, t.Call, env, bt)
	case protocol.TermError:
		return nil, runtimef(bt, "%s", *t.Error)
	case protocol.TermTable:
		view, err := EvalView(ctx, t, env, bt)
		if err != nil {
			return nil, err
		}
		return view.Stream, nil
	}
	return nil, runtimef(bt, "term of kind %s does not evaluate to a stream", t.Kind)
}

// evalLet binds each name in a fresh frame, choosing the value or stream
// scope by the binding's static type, then runs body under those frames.
func evalLet[T any](ctx context.Context, let *protocol.Let, env *Env, bt backtrace.T, body func(context.Context) (T, error)) (T, error) {
	var zero T
	defer newScopes(env)()
	for _, bind := range let.Binds {
		frame := bt.Framef("bind:%s", bind.Var)
		typ, err := check.TypeOf(bind.Term, &env.Types, backtrace.T{})
		if err != nil {
			return zero, runtimef(frame, "%s", err)
		}
		env.Types.Scope.Put(bind.Var, typ)
		if typ.Satisfies(check.TypeStream) && typ != check.TypeArbitrary {
			s, err := EvalStream(ctx, bind.Term, env, frame)
			if err != nil {
				return zero, err
			}
			env.Streams.Put(bind.Var, stream.NewMultiplexer(s))
		} else {
			v, err := Eval(ctx, bind.Term, env, frame)
			if err != nil {
				return zero, err
			}
			env.Scope.Put(bind.Var, v)
		}
	}
	return body(ctx)
}

// evalTest evaluates an if's test to a boolean and picks the branch plus its
// backtrace frame name.
func evalTest(ctx context.Context, ifTerm *protocol.If, env *Env, bt backtrace.T) (*protocol.Term, string, error) {
	test, err := Eval(ctx, ifTerm.Test, env, bt.Frame("test"))
	if err != nil {
		return nil, "", err
	}
	b, ok := test.(bool)
	if !ok {
		return nil, "", runtimef(bt.Frame("test"), "the condition of an if must be a boolean, not a %s", riverdb.KindOf(test))
	}
	if b {
		return ifTerm.TrueBranch, "true", nil
	}
	return ifTerm.FalseBranch, "false", nil
}

func evalGetByKey(ctx context.Context, g *protocol.GetByKey, env *Env, bt backtrace.T) (riverdb.Value, error) {
	access, info, err := evalTableRef(ctx, g.TableRef, env, bt)
	if err != nil {
		return nil, err
	}
	if g.Attrname != info.PrimaryKey {
		return nil, runtimef(bt, "attribute %q is not the primary key (%q)", g.Attrname, info.PrimaryKey)
	}
	key, err := Eval(ctx, g.Key, env, bt.Frame("key"))
	if err != nil {
		return nil, err
	}
	doc, err := access.Get(ctx, key)
	if err != nil {
		return nil, runtimef(bt, "%s", err)
	}
	if doc == nil {
		return nil, nil
	}
	return *doc, nil
}

// evalJS ships the source and the captured closure to the external process
// pool.  Stream-bound variables cannot cross the process boundary.
func evalJS(ctx context.Context, source string, env *Env, bt backtrace.T) (riverdb.Value, error) {
	if streams := env.Streams.Dump(); len(streams) > 0 {
		return nil, runtimef(bt, "cannot use a stream-bound variable inside javascript")
	}
	closure := env.Scope.Dump()
	var arg *riverdb.Value
	if env.Implicit.HasValue() {
		arg = riverdb.Ptr(env.Implicit.Value())
	}
	out, err := env.Pool.RunJS(ctx, source, closure, arg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, runtimef(bt, "javascript: %s", err)
	}
	return out, nil
}
