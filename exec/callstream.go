package exec

import (
	"context"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

// evalCallStream dispatches a builtin that produces a stream.
func evalCallStream(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (stream.Stream, error) {
	b := c.Builtin
	switch b.Kind {
	case protocol.BuiltinFilter:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return stream.NewFilter(s, predicateFunc(b.Filter, env, bt.Frame("predicate"))), nil
	case protocol.BuiltinMap:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return stream.NewMap(s, mapperFunc(b.Map, env, bt.Frame("mapping"))), nil
	case protocol.BuiltinConcatMap:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return stream.NewConcatMap(ctx, s, streamMapperFunc(b.ConcatMap, env, bt.Frame("mapping")))
	case protocol.BuiltinOrderBy:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return stream.NewSort(s, orderByCompare(b.OrderBy)), nil
	case protocol.BuiltinDistinct:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return newDistinct(s), nil
	case protocol.BuiltinUnion:
		streams := make([]stream.Stream, 0, len(c.Args))
		for i := range c.Args {
			s, err := evalStreamArg(ctx, c, i, env, bt)
			if err != nil {
				return nil, err
			}
			streams = append(streams, s)
		}
		return stream.NewUnion(streams), nil
	case protocol.BuiltinArrayToStream:
		v, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		elems, err := riverdb.Array(v)
		if err != nil {
			return nil, runtimef(bt.Frame("argument:1"), "%s", err)
		}
		return stream.NewInMemory(elems), nil
	case protocol.BuiltinRange:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return evalRange(ctx, s, b.Range, env, bt)
	case protocol.BuiltinSlice:
		return evalSlice(ctx, c, env, bt)
	case protocol.BuiltinLimit:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		n, err := evalIntArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, runtimef(bt.Frame("argument:2"), "limit requires a nonnegative count, got %d", n)
		}
		return stream.NewLimit(s, n), nil
	case protocol.BuiltinSkip:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		n, err := evalIntArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, runtimef(bt.Frame("argument:2"), "skip requires a nonnegative count, got %d", n)
		}
		return stream.NewSkip(s, n), nil
	}
	return nil, runtimef(bt, "builtin %s does not produce a stream", b.Kind)
}

// streamMapperFunc builds a concat-map body evaluator.  The body binds the
// argument and the implicit row like a mapping but evaluates to a stream.
func streamMapperFunc(m *protocol.Mapping, env *Env, bt backtrace.T) stream.StreamMapper {
	return func(ctx context.Context, doc riverdb.Value) (stream.Stream, error) {
		defer newScopes(env)()
		defer pushImplicit(env, doc)()
		env.Scope.Put(m.Arg, doc)
		env.Types.Scope.Put(m.Arg, check.TypeJSON)
		return EvalStream(ctx, m.Body, env, bt.Frame("body"))
	}
}

// orderByCompare builds a comparator over the sort keys.  A document that is
// not an object or lacks a key sorts as if the key were null, so absent keys
// come first on an ascending key.
func orderByCompare(keys []protocol.OrderBy) riverdb.CompareFunc {
	return func(a, b riverdb.Value) int {
		for _, key := range keys {
			cmp := riverdb.Compare(attrOrNull(a, key.Attr), attrOrNull(b, key.Attr))
			if !key.Ascending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	}
}

func attrOrNull(doc riverdb.Value, attr string) riverdb.Value {
	obj, ok := doc.(map[string]riverdb.Value)
	if !ok {
		return nil
	}
	return obj[attr]
}

// newDistinct drops documents whose canonical encoding has already been seen.
func newDistinct(parent stream.Stream) stream.Stream {
	seen := make(map[string]struct{})
	return stream.NewFilter(parent, func(_ context.Context, doc riverdb.Value) (bool, error) {
		key := string(riverdb.Canonical(doc))
		if _, ok := seen[key]; ok {
			return false, nil
		}
		seen[key] = struct{}{}
		return true, nil
	})
}

// evalRange keeps documents whose attribute falls between the bounds, both
// inclusive.  The bounds evaluate once, before the first document flows.
// Documents without the attribute are dropped.
func evalRange(ctx context.Context, s stream.Stream, r *protocol.Range, env *Env, bt backtrace.T) (stream.Stream, error) {
	var lower, upper *riverdb.Value
	if r.LowerBound != nil {
		v, err := Eval(ctx, r.LowerBound, env, bt.Frame("lowerbound"))
		if err != nil {
			return nil, err
		}
		lower = riverdb.Ptr(v)
	}
	if r.UpperBound != nil {
		v, err := Eval(ctx, r.UpperBound, env, bt.Frame("upperbound"))
		if err != nil {
			return nil, err
		}
		upper = riverdb.Ptr(v)
	}
	return stream.NewFilter(s, func(_ context.Context, doc riverdb.Value) (bool, error) {
		obj, ok := doc.(map[string]riverdb.Value)
		if !ok {
			return false, nil
		}
		key, ok := obj[r.Attr]
		if !ok {
			return false, nil
		}
		if lower != nil && riverdb.Compare(key, *lower) < 0 {
			return false, nil
		}
		if upper != nil && riverdb.Compare(key, *upper) > 0 {
			return false, nil
		}
		return true, nil
	}), nil
}

// evalSlice skips to the start index and, when the end is not null, limits
// the stream to end minus start documents.
func evalSlice(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (stream.Stream, error) {
	s, err := evalStreamArg(ctx, c, 0, env, bt)
	if err != nil {
		return nil, err
	}
	start, err := evalIntArg(ctx, c, 1, env, bt)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, runtimef(bt.Frame("argument:2"), "slice requires a nonnegative start, got %d", start)
	}
	endFrame := bt.Frame("argument:3")
	endVal, err := Eval(ctx, c.Args[2], env, endFrame)
	if err != nil {
		return nil, err
	}
	if endVal == nil {
		return stream.NewSkip(s, start), nil
	}
	end, err := riverdb.Int(endVal)
	if err != nil {
		return nil, runtimef(endFrame, "%s", err)
	}
	if end < start {
		return nil, runtimef(endFrame, "slice end %d precedes start %d", end, start)
	}
	return stream.NewLimit(stream.NewSkip(s, start), end-start), nil
}
