package exec

import (
	"context"
	"math"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/scope"
	"github.com/riverdb/riverdb/stream"
)

// evalCall dispatches a builtin that produces a single document.
func evalCall(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	b := c.Builtin
	switch b.Kind {
	case protocol.BuiltinNot:
		v, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		bv, ok := v.(bool)
		if !ok {
			return nil, runtimef(bt.Frame("argument:1"), "not requires a boolean, not a %s", riverdb.KindOf(v))
		}
		return !bv, nil
	case protocol.BuiltinGetAttr:
		v, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return getAttr(v, *b.Attr, bt)
	case protocol.BuiltinImplicitGetAttr:
		return getAttr(env.Implicit.Value(), *b.Attr, bt)
	case protocol.BuiltinHasAttr:
		v, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return hasAttr(v, *b.Attr, bt)
	case protocol.BuiltinImplicitHasAttr:
		return hasAttr(env.Implicit.Value(), *b.Attr, bt)
	case protocol.BuiltinPickAttrs:
		v, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		obj, err := riverdb.Object(v)
		if err != nil {
			return nil, runtimef(bt.Frame("argument:1"), "%s", err)
		}
		picked := make(map[string]riverdb.Value, len(b.Attrs))
		for _, attr := range b.Attrs {
			av, ok := obj[attr]
			if !ok {
				return nil, runtimef(bt, "object is missing attribute %q", attr)
			}
			picked[attr] = riverdb.Copy(av)
		}
		return picked, nil
	case protocol.BuiltinMapMerge:
		left, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		right, err := evalArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		return mapMerge(left, right, bt)
	case protocol.BuiltinArrayAppend:
		arr, err := evalArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		elems, err := riverdb.Array(arr)
		if err != nil {
			return nil, runtimef(bt.Frame("argument:1"), "%s", err)
		}
		elem, err := evalArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		out := make([]riverdb.Value, 0, len(elems)+1)
		out = append(out, elems...)
		return append(out, elem), nil
	case protocol.BuiltinAdd:
		return evalAdd(ctx, c, env, bt)
	case protocol.BuiltinSubtract, protocol.BuiltinMultiply, protocol.BuiltinDivide:
		return evalArith(ctx, c, env, bt)
	case protocol.BuiltinModulo:
		a, err := evalNumberArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		m, err := evalNumberArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		return finite(math.Mod(a, m), bt)
	case protocol.BuiltinCompare:
		return evalCompare(ctx, c, env, bt)
	case protocol.BuiltinAny, protocol.BuiltinAll:
		return evalLogical(ctx, c, env, bt)
	case protocol.BuiltinLength:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		n := 0
		for {
			doc, err := s.Next(ctx)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return float64(n), nil
			}
			n++
		}
	case protocol.BuiltinNth:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		n, err := evalIntArg(ctx, c, 1, env, bt)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, runtimef(bt.Frame("argument:2"), "nth requires a nonnegative index, got %d", n)
		}
		docs, err := stream.ReadBatch(ctx, s, n+1)
		if err != nil {
			return nil, err
		}
		if len(docs) <= n {
			return nil, runtimef(bt, "index %d out of bounds for a stream of %d", n, len(docs))
		}
		return docs[n], nil
	case protocol.BuiltinStreamToArray:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		docs, err := stream.Drain(ctx, s)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []riverdb.Value{}
		}
		return []riverdb.Value(docs), nil
	case protocol.BuiltinReduce:
		s, err := evalStreamArg(ctx, c, 0, env, bt)
		if err != nil {
			return nil, err
		}
		return evalReduce(ctx, s, b.Reduce, env, bt.Frame("reduction"))
	case protocol.BuiltinGroupedMapReduce:
		return evalGroupedMapReduce(ctx, c, env, bt)
	}
	return nil, runtimef(bt, "builtin %s does not produce a value", b.Kind)
}

func evalArg(ctx context.Context, c *protocol.Call, n int, env *Env, bt backtrace.T) (riverdb.Value, error) {
	return Eval(ctx, c.Args[n], env, bt.Framef("argument:%d", n+1))
}

func evalStreamArg(ctx context.Context, c *protocol.Call, n int, env *Env, bt backtrace.T) (stream.Stream, error) {
	return EvalStream(ctx, c.Args[n], env, bt.Framef("argument:%d", n+1))
}

func evalNumberArg(ctx context.Context, c *protocol.Call, n int, env *Env, bt backtrace.T) (float64, error) {
	frame := bt.Framef("argument:%d", n+1)
	v, err := Eval(ctx, c.Args[n], env, frame)
	if err != nil {
		return 0, err
	}
	f, err := riverdb.Number(v)
	if err != nil {
		return 0, runtimef(frame, "%s", err)
	}
	return f, nil
}

func evalIntArg(ctx context.Context, c *protocol.Call, n int, env *Env, bt backtrace.T) (int, error) {
	frame := bt.Framef("argument:%d", n+1)
	v, err := Eval(ctx, c.Args[n], env, frame)
	if err != nil {
		return 0, err
	}
	i, err := riverdb.Int(v)
	if err != nil {
		return 0, runtimef(frame, "%s", err)
	}
	return i, nil
}

func getAttr(v riverdb.Value, attr string, bt backtrace.T) (riverdb.Value, error) {
	obj, err := riverdb.Object(v)
	if err != nil {
		return nil, runtimef(bt, "%s", err)
	}
	av, ok := obj[attr]
	if !ok {
		return nil, runtimef(bt, "object has no attribute %q", attr)
	}
	return av, nil
}

func hasAttr(v riverdb.Value, attr string, bt backtrace.T) (riverdb.Value, error) {
	obj, err := riverdb.Object(v)
	if err != nil {
		return nil, runtimef(bt, "%s", err)
	}
	_, ok := obj[attr]
	return ok, nil
}

// mapMerge combines two objects; attributes of the right operand win.
func mapMerge(left, right riverdb.Value, bt backtrace.T) (riverdb.Value, error) {
	lobj, err := riverdb.Object(left)
	if err != nil {
		return nil, runtimef(bt.Frame("argument:1"), "%s", err)
	}
	robj, err := riverdb.Object(right)
	if err != nil {
		return nil, runtimef(bt.Frame("argument:2"), "%s", err)
	}
	out := make(map[string]riverdb.Value, len(lobj)+len(robj))
	for k, v := range lobj {
		out[k] = riverdb.Copy(v)
	}
	for k, v := range robj {
		out[k] = riverdb.Copy(v)
	}
	return out, nil
}

// evalAdd dispatches on the kind of the first operand: numbers sum, strings
// concatenate, arrays concatenate.  No operands means zero.
func evalAdd(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	if len(c.Args) == 0 {
		return 0.0, nil
	}
	first, err := evalArg(ctx, c, 0, env, bt)
	if err != nil {
		return nil, err
	}
	switch riverdb.KindOf(first) {
	case riverdb.KindNumber:
		sum := first.(float64)
		for i := 1; i < len(c.Args); i++ {
			f, err := evalNumberArg(ctx, c, i, env, bt)
			if err != nil {
				return nil, err
			}
			sum += f
		}
		return finite(sum, bt)
	case riverdb.KindString:
		out := first.(string)
		for i := 1; i < len(c.Args); i++ {
			frame := bt.Framef("argument:%d", i+1)
			v, err := Eval(ctx, c.Args[i], env, frame)
			if err != nil {
				return nil, err
			}
			s, err := riverdb.String(v)
			if err != nil {
				return nil, runtimef(frame, "%s", err)
			}
			out += s
		}
		return out, nil
	case riverdb.KindArray:
		out := append([]riverdb.Value(nil), first.([]riverdb.Value)...)
		for i := 1; i < len(c.Args); i++ {
			frame := bt.Framef("argument:%d", i+1)
			v, err := Eval(ctx, c.Args[i], env, frame)
			if err != nil {
				return nil, err
			}
			elems, err := riverdb.Array(v)
			if err != nil {
				return nil, runtimef(frame, "%s", err)
			}
			out = append(out, elems...)
		}
		return out, nil
	}
	return nil, runtimef(bt.Frame("argument:1"), "cannot add values of kind %s", riverdb.KindOf(first))
}

// evalArith folds subtract, multiply, or divide left to right.  A single
// operand means negation for subtract and reciprocal for divide.
func evalArith(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	kind := c.Builtin.Kind
	if len(c.Args) == 0 {
		if kind == protocol.BuiltinMultiply {
			return 1.0, nil
		}
		return 0.0, nil
	}
	acc, err := evalNumberArg(ctx, c, 0, env, bt)
	if err != nil {
		return nil, err
	}
	if len(c.Args) == 1 {
		switch kind {
		case protocol.BuiltinSubtract:
			return -acc, nil
		case protocol.BuiltinDivide:
			return finite(1/acc, bt)
		}
		return acc, nil
	}
	for i := 1; i < len(c.Args); i++ {
		f, err := evalNumberArg(ctx, c, i, env, bt)
		if err != nil {
			return nil, err
		}
		switch kind {
		case protocol.BuiltinSubtract:
			acc -= f
		case protocol.BuiltinMultiply:
			acc *= f
		case protocol.BuiltinDivide:
			acc /= f
		}
	}
	return finite(acc, bt)
}

// finite rejects results a JSON document cannot carry.
func finite(f float64, bt backtrace.T) (riverdb.Value, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, runtimef(bt, "result is not a finite number")
	}
	return f, nil
}

// evalCompare asserts the builtin's relation over each adjacent pair.
func evalCompare(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	if len(c.Args) < 2 {
		return true, nil
	}
	prev, err := evalArg(ctx, c, 0, env, bt)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(c.Args); i++ {
		cur, err := evalArg(ctx, c, i, env, bt)
		if err != nil {
			return nil, err
		}
		if !holds(*c.Builtin.Comparison, riverdb.Compare(prev, cur)) {
			return false, nil
		}
		prev = cur
	}
	return true, nil
}

func holds(rel protocol.Comparison, cmp int) bool {
	switch rel {
	case protocol.CompareEQ:
		return cmp == 0
	case protocol.CompareNE:
		return cmp != 0
	case protocol.CompareLT:
		return cmp < 0
	case protocol.CompareLE:
		return cmp <= 0
	case protocol.CompareGT:
		return cmp > 0
	case protocol.CompareGE:
		return cmp >= 0
	}
	return false
}

// evalLogical short-circuits: any stops at the first true, all at the first
// false.
func evalLogical(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	all := c.Builtin.Kind == protocol.BuiltinAll
	for i := range c.Args {
		frame := bt.Framef("argument:%d", i+1)
		v, err := Eval(ctx, c.Args[i], env, frame)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, runtimef(frame, "logical operands must be booleans, not %s", riverdb.KindOf(v))
		}
		if b != all {
			return !all, nil
		}
	}
	return all, nil
}

// evalReduce folds the stream left to right starting from the base.  The
// body sees no implicit row.
func evalReduce(ctx context.Context, s stream.Stream, r *protocol.Reduction, env *Env, bt backtrace.T) (riverdb.Value, error) {
	acc, err := Eval(ctx, r.Base, env, bt.Frame("base"))
	if err != nil {
		return nil, err
	}
	for {
		doc, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return acc, nil
		}
		acc, err = applyReduction(ctx, r, acc, *doc, env, bt)
		if err != nil {
			return nil, err
		}
	}
}

func applyReduction(ctx context.Context, r *protocol.Reduction, acc, doc riverdb.Value, env *Env, bt backtrace.T) (riverdb.Value, error) {
	defer newScopes(env)()
	defer scope.Enter(&env.Implicit)()
	defer scope.Enter(&env.Types.Implicit)()
	env.Scope.Put(r.Var1, acc)
	env.Scope.Put(r.Var2, doc)
	env.Types.Scope.Put(r.Var1, check.TypeJSON)
	env.Types.Scope.Put(r.Var2, check.TypeJSON)
	return Eval(ctx, r.Body, env, bt.Frame("body"))
}

// evalGroupedMapReduce drains the stream, buckets each document by its group
// key, and folds each bucket with the reduction.  The result is an object
// keyed by the canonical encoding of the group key.
func evalGroupedMapReduce(ctx context.Context, c *protocol.Call, env *Env, bt backtrace.T) (riverdb.Value, error) {
	gmr := c.Builtin.GroupedMapReduce
	s, err := evalStreamArg(ctx, c, 0, env, bt)
	if err != nil {
		return nil, err
	}
	group := mapperFunc(&gmr.GroupMapping, env, bt.Frame("group mapping"))
	value := mapperFunc(&gmr.ValueMapping, env, bt.Frame("value mapping"))
	states := make(map[string]riverdb.Value)
	for {
		doc, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			break
		}
		key, err := group(ctx, *doc)
		if err != nil {
			return nil, err
		}
		mapped, err := value(ctx, *doc)
		if err != nil {
			return nil, err
		}
		ks := string(riverdb.Canonical(key))
		acc, ok := states[ks]
		if !ok {
			acc, err = Eval(ctx, gmr.Reduction.Base, env, bt.Frame("reduction").Frame("base"))
			if err != nil {
				return nil, err
			}
		}
		states[ks], err = applyReduction(ctx, &gmr.Reduction, acc, mapped, env, bt.Frame("reduction"))
		if err != nil {
			return nil, err
		}
	}
	return states, nil
}
