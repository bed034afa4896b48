package check

import (
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/scope"
)

// Query typechecks a client query under a fresh environment.  Structural
// validation has already run, so every payload referenced here is present.
func Query(q *protocol.Query) error {
	var bt backtrace.T
	switch q.Type {
	case protocol.QueryRead:
		return ReadQuery(q.Read, NewEnv(), bt)
	case protocol.QueryWrite:
		return WriteQuery(q.Write, NewEnv(), bt)
	}
	// CONTINUE and STOP carry no terms.
	return nil
}

// ReadQuery accepts any term type; the evaluator decides between a value
// response and a stream response based on what the term produces.
func ReadQuery(rq *protocol.ReadQuery, env *Env, bt backtrace.T) error {
	_, err := TypeOf(rq.Term, env, bt)
	return err
}

func WriteQuery(wq *protocol.WriteQuery, env *Env, bt backtrace.T) error {
	switch wq.Kind {
	case protocol.WriteInsert:
		for i, t := range wq.Insert.Terms {
			if err := Term(t, TypeJSON, env, bt.Framef("term:%d", i+1)); err != nil {
				return err
			}
		}
		return nil
	case protocol.WriteUpdate:
		if err := Term(wq.Update.View, TypeView, env, bt.Frame("view")); err != nil {
			return err
		}
		return checkMapping(&wq.Update.Mapping, TypeJSON, env, bt.Frame("mapping"))
	case protocol.WriteDelete:
		return Term(wq.Delete.View, TypeView, env, bt.Frame("view"))
	case protocol.WriteMutate:
		if err := Term(wq.Mutate.View, TypeView, env, bt.Frame("view")); err != nil {
			return err
		}
		return checkMapping(&wq.Mutate.Mapping, TypeJSON, env, bt.Frame("mapping"))
	case protocol.WritePointUpdate:
		if err := Term(wq.PointUpdate.Key, TypeJSON, env, bt.Frame("key")); err != nil {
			return err
		}
		return checkMapping(&wq.PointUpdate.Mapping, TypeJSON, env, bt.Frame("mapping"))
	case protocol.WritePointDelete:
		return Term(wq.PointDelete.Key, TypeJSON, env, bt.Frame("key"))
	case protocol.WritePointMutate:
		if err := Term(wq.PointMutate.Key, TypeJSON, env, bt.Frame("key")); err != nil {
			return err
		}
		return checkMapping(&wq.PointMutate.Mapping, TypeJSON, env, bt.Frame("mapping"))
	}
	return errf(bt, "unknown write query kind %q", wq.Kind)
}

// Term infers the type of t and accepts iff it satisfies expected.
func Term(t *protocol.Term, expected TermType, env *Env, bt backtrace.T) error {
	actual, err := TypeOf(t, env, bt)
	if err != nil {
		return err
	}
	if !actual.Satisfies(expected) {
		return errf(bt, "expected a %s but found a %s", expected, actual)
	}
	return nil
}

// TypeOf infers the type of a term, descending with a backtrace frame per
// edge.
func TypeOf(t *protocol.Term, env *Env, bt backtrace.T) (TermType, error) {
	switch t.Kind {
	case protocol.TermJSONNull, protocol.TermBool, protocol.TermNumber, protocol.TermString:
		return TypeJSON, nil
	case protocol.TermArray:
		for i, elem := range t.Array {
			if err := Term(elem, TypeJSON, env, bt.Framef("element:%d", i+1)); err != nil {
				return 0, err
			}
		}
		return TypeJSON, nil
	case protocol.TermObject:
		for _, field := range t.Object {
			if err := Term(field.Term, TypeJSON, env, bt.Framef("attr:%s", field.Var)); err != nil {
				return 0, err
			}
		}
		return TypeJSON, nil
	case protocol.TermVar:
		if !env.Scope.IsInScope(*t.Var) {
			return 0, errf(bt, "variable %q is not in scope", *t.Var)
		}
		return env.Scope.Get(*t.Var), nil
	case protocol.TermLet:
		defer scope.New(&env.Scope)()
		for _, bind := range t.Let.Binds {
			typ, err := TypeOf(bind.Term, env, bt.Framef("bind:%s", bind.Var))
			if err != nil {
				return 0, err
			}
			env.Scope.Put(bind.Var, typ)
		}
		return TypeOf(t.Let.Expr, env, bt.Frame("expr"))
	case protocol.TermIf:
		if err := Term(t.If.Test, TypeJSON, env, bt.Frame("test")); err != nil {
			return 0, err
		}
		yes, err := TypeOf(t.If.TrueBranch, env, bt.Frame("true"))
		if err != nil {
			return 0, err
		}
		no, err := TypeOf(t.If.FalseBranch, env, bt.Frame("false"))
		if err != nil {
			return 0, err
		}
		return join(yes, no, bt)
	case protocol.TermCall:
		return typeOfCall(t.Call, env, bt)
	case protocol.TermError:
		return TypeArbitrary, nil
	case protocol.TermGetByKey:
		if err := Term(t.GetByKey.Key, TypeJSON, env, bt.Frame("key")); err != nil {
			return 0, err
		}
		return TypeJSON, nil
	case protocol.TermTable:
		return TypeView, nil
	case protocol.TermJavaScript:
		return TypeJSON, nil
	case protocol.TermImplicitVar:
		if !env.Implicit.HasValue() {
			return 0, errf(bt, "no implicit row is bound here")
		}
		return env.Implicit.Value(), nil
	}
	return 0, errf(bt, "unknown term kind %q", t.Kind)
}

// join computes the result type of an If from its branch types.  Arbitrary
// acts as a wildcard; a view joined with a stream loses its access handle.
func join(a, b TermType, bt backtrace.T) (TermType, error) {
	switch {
	case a == b:
		return a, nil
	case a == TypeArbitrary:
		return b, nil
	case b == TypeArbitrary:
		return a, nil
	case a.Satisfies(TypeStream) && b.Satisfies(TypeStream):
		return TypeStream, nil
	}
	return 0, errf(bt, "branches of an if must be the same type (%s vs %s)", a, b)
}

func typeOfCall(c *protocol.Call, env *Env, bt backtrace.T) (TermType, error) {
	ft, err := funcType(c.Builtin, env, bt)
	if err != nil {
		return 0, err
	}
	if !ft.IsVariadic() && len(c.Args) != ft.NArgs() {
		return 0, errf(bt, "%s takes %d argument(s) but was passed %d",
			c.Builtin.Kind, ft.NArgs(), len(c.Args))
	}
	var first TermType
	for i, arg := range c.Args {
		frame := bt.Framef("argument:%d", i+1)
		actual, err := TypeOf(arg, env, frame)
		if err != nil {
			return 0, err
		}
		if !actual.Satisfies(ft.Arg(i)) {
			return 0, errf(frame, "expected a %s but found a %s", ft.Arg(i), actual)
		}
		if i == 0 {
			first = actual
		}
	}
	// Filtering preserves the input's access handle so a filtered table
	// remains a legal write target.
	if c.Builtin.Kind == protocol.BuiltinFilter && first == TypeView {
		return TypeView, nil
	}
	return ft.Return(), nil
}

// funcType computes a builtin's signature and typechecks any bound-variable
// bodies it carries.
func funcType(b *protocol.Builtin, env *Env, bt backtrace.T) (FuncType, error) {
	switch b.Kind {
	case protocol.BuiltinNot:
		return Fixed(TypeJSON, TypeJSON), nil
	case protocol.BuiltinGetAttr, protocol.BuiltinHasAttr:
		return Fixed(TypeJSON, TypeJSON), nil
	case protocol.BuiltinImplicitGetAttr, protocol.BuiltinImplicitHasAttr:
		if !env.Implicit.HasValue() {
			return FuncType{}, errf(bt, "no implicit row is bound here")
		}
		return Fixed(TypeJSON), nil
	case protocol.BuiltinPickAttrs:
		return Fixed(TypeJSON, TypeJSON), nil
	case protocol.BuiltinMapMerge, protocol.BuiltinArrayAppend:
		return Fixed(TypeJSON, TypeJSON, TypeJSON), nil
	case protocol.BuiltinAdd, protocol.BuiltinSubtract, protocol.BuiltinMultiply,
		protocol.BuiltinDivide:
		return Variadic(TypeJSON, TypeJSON), nil
	case protocol.BuiltinModulo:
		return Fixed(TypeJSON, TypeJSON, TypeJSON), nil
	case protocol.BuiltinCompare, protocol.BuiltinAny, protocol.BuiltinAll:
		return Variadic(TypeJSON, TypeJSON), nil
	case protocol.BuiltinFilter:
		if err := checkPredicate(b.Filter, env, bt.Frame("predicate")); err != nil {
			return FuncType{}, err
		}
		return Fixed(TypeStream, TypeStream), nil
	case protocol.BuiltinMap:
		if err := checkMapping(b.Map, TypeJSON, env, bt.Frame("mapping")); err != nil {
			return FuncType{}, err
		}
		return Fixed(TypeStream, TypeStream), nil
	case protocol.BuiltinConcatMap:
		if err := checkMapping(b.ConcatMap, TypeStream, env, bt.Frame("mapping")); err != nil {
			return FuncType{}, err
		}
		return Fixed(TypeStream, TypeStream), nil
	case protocol.BuiltinOrderBy, protocol.BuiltinDistinct:
		return Fixed(TypeStream, TypeStream), nil
	case protocol.BuiltinLength, protocol.BuiltinStreamToArray:
		return Fixed(TypeJSON, TypeStream), nil
	case protocol.BuiltinArrayToStream:
		return Fixed(TypeStream, TypeJSON), nil
	case protocol.BuiltinUnion:
		return Variadic(TypeStream, TypeStream), nil
	case protocol.BuiltinNth:
		return Fixed(TypeJSON, TypeStream, TypeJSON), nil
	case protocol.BuiltinReduce:
		if err := checkReduction(b.Reduce, env, bt.Frame("reduction")); err != nil {
			return FuncType{}, err
		}
		return Fixed(TypeJSON, TypeStream), nil
	case protocol.BuiltinGroupedMapReduce:
		gmr := b.GroupedMapReduce
		if err := checkMapping(&gmr.GroupMapping, TypeJSON, env, bt.Frame("group mapping")); err != nil {
			return FuncType{}, err
		}
		if err := checkMapping(&gmr.ValueMapping, TypeJSON, env, bt.Frame("value mapping")); err != nil {
			return FuncType{}, err
		}
		if err := checkReduction(&gmr.Reduction, env, bt.Frame("reduction")); err != nil {
			return FuncType{}, err
		}
		return Fixed(TypeJSON, TypeStream), nil
	case protocol.BuiltinRange:
		r := b.Range
		if r.LowerBound != nil {
			if err := Term(r.LowerBound, TypeJSON, env, bt.Frame("lowerbound")); err != nil {
				return FuncType{}, err
			}
		}
		if r.UpperBound != nil {
			if err := Term(r.UpperBound, TypeJSON, env, bt.Frame("upperbound")); err != nil {
				return FuncType{}, err
			}
		}
		return Fixed(TypeStream, TypeStream), nil
	case protocol.BuiltinSlice:
		return Fixed(TypeStream, TypeStream, TypeJSON, TypeJSON), nil
	case protocol.BuiltinLimit, protocol.BuiltinSkip:
		return Fixed(TypeStream, TypeStream, TypeJSON), nil
	}
	return FuncType{}, errf(bt, "unknown builtin %q", b.Kind)
}

// checkMapping binds the mapping's argument and the implicit row before
// checking the body against ret.
func checkMapping(m *protocol.Mapping, ret TermType, env *Env, bt backtrace.T) error {
	defer scope.New(&env.Scope)()
	defer scope.EnterValue(&env.Implicit, TypeJSON)()
	env.Scope.Put(m.Arg, TypeJSON)
	return Term(m.Body, ret, env, bt.Frame("body"))
}

// checkPredicate is a mapping whose body yields a value interpreted as a
// boolean at runtime.
func checkPredicate(p *protocol.Predicate, env *Env, bt backtrace.T) error {
	defer scope.New(&env.Scope)()
	defer scope.EnterValue(&env.Implicit, TypeJSON)()
	env.Scope.Put(p.Arg, TypeJSON)
	return Term(p.Body, TypeJSON, env, bt.Frame("body"))
}

// checkReduction checks the base then the body with both fold variables
// bound.  A reduction body sees no implicit row.
func checkReduction(r *protocol.Reduction, env *Env, bt backtrace.T) error {
	if err := Term(r.Base, TypeJSON, env, bt.Frame("base")); err != nil {
		return err
	}
	defer scope.New(&env.Scope)()
	defer scope.Enter(&env.Implicit)()
	env.Scope.Put(r.Var1, TypeJSON)
	env.Scope.Put(r.Var2, TypeJSON)
	return Term(r.Body, TypeJSON, env, bt.Frame("body"))
}
