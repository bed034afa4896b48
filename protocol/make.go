package protocol

// Constructors for building terms programmatically, used by the test suites.
// Client drivers construct the same shapes on the wire.

func NewNull() *Term {
	return &Term{Kind: TermJSONNull}
}

func NewBool(b bool) *Term {
	return &Term{Kind: TermBool, Bool: &b}
}

func NewNumber(f float64) *Term {
	return &Term{Kind: TermNumber, Number: &f}
}

func NewString(s string) *Term {
	return &Term{Kind: TermString, Str: &s}
}

func NewArray(elems ...*Term) *Term {
	return &Term{Kind: TermArray, Array: elems}
}

func NewObject(fields ...VarTermPair) *Term {
	return &Term{Kind: TermObject, Object: fields}
}

func NewVar(name string) *Term {
	return &Term{Kind: TermVar, Var: &name}
}

func NewLet(binds []VarTermPair, expr *Term) *Term {
	return &Term{Kind: TermLet, Let: &Let{Binds: binds, Expr: expr}}
}

func NewIf(test, yes, no *Term) *Term {
	return &Term{Kind: TermIf, If: &If{Test: test, TrueBranch: yes, FalseBranch: no}}
}

func NewCall(b *Builtin, args ...*Term) *Term {
	return &Term{Kind: TermCall, Call: &Call{Builtin: b, Args: args}}
}

func NewError(msg string) *Term {
	return &Term{Kind: TermError, Error: &msg}
}

func NewTable(db, table string) *Term {
	return &Term{Kind: TermTable, Table: &Table{TableRef: TableRef{DBName: db, TableName: table}}}
}

func NewGetByKey(db, table, attr string, key *Term) *Term {
	return &Term{Kind: TermGetByKey, GetByKey: &GetByKey{
		TableRef: TableRef{DBName: db, TableName: table},
		Attrname: attr,
		Key:      key,
	}}
}

func NewJavaScript(source string) *Term {
	return &Term{Kind: TermJavaScript, JavaScript: &source}
}

func NewImplicitVar() *Term {
	return &Term{Kind: TermImplicitVar}
}

func NewBuiltin(kind BuiltinKind) *Builtin {
	return &Builtin{Kind: kind}
}

func NewAttrBuiltin(kind BuiltinKind, attr string) *Builtin {
	return &Builtin{Kind: kind, Attr: &attr}
}

func NewComparison(c Comparison) *Builtin {
	return &Builtin{Kind: BuiltinCompare, Comparison: &c}
}

func NewFilterBuiltin(arg string, body *Term) *Builtin {
	return &Builtin{Kind: BuiltinFilter, Filter: &Predicate{Arg: arg, Body: body}}
}

func NewMapBuiltin(arg string, body *Term) *Builtin {
	return &Builtin{Kind: BuiltinMap, Map: &Mapping{Arg: arg, Body: body}}
}

func NewConcatMapBuiltin(arg string, body *Term) *Builtin {
	return &Builtin{Kind: BuiltinConcatMap, ConcatMap: &Mapping{Arg: arg, Body: body}}
}

func NewOrderByBuiltin(keys ...OrderBy) *Builtin {
	return &Builtin{Kind: BuiltinOrderBy, OrderBy: keys}
}

func NewReduceBuiltin(base *Term, var1, var2 string, body *Term) *Builtin {
	return &Builtin{Kind: BuiltinReduce, Reduce: &Reduction{Base: base, Var1: var1, Var2: var2, Body: body}}
}
