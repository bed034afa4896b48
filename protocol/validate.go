package protocol

import (
	"errors"
	"fmt"
)

// ErrBadProtobuf marks a structurally malformed message: a missing required
// field or an unknown discriminator.  These faults blame the client driver,
// not the user's query, so they carry no backtrace.
var ErrBadProtobuf = errors.New("bad protocol buffer")

func badf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadProtobuf, fmt.Sprintf(format, args...))
}

// Validate checks q's structure recursively.  A nil error means every
// discriminator is known and every variant carries its required payload;
// the query may still fail typechecking.
func (q *Query) Validate() error {
	if q == nil {
		return badf("missing query")
	}
	switch q.Type {
	case QueryRead:
		if q.Read == nil || q.Read.Term == nil {
			return badf("READ query missing read term")
		}
		return q.Read.Term.Validate()
	case QueryWrite:
		if q.Write == nil {
			return badf("WRITE query missing write payload")
		}
		return q.Write.Validate()
	case QueryContinue, QueryStop:
		return nil
	}
	return badf("unknown query type %q", q.Type)
}

// Validate checks w's discriminator and payload recursively.
func (w *WriteQuery) Validate() error {
	switch w.Kind {
	case WriteInsert:
		if w.Insert == nil {
			return badf("INSERT missing payload")
		}
		if len(w.Insert.Terms) == 0 {
			return badf("INSERT with no terms")
		}
		for _, t := range w.Insert.Terms {
			if err := t.Validate(); err != nil {
				return err
			}
		}
		return w.Insert.TableRef.validate()
	case WriteUpdate:
		if w.Update == nil {
			return badf("UPDATE missing payload")
		}
		if err := w.Update.View.Validate(); err != nil {
			return err
		}
		return w.Update.Mapping.validate()
	case WriteDelete:
		if w.Delete == nil {
			return badf("DELETE missing payload")
		}
		return w.Delete.View.Validate()
	case WriteMutate:
		if w.Mutate == nil {
			return badf("MUTATE missing payload")
		}
		if err := w.Mutate.View.Validate(); err != nil {
			return err
		}
		return w.Mutate.Mapping.validate()
	case WritePointUpdate:
		if w.PointUpdate == nil {
			return badf("POINTUPDATE missing payload")
		}
		p := w.PointUpdate
		if err := p.TableRef.validate(); err != nil {
			return err
		}
		if err := requireTerm(p.Key, "POINTUPDATE key"); err != nil {
			return err
		}
		return p.Mapping.validate()
	case WritePointDelete:
		if w.PointDelete == nil {
			return badf("POINTDELETE missing payload")
		}
		p := w.PointDelete
		if err := p.TableRef.validate(); err != nil {
			return err
		}
		return requireTerm(p.Key, "POINTDELETE key")
	case WritePointMutate:
		if w.PointMutate == nil {
			return badf("POINTMUTATE missing payload")
		}
		p := w.PointMutate
		if err := p.TableRef.validate(); err != nil {
			return err
		}
		if err := requireTerm(p.Key, "POINTMUTATE key"); err != nil {
			return err
		}
		return p.Mapping.validate()
	}
	return badf("unknown write query kind %q", w.Kind)
}

// Validate checks t's discriminator and payload recursively.
func (t *Term) Validate() error {
	if t == nil {
		return badf("missing term")
	}
	switch t.Kind {
	case TermJSONNull, TermImplicitVar:
		return nil
	case TermBool:
		if t.Bool == nil {
			return badf("BOOL term missing value")
		}
	case TermNumber:
		if t.Number == nil {
			return badf("NUMBER term missing value")
		}
	case TermString:
		if t.Str == nil {
			return badf("STRING term missing value")
		}
	case TermArray:
		for _, elem := range t.Array {
			if err := elem.Validate(); err != nil {
				return err
			}
		}
	case TermObject:
		for _, field := range t.Object {
			if err := requireTerm(field.Term, "OBJECT field "+field.Var); err != nil {
				return err
			}
		}
	case TermVar:
		if t.Var == nil {
			return badf("VAR term missing name")
		}
	case TermLet:
		if t.Let == nil {
			return badf("LET term missing payload")
		}
		for _, bind := range t.Let.Binds {
			if err := requireTerm(bind.Term, "LET binding "+bind.Var); err != nil {
				return err
			}
		}
		return requireTerm(t.Let.Expr, "LET body")
	case TermIf:
		if t.If == nil {
			return badf("IF term missing payload")
		}
		if err := requireTerm(t.If.Test, "IF test"); err != nil {
			return err
		}
		if err := requireTerm(t.If.TrueBranch, "IF true branch"); err != nil {
			return err
		}
		return requireTerm(t.If.FalseBranch, "IF false branch")
	case TermCall:
		if t.Call == nil || t.Call.Builtin == nil {
			return badf("CALL term missing builtin")
		}
		for _, arg := range t.Call.Args {
			if err := arg.Validate(); err != nil {
				return err
			}
		}
		return t.Call.Builtin.validate()
	case TermError:
		if t.Error == nil {
			return badf("ERROR term missing message")
		}
	case TermGetByKey:
		if t.GetByKey == nil {
			return badf("GETBYKEY term missing payload")
		}
		if err := t.GetByKey.TableRef.validate(); err != nil {
			return err
		}
		return requireTerm(t.GetByKey.Key, "GETBYKEY key")
	case TermTable:
		if t.Table == nil {
			return badf("TABLE term missing payload")
		}
		return t.Table.TableRef.validate()
	case TermJavaScript:
		if t.JavaScript == nil {
			return badf("JAVASCRIPT term missing source")
		}
	default:
		return badf("unknown term kind %q", t.Kind)
	}
	return nil
}

func (b *Builtin) validate() error {
	switch b.Kind {
	case BuiltinNot, BuiltinMapMerge, BuiltinArrayAppend,
		BuiltinAdd, BuiltinSubtract, BuiltinMultiply, BuiltinDivide, BuiltinModulo,
		BuiltinDistinct, BuiltinLength, BuiltinUnion, BuiltinNth,
		BuiltinStreamToArray, BuiltinArrayToStream, BuiltinAny, BuiltinAll,
		BuiltinSlice, BuiltinLimit, BuiltinSkip:
		return nil
	case BuiltinGetAttr, BuiltinImplicitGetAttr, BuiltinHasAttr, BuiltinImplicitHasAttr:
		if b.Attr == nil {
			return badf("%s missing attr", b.Kind)
		}
	case BuiltinPickAttrs:
		if len(b.Attrs) == 0 {
			return badf("PICKATTRS missing attrs")
		}
	case BuiltinCompare:
		if b.Comparison == nil {
			return badf("COMPARE missing comparison")
		}
		switch *b.Comparison {
		case CompareEQ, CompareNE, CompareLT, CompareLE, CompareGT, CompareGE:
		default:
			return badf("unknown comparison %q", *b.Comparison)
		}
	case BuiltinFilter:
		if b.Filter == nil {
			return badf("FILTER missing predicate")
		}
		return requireTerm(b.Filter.Body, "FILTER predicate body")
	case BuiltinMap:
		if b.Map == nil {
			return badf("MAP missing mapping")
		}
		return b.Map.validate()
	case BuiltinConcatMap:
		if b.ConcatMap == nil {
			return badf("CONCATMAP missing mapping")
		}
		return b.ConcatMap.validate()
	case BuiltinOrderBy:
		if len(b.OrderBy) == 0 {
			return badf("ORDERBY with no keys")
		}
	case BuiltinRange:
		if b.Range == nil {
			return badf("RANGE missing bounds")
		}
		if b.Range.LowerBound != nil {
			if err := b.Range.LowerBound.Validate(); err != nil {
				return err
			}
		}
		if b.Range.UpperBound != nil {
			if err := b.Range.UpperBound.Validate(); err != nil {
				return err
			}
		}
	case BuiltinReduce:
		if b.Reduce == nil {
			return badf("REDUCE missing reduction")
		}
		return b.Reduce.validate()
	case BuiltinGroupedMapReduce:
		if b.GroupedMapReduce == nil {
			return badf("GROUPEDMAPREDUCE missing mappings")
		}
		g := b.GroupedMapReduce
		if err := g.GroupMapping.validate(); err != nil {
			return err
		}
		if err := g.ValueMapping.validate(); err != nil {
			return err
		}
		return g.Reduction.validate()
	default:
		return badf("unknown builtin kind %q", b.Kind)
	}
	return nil
}

func (m *Mapping) validate() error {
	return requireTerm(m.Body, "mapping body")
}

func (r *Reduction) validate() error {
	if err := requireTerm(r.Base, "reduction base"); err != nil {
		return err
	}
	return requireTerm(r.Body, "reduction body")
}

func (ref *TableRef) validate() error {
	if ref.DBName == "" || ref.TableName == "" {
		return badf("table ref missing db or table name")
	}
	return nil
}

func requireTerm(t *Term, what string) error {
	if t == nil {
		return badf("missing %s", what)
	}
	return t.Validate()
}
