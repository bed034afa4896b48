package exec

import (
	"context"
	"fmt"

	"github.com/segmentio/ksuid"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

// writeStatus accumulates the per-record outcome counters of a write query.
// Record failures do not abort the batch; they increment the error counter
// and append a message.
type writeStatus struct {
	inserted      int
	updated       int
	skipped       int
	modified      int
	deleted       int
	errors        int
	generatedKeys []riverdb.Value
	errorMessages []riverdb.Value
}

func (st *writeStatus) recordError(err error) {
	st.errors++
	st.errorMessages = append(st.errorMessages, err.Error())
}

func (st *writeStatus) recordErrorf(format string, args ...any) {
	st.recordError(fmt.Errorf(format, args...))
}

// object renders the status document.  Only the counters named are carried;
// generated keys and error messages appear when non-empty.
func (st *writeStatus) object(counters ...string) riverdb.Value {
	obj := make(map[string]riverdb.Value, len(counters)+2)
	for _, name := range counters {
		switch name {
		case "inserted":
			obj[name] = float64(st.inserted)
		case "updated":
			obj[name] = float64(st.updated)
		case "skipped":
			obj[name] = float64(st.skipped)
		case "modified":
			obj[name] = float64(st.modified)
		case "deleted":
			obj[name] = float64(st.deleted)
		case "errors":
			obj[name] = float64(st.errors)
		}
	}
	if len(st.generatedKeys) > 0 {
		obj["generated_keys"] = st.generatedKeys
	}
	if len(st.errorMessages) > 0 {
		obj["error_messages"] = st.errorMessages
	}
	return obj
}

// ExecWrite runs a write query and returns its status document.
func ExecWrite(ctx context.Context, w *protocol.WriteQuery, env *Env, bt backtrace.T) (riverdb.Value, error) {
	switch w.Kind {
	case protocol.WriteInsert:
		return execInsert(ctx, w.Insert, env, bt)
	case protocol.WriteUpdate:
		return execUpdate(ctx, w.Update, env, bt)
	case protocol.WriteDelete:
		return execDelete(ctx, w.Delete, env, bt)
	case protocol.WriteMutate:
		return execMutate(ctx, w.Mutate, env, bt)
	case protocol.WritePointUpdate:
		return execPointUpdate(ctx, w.PointUpdate, env, bt)
	case protocol.WritePointDelete:
		return execPointDelete(ctx, w.PointDelete, env, bt)
	case protocol.WritePointMutate:
		return execPointMutate(ctx, w.PointMutate, env, bt)
	}
	return nil, runtimef(bt, "unknown write query kind %s", w.Kind)
}

func execInsert(ctx context.Context, ins *protocol.Insert, env *Env, bt backtrace.T) (riverdb.Value, error) {
	access, info, err := evalTableRef(ctx, ins.TableRef, env, bt)
	if err != nil {
		return nil, err
	}
	var st writeStatus
	for i, term := range ins.Terms {
		doc, err := Eval(ctx, term, env, bt.Framef("term:%d", i+1))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			st.recordError(err)
			continue
		}
		if err := insertDoc(ctx, access, info, doc, &st); err != nil {
			return nil, err
		}
	}
	return st.object("inserted", "errors"), nil
}

// insertDoc stores one document, generating a primary key when the document
// lacks one.  A duplicate key is a record error, not a query error.
func insertDoc(ctx context.Context, access nsrepo.Access, info metadata.TableInfo, doc riverdb.Value, st *writeStatus) error {
	obj, err := riverdb.Object(doc)
	if err != nil {
		st.recordError(err)
		return nil
	}
	key, ok := obj[info.PrimaryKey]
	if !ok {
		key = ksuid.New().String()
		copied := make(map[string]riverdb.Value, len(obj)+1)
		for k, v := range obj {
			copied[k] = v
		}
		copied[info.PrimaryKey] = key
		doc = copied
		st.generatedKeys = append(st.generatedKeys, key)
	}
	prev, err := access.Get(ctx, key)
	if err != nil {
		return err
	}
	if prev != nil {
		st.recordErrorf("duplicate primary key %s", riverdb.Canonical(key))
		return nil
	}
	if _, err := access.Replace(ctx, key, riverdb.Ptr(doc)); err != nil {
		return err
	}
	st.inserted++
	return nil
}

func execUpdate(ctx context.Context, u *protocol.Update, env *Env, bt backtrace.T) (riverdb.Value, error) {
	view, err := EvalView(ctx, u.View, env, bt.Frame("view"))
	if err != nil {
		return nil, err
	}
	mapper := mapperFunc(&u.Mapping, env, bt.Frame("mapping"))
	var st writeStatus
	err = forEachDoc(ctx, view.Stream, func(doc riverdb.Value) error {
		return updateDoc(ctx, view, mapper, doc, &st)
	})
	if err != nil {
		return nil, err
	}
	return st.object("updated", "skipped", "errors"), nil
}

// updateDoc merges the mapping's result into the document.  A null result
// skips the document; changing the primary key is a record error.
func updateDoc(ctx context.Context, view *View, mapper stream.Mapper, doc riverdb.Value, st *writeStatus) error {
	out, err := mapper(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		st.recordError(err)
		return nil
	}
	if out == nil {
		st.skipped++
		return nil
	}
	key := doc.(map[string]riverdb.Value)[view.Info.PrimaryKey]
	merged, err := mapMerge(doc, out, backtrace.T{})
	if err != nil {
		st.recordError(err)
		return nil
	}
	newKey := merged.(map[string]riverdb.Value)[view.Info.PrimaryKey]
	if riverdb.Compare(key, newKey) != 0 {
		st.recordErrorf("update cannot change the primary key %q", view.Info.PrimaryKey)
		return nil
	}
	if _, err := view.Access.Replace(ctx, key, riverdb.Ptr(merged)); err != nil {
		return err
	}
	st.updated++
	return nil
}

func execDelete(ctx context.Context, d *protocol.Delete, env *Env, bt backtrace.T) (riverdb.Value, error) {
	view, err := EvalView(ctx, d.View, env, bt.Frame("view"))
	if err != nil {
		return nil, err
	}
	var st writeStatus
	err = forEachDoc(ctx, view.Stream, func(doc riverdb.Value) error {
		key := doc.(map[string]riverdb.Value)[view.Info.PrimaryKey]
		if _, err := view.Access.Replace(ctx, key, nil); err != nil {
			return err
		}
		st.deleted++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.object("deleted"), nil
}

func execMutate(ctx context.Context, m *protocol.Mutate, env *Env, bt backtrace.T) (riverdb.Value, error) {
	view, err := EvalView(ctx, m.View, env, bt.Frame("view"))
	if err != nil {
		return nil, err
	}
	mapper := mapperFunc(&m.Mapping, env, bt.Frame("mapping"))
	var st writeStatus
	err = forEachDoc(ctx, view.Stream, func(doc riverdb.Value) error {
		return mutateDoc(ctx, view.Access, view.Info, mapper, doc, &st)
	})
	if err != nil {
		return nil, err
	}
	return st.object("modified", "deleted", "errors"), nil
}

// mutateDoc replaces the document with the mapping's result.  A null result
// deletes it; changing the primary key is a record error.
func mutateDoc(ctx context.Context, access nsrepo.Access, info metadata.TableInfo, mapper stream.Mapper, doc riverdb.Value, st *writeStatus) error {
	out, err := mapper(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		st.recordError(err)
		return nil
	}
	key := doc.(map[string]riverdb.Value)[info.PrimaryKey]
	if out == nil {
		if _, err := access.Replace(ctx, key, nil); err != nil {
			return err
		}
		st.deleted++
		return nil
	}
	obj, err := riverdb.Object(out)
	if err != nil {
		st.recordError(err)
		return nil
	}
	if riverdb.Compare(key, obj[info.PrimaryKey]) != 0 {
		st.recordErrorf("mutate cannot change the primary key %q", info.PrimaryKey)
		return nil
	}
	if _, err := access.Replace(ctx, key, riverdb.Ptr(out)); err != nil {
		return err
	}
	st.modified++
	return nil
}

// pointTarget resolves a point write's table and key, enforcing that the
// addressed attribute is the primary key.
func pointTarget(ctx context.Context, ref protocol.TableRef, attrname string, keyTerm *protocol.Term, env *Env, bt backtrace.T) (nsrepo.Access, metadata.TableInfo, riverdb.Value, error) {
	access, info, err := evalTableRef(ctx, ref, env, bt)
	if err != nil {
		return nil, metadata.TableInfo{}, nil, err
	}
	if attrname != info.PrimaryKey {
		return nil, metadata.TableInfo{}, nil, runtimef(bt, "attribute %q is not the primary key (%q)", attrname, info.PrimaryKey)
	}
	key, err := Eval(ctx, keyTerm, env, bt.Frame("key"))
	if err != nil {
		return nil, metadata.TableInfo{}, nil, err
	}
	return access, info, key, nil
}

func execPointUpdate(ctx context.Context, p *protocol.PointUpdate, env *Env, bt backtrace.T) (riverdb.Value, error) {
	access, info, key, err := pointTarget(ctx, p.TableRef, p.Attrname, p.Key, env, bt)
	if err != nil {
		return nil, err
	}
	var st writeStatus
	doc, err := access.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		st.skipped++
		return st.object("updated", "skipped", "errors"), nil
	}
	mapper := mapperFunc(&p.Mapping, env, bt.Frame("mapping"))
	view := &View{Access: access, Info: info}
	if err := updateDoc(ctx, view, mapper, *doc, &st); err != nil {
		return nil, err
	}
	return st.object("updated", "skipped", "errors"), nil
}

func execPointDelete(ctx context.Context, p *protocol.PointDelete, env *Env, bt backtrace.T) (riverdb.Value, error) {
	access, _, key, err := pointTarget(ctx, p.TableRef, p.Attrname, p.Key, env, bt)
	if err != nil {
		return nil, err
	}
	var st writeStatus
	prev, err := access.Replace(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		st.deleted++
	}
	return st.object("deleted"), nil
}

// execPointMutate applies the mapping to the addressed document, or to null
// when the document is absent, which lets a point mutate insert.
func execPointMutate(ctx context.Context, p *protocol.PointMutate, env *Env, bt backtrace.T) (riverdb.Value, error) {
	access, info, key, err := pointTarget(ctx, p.TableRef, p.Attrname, p.Key, env, bt)
	if err != nil {
		return nil, err
	}
	doc, err := access.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	mapper := mapperFunc(&p.Mapping, env, bt.Frame("mapping"))
	var arg riverdb.Value
	if doc != nil {
		arg = *doc
	}
	out, err := mapper(ctx, arg)
	if err != nil {
		return nil, err
	}
	var st writeStatus
	if out == nil {
		if doc != nil {
			if _, err := access.Replace(ctx, key, nil); err != nil {
				return nil, err
			}
			st.deleted++
		}
		return st.object("modified", "inserted", "deleted", "errors"), nil
	}
	obj, err := riverdb.Object(out)
	if err != nil {
		return nil, runtimef(bt.Frame("mapping"), "%s", err)
	}
	if riverdb.Compare(key, obj[info.PrimaryKey]) != 0 {
		return nil, runtimef(bt.Frame("mapping"), "mutate cannot change the primary key %q", info.PrimaryKey)
	}
	if _, err := access.Replace(ctx, key, riverdb.Ptr(out)); err != nil {
		return nil, err
	}
	if doc == nil {
		st.inserted++
	} else {
		st.modified++
	}
	return st.object("modified", "inserted", "deleted", "errors"), nil
}

// forEachDoc drains the stream, materializing it first so mutations through
// the access handle cannot feed back into the scan.
func forEachDoc(ctx context.Context, s stream.Stream, fn func(riverdb.Value) error) error {
	docs, err := stream.Drain(ctx, s)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
