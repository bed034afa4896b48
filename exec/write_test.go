package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/backtrace"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

func runWrite(t *testing.T, env *Env, w *protocol.WriteQuery) map[string]riverdb.Value {
	t.Helper()
	out, err := ExecWrite(context.Background(), w, env, backtrace.T{})
	require.NoError(t, err)
	obj, ok := out.(map[string]riverdb.Value)
	require.True(t, ok)
	return obj
}

func tableDocs(t *testing.T, env *Env) map[string]map[string]riverdb.Value {
	t.Helper()
	docs := drainTerm(t, env, protocol.NewTable("test", "docs"))
	byID := make(map[string]map[string]riverdb.Value, len(docs))
	for _, d := range docs {
		obj := d.(map[string]riverdb.Value)
		byID[string(riverdb.Canonical(obj["id"]))] = obj
	}
	return byID
}

func docTerm(fields ...protocol.VarTermPair) *protocol.Term {
	return protocol.NewObject(fields...)
}

func pair(name string, term *protocol.Term) protocol.VarTermPair {
	return protocol.VarTermPair{Var: name, Term: term}
}

func TestInsertCountsAndStores(t *testing.T) {
	env := testEnv(t, nil)
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteInsert,
		Insert: &protocol.Insert{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Terms: []*protocol.Term{
				docTerm(pair("id", protocol.NewNumber(1)), pair("name", protocol.NewString("a"))),
				docTerm(pair("id", protocol.NewNumber(2)), pair("name", protocol.NewString("b"))),
			},
		},
	})
	assert.Equal(t, 2.0, st["inserted"])
	assert.Equal(t, 0.0, st["errors"])
	assert.Len(t, tableDocs(t, env), 2)
}

func TestInsertGeneratesMissingKeys(t *testing.T) {
	env := testEnv(t, nil)
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteInsert,
		Insert: &protocol.Insert{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Terms:    []*protocol.Term{docTerm(pair("name", protocol.NewString("anon")))},
		},
	})
	assert.Equal(t, 1.0, st["inserted"])
	keys, ok := st["generated_keys"].([]riverdb.Value)
	require.True(t, ok)
	require.Len(t, keys, 1)
	key, ok := keys[0].(string)
	require.True(t, ok)
	assert.NotEmpty(t, key)

	got := evalTerm(t, env, protocol.NewGetByKey("test", "docs", "id", protocol.NewString(key)))
	assert.Equal(t, "anon", got.(map[string]riverdb.Value)["name"])
}

func TestInsertDuplicateIsRecordError(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteInsert,
		Insert: &protocol.Insert{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Terms: []*protocol.Term{
				docTerm(pair("id", protocol.NewNumber(1))),
				docTerm(pair("id", protocol.NewNumber(2))),
			},
		},
	})
	assert.Equal(t, 1.0, st["inserted"])
	assert.Equal(t, 1.0, st["errors"])
	msgs, ok := st["error_messages"].([]riverdb.Value)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].(string), "duplicate primary key")
}

func TestUpdateMergesMapping(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env,
		doc(1, map[string]riverdb.Value{"rank": 1.0}),
		doc(2, map[string]riverdb.Value{"rank": 5.0}))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteUpdate,
		Update: &protocol.Update{
			View: protocol.NewTable("test", "docs"),
			Mapping: protocol.Mapping{Arg: "row", Body: docTerm(
				pair("rank", protocol.NewCall(protocol.NewBuiltin(protocol.BuiltinAdd),
					protocol.NewCall(protocol.NewAttrBuiltin(protocol.BuiltinGetAttr, "rank"), protocol.NewVar("row")),
					protocol.NewNumber(10))))},
		},
	})
	assert.Equal(t, 2.0, st["updated"])
	assert.Equal(t, 0.0, st["skipped"])
	docs := tableDocs(t, env)
	assert.Equal(t, 11.0, docs[string(riverdb.Canonical(1.0))]["rank"])
	assert.Equal(t, 15.0, docs[string(riverdb.Canonical(2.0))]["rank"])
}

func TestUpdateNullSkips(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil), doc(2, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteUpdate,
		Update: &protocol.Update{
			View: protocol.NewTable("test", "docs"),
			Mapping: protocol.Mapping{Arg: "row", Body: protocol.NewIf(
				protocol.NewCall(protocol.NewComparison(protocol.CompareEQ),
					protocol.NewCall(protocol.NewAttrBuiltin(protocol.BuiltinGetAttr, "id"), protocol.NewVar("row")),
					protocol.NewNumber(1)),
				docTerm(pair("touched", protocol.NewBool(true))),
				protocol.NewNull())},
		},
	})
	assert.Equal(t, 1.0, st["updated"])
	assert.Equal(t, 1.0, st["skipped"])
}

func TestUpdateCannotChangePrimaryKey(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteUpdate,
		Update: &protocol.Update{
			View:    protocol.NewTable("test", "docs"),
			Mapping: protocol.Mapping{Arg: "row", Body: docTerm(pair("id", protocol.NewNumber(9)))},
		},
	})
	assert.Equal(t, 0.0, st["updated"])
	assert.Equal(t, 1.0, st["errors"])
	docs := tableDocs(t, env)
	require.Len(t, docs, 1)
	_, ok := docs[string(riverdb.Canonical(1.0))]
	assert.True(t, ok)
}

func TestUpdateOnFilteredView(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env,
		doc(1, map[string]riverdb.Value{"rank": 1.0}),
		doc(2, map[string]riverdb.Value{"rank": 5.0}))
	view := protocol.NewCall(
		protocol.NewFilterBuiltin("row", protocol.NewCall(protocol.NewComparison(protocol.CompareGT),
			protocol.NewCall(protocol.NewAttrBuiltin(protocol.BuiltinGetAttr, "rank"), protocol.NewVar("row")),
			protocol.NewNumber(3))),
		protocol.NewTable("test", "docs"))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteUpdate,
		Update: &protocol.Update{
			View:    view,
			Mapping: protocol.Mapping{Arg: "row", Body: docTerm(pair("flag", protocol.NewBool(true)))},
		},
	})
	assert.Equal(t, 1.0, st["updated"])
	docs := tableDocs(t, env)
	assert.Equal(t, true, docs[string(riverdb.Canonical(2.0))]["flag"])
	_, flagged := docs[string(riverdb.Canonical(1.0))]["flag"]
	assert.False(t, flagged)
}

func TestDeleteRemovesViewDocs(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil), doc(2, nil), doc(3, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind:   protocol.WriteDelete,
		Delete: &protocol.Delete{View: protocol.NewTable("test", "docs")},
	})
	assert.Equal(t, 3.0, st["deleted"])
	assert.Empty(t, tableDocs(t, env))
}

func TestMutateReplacesAndDeletes(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env,
		doc(1, map[string]riverdb.Value{"keep": true}),
		doc(2, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WriteMutate,
		Mutate: &protocol.Mutate{
			View: protocol.NewTable("test", "docs"),
			Mapping: protocol.Mapping{Arg: "row", Body: protocol.NewIf(
				protocol.NewCall(protocol.NewAttrBuiltin(protocol.BuiltinHasAttr, "keep"), protocol.NewVar("row")),
				docTerm(
					pair("id", protocol.NewCall(protocol.NewAttrBuiltin(protocol.BuiltinGetAttr, "id"), protocol.NewVar("row"))),
					pair("fresh", protocol.NewBool(true))),
				protocol.NewNull())},
		},
	})
	assert.Equal(t, 1.0, st["modified"])
	assert.Equal(t, 1.0, st["deleted"])
	docs := tableDocs(t, env)
	require.Len(t, docs, 1)
	kept := docs[string(riverdb.Canonical(1.0))]
	assert.Equal(t, true, kept["fresh"])
	_, hasKeep := kept["keep"]
	assert.False(t, hasKeep)
}

func TestPointUpdate(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, map[string]riverdb.Value{"rank": 1.0}))
	w := &protocol.WriteQuery{
		Kind: protocol.WritePointUpdate,
		PointUpdate: &protocol.PointUpdate{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Attrname: "id",
			Key:      protocol.NewNumber(1),
			Mapping:  protocol.Mapping{Arg: "row", Body: docTerm(pair("rank", protocol.NewNumber(2)))},
		},
	}
	st := runWrite(t, env, w)
	assert.Equal(t, 1.0, st["updated"])
	assert.Equal(t, 0.0, st["skipped"])

	w.PointUpdate.Key = protocol.NewNumber(9)
	st = runWrite(t, env, w)
	assert.Equal(t, 0.0, st["updated"])
	assert.Equal(t, 1.0, st["skipped"])
}

func TestPointUpdateRequiresPrimaryKey(t *testing.T) {
	env := testEnv(t, nil)
	_, err := ExecWrite(context.Background(), &protocol.WriteQuery{
		Kind: protocol.WritePointUpdate,
		PointUpdate: &protocol.PointUpdate{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Attrname: "name",
			Key:      protocol.NewString("a"),
			Mapping:  protocol.Mapping{Arg: "row", Body: protocol.NewNull()},
		},
	}, env, backtrace.T{})
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Msg, "primary key")
}

func TestPointDelete(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil))
	w := &protocol.WriteQuery{
		Kind: protocol.WritePointDelete,
		PointDelete: &protocol.PointDelete{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Attrname: "id",
			Key:      protocol.NewNumber(1),
		},
	}
	st := runWrite(t, env, w)
	assert.Equal(t, 1.0, st["deleted"])
	st = runWrite(t, env, w)
	assert.Equal(t, 0.0, st["deleted"])
}

func TestPointMutateInsertsWhenAbsent(t *testing.T) {
	env := testEnv(t, nil)
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WritePointMutate,
		PointMutate: &protocol.PointMutate{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Attrname: "id",
			Key:      protocol.NewNumber(5),
			Mapping: protocol.Mapping{Arg: "row", Body: docTerm(
				pair("id", protocol.NewNumber(5)),
				pair("name", protocol.NewString("new")))},
		},
	})
	assert.Equal(t, 1.0, st["inserted"])
	assert.Equal(t, 0.0, st["modified"])
	docs := tableDocs(t, env)
	assert.Equal(t, "new", docs[string(riverdb.Canonical(5.0))]["name"])
}

func TestPointMutateNullDeletes(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil))
	st := runWrite(t, env, &protocol.WriteQuery{
		Kind: protocol.WritePointMutate,
		PointMutate: &protocol.PointMutate{
			TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
			Attrname: "id",
			Key:      protocol.NewNumber(1),
			Mapping:  protocol.Mapping{Arg: "row", Body: protocol.NewNull()},
		},
	})
	assert.Equal(t, 1.0, st["deleted"])
	assert.Empty(t, tableDocs(t, env))
}

func TestRunDispatchesReadAndWrite(t *testing.T) {
	env := testEnv(t, nil)
	seedDocs(t, env, doc(1, nil))

	res, err := Run(context.Background(), &protocol.Query{
		Type: protocol.QueryRead,
		Read: &protocol.ReadQuery{Term: protocol.NewNumber(3)},
	}, env)
	require.NoError(t, err)
	require.Nil(t, res.Stream)
	assert.Equal(t, 3.0, res.Doc)

	res, err = Run(context.Background(), &protocol.Query{
		Type: protocol.QueryRead,
		Read: &protocol.ReadQuery{Term: protocol.NewTable("test", "docs")},
	}, env)
	require.NoError(t, err)
	require.NotNil(t, res.Stream)
	docs, err := stream.Drain(context.Background(), res.Stream)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	res, err = Run(context.Background(), &protocol.Query{
		Type: protocol.QueryWrite,
		Write: &protocol.WriteQuery{
			Kind:   protocol.WriteDelete,
			Delete: &protocol.Delete{View: protocol.NewTable("test", "docs")},
		},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Doc.(map[string]riverdb.Value)["deleted"])
}
