package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/extproc"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo/inmem"
	"github.com/riverdb/riverdb/protocol"
)

func testCore(t *testing.T, conf Config) *Core {
	t.Helper()
	engine := func(context.Context, string, map[string]riverdb.Value, *riverdb.Value) (riverdb.Value, error) {
		return nil, fmt.Errorf("no javascript engine in tests")
	}
	pool, err := extproc.NewPool(engine, 1)
	require.NoError(t, err)
	store, err := inmem.NewStore(4, zap.NewNop())
	require.NoError(t, err)
	meta := metadata.NewSnapshot([]metadata.TableInfo{
		{DB: "test", Name: "docs", PrimaryKey: "id"},
	})
	return NewCore(conf, pool, store, meta, zap.NewNop())
}

func readQuery(token int64, term *protocol.Term) *protocol.Query {
	return &protocol.Query{Type: protocol.QueryRead, Token: token, Read: &protocol.ReadQuery{Term: term}}
}

func insertQuery(token int64, n int) *protocol.Query {
	terms := make([]*protocol.Term, n)
	for i := range terms {
		terms[i] = protocol.NewObject(
			protocol.VarTermPair{Var: "id", Term: protocol.NewNumber(float64(i))})
	}
	return &protocol.Query{
		Type:  protocol.QueryWrite,
		Token: token,
		Write: &protocol.WriteQuery{
			Kind: protocol.WriteInsert,
			Insert: &protocol.Insert{
				TableRef: protocol.TableRef{DBName: "test", TableName: "docs"},
				Terms:    terms,
			},
		},
	}
}

func decodeResponseDocs(t *testing.T, resp *protocol.Response) []riverdb.Value {
	t.Helper()
	docs := make([]riverdb.Value, 0, len(resp.Response))
	for _, enc := range resp.Response {
		var v riverdb.Value
		require.NoError(t, json.Unmarshal([]byte(enc), &v))
		docs = append(docs, v)
	}
	return docs
}

func TestExecValueQuery(t *testing.T) {
	core := testCore(t, Config{})
	resp := core.Exec(context.Background(), readQuery(1, protocol.NewNumber(3)))
	require.Equal(t, protocol.StatusSuccessJSON, resp.StatusCode)
	assert.Equal(t, int64(1), resp.Token)
	assert.Equal(t, []riverdb.Value{3.0}, decodeResponseDocs(t, resp))
}

func TestExecWriteQuery(t *testing.T) {
	core := testCore(t, Config{})
	resp := core.Exec(context.Background(), insertQuery(1, 3))
	require.Equal(t, protocol.StatusSuccessJSON, resp.StatusCode)
	docs := decodeResponseDocs(t, resp)
	require.Len(t, docs, 1)
	status := docs[0].(map[string]riverdb.Value)
	assert.Equal(t, 3.0, status["inserted"])
}

func TestStreamCompletesInOneResponse(t *testing.T) {
	core := testCore(t, Config{BatchSize: 10})
	require.Equal(t, protocol.StatusSuccessJSON,
		core.Exec(context.Background(), insertQuery(1, 3)).StatusCode)
	resp := core.Exec(context.Background(), readQuery(2, protocol.NewTable("test", "docs")))
	require.Equal(t, protocol.StatusSuccessStream, resp.StatusCode)
	assert.Len(t, resp.Response, 3)
}

func TestStreamContinuation(t *testing.T) {
	core := testCore(t, Config{BatchSize: 2})
	require.Equal(t, protocol.StatusSuccessJSON,
		core.Exec(context.Background(), insertQuery(1, 5)).StatusCode)

	resp := core.Exec(context.Background(), readQuery(2, protocol.NewTable("test", "docs")))
	require.Equal(t, protocol.StatusSuccessPartial, resp.StatusCode)
	assert.Len(t, resp.Response, 2)
	total := len(resp.Response)

	for resp.StatusCode == protocol.StatusSuccessPartial {
		resp = core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryContinue, Token: 2})
		require.NotEqual(t, protocol.StatusRuntimeError, resp.StatusCode)
		total += len(resp.Response)
	}
	assert.Equal(t, protocol.StatusSuccessStream, resp.StatusCode)
	assert.Equal(t, 5, total)

	// The session is gone once the stream completes.
	resp = core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryContinue, Token: 2})
	assert.Equal(t, protocol.StatusBrokenClientError, resp.StatusCode)
}

func TestStopDropsSession(t *testing.T) {
	core := testCore(t, Config{BatchSize: 1})
	require.Equal(t, protocol.StatusSuccessJSON,
		core.Exec(context.Background(), insertQuery(1, 3)).StatusCode)
	resp := core.Exec(context.Background(), readQuery(2, protocol.NewTable("test", "docs")))
	require.Equal(t, protocol.StatusSuccessPartial, resp.StatusCode)

	resp = core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryStop, Token: 2})
	assert.Equal(t, protocol.StatusSuccessEmpty, resp.StatusCode)

	resp = core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryContinue, Token: 2})
	assert.Equal(t, protocol.StatusBrokenClientError, resp.StatusCode)
}

func TestContinueUnknownTokenIsBrokenClient(t *testing.T) {
	core := testCore(t, Config{})
	resp := core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryContinue, Token: 42})
	assert.Equal(t, protocol.StatusBrokenClientError, resp.StatusCode)
	assert.Contains(t, resp.ErrorMessage, "42")
}

func TestMalformedQueryIsBrokenClient(t *testing.T) {
	core := testCore(t, Config{})
	resp := core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryRead, Token: 1})
	assert.Equal(t, protocol.StatusBrokenClientError, resp.StatusCode)
}

func TestIllTypedQueryIsBadQueryWithBacktrace(t *testing.T) {
	core := testCore(t, Config{})
	term := protocol.NewCall(protocol.NewBuiltin(protocol.BuiltinNot), protocol.NewTable("test", "docs"))
	resp := core.Exec(context.Background(), readQuery(1, term))
	assert.Equal(t, protocol.StatusBadQuery, resp.StatusCode)
	assert.NotEmpty(t, resp.ErrorMessage)
	assert.Equal(t, []string{"argument:1"}, resp.Backtrace)
}

func TestRuntimeFailureIsRuntimeErrorWithBacktrace(t *testing.T) {
	core := testCore(t, Config{})
	term := protocol.NewIf(protocol.NewBool(true),
		protocol.NewCall(protocol.NewBuiltin(protocol.BuiltinDivide),
			protocol.NewNumber(1), protocol.NewNumber(0)),
		protocol.NewNumber(0))
	resp := core.Exec(context.Background(), readQuery(1, term))
	assert.Equal(t, protocol.StatusRuntimeError, resp.StatusCode)
	assert.Equal(t, []string{"true"}, resp.Backtrace)
}

func TestSessionExpires(t *testing.T) {
	core := testCore(t, Config{BatchSize: 1, SessionTTL: time.Minute})
	require.Equal(t, protocol.StatusSuccessJSON,
		core.Exec(context.Background(), insertQuery(1, 2)).StatusCode)
	resp := core.Exec(context.Background(), readQuery(2, protocol.NewTable("test", "docs")))
	require.Equal(t, protocol.StatusSuccessPartial, resp.StatusCode)

	now := time.Now()
	core.sessions.now = func() time.Time { return now.Add(2 * time.Minute) }
	resp = core.Exec(context.Background(), &protocol.Query{Type: protocol.QueryContinue, Token: 2})
	assert.Equal(t, protocol.StatusBrokenClientError, resp.StatusCode)
}

func TestHandlerRoundTrip(t *testing.T) {
	core := testCore(t, Config{})
	srv := httptest.NewServer(NewHandler(core, zap.NewNop()))
	defer srv.Close()

	body, err := json.Marshal(readQuery(7, protocol.NewNumber(1)))
	require.NoError(t, err)
	httpResp, err := http.Post(srv.URL+"/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var resp protocol.Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	assert.Equal(t, protocol.StatusSuccessJSON, resp.StatusCode)
	assert.Equal(t, int64(7), resp.Token)
	assert.Equal(t, []string{"1"}, resp.Response)

	httpResp, err = http.Post(srv.URL+"/query", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	var broken protocol.Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&broken))
	assert.Equal(t, protocol.StatusBrokenClientError, broken.StatusCode)

	status, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	status.Body.Close()
	assert.Equal(t, http.StatusOK, status.StatusCode)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
