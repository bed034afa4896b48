// Package service is the HTTP front end: it validates, typechecks, and
// executes queries, batches stream results across CONTINUE requests, and
// maps the three error kinds to their response status codes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/check"
	"github.com/riverdb/riverdb/exec"
	"github.com/riverdb/riverdb/extproc"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/stream"
)

const (
	// DefaultBatchSize is how many documents a stream response carries
	// before the remainder parks in a session.
	DefaultBatchSize = 100

	// DefaultSessionTTL is how long an idle stream session survives
	// between CONTINUE requests.
	DefaultSessionTTL = 5 * time.Minute
)

// Config carries the tunables of a Core.  Zero fields take the defaults.
type Config struct {
	BatchSize  int
	SessionTTL time.Duration
}

// Core executes queries against a store.  It is safe for concurrent use;
// each query evaluates in its own environment.
type Core struct {
	logger    *zap.Logger
	pool      *extproc.Pool
	repo      nsrepo.Repo
	meta      *metadata.Snapshot
	sessions  *Sessions
	batchSize int
}

func NewCore(conf Config, pool *extproc.Pool, repo nsrepo.Repo, meta *metadata.Snapshot, logger *zap.Logger) *Core {
	if conf.BatchSize <= 0 {
		conf.BatchSize = DefaultBatchSize
	}
	if conf.SessionTTL <= 0 {
		conf.SessionTTL = DefaultSessionTTL
	}
	return &Core{
		logger:    logger,
		pool:      pool,
		repo:      repo,
		meta:      meta,
		sessions:  NewSessions(conf.SessionTTL, logger),
		batchSize: conf.BatchSize,
	}
}

// Exec runs one client query and produces its response.  Errors never
// escape: every failure becomes a response with the matching status code.
func (c *Core) Exec(ctx context.Context, q *protocol.Query) *protocol.Response {
	start := time.Now()
	resp := c.exec(ctx, q)
	queriesTotal.WithLabelValues(string(q.Type), string(resp.StatusCode)).Inc()
	queryDuration.WithLabelValues(string(q.Type)).Observe(time.Since(start).Seconds())
	if resp.ErrorMessage != "" {
		c.logger.Info("query failed",
			zap.Int64("token", q.Token),
			zap.String("type", string(q.Type)),
			zap.String("status", string(resp.StatusCode)),
			zap.String("error", resp.ErrorMessage))
	}
	return resp
}

func (c *Core) exec(ctx context.Context, q *protocol.Query) *protocol.Response {
	if err := q.Validate(); err != nil {
		return errorResponse(q.Token, err)
	}
	switch q.Type {
	case protocol.QueryContinue:
		s, ok := c.sessions.Get(q.Token)
		if !ok {
			return errorResponse(q.Token, badTokenError(q.Token))
		}
		return c.streamResponse(ctx, q.Token, s, false)
	case protocol.QueryStop:
		if !c.sessions.Drop(q.Token) {
			return errorResponse(q.Token, badTokenError(q.Token))
		}
		return &protocol.Response{Token: q.Token, StatusCode: protocol.StatusSuccessEmpty}
	}
	if err := check.Query(q); err != nil {
		return errorResponse(q.Token, err)
	}
	env := exec.NewEnv(c.pool, c.repo, c.meta)
	res, err := exec.Run(ctx, q, env)
	if err != nil {
		return errorResponse(q.Token, err)
	}
	if res.Stream != nil {
		return c.streamResponse(ctx, q.Token, res.Stream, true)
	}
	doc, err := encodeDoc(res.Doc)
	if err != nil {
		return errorResponse(q.Token, err)
	}
	return &protocol.Response{
		Token:      q.Token,
		StatusCode: protocol.StatusSuccessJSON,
		Response:   []string{doc},
	}
}

// streamResponse reads one batch.  A full batch parks the stream under the
// token and answers SUCCESS_PARTIAL; a short batch means the stream is
// exhausted and answers SUCCESS_STREAM, dropping any session.
func (c *Core) streamResponse(ctx context.Context, token int64, s stream.Stream, fresh bool) *protocol.Response {
	docs, err := stream.ReadBatch(ctx, s, c.batchSize)
	if err != nil {
		c.sessions.Drop(token)
		return errorResponse(token, err)
	}
	encoded := make([]string, 0, len(docs))
	for _, doc := range docs {
		enc, err := encodeDoc(doc)
		if err != nil {
			c.sessions.Drop(token)
			return errorResponse(token, err)
		}
		encoded = append(encoded, enc)
	}
	if len(docs) < c.batchSize {
		if !fresh {
			c.sessions.Drop(token)
		}
		return &protocol.Response{
			Token:      token,
			StatusCode: protocol.StatusSuccessStream,
			Response:   encoded,
		}
	}
	if fresh && !c.sessions.Put(token, s) {
		return errorResponse(token, badTokenError(token))
	}
	return &protocol.Response{
		Token:      token,
		StatusCode: protocol.StatusSuccessPartial,
		Response:   encoded,
	}
}

func encodeDoc(doc riverdb.Value) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// brokenClientError marks a client-driver fault that is not a structural
// protobuf fault, such as continuing a token that has no open session.
type brokenClientError struct {
	msg string
}

func (e *brokenClientError) Error() string {
	return e.msg
}

func badTokenError(token int64) error {
	return &brokenClientError{msg: "no open stream for token " + strconv.FormatInt(token, 10)}
}

// errorResponse maps the three error kinds onto their status codes:
// structurally broken messages blame the driver, type errors blame the
// query, everything else is a runtime failure.
func errorResponse(token int64, err error) *protocol.Response {
	resp := &protocol.Response{Token: token, ErrorMessage: err.Error()}
	var checkErr *check.Error
	var runtimeErr *exec.RuntimeError
	var clientErr *brokenClientError
	switch {
	case errors.Is(err, protocol.ErrBadProtobuf):
		resp.StatusCode = protocol.StatusBrokenClientError
	case errors.As(err, &clientErr):
		resp.StatusCode = protocol.StatusBrokenClientError
	case errors.As(err, &checkErr):
		resp.StatusCode = protocol.StatusBadQuery
		resp.Backtrace = checkErr.Backtrace.Frames()
	case errors.As(err, &runtimeErr):
		resp.StatusCode = protocol.StatusRuntimeError
		resp.Backtrace = runtimeErr.Backtrace.Frames()
	default:
		resp.StatusCode = protocol.StatusRuntimeError
	}
	return resp
}
