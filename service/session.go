package service

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/riverdb/riverdb/stream"
)

// session holds the remainder of a partially consumed stream between a
// SUCCESS_PARTIAL response and the next CONTINUE for its token.
type session struct {
	id       ksuid.KSUID
	stream   stream.Stream
	lastUsed time.Time
}

// Sessions tracks open stream sessions by client token.  Idle sessions
// expire lazily: every operation first sweeps entries older than the TTL.
type Sessions struct {
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	byToken map[int64]*session
	now     func() time.Time
}

func NewSessions(ttl time.Duration, logger *zap.Logger) *Sessions {
	return &Sessions{
		ttl:     ttl,
		logger:  logger,
		byToken: make(map[int64]*session),
		now:     time.Now,
	}
}

// Put retains the stream under token, replacing any expired predecessor.
// A live session under the same token is the client reusing a token it has
// not finished, so Put reports whether the stream was retained.
func (s *Sessions) Put(token int64, st stream.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if _, ok := s.byToken[token]; ok {
		return false
	}
	sess := &session{id: ksuid.New(), stream: st, lastUsed: s.now()}
	s.byToken[token] = sess
	sessionsActive.Set(float64(len(s.byToken)))
	s.logger.Debug("session opened",
		zap.Int64("token", token), zap.Stringer("session_id", sess.id))
	return true
}

// Get returns the stream held for token and refreshes its idle clock.
func (s *Sessions) Get(token int64) (stream.Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	sess, ok := s.byToken[token]
	if !ok {
		return nil, false
	}
	sess.lastUsed = s.now()
	return sess.stream, true
}

// Drop removes the session for token and reports whether one existed.
func (s *Sessions) Drop(token int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	sess, ok := s.byToken[token]
	if !ok {
		return false
	}
	delete(s.byToken, token)
	sessionsActive.Set(float64(len(s.byToken)))
	s.logger.Debug("session closed",
		zap.Int64("token", token), zap.Stringer("session_id", sess.id))
	return true
}

func (s *Sessions) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for token, sess := range s.byToken {
		if sess.lastUsed.Before(cutoff) {
			delete(s.byToken, token)
			s.logger.Info("session expired",
				zap.Int64("token", token), zap.Stringer("session_id", sess.id))
		}
	}
	sessionsActive.Set(float64(len(s.byToken)))
}
