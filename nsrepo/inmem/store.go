// Package inmem is the in-process namespace repository: each table is a set
// of shards holding documents keyed by their canonical primary-key encoding.
// It stands in for the distributed store behind the same Access interface.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/nsrepo"
	"github.com/riverdb/riverdb/stream"
	"go.uber.org/zap"
)

const handleCacheSize = 128

// Store implements nsrepo.Repo over in-memory tables created on first
// access.  Handles are cached so repeated queries against the same table
// reuse one shard set.
type Store struct {
	shardCount int
	logger     *zap.Logger

	mu     sync.Mutex
	tables map[string]*Table
	cache  *arc.ARCCache[string, *Table]
}

func NewStore(shardCount int, logger *zap.Logger) (*Store, error) {
	if shardCount < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", shardCount)
	}
	cache, err := arc.NewARC[string, *Table](handleCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		shardCount: shardCount,
		logger:     logger,
		tables:     make(map[string]*Table),
		cache:      cache,
	}, nil
}

func (s *Store) Access(_ context.Context, db, table string) (nsrepo.Access, error) {
	name := db + "/" + table
	if t, ok := s.cache.Get(name); ok {
		return t, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = newTable(s.shardCount)
		s.tables[name] = t
		s.logger.Debug("created table", zap.String("name", name))
	}
	s.cache.Add(name, t)
	return t, nil
}

// Table holds one table's documents spread across shards by key hash.
type Table struct {
	shards []*shard
}

type shard struct {
	mu   sync.RWMutex
	docs map[string]riverdb.Value
}

func newTable(shardCount int) *Table {
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{docs: make(map[string]riverdb.Value)}
	}
	return &Table{shards: shards}
}

func (t *Table) shardFor(key string) *shard {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

func (t *Table) Get(_ context.Context, key riverdb.Value) (*riverdb.Value, error) {
	sh := t.shardFor(encodeKey(key))
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	doc, ok := sh.docs[encodeKey(key)]
	if !ok {
		return nil, nil
	}
	return riverdb.Ptr(riverdb.Copy(doc)), nil
}

func (t *Table) Replace(_ context.Context, key riverdb.Value, doc *riverdb.Value) (*riverdb.Value, error) {
	k := encodeKey(key)
	sh := t.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	var prev *riverdb.Value
	if old, ok := sh.docs[k]; ok {
		prev = riverdb.Ptr(old)
	}
	if doc == nil {
		delete(sh.docs, k)
	} else {
		sh.docs[k] = riverdb.Copy(*doc)
	}
	return prev, nil
}

// Scan walks shards in index order and each shard's keys in sorted order,
// fetching documents in batches so a long scan never pins a shard lock.
func (t *Table) Scan(_ context.Context) (stream.Stream, error) {
	return &scanner{table: t}, nil
}

const scanBatchSize = 64

type scanner struct {
	table *Table
	shard int
	keys  []string
	batch []riverdb.Value
}

func (s *scanner) Next(ctx context.Context) (*riverdb.Value, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(s.batch) > 0 {
			doc := s.batch[0]
			s.batch = s.batch[1:]
			return &doc, nil
		}
		if len(s.keys) == 0 {
			if s.shard == len(s.table.shards) {
				return nil, nil
			}
			s.keys = s.snapshotKeys(s.table.shards[s.shard])
			s.shard++
			continue
		}
		n := min(scanBatchSize, len(s.keys))
		s.batch = s.fetch(s.table.shards[s.shard-1], s.keys[:n])
		s.keys = s.keys[n:]
	}
}

func (s *scanner) snapshotKeys(sh *shard) []string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	keys := make([]string, 0, len(sh.docs))
	for k := range sh.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *scanner) fetch(sh *shard, keys []string) []riverdb.Value {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	batch := make([]riverdb.Value, 0, len(keys))
	for _, k := range keys {
		// Skip keys deleted since the snapshot.
		if doc, ok := sh.docs[k]; ok {
			batch = append(batch, riverdb.Copy(doc))
		}
	}
	return batch
}

func encodeKey(key riverdb.Value) string {
	return string(riverdb.Canonical(key))
}
