// Package metadata holds a read-only snapshot of cluster metadata.  The
// query path resolves database and table names against a snapshot taken when
// the query arrived, so a concurrent admin operation never changes name
// resolution mid-query.
package metadata

import (
	"fmt"
	"sort"
)

// TableInfo describes one table.
type TableInfo struct {
	DB         string
	Name       string
	PrimaryKey string
}

// Snapshot is an immutable view of the known databases and tables.
type Snapshot struct {
	dbs map[string]map[string]TableInfo
}

// NewSnapshot builds a snapshot from a table list.  Later entries for the
// same db/table pair win.
func NewSnapshot(tables []TableInfo) *Snapshot {
	dbs := make(map[string]map[string]TableInfo)
	for _, t := range tables {
		db, ok := dbs[t.DB]
		if !ok {
			db = make(map[string]TableInfo)
			dbs[t.DB] = db
		}
		db[t.Name] = t
	}
	return &Snapshot{dbs: dbs}
}

// Resolve maps a db/table name pair to its table info.
func (s *Snapshot) Resolve(db, table string) (TableInfo, error) {
	tables, ok := s.dbs[db]
	if !ok {
		return TableInfo{}, fmt.Errorf("database %q does not exist", db)
	}
	info, ok := tables[table]
	if !ok {
		return TableInfo{}, fmt.Errorf("table %q does not exist in database %q", table, db)
	}
	return info, nil
}

// Databases returns the database names in sorted order.
func (s *Snapshot) Databases() []string {
	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns the table names of db in sorted order.
func (s *Snapshot) Tables(db string) []string {
	tables := s.dbs[db]
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
