package spill

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/riverdb/riverdb"
	"go.uber.org/multierr"
)

// MergeSort accumulates sorted runs in temporary files and merges them on
// read.  Spill sorts each run before writing it; Read returns the globally
// ordered sequence.  Ties between runs break toward the run spilled first so
// the overall sort stays stable.
type MergeSort struct {
	tempDir string
	nspill  int
	runs    runHeap
	merged  bool
}

// NewMergeSort creates a new external merge sorter using cmp to order
// documents.
func NewMergeSort(cmp riverdb.CompareFunc) (*MergeSort, error) {
	tempDir, err := os.MkdirTemp("", "riverdb-sort-")
	if err != nil {
		return nil, err
	}
	return &MergeSort{tempDir: tempDir, runs: runHeap{cmp: cmp}}, nil
}

// Spill sorts vals and writes them to a new run file.  The caller may reuse
// the slice after Spill returns.
func (m *MergeSort) Spill(ctx context.Context, vals []riverdb.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slices.SortStableFunc(vals, m.runs.cmp)
	filename := filepath.Join(m.tempDir, fmt.Sprintf("run-%d", m.nspill))
	p, err := newPeeker(filename, m.nspill, vals)
	if err != nil {
		return err
	}
	m.runs.peekers = append(m.runs.peekers, p)
	m.nspill++
	return nil
}

// SpillCount returns the number of runs spilled so far.
func (m *MergeSort) SpillCount() int {
	return m.nspill
}

// Read returns the next document in the merged order or nil when all runs
// are exhausted.
func (m *MergeSort) Read(ctx context.Context) (*riverdb.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.merged {
		heap.Init(&m.runs)
		m.merged = true
	}
	for {
		if len(m.runs.peekers) == 0 {
			return nil, nil
		}
		p := m.runs.peekers[0]
		doc, eof, err := p.read()
		if err != nil {
			return nil, err
		}
		if eof {
			heap.Pop(&m.runs)
			if err := p.CloseAndRemove(); err != nil {
				return nil, err
			}
		} else {
			heap.Fix(&m.runs, 0)
		}
		if doc != nil {
			return doc, nil
		}
	}
}

// Cleanup removes the temp directory and all remaining run files.
func (m *MergeSort) Cleanup() error {
	var err error
	for _, p := range m.runs.peekers {
		err = multierr.Append(err, p.CloseAndRemove())
	}
	m.runs.peekers = nil
	return multierr.Append(err, os.RemoveAll(m.tempDir))
}

type peeker struct {
	*File
	next    *riverdb.Value
	ordinal int
}

func newPeeker(filename string, ordinal int, vals []riverdb.Value) (*peeker, error) {
	f, err := NewFileWithPath(filename)
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		if err := f.Write(v); err != nil {
			f.CloseAndRemove()
			return nil, err
		}
	}
	if err := f.Rewind(); err != nil {
		f.CloseAndRemove()
		return nil, err
	}
	first, err := f.Read()
	if err != nil {
		f.CloseAndRemove()
		return nil, err
	}
	return &peeker{f, first, ordinal}, nil
}

// read is like Read but reports eof at the last document so the merge can do
// its heap management a bit more easily.
func (p *peeker) read() (*riverdb.Value, bool, error) {
	doc := p.next
	var err error
	p.next, err = p.Read()
	eof := p.next == nil && err == nil
	return doc, eof, err
}

type runHeap struct {
	cmp     riverdb.CompareFunc
	peekers []*peeker
}

func (h *runHeap) Len() int { return len(h.peekers) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.peekers[i], h.peekers[j]
	if a.next == nil {
		return false
	}
	if b.next == nil {
		return true
	}
	if c := h.cmp(*a.next, *b.next); c != 0 {
		return c < 0
	}
	return a.ordinal < b.ordinal
}

func (h *runHeap) Swap(i, j int) { h.peekers[i], h.peekers[j] = h.peekers[j], h.peekers[i] }

func (h *runHeap) Push(x any) { h.peekers = append(h.peekers, x.(*peeker)) }

func (h *runHeap) Pop() any {
	n := len(h.peekers)
	p := h.peekers[n-1]
	h.peekers = h.peekers[:n-1]
	return p
}
