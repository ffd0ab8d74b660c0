package anchor

import (
	"bytes"
	"sort"
	"sync"
)

// Ledger is an append-only store of anchor records, along with the leaves of
// each batch so inclusion proofs can be generated after the batch is
// anchored.
type Ledger interface {
	// Put adds a record and its batch leaves. Returns ErrRecordExists if a
	// record with the same external ID exists.
	Put(rec Record, leaves [][]byte) error

	// Get returns the record with the given external ID, or ErrNotFound.
	Get(id string) (Record, error)

	// Leaves returns the leaves of the batch with the given external ID,
	// or ErrNotFound.
	Leaves(id string) ([][]byte, error)

	// List returns all records ordered by timestamp.
	List() ([]Record, error)

	Close() error
}

// MemoryLedger is a Ledger held in memory.
type MemoryLedger struct {
	records map[string]Record
	leaves  map[string][][]byte

	mu sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]Record),
		leaves:  make(map[string][][]byte),
	}
}

func (l *MemoryLedger) Put(rec Record, leaves [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.ExternalID]; ok {
		return ErrRecordExists
	}
	l.records[rec.ExternalID] = rec
	l.leaves[rec.ExternalID] = cloneLeaves(leaves)
	return nil
}

func (l *MemoryLedger) Get(id string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (l *MemoryLedger) Leaves(id string) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	leaves, ok := l.leaves[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLeaves(leaves), nil
}

func (l *MemoryLedger) List() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var records []Record
	for _, rec := range l.records {
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

func (l *MemoryLedger) Close() error {
	return nil
}

func cloneLeaves(leaves [][]byte) [][]byte {
	cloned := make([][]byte, 0, len(leaves))
	for _, leaf := range leaves {
		cloned = append(cloned, bytes.Clone(leaf))
	}
	return cloned
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ExternalID < records[j].ExternalID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

var _ Ledger = &MemoryLedger{}
