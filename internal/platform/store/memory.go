package store

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strconv"
	"sync"
)

type memoryKey struct {
	partition string
	row       string
}

type memoryRow struct {
	record  Record
	version uint64
}

// MemoryBackend is an in-process Backend. Every write stamps a fresh, strictly increasing version.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]map[memoryKey]memoryRow
	seq    uint64
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]map[memoryKey]memoryRow)}
}

// Ping only reports context cancellation.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryBackend) Get(ctx context.Context, table, partition, row string) (Record, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.tables[table][memoryKey{partition, row}]
	if !ok {
		return nil, "", NewError(table+".get", ErrNotFound, nil)
	}
	return stored.record.Clone(), formatVersion(stored.version), nil
}

func (m *MemoryBackend) Create(ctx context.Context, table, partition, row string, record Record) (Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[table]
	if rows == nil {
		rows = make(map[memoryKey]memoryRow)
		m.tables[table] = rows
	}
	key := memoryKey{partition, row}
	if _, exists := rows[key]; exists {
		return "", NewError(table+".create", ErrAlreadyExists, nil)
	}
	m.seq++
	rows[key] = memoryRow{record: record.Clone(), version: m.seq}
	return formatVersion(m.seq), nil
}

func (m *MemoryBackend) Replace(ctx context.Context, table, partition, row string, record Record, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{partition, row}
	stored, ok := m.tables[table][key]
	if !ok {
		return "", NewError(table+".replace", ErrNotFound, nil)
	}
	if formatVersion(stored.version) != expected {
		return "", NewError(table+".replace", ErrVersionConflict, nil)
	}
	m.seq++
	m.tables[table][key] = memoryRow{record: record.Clone(), version: m.seq}
	return formatVersion(m.seq), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, table, partition, row string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], memoryKey{partition, row})
	return nil
}

// Scan snapshots the table and yields rows ordered by partition then row.
func (m *MemoryBackend) Scan(ctx context.Context, table string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Entry{}, err)
			return
		}
		m.mu.RLock()
		entries := make([]Entry, 0, len(m.tables[table]))
		for key, stored := range m.tables[table] {
			entries = append(entries, Entry{
				Partition: key.partition,
				Row:       key.row,
				Record:    stored.record.Clone(),
				Version:   formatVersion(stored.version),
			})
		}
		m.mu.RUnlock()

		slices.SortFunc(entries, func(a, b Entry) int {
			if c := cmp.Compare(a.Partition, b.Partition); c != 0 {
				return c
			}
			return cmp.Compare(a.Row, b.Row)
		})

		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func formatVersion(v uint64) Version {
	return Version(strconv.FormatUint(v, 10))
}
