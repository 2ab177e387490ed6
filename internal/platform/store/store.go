package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Version is an opaque optimistic-concurrency token issued by a backend on every write.
type Version string

// Entry is a raw row yielded by a table scan.
type Entry struct {
	Partition string
	Row       string
	Record    Record
	Version   Version
}

// Backend is a partitioned key/value store with single-entity operations only.
// Replace must fail with ErrVersionConflict when expected no longer matches the stored version.
type Backend interface {
	Get(ctx context.Context, table, partition, row string) (Record, Version, error)
	Create(ctx context.Context, table, partition, row string, record Record) (Version, error)
	Replace(ctx context.Context, table, partition, row string, record Record, expected Version) (Version, error)
	Delete(ctx context.Context, table, partition, row string) error
	Scan(ctx context.Context, table string) iter.Seq2[Entry, error]
}

// Pinger is implemented by backends that can probe their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Schema maps an entity type onto a table partition without reflection.
type Schema[T any] struct {
	Table     string
	Partition string
	Key       func(T) string
	Encode    func(T) Record
	Decode    func(row string, record Record) (T, error)
}

func (s Schema[T]) validate() error {
	switch {
	case strings.TrimSpace(s.Table) == "":
		return errors.New("store: schema table is required")
	case strings.TrimSpace(s.Partition) == "":
		return errors.New("store: schema partition is required")
	case s.Key == nil || s.Encode == nil || s.Decode == nil:
		return fmt.Errorf("store: schema %s is missing key, encode or decode", s.Table)
	}
	return nil
}

// Versioned pairs an entity with the version token it was read or written at.
type Versioned[T any] struct {
	Entity  T
	Version Version
}

// Table binds a Backend to a Schema.
type Table[T any] struct {
	backend Backend
	schema  Schema[T]
}

// NewTable constructs a typed table over the backend.
func NewTable[T any](backend Backend, schema Schema[T]) (*Table[T], error) {
	if backend == nil {
		return nil, errors.New("store: backend is required")
	}
	if err := schema.validate(); err != nil {
		return nil, err
	}
	return &Table[T]{backend: backend, schema: schema}, nil
}

// Get point-reads the entity stored under id.
func (t *Table[T]) Get(ctx context.Context, id string) (Versioned[T], error) {
	row := strings.TrimSpace(id)
	if row == "" {
		return Versioned[T]{}, NewError(t.op("get"), ErrNotFound, errors.New("id is required"))
	}
	record, version, err := t.backend.Get(ctx, t.schema.Table, t.schema.Partition, row)
	if err != nil {
		return Versioned[T]{}, err
	}
	entity, err := t.schema.Decode(row, record)
	if err != nil {
		return Versioned[T]{}, fmt.Errorf("%s: decode %s: %w", t.op("get"), row, err)
	}
	return Versioned[T]{Entity: entity, Version: version}, nil
}

// Create persists a new entity, failing with ErrAlreadyExists if the key is taken.
func (t *Table[T]) Create(ctx context.Context, entity T) (Versioned[T], error) {
	row, err := t.key(entity, "create")
	if err != nil {
		return Versioned[T]{}, err
	}
	version, err := t.backend.Create(ctx, t.schema.Table, t.schema.Partition, row, t.schema.Encode(entity))
	if err != nil {
		return Versioned[T]{}, err
	}
	return Versioned[T]{Entity: entity, Version: version}, nil
}

// Replace overwrites the entity if it is still at the expected version.
func (t *Table[T]) Replace(ctx context.Context, entity T, expected Version) (Versioned[T], error) {
	row, err := t.key(entity, "replace")
	if err != nil {
		return Versioned[T]{}, err
	}
	version, err := t.backend.Replace(ctx, t.schema.Table, t.schema.Partition, row, t.schema.Encode(entity), expected)
	if err != nil {
		return Versioned[T]{}, err
	}
	return Versioned[T]{Entity: entity, Version: version}, nil
}

// Delete removes the entity. Deleting a missing key is not an error.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	row := strings.TrimSpace(id)
	if row == "" {
		return NewError(t.op("delete"), ErrNotFound, errors.New("id is required"))
	}
	return t.backend.Delete(ctx, t.schema.Table, t.schema.Partition, row)
}

// Scan yields every entity in the schema's partition once. Decode failures are yielded
// as errors and iteration continues while the consumer keeps pulling.
func (t *Table[T]) Scan(ctx context.Context) iter.Seq2[Versioned[T], error] {
	return func(yield func(Versioned[T], error) bool) {
		for entry, err := range t.backend.Scan(ctx, t.schema.Table) {
			if err != nil {
				yield(Versioned[T]{}, err)
				return
			}
			if entry.Partition != t.schema.Partition {
				continue
			}
			entity, err := t.schema.Decode(entry.Row, entry.Record)
			if err != nil {
				if !yield(Versioned[T]{}, fmt.Errorf("%s: decode %s: %w", t.op("scan"), entry.Row, err)) {
					return
				}
				continue
			}
			if !yield(Versioned[T]{Entity: entity, Version: entry.Version}, nil) {
				return
			}
		}
	}
}

// Collect drains a scan into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[Versioned[T], error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item.Entity)
	}
	return out, nil
}

func (t *Table[T]) key(entity T, action string) (string, error) {
	row := strings.TrimSpace(t.schema.Key(entity))
	if row == "" {
		return "", fmt.Errorf("%s: entity key is required", t.op(action))
	}
	return row, nil
}

func (t *Table[T]) op(action string) string {
	return fmt.Sprintf("%s.%s", t.schema.Table, action)
}
