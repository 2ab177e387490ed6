package firestore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/retailops/api/internal/platform/store"
)

const (
	fieldPartition = "partitionKey"
	fieldRow       = "rowKey"
)

// Backend stores each table as a collection. Documents are keyed "<partition>:<row>" and
// carry both key parts as fields. The document UpdateTime is the version token, enforced
// on replace through a LastUpdateTime precondition.
type Backend struct {
	provider *Provider
}

var _ store.Backend = (*Backend)(nil)

// NewBackend constructs a Backend over the provider's client.
func NewBackend(provider *Provider) (*Backend, error) {
	if provider == nil {
		return nil, errors.New("firestore backend: provider is required")
	}
	return &Backend{provider: provider}, nil
}

// Ping lists at most one collection to prove the client can reach Firestore.
func (b *Backend) Ping(ctx context.Context) error {
	client, err := b.provider.Client(ctx)
	if err != nil {
		return WrapError("firestore.ping", err)
	}
	if _, err := client.Collections(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError("firestore.ping", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, table, partition, row string) (store.Record, store.Version, error) {
	doc, err := b.document(ctx, table, partition, row)
	if err != nil {
		return nil, "", err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return nil, "", WrapError(op(table, "get"), err)
	}
	return recordFromData(snap.Data()), versionOf(snap.UpdateTime), nil
}

func (b *Backend) Create(ctx context.Context, table, partition, row string, record store.Record) (store.Version, error) {
	doc, err := b.document(ctx, table, partition, row)
	if err != nil {
		return "", err
	}
	result, err := doc.Create(ctx, documentData(partition, row, record))
	if err != nil {
		return "", WrapError(op(table, "create"), err)
	}
	return versionOf(result.UpdateTime), nil
}

func (b *Backend) Replace(ctx context.Context, table, partition, row string, record store.Record, expected store.Version) (store.Version, error) {
	lastUpdate, err := parseVersion(expected)
	if err != nil {
		return "", store.NewError(op(table, "replace"), store.ErrVersionConflict, err)
	}
	doc, err := b.document(ctx, table, partition, row)
	if err != nil {
		return "", err
	}

	data := documentData(partition, row, record)
	updates := make([]firestore.Update, 0, len(data))
	for field, value := range data {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	result, err := doc.Update(ctx, updates, firestore.LastUpdateTime(lastUpdate))
	if err != nil {
		return "", WrapError(op(table, "replace"), err)
	}
	return versionOf(result.UpdateTime), nil
}

func (b *Backend) Delete(ctx context.Context, table, partition, row string) error {
	doc, err := b.document(ctx, table, partition, row)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(op(table, "delete"), err)
	}
	return nil
}

func (b *Backend) Scan(ctx context.Context, table string) iter.Seq2[store.Entry, error] {
	return func(yield func(store.Entry, error) bool) {
		client, err := b.provider.Client(ctx)
		if err != nil {
			yield(store.Entry{}, err)
			return
		}
		docs := client.Collection(table).Documents(ctx)
		defer docs.Stop()
		for {
			snap, err := docs.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(store.Entry{}, WrapError(op(table, "scan"), err))
				return
			}
			data := snap.Data()
			partition, _ := data[fieldPartition].(string)
			row, _ := data[fieldRow].(string)
			if partition == "" || row == "" {
				partition, row, _ = strings.Cut(snap.Ref.ID, ":")
			}
			entry := store.Entry{
				Partition: partition,
				Row:       row,
				Record:    recordFromData(data),
				Version:   versionOf(snap.UpdateTime),
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (b *Backend) document(ctx context.Context, table, partition, row string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("firestore backend: table is required")
	}
	id, err := documentID(partition, row)
	if err != nil {
		return nil, store.NewError(op(table, "document"), store.ErrNotFound, err)
	}
	client, err := b.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(table).Doc(id), nil
}

func documentID(partition, row string) (string, error) {
	partition = strings.TrimSpace(partition)
	row = strings.TrimSpace(row)
	if partition == "" || row == "" {
		return "", errors.New("partition and row are required")
	}
	if strings.Contains(partition, "/") || strings.Contains(row, "/") || strings.Contains(partition, ":") {
		return "", fmt.Errorf("invalid key %q/%q", partition, row)
	}
	return partition + ":" + row, nil
}

func documentData(partition, row string, record store.Record) map[string]any {
	data := make(map[string]any, len(record)+2)
	for k, v := range record {
		data[k] = v
	}
	data[fieldPartition] = partition
	data[fieldRow] = row
	return data
}

func recordFromData(data map[string]any) store.Record {
	rec := make(store.Record, len(data))
	for k, v := range data {
		if k == fieldPartition || k == fieldRow {
			continue
		}
		rec[k] = v
	}
	return rec
}

func versionOf(t time.Time) store.Version {
	if t.IsZero() {
		return ""
	}
	return store.Version(t.UTC().Format(time.RFC3339Nano))
}

func parseVersion(v store.Version) (time.Time, error) {
	if strings.TrimSpace(string(v)) == "" {
		return time.Time{}, errors.New("version is required")
	}
	return time.Parse(time.RFC3339Nano, string(v))
}

func op(table, action string) string {
	return fmt.Sprintf("%s.%s", strings.TrimSpace(table), action)
}
