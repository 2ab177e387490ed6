package redisstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
)

const (
	defaultPrefix = "retailops"
	scanBatchSize = 100

	fieldVersion   = "_version"
	fieldPartition = "_partition"
	fieldRow       = "_row"
)

// Backend keeps each entity in a hash at "<prefix>:<table>:<partition>:<row>". Writes run
// inside WATCH/MULTI so a concurrent change to the key aborts the EXEC, and the _version
// field is compared against the caller's token before the write is queued.
type Backend struct {
	client redis.UniversalClient
	prefix string
}

var _ store.Backend = (*Backend)(nil)

// Option customises the Backend.
type Option func(*Backend)

// WithKeyPrefix overrides the namespace prepended to every key.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			b.prefix = trimmed
		}
	}
}

// NewClient dials Redis using the supplied configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
}

// NewBackend wraps an existing client.
func NewBackend(client redis.UniversalClient, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("redis backend: client is required")
	}
	b := &Backend{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error {
	return wrapError("redis.ping", b.client.Ping(ctx).Err())
}

func (b *Backend) Get(ctx context.Context, table, partition, row string) (store.Record, store.Version, error) {
	values, err := b.client.HGetAll(ctx, b.key(table, partition, row)).Result()
	if err != nil {
		return nil, "", wrapError(op(table, "get"), err)
	}
	if len(values) == 0 {
		return nil, "", store.NewError(op(table, "get"), store.ErrNotFound, nil)
	}
	rec, version := decodeHash(values)
	return rec, version, nil
}

func (b *Backend) Create(ctx context.Context, table, partition, row string, record store.Record) (store.Version, error) {
	key := b.key(table, partition, row)
	version, err := b.nextVersion(ctx)
	if err != nil {
		return "", wrapError(op(table, "create"), err)
	}
	err = b.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.NewError(op(table, "create"), store.ErrAlreadyExists, nil)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeHash(partition, row, record, version))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return "", wrapError(op(table, "create"), err)
	}
	return version, nil
}

func (b *Backend) Replace(ctx context.Context, table, partition, row string, record store.Record, expected store.Version) (store.Version, error) {
	key := b.key(table, partition, row)
	version, err := b.nextVersion(ctx)
	if err != nil {
		return "", wrapError(op(table, "replace"), err)
	}
	err = b.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, fieldVersion).Result()
		if errors.Is(err, redis.Nil) {
			return store.NewError(op(table, "replace"), store.ErrNotFound, nil)
		}
		if err != nil {
			return err
		}
		if store.Version(current) != expected {
			return store.NewError(op(table, "replace"), store.ErrVersionConflict,
				fmt.Errorf("expected version %s, found %s", expected, current))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeHash(partition, row, record, version))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return "", wrapError(op(table, "replace"), err)
	}
	return version, nil
}

func (b *Backend) Delete(ctx context.Context, table, partition, row string) error {
	if err := b.client.Del(ctx, b.key(table, partition, row)).Err(); err != nil {
		return wrapError(op(table, "delete"), err)
	}
	return nil
}

func (b *Backend) Scan(ctx context.Context, table string) iter.Seq2[store.Entry, error] {
	return func(yield func(store.Entry, error) bool) {
		pattern := fmt.Sprintf("%s:%s:*", b.prefix, table)
		keys := b.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
		seen := make(map[string]struct{})
		for keys.Next(ctx) {
			key := keys.Val()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			values, err := b.client.HGetAll(ctx, key).Result()
			if err != nil {
				yield(store.Entry{}, wrapError(op(table, "scan"), err))
				return
			}
			if len(values) == 0 {
				continue
			}
			rec, version := decodeHash(values)
			entry := store.Entry{
				Partition: values[fieldPartition],
				Row:       values[fieldRow],
				Record:    rec,
				Version:   version,
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := keys.Err(); err != nil {
			yield(store.Entry{}, wrapError(op(table, "scan"), err))
		}
	}
}

func (b *Backend) nextVersion(ctx context.Context) (store.Version, error) {
	seq, err := b.client.Incr(ctx, b.prefix+":_seq").Result()
	if err != nil {
		return "", err
	}
	return store.Version(strconv.FormatInt(seq, 10)), nil
}

func (b *Backend) key(table, partition, row string) string {
	return strings.Join([]string{b.prefix, table, partition, row}, ":")
}

func encodeHash(partition, row string, record store.Record, version store.Version) map[string]any {
	out := make(map[string]any, len(record)+3)
	for field, value := range record {
		out[field] = encodeValue(value)
	}
	out[fieldPartition] = partition
	out[fieldRow] = row
	out[fieldVersion] = string(version)
	return out
}

func encodeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(time.RFC3339Nano)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func decodeHash(values map[string]string) (store.Record, store.Version) {
	rec := make(store.Record, len(values))
	for field, value := range values {
		switch field {
		case fieldVersion, fieldPartition, fieldRow:
			continue
		}
		rec[field] = value
	}
	return rec, store.Version(values[fieldVersion])
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return err
	}
	if errors.Is(err, redis.TxFailedErr) {
		return store.NewError(op, store.ErrVersionConflict, err)
	}
	if errors.Is(err, redis.Nil) {
		return store.NewError(op, store.ErrNotFound, err)
	}
	return store.NewError(op, store.ErrUnavailable, err)
}

func op(table, action string) string {
	return fmt.Sprintf("%s.%s", table, action)
}
