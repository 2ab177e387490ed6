package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/retailops/api/internal/platform/config"
	"github.com/retailops/api/internal/platform/store"
)

const defaultTable = "entities"

// Backend stores every entity as one row of a shared table keyed by (tbl, partition, row_key).
// The data column holds the record as a JSON object of strings. Versions are drawn from a
// sequence so a recreated row never reuses a token; Replace compares and bumps the version in
// a single UPDATE.
type Backend struct {
	db      *sql.DB
	table   string
	seq     string
	nextval string
}

var _ store.Backend = (*Backend)(nil)

// Open connects to Postgres with the supplied configuration and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

// NewBackend wraps db and creates the entity table when it does not exist yet.
func NewBackend(ctx context.Context, db *sql.DB, table string) (*Backend, error) {
	if db == nil {
		return nil, errors.New("pgstore: db is required")
	}
	if table == "" {
		table = defaultTable
	}
	seq := pq.QuoteIdentifier(table + "_version_seq")
	b := &Backend{
		db:      db,
		table:   pq.QuoteIdentifier(table),
		seq:     seq,
		nextval: fmt.Sprintf("nextval(%s)", pq.QuoteLiteral(seq)),
	}
	if err := b.migrate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE SEQUENCE IF NOT EXISTS %s;
		CREATE TABLE IF NOT EXISTS %s (
			tbl       TEXT   NOT NULL,
			partition TEXT   NOT NULL,
			row_key   TEXT   NOT NULL,
			data      JSONB  NOT NULL,
			version   BIGINT NOT NULL,
			PRIMARY KEY (tbl, partition, row_key)
		)`, b.seq, b.table))
	if err != nil {
		return wrapError("pgstore.migrate", err)
	}
	return nil
}

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error {
	return wrapError("pgstore.ping", b.db.PingContext(ctx))
}

func (b *Backend) Get(ctx context.Context, table, partition, row string) (store.Record, store.Version, error) {
	var (
		data    []byte
		version int64
	)
	err := b.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data, version FROM %s WHERE tbl = $1 AND partition = $2 AND row_key = $3`, b.table),
		table, partition, row,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", store.NewError(op(table, "get"), store.ErrNotFound, nil)
	}
	if err != nil {
		return nil, "", wrapError(op(table, "get"), err)
	}
	rec, err := decodeData(data)
	if err != nil {
		return nil, "", store.NewError(op(table, "get"), store.ErrUnavailable, err)
	}
	return rec, formatVersion(version), nil
}

func (b *Backend) Create(ctx context.Context, table, partition, row string, record store.Record) (store.Version, error) {
	data, err := encodeData(record)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op(table, "create"), err)
	}
	var version int64
	err = b.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (tbl, partition, row_key, data, version) VALUES ($1, $2, $3, $4, %s)
			ON CONFLICT (tbl, partition, row_key) DO NOTHING RETURNING version`, b.table, b.nextval),
		table, partition, row, string(data),
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NewError(op(table, "create"), store.ErrAlreadyExists, nil)
	}
	if err != nil {
		return "", wrapError(op(table, "create"), err)
	}
	return formatVersion(version), nil
}

func (b *Backend) Replace(ctx context.Context, table, partition, row string, record store.Record, expected store.Version) (store.Version, error) {
	want, err := strconv.ParseInt(string(expected), 10, 64)
	if err != nil {
		return "", store.NewError(op(table, "replace"), store.ErrVersionConflict,
			fmt.Errorf("malformed version %q", expected))
	}
	data, err := encodeData(record)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op(table, "replace"), err)
	}

	var version int64
	err = b.db.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = $4, version = %s
			WHERE tbl = $1 AND partition = $2 AND row_key = $3 AND version = $5 RETURNING version`, b.table, b.nextval),
		table, partition, row, string(data), want,
	).Scan(&version)
	if err == nil {
		return formatVersion(version), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", wrapError(op(table, "replace"), err)
	}

	// No row matched: either the entity is gone or its version moved on.
	var current int64
	err = b.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version FROM %s WHERE tbl = $1 AND partition = $2 AND row_key = $3`, b.table),
		table, partition, row,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NewError(op(table, "replace"), store.ErrNotFound, nil)
	}
	if err != nil {
		return "", wrapError(op(table, "replace"), err)
	}
	return "", store.NewError(op(table, "replace"), store.ErrVersionConflict,
		fmt.Errorf("expected version %d, found %d", want, current))
}

func (b *Backend) Delete(ctx context.Context, table, partition, row string) error {
	_, err := b.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE tbl = $1 AND partition = $2 AND row_key = $3`, b.table),
		table, partition, row,
	)
	return wrapError(op(table, "delete"), err)
}

func (b *Backend) Scan(ctx context.Context, table string) iter.Seq2[store.Entry, error] {
	return func(yield func(store.Entry, error) bool) {
		rows, err := b.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT partition, row_key, data, version FROM %s WHERE tbl = $1 ORDER BY partition, row_key`, b.table),
			table,
		)
		if err != nil {
			yield(store.Entry{}, wrapError(op(table, "scan"), err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				entry   store.Entry
				data    []byte
				version int64
			)
			if err := rows.Scan(&entry.Partition, &entry.Row, &data, &version); err != nil {
				yield(store.Entry{}, wrapError(op(table, "scan"), err))
				return
			}
			rec, err := decodeData(data)
			if err != nil {
				yield(store.Entry{}, store.NewError(op(table, "scan"), store.ErrUnavailable, err))
				return
			}
			entry.Record = rec
			entry.Version = formatVersion(version)
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(store.Entry{}, wrapError(op(table, "scan"), err))
		}
	}
}

func encodeData(record store.Record) ([]byte, error) {
	fields := make(map[string]string, len(record))
	for field, value := range record {
		fields[field] = encodeValue(value)
	}
	return json.Marshal(fields)
}

func decodeData(data []byte) (store.Record, error) {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec := make(store.Record, len(fields))
	for field, value := range fields {
		rec[field] = value
	}
	return rec, nil
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

func formatVersion(v int64) store.Version {
	return store.Version(strconv.FormatInt(v, 10))
}

// wrapError maps driver failures onto store error kinds.
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
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return store.NewError(op, store.ErrAlreadyExists, err)
		case "40001", "40P01":
			return store.NewError(op, store.ErrVersionConflict, err)
		}
	}
	return store.NewError(op, store.ErrUnavailable, err)
}

func op(table, action string) string {
	return fmt.Sprintf("%s.%s", table, action)
}
