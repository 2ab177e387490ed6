package idempotency

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/retailops/api/internal/platform/store"
)

// Partition is the entity-store partition holding idempotency keys.
const Partition = "IDEMPOTENCY"

const reserveAttempts = 3

const (
	fieldKey         = "Key"
	fieldFingerprint = "Fingerprint"
	fieldState       = "State"
	fieldReplyStatus = "ReplyStatus"
	fieldReplyHeader = "ReplyHeader"
	fieldReplyBody   = "ReplyBody"
	fieldCreatedAt   = "CreatedAt"
	fieldUpdatedAt   = "UpdatedAt"
	fieldExpiresAt   = "ExpiresAt"
)

// Schema maps entries onto the IDEMPOTENCY partition of table. The reply header is kept as
// JSON and the body as base64 so string-only backends hold them unchanged.
func Schema(table string) store.Schema[Entry] {
	return store.Schema[Entry]{
		Table:     table,
		Partition: Partition,
		Key:       func(e Entry) string { return e.ID },
		Encode: func(e Entry) store.Record {
			header := ""
			if len(e.Reply.Header) > 0 {
				if data, err := json.Marshal(e.Reply.Header); err == nil {
					header = string(data)
				}
			}
			return store.Record{
				fieldKey:         e.Key,
				fieldFingerprint: e.Fingerprint,
				fieldState:       string(e.state),
				fieldReplyStatus: int64(e.Reply.Status),
				fieldReplyHeader: header,
				fieldReplyBody:   base64.StdEncoding.EncodeToString(e.Reply.Body),
				fieldCreatedAt:   e.CreatedAt,
				fieldUpdatedAt:   e.UpdatedAt,
				fieldExpiresAt:   e.ExpiresAt,
			}
		},
		Decode: decodeEntry,
	}
}

func decodeEntry(row string, rec store.Record) (Entry, error) {
	e := Entry{
		ID:          row,
		Key:         rec.String(fieldKey),
		Fingerprint: rec.String(fieldFingerprint),
		state:       keyState(rec.String(fieldState)),
	}
	var err error
	if e.Reply.Status, err = rec.Int(fieldReplyStatus); err != nil {
		return Entry{}, err
	}
	if raw := rec.String(fieldReplyHeader); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Reply.Header); err != nil {
			return Entry{}, fmt.Errorf("idempotency: decode reply header: %w", err)
		}
	}
	if raw := rec.String(fieldReplyBody); raw != "" {
		if e.Reply.Body, err = base64.StdEncoding.DecodeString(raw); err != nil {
			return Entry{}, fmt.Errorf("idempotency: decode reply body: %w", err)
		}
	}
	for field, dst := range map[string]*time.Time{
		fieldCreatedAt: &e.CreatedAt,
		fieldUpdatedAt: &e.UpdatedAt,
		fieldExpiresAt: &e.ExpiresAt,
	} {
		if *dst, err = rec.Time(field); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// TableStore keeps idempotency keys in the entity store next to orders and products, using
// the same version-checked writes.
type TableStore struct {
	table *store.Table[Entry]
}

var _ Store = (*TableStore)(nil)

// NewTableStore binds a TableStore to the named table of backend.
func NewTableStore(backend store.Backend, table string) (*TableStore, error) {
	t, err := store.NewTable(backend, Schema(table))
	if err != nil {
		return nil, fmt.Errorf("idempotency: %w", err)
	}
	return &TableStore{table: t}, nil
}

// Reserve claims key for fingerprint. An expired entry is taken over in place.
func (s *TableStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	held := Entry{
		ID:          entryID(key),
		Key:         key,
		Fingerprint: fingerprint,
		state:       stateHeld,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(retention(ttl)),
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		_, err := s.table.Create(ctx, held)
		if err == nil {
			return Reservation{Outcome: Acquired, Entry: held}, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return Reservation{}, err
		}

		existing, err := s.table.Get(ctx, held.ID)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return Reservation{}, err
		}

		entry := existing.Entity
		if entry.expired(now) {
			if _, err := s.table.Replace(ctx, held, existing.Version); err != nil {
				if store.IsConflict(err) || store.IsNotFound(err) {
					continue
				}
				return Reservation{}, err
			}
			return Reservation{Outcome: Acquired, Entry: held}, nil
		}
		switch {
		case entry.Fingerprint != fingerprint:
			return Reservation{}, ErrKeyReused
		case entry.state == stateAnswered:
			return Reservation{Outcome: Answered, Entry: entry}, nil
		default:
			return Reservation{Outcome: Busy, Entry: entry}, nil
		}
	}
	return Reservation{}, ErrContention
}

// Complete stores reply for key and extends its expiry from now.
func (s *TableStore) Complete(ctx context.Context, key, fingerprint string, reply Reply, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := entryID(key)

	existing, err := s.table.Get(ctx, id)
	switch {
	case store.IsNotFound(err):
		existing.Entity = Entry{ID: id, Key: key, Fingerprint: fingerprint, CreatedAt: now}
	case err != nil:
		return err
	case existing.Entity.Fingerprint != fingerprint:
		return ErrKeyReused
	}

	entry := existing.Entity
	entry.state = stateAnswered
	entry.Reply = Reply{
		Status: reply.Status,
		Header: replayableHeader(reply.Header),
		Body:   append([]byte(nil), reply.Body...),
	}
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(retention(ttl))

	if existing.Version == "" {
		_, err = s.table.Create(ctx, entry)
	} else {
		_, err = s.table.Replace(ctx, entry, existing.Version)
	}
	return err
}

// Release drops a key held by fingerprint so the client can retry it.
func (s *TableStore) Release(ctx context.Context, key, fingerprint string) error {
	id := entryID(key)
	existing, err := s.table.Get(ctx, id)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Entity.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	return s.table.Delete(ctx, id)
}

// CleanupExpired deletes up to limit expired keys; limit <= 0 removes all of them.
func (s *TableStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	var expired []string
	for row, err := range s.table.Scan(ctx) {
		if err != nil {
			return 0, err
		}
		if row.Entity.expired(now) {
			expired = append(expired, row.Entity.ID)
			if limit > 0 && len(expired) >= limit {
				break
			}
		}
	}
	for i, id := range expired {
		if err := s.table.Delete(ctx, id); err != nil {
			return i, err
		}
	}
	return len(expired), nil
}

func retention(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return Retention
	}
	return ttl
}
