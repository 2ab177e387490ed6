package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Retention is how long a key and its stored reply are kept unless a TTL is configured.
const Retention = 24 * time.Hour

var (
	// ErrKeyReused means the key already belongs to a request with a different fingerprint.
	ErrKeyReused = errors.New("idempotency: key reused for a different request")
	// ErrContention means Reserve kept losing version races for the same key.
	ErrContention = errors.New("idempotency: key contended")
)

type keyState string

const (
	stateHeld     keyState = "held"
	stateAnswered keyState = "answered"
)

// Outcome tells the caller what Reserve found for a key.
type Outcome int

const (
	// Acquired means the caller now holds the key and must run the request.
	Acquired Outcome = iota
	// Answered means a reply is stored and must be replayed.
	Answered
	// Busy means another request holds the key.
	Busy
)

// Reservation is the result of Reserve.
type Reservation struct {
	Outcome Outcome
	Entry   Entry
}

// Entry is one idempotency key as kept in the IDEMPOTENCY partition.
type Entry struct {
	ID          string
	Key         string
	Fingerprint string
	state       keyState
	Reply       Reply
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Reply is a captured HTTP response.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store keeps reservations and replies for idempotency keys.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, reply Reply, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// entryID hashes the client key into a row key every backend accepts.
func entryID(key string) string {
	return digest([]byte(strings.TrimSpace(key)))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// skipOnReplay lists headers that describe one connection or one request and are not stored.
var skipOnReplay = map[string]struct{}{
	"Connection":        {},
	"Content-Length":    {},
	"Date":              {},
	"Keep-Alive":        {},
	"Te":                {},
	"Trailer":           {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"X-Request-Id":      {},
	replayHeaderName:    {},
}

// replayableHeader copies the headers of header that are worth replaying.
func replayableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := skipOnReplay[name]; skip || len(values) == 0 {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
