package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a flat set of scalar fields persisted for one entity.
// Values are string, bool, int64, float64 or time.Time. Accessors accept the
// string form of every type so backends that only store strings round-trip.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when absent.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the field as an int. Absent fields decode to zero.
func (r Record) Int(key string) (int, error) {
	switch v := r[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("store: field %q is not an integer: %v", key, v)
		}
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("store: field %q: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("store: field %q has unsupported type %T", key, v)
	}
}

// Time returns the field as a UTC time. Absent fields decode to the zero time.
func (r Record) Time(key string) (time.Time, error) {
	switch v := r[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return time.Time{}, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("store: field %q: %w", key, err)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("store: field %q has unsupported type %T", key, v)
	}
}

// Decimal returns the field as a decimal. Absent fields decode to zero.
func (r Record) Decimal(key string) (decimal.Decimal, error) {
	switch v := r[key].(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return decimal.Zero, nil
		}
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("store: field %q: %w", key, err)
		}
		return parsed, nil
	default:
		return decimal.Zero, fmt.Errorf("store: field %q has unsupported type %T", key, v)
	}
}
