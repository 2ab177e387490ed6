package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultMaxPageSize caps the supported pageSize.
	DefaultMaxPageSize = 200
)

// Params carries the paging values extracted from a request. A zero PageSize with no
// token means the caller asked for the whole collection.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Paged reports whether the request asked for a page rather than the full listing.
func (p Params) Paged() bool {
	return p.PageSize > 0 || p.PageToken != ""
}

// Options control how Parse behaves for a given handler.
type Options struct {
	// DefaultPageSize applies when a pageToken is sent without a pageSize.
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses pageSize and pageToken from the request query.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}
	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
		if params.PageSize == 0 {
			params.PageSize = defaultSize(opts)
		}
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPageSize, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidPageSize)
	}
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	if size > maxSize {
		size = maxSize
	}
	return size, nil
}

func defaultSize(opts Options) int {
	size := opts.DefaultPageSize
	if size <= 0 {
		size = 50
	}
	if opts.MaxPageSize > 0 && size > opts.MaxPageSize {
		size = opts.MaxPageSize
	}
	return size
}
