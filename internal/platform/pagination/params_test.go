package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaultsToUnpaged(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Paged() {
		t.Fatalf("expected unpaged params, got %+v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%s: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseTokenAppliesDefaultSize(t *testing.T) {
	token, err := EncodeToken(Cursor{After: "ord_01"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	req := httptest.NewRequest("GET", "/orders?pageToken="+token, nil)

	params, err := FromRequest(req, Options{DefaultPageSize: 10})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != 10 || params.Cursor.After != "ord_01" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
}

func TestPageWalksAllItems(t *testing.T) {
	items := []string{"d", "a", "e", "c", "b"}
	identity := func(s string) string { return s }

	var (
		seen   []string
		params = Params{PageSize: 2}
	)
	for i := 0; i < 5; i++ {
		page, next, err := Page(items, params, identity)
		if err != nil {
			t.Fatalf("Page: %v", err)
		}
		seen = append(seen, page...)
		if next == "" {
			break
		}
		cursor, err := DecodeToken(next)
		if err != nil {
			t.Fatalf("DecodeToken: %v", err)
		}
		params = Params{PageSize: 2, PageToken: next, Cursor: cursor}
	}

	want := []string{"a", "b", "c", "d", "e"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestPageUnpagedReturnsInput(t *testing.T) {
	items := []string{"b", "a"}
	page, next, err := Page(items, Params{}, func(s string) string { return s })
	if err != nil || next != "" || len(page) != 2 || page[0] != "b" {
		t.Fatalf("expected input unchanged, got %v %q %v", page, next, err)
	}
}

func TestPageCursorPastEnd(t *testing.T) {
	page, next, err := Page([]string{"a", "b"}, Params{PageSize: 5, Cursor: Cursor{After: "z"}, PageToken: "x"}, func(s string) string { return s })
	if err != nil || next != "" || len(page) != 0 {
		t.Fatalf("expected empty final page, got %v %q %v", page, next, err)
	}
}
