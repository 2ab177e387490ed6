package pagination

import (
	"cmp"
	"slices"
)

// Page orders items by key and returns the slice selected by params together with the
// token for the following page. Unpaged params return every item and no token.
func Page[T any](items []T, params Params, key func(T) string) ([]T, string, error) {
	if !params.Paged() {
		return items, "", nil
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int { return cmp.Compare(key(a), key(b)) })

	start := 0
	if after := params.Cursor.After; after != "" {
		start, _ = slices.BinarySearchFunc(sorted, after, func(item T, target string) int {
			return cmp.Compare(key(item), target)
		})
		for start < len(sorted) && key(sorted[start]) == after {
			start++
		}
	}

	end := min(start+params.PageSize, len(sorted))
	page := sorted[start:end]
	if end >= len(sorted) || len(page) == 0 {
		return page, "", nil
	}
	token, err := EncodeToken(Cursor{After: key(page[len(page)-1])})
	if err != nil {
		return nil, "", err
	}
	return page, token, nil
}
