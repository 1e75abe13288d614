// internal/core/query_params.go
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Row paging limits. The sync server enforces its own cap; MaxFetchLimit only guards against
// requests large enough to hit proxy body limits.
const (
	DefaultFetchLimit = 50
	MaxFetchLimit     = 5000
)

// Query parameter names understood by the tables rows endpoint.
const (
	FetchLimitParam = "fetchLimit"
	CursorParam     = "cursor"
)

// ParseFetchLimit parses a user supplied fetch limit. An empty string yields the default.
func ParseFetchLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultFetchLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch limit '%s': must be an integer", raw)
	}
	if err := ValidateFetchLimit(limit); err != nil {
		return 0, err
	}
	return limit, nil
}

// ValidateFetchLimit checks that limit is within [1, MaxFetchLimit].
func ValidateFetchLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("invalid fetch limit %d: must be at least 1", limit)
	}
	if limit > MaxFetchLimit {
		return fmt.Errorf("invalid fetch limit %d: maximum is %d", limit, MaxFetchLimit)
	}
	return nil
}

// RowQuery builds the query string for one page of a rows listing.
// The cursor is omitted for the first page.
func RowQuery(limit int, cursor string) url.Values {
	if limit < 1 {
		limit = DefaultFetchLimit
	}
	params := url.Values{}
	params.Set(FetchLimitParam, strconv.Itoa(limit))
	if cursor != "" {
		params.Set(CursorParam, cursor)
	}
	return params
}
