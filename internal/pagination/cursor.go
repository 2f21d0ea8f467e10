package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor points just past the last item of a page ordered by (timestamp, id) descending.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// ClampLimit returns def for non-positive limits and caps the rest at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// EncodeCursor creates a URL-safe cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor produced by EncodeCursor. An empty cursor
// decodes to nil, meaning the first page.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		Timestamp: timestamp,
	}, nil
}

// NewPage builds a page from items fetched with limit+1. The extra item only
// signals that another page exists and is dropped.
func NewPage[T any](items []T, limit int, getID func(T) string, getTimestamp func(T) time.Time) *PageResult[T] {
	page := &PageResult[T]{Items: items}
	if len(items) <= limit {
		return page
	}

	page.Items = items[:limit]
	page.HasMore = true
	last := page.Items[limit-1]
	page.Cursor = EncodeCursor(getID(last), getTimestamp(last))
	return page
}
