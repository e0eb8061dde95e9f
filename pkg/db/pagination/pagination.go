package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Cursor points just past the last row of a page. Rows are ordered by a
// timestamp and id so the pair is unique.
type Cursor struct {
	ID string `json:"id"`
	At string `json:"at"`
}

func NewCursor(id string, at time.Time) Cursor {
	return Cursor{ID: id, At: at.UTC().Format(time.RFC3339Nano)}
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Limit clamps the requested page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// DecodePosition returns the id and timestamp a page token points past.
func DecodePosition(token string) (string, time.Time, error) {
	cursor, err := DecodeCursor(token)
	if err != nil {
		return "", time.Time{}, err
	}
	id := strings.TrimSpace(cursor.ID)
	at, err := time.Parse(time.RFC3339Nano, cursor.At)
	if err != nil || id == "" {
		return "", time.Time{}, ErrInvalidPageToken
	}
	return id, at, nil
}

// BuildCursorPageInfo trims data to limit (callers fetch limit+1 rows) and
// reports whether another page exists.
func BuildCursorPageInfo[T any](data []T, limit int, extractCursor func(T) Cursor) ([]T, PageInfo, error) {
	if len(data) <= limit {
		return data, PageInfo{HasMore: false}, nil
	}

	data = data[:limit]
	token, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return data, PageInfo{NextPageToken: token, HasMore: true}, nil
}
