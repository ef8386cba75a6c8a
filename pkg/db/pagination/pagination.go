// Package pagination implements keyset paging over (created_at, id) ordered
// listings. Page tokens are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token" json:"page_token,omitempty"`
	PageSize  int    `form:"page_size" json:"page_size,omitempty"`
}

// Size clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

// Keyset is the position of the last row returned on a page.
type Keyset struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

type wireKeyset struct {
	ID        string `json:"i"`
	CreatedAt int64  `json:"t"`
}

func Encode(key Keyset) string {
	b, _ := json.Marshal(wireKeyset{ID: key.ID.String(), CreatedAt: key.CreatedAt.UTC().UnixNano()})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a page token. An empty token yields a nil keyset.
func Decode(token string) (*Keyset, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var wire wireKeyset
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, ErrInvalidToken
	}
	id, err := snowflake.ParseString(wire.ID)
	if err != nil || id <= 0 || wire.CreatedAt <= 0 {
		return nil, ErrInvalidToken
	}
	return &Keyset{ID: id, CreatedAt: time.Unix(0, wire.CreatedAt).UTC()}, nil
}

// Page trims a result fetched with limit size+1 down to size rows and
// reports whether another page follows.
func Page[T any](rows []*T, size int, key func(*T) Keyset) ([]*T, PageInfo) {
	if len(rows) <= size {
		return rows, PageInfo{}
	}
	rows = rows[:size]
	return rows, PageInfo{
		HasMore:       true,
		NextPageToken: Encode(key(rows[len(rows)-1])),
	}
}
