// Package correlation carries one id per unit of work (an HTTP request, a
// scheduler run) so log lines from different layers can be joined.
package correlation

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const (
	HeaderName = "X-Correlation-ID"

	maxIDLength = 128
)

type key struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID. Ids generated in the same millisecond sort in
// generation order.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Sanitize accepts a caller supplied id only if it is short and printable.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxIDLength {
		return ""
	}
	for _, r := range raw {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return ""
		}
	}
	return raw
}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// EnsureCorrelationID returns ctx with an id attached, generating one when
// none is present.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return ContextWithCorrelationID(ctx, id), id
}
