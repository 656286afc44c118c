package models

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, lexicographically sortable entity ID,
// e.g. "mon_01J8...". Sortability keeps append-only tables in insert order.
func NewID(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}

// IDPrefix extracts the type prefix of an ID, or "" when absent.
func IDPrefix(id string) string {
	i := strings.IndexByte(id, '_')
	if i < 0 {
		return ""
	}
	return id[:i]
}
