// Package ident provides process-wide id generation and finding
// fingerprinting. Ids are ULIDs with a shared monotonic entropy source, so
// they are 128-bit, lexicographically sortable, and strictly increasing
// within one process.
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID string. Safe for concurrent use.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
