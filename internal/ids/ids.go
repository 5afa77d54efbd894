package ids

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID that sorts strictly after every id previously
// returned by this process for the same or an earlier millisecond.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// PairKey returns the canonical, order-independent key for a two-party
// conversation between a and b.
func PairKey(a, b uuid.UUID) string {
	pair := []string{a.String(), b.String()}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}
