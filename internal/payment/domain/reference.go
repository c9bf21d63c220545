package domain

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const ReferencePrefix = "SFP-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewReference returns a time-ordered, collision resistant payment reference.
func NewReference(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ReferencePrefix + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
