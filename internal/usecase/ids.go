package usecase

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Message, stream and synthesized tool ids share one monotonic source, so
// ids minted within the same millisecond still sort in creation order.
var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID that sorts after every id this process issued before.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}
