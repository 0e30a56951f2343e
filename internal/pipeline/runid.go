package pipeline

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// runIDSource hands out lexically sortable run identifiers. The monotonic
// entropy reader is not safe for concurrent use, hence the mutex.
type runIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newRunIDSource() *runIDSource {
	return &runIDSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *runIDSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}
