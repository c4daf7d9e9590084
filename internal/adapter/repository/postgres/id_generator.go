package postgres

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates ULID-based ids. Monotonic within the process so
// ids created in the same millisecond still sort by creation order.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ULIDGenerator{entropy: ulid.Monotonic(seed, 0)}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy).String()
}
