package helpers

import (
	"math/rand"
	"time"
)

// RandUnix returns PRNG seeded from wall clock.
// Not safe for concurrent use, not suitable for secrets.
func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
