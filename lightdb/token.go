package lightdb

import (
	"crypto/rand"
	mrand "math/rand"
	"sync"

	"github.com/devtele/lightdb/coap"
	"github.com/devtele/lightdb/helpers"
)

const TokenSize = 8

// TokenSource produces request tokens. NextToken must not block or fail.
type TokenSource interface {
	NextToken() coap.Token
}

// ClockTokenSource draws tokens from PRNG seeded by wall clock at first use.
// Good enough for correlation, guessable by design.
type ClockTokenSource struct {
	mu   sync.Mutex
	rand *mrand.Rand
}

func NewClockTokenSource() *ClockTokenSource { return &ClockTokenSource{} }

func (s *ClockTokenSource) NextToken() coap.Token {
	t := make(coap.Token, TokenSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rand == nil {
		s.rand = helpers.RandUnix()
	}
	for {
		_, _ = s.rand.Read(t)
		if !isZero(t) {
			return t
		}
	}
}

// CryptoTokenSource reads crypto/rand, use when tokens must be unguessable.
// Falls back to clock PRNG if system entropy source fails.
type CryptoTokenSource struct {
	fallback ClockTokenSource
}

func NewCryptoTokenSource() *CryptoTokenSource { return &CryptoTokenSource{} }

func (s *CryptoTokenSource) NextToken() coap.Token {
	t := make(coap.Token, TokenSize)
	if _, err := rand.Read(t); err != nil || isZero(t) {
		return s.fallback.NextToken()
	}
	return t
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
