// Package randsource provides the bit sources behind minted tokens.
package randsource

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"sync"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
)

type cryptoSource struct{}

// Crypto draws bits from the operating system's entropy source. It is the
// production default: the drawn bits are the token's secret.
func Crypto() ports.BitSource {
	return cryptoSource{}
}

func (cryptoSource) Name() string { return "crypto" }

func (cryptoSource) Bit() (domain.Bit, error) {
	var buf [1]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read entropy: %w", err)
	}
	return domain.Bit(buf[0] & 1), nil
}

type seededSource struct {
	lock sync.Mutex
	rng  *mrand.Rand
}

// Seeded is a deterministic source for reproducible simulations and tests.
// Never use it to mint tokens an adversary could care about.
func Seeded(seed int64) ports.BitSource {
	return &seededSource{rng: mrand.New(mrand.NewSource(seed))}
}

func (s *seededSource) Name() string { return "seeded" }

func (s *seededSource) Bit() (domain.Bit, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return domain.Bit(s.rng.Intn(2)), nil
}
