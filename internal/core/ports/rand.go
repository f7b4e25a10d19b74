package ports

import "github.com/quantummint/qmintd/internal/core/domain"

// BitSource draws the classical randomness behind minted tokens. Those bits
// are secret material: production sources must be cryptographically secure,
// deterministic sources are for reproducible simulations only.
type BitSource interface {
	Name() string
	Bit() (domain.Bit, error)
}
