package ports

import (
	"context"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/pkg/qsim"
)

// Interceptor is the relay's transformation hook. It runs inline on every
// quantum unit crossing the relay: returning a qubit forwards it, returning
// an error drops the transfer. Blocking here stalls that transfer and no
// other.
//
// The interceptor sees party identities and an opaque unit handle. It never
// sees ledger data, so it cannot know the basis a unit was encoded in.
type Interceptor interface {
	Name() string
	Transform(ctx context.Context, from, to domain.PartyID, q *qsim.Qubit) (*qsim.Qubit, error)
}
