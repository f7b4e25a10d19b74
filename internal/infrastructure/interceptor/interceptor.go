// Package interceptor provides relay transformation policies. Every policy
// is blind to ledger data: it can apply gates to a unit but never learn the
// bit or basis behind it.
package interceptor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/pkg/qsim"
)

type identity struct{}

// Identity forwards units untouched. It is the default relay policy.
func Identity() ports.Interceptor {
	return identity{}
}

func (identity) Name() string { return "identity" }

func (identity) Transform(
	_ context.Context, _, _ domain.PartyID, q *qsim.Qubit,
) (*qsim.Qubit, error) {
	return q, nil
}

type bitFlip struct {
	onlyFrom domain.PartyID
}

// BitFlip applies X to every crossing unit, or only to units sent by
// onlyFrom when non-empty. Conjugate-basis units are unchanged up to global
// phase, so the flip is only visible on computational-basis positions.
func BitFlip(onlyFrom domain.PartyID) ports.Interceptor {
	return bitFlip{onlyFrom: onlyFrom}
}

func (b bitFlip) Name() string { return "bitflip" }

func (b bitFlip) Transform(
	_ context.Context, from, _ domain.PartyID, q *qsim.Qubit,
) (*qsim.Qubit, error) {
	if b.onlyFrom != "" && from != b.onlyFrom {
		return q, nil
	}
	if err := q.X(); err != nil {
		return nil, fmt.Errorf("flip unit %s: %w", q.ID(), err)
	}
	return q, nil
}

type random struct {
	p    float64
	lock sync.Mutex
	rng  *rand.Rand
}

// Random flips each crossing unit independently with probability p. A zero
// seed picks a fresh one.
func Random(p float64, seed int64) ports.Interceptor {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &random{p: p, rng: rand.New(rand.NewSource(seed))}
}

func (r *random) Name() string { return "random" }

func (r *random) Transform(
	_ context.Context, _, _ domain.PartyID, q *qsim.Qubit,
) (*qsim.Qubit, error) {
	r.lock.Lock()
	flip := r.rng.Float64() < r.p
	r.lock.Unlock()

	if !flip {
		return q, nil
	}
	if err := q.X(); err != nil {
		return nil, fmt.Errorf("flip unit %s: %w", q.ID(), err)
	}
	return q, nil
}
