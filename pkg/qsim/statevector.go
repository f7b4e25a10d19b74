package qsim

import (
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"
)

type svQubit struct {
	state    *mat.CDense // 2x1 column vector, nil once consumed
	consumed bool
}

// StateVector is an in-memory pure-state backend. All qubits live in one
// registry guarded by a single mutex; the simulator targets protocol
// plumbing, not large registers, so contention is not a concern.
//
// Consumed qubits stay in the registry as tombstones so that reuse is
// reported as ErrQubitConsumed rather than ErrQubitUnknown.
type StateVector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	qubits map[string]*svQubit
	closed bool
}

// NewStateVector builds a backend with a time-seeded collapse source.
func NewStateVector() *StateVector {
	return NewSeededStateVector(time.Now().UnixNano())
}

// NewSeededStateVector builds a backend whose measurement outcomes are
// reproducible for a given seed.
func NewSeededStateVector(seed int64) *StateVector {
	return &StateVector{
		rng:    rand.New(rand.NewSource(seed)),
		qubits: make(map[string]*svQubit),
	}
}

func (s *StateVector) Name() string { return "statevector" }

func (s *StateVector) CreateQubit() (*Qubit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrBackendClosed
	}
	id := uuid.New().String()
	s.qubits[id] = &svQubit{state: mat.NewCDense(2, 1, []complex128{1, 0})}
	return newQubit(id, s), nil
}

// get must be called with the lock held.
func (s *StateVector) get(id string) (*svQubit, error) {
	if s.closed {
		return nil, ErrBackendClosed
	}
	q, ok := s.qubits[id]
	if !ok {
		return nil, ErrQubitUnknown
	}
	if q.consumed {
		return nil, ErrQubitConsumed
	}
	return q, nil
}

func (s *StateVector) ApplyGate(id string, g Gate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(id)
	if err != nil {
		return err
	}
	// mat.CDense has no Mul method; multiply via gonum's cblas128 layer.
	next := mat.NewCDense(2, 1, nil)
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, g.m.RawCMatrix(), q.state.RawCMatrix(), 0, next.RawCMatrix())
	q.state = next
	return nil
}

func (s *StateVector) Measure(id string, destructive bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(id)
	if err != nil {
		return 0, err
	}

	amp1 := q.state.At(1, 0)
	p1 := real(amp1 * cmplx.Conj(amp1))
	outcome := 0
	if s.rng.Float64() < p1 {
		outcome = 1
	}

	if destructive {
		q.consumed = true
		q.state = nil
		return outcome, nil
	}

	collapsed := []complex128{1, 0}
	if outcome == 1 {
		collapsed = []complex128{0, 1}
	}
	q.state = mat.NewCDense(2, 1, collapsed)
	return outcome, nil
}

func (s *StateVector) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(id)
	if err != nil {
		return err
	}
	q.consumed = true
	q.state = nil
	return nil
}

func (s *StateVector) DensityOperator(id string) (*mat.CDense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.get(id)
	if err != nil {
		return nil, err
	}
	rho := mat.NewCDense(2, 2, nil)
	cblas128.Gemm(blas.NoTrans, blas.ConjTrans, 1, q.state.RawCMatrix(), q.state.RawCMatrix(), 0, rho.RawCMatrix())
	return rho, nil
}

func (s *StateVector) Fidelity(a, b string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qa, err := s.get(a)
	if err != nil {
		return 0, err
	}
	qb, err := s.get(b)
	if err != nil {
		return 0, err
	}

	var inner complex128
	for i := 0; i < 2; i++ {
		inner += cmplx.Conj(qa.state.At(i, 0)) * qb.state.At(i, 0)
	}
	f := cmplx.Abs(inner)
	return f * f, nil
}

func (s *StateVector) ActiveQubits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, q := range s.qubits {
		if !q.consumed {
			count++
		}
	}
	return count
}

func (s *StateVector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.qubits = nil
	s.closed = true
	return nil
}
