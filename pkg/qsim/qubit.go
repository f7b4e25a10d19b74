package qsim

import "gonum.org/v1/gonum/mat"

// Qubit is a handle to a single qubit held by a backend. The handle carries
// no state itself: the id is the ownership token, and every operation
// delegates to the backend that owns the state.
type Qubit struct {
	id      string
	backend Backend
}

func newQubit(id string, b Backend) *Qubit {
	return &Qubit{id: id, backend: b}
}

// Resolve rebuilds a handle for a qubit id received from another party.
// No validation happens here: a stale or forged id fails on first use.
func Resolve(b Backend, id string) *Qubit {
	return newQubit(id, b)
}

func (q *Qubit) ID() string {
	return q.id
}

func (q *Qubit) X() error { return q.backend.ApplyGate(q.id, X()) }
func (q *Qubit) Y() error { return q.backend.ApplyGate(q.id, Y()) }
func (q *Qubit) Z() error { return q.backend.ApplyGate(q.id, Z()) }
func (q *Qubit) H() error { return q.backend.ApplyGate(q.id, H()) }

func (q *Qubit) RY(theta float64) error { return q.backend.ApplyGate(q.id, RY(theta)) }
func (q *Qubit) RZ(phi float64) error   { return q.backend.ApplyGate(q.id, RZ(phi)) }

// Apply runs an arbitrary gate, typically one built with NewGate.
func (q *Qubit) Apply(g Gate) error {
	return q.backend.ApplyGate(q.id, g)
}

// Measure performs a destructive computational-basis measurement. The qubit
// is consumed regardless of the outcome.
func (q *Qubit) Measure() (int, error) {
	return q.backend.Measure(q.id, true)
}

// MeasureNonDestructive collapses the state but keeps the qubit alive, so
// repeated measurements return the same outcome.
func (q *Qubit) MeasureNonDestructive() (int, error) {
	return q.backend.Measure(q.id, false)
}

// Release discards the qubit without measuring it.
func (q *Qubit) Release() error {
	return q.backend.Release(q.id)
}

func (q *Qubit) DensityOperator() (*mat.CDense, error) {
	return q.backend.DensityOperator(q.id)
}

func (q *Qubit) Fidelity(other *Qubit) (float64, error) {
	return q.backend.Fidelity(q.id, other.id)
}
