// Package qsim provides a minimal single-qubit simulation substrate: qubit
// handles owned by a backend, a small gate algebra and destructive
// measurement. Qubits are single-owner resources, cannot be copied and are
// consumed exactly once, either by a destructive measurement or by an
// explicit release.
package qsim

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrQubitUnknown is returned when an id does not resolve to any qubit
	// held by the backend.
	ErrQubitUnknown = errors.New("unknown qubit id")
	// ErrQubitConsumed is returned when an operation targets a qubit that
	// was already measured destructively or released.
	ErrQubitConsumed = errors.New("qubit already consumed")
	// ErrNotUnitary is returned by NewGate for non-unitary matrices.
	ErrNotUnitary = errors.New("gate matrix is not unitary")
	// ErrBackendClosed is returned once the backend has been shut down.
	ErrBackendClosed = errors.New("backend is closed")
)

// Backend evolves and measures qubit state. Implementations must be safe for
// concurrent use: every party of a protocol run shares one backend.
type Backend interface {
	Name() string
	// CreateQubit allocates a fresh qubit in state |0>.
	CreateQubit() (*Qubit, error)
	ApplyGate(id string, g Gate) error
	// Measure projects the qubit onto the computational basis and returns 0
	// or 1. A destructive measurement consumes the qubit; a non-destructive
	// one collapses the state but leaves it usable.
	Measure(id string, destructive bool) (int, error)
	// Release consumes the qubit without measuring it.
	Release(id string) error
	DensityOperator(id string) (*mat.CDense, error)
	// Fidelity returns the squared overlap |<a|b>|^2 between two live qubits.
	Fidelity(a, b string) (float64, error)
	// ActiveQubits reports how many qubits are live (not yet consumed).
	ActiveQubits() int
	Close() error
}
