package qsim

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"
)

const unitaryTol = 1e-9

// Gate is a single-qubit unitary expressed in the computational basis.
type Gate struct {
	name string
	m    *mat.CDense
}

func (g Gate) Name() string {
	return g.name
}

func newGate(name string, elems []complex128) Gate {
	return Gate{name: name, m: mat.NewCDense(2, 2, elems)}
}

// NewGate builds a custom gate from the 4 row-major matrix elements and
// rejects non-unitary matrices.
func NewGate(name string, elems []complex128) (Gate, error) {
	if len(elems) != 4 {
		return Gate{}, fmt.Errorf("gate %s: expected 4 matrix elements, got %d", name, len(elems))
	}
	g := newGate(name, elems)
	if !isUnitary(g.m) {
		return Gate{}, fmt.Errorf("gate %s: %w", name, ErrNotUnitary)
	}
	return g, nil
}

var (
	gateI = newGate("I", []complex128{1, 0, 0, 1})
	gateX = newGate("X", []complex128{0, 1, 1, 0})
	gateY = newGate("Y", []complex128{0, -1i, 1i, 0})
	gateZ = newGate("Z", []complex128{1, 0, 0, -1})
	gateH = newGate("H", []complex128{
		1 / math.Sqrt2, 1 / math.Sqrt2,
		1 / math.Sqrt2, -1 / math.Sqrt2,
	})
)

func I() Gate { return gateI }
func X() Gate { return gateX }
func Y() Gate { return gateY }
func Z() Gate { return gateZ }
func H() Gate { return gateH }

// RY is a rotation of theta radians around the Y axis of the Bloch sphere.
func RY(theta float64) Gate {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return newGate(fmt.Sprintf("RY(%.4f)", theta), []complex128{c, -s, s, c})
}

// RZ is a rotation of phi radians around the Z axis of the Bloch sphere.
func RZ(phi float64) Gate {
	return newGate(fmt.Sprintf("RZ(%.4f)", phi), []complex128{
		cmplx.Exp(complex(0, -phi/2)), 0,
		0, cmplx.Exp(complex(0, phi/2)),
	})
}

func isUnitary(m *mat.CDense) bool {
	// mat.CDense has no Mul method; multiply via gonum's cblas128 layer.
	prod := mat.NewCDense(2, 2, nil)
	cblas128.Gemm(blas.ConjTrans, blas.NoTrans, 1, m.RawCMatrix(), m.RawCMatrix(), 0, prod.RawCMatrix())
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			want := complex128(0)
			if i == j {
				want = 1
			}
			if cmplx.Abs(prod.At(i, j)-want) > unitaryTol {
				return false
			}
		}
	}
	return true
}
