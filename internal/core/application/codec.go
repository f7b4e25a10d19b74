package application

import (
	"fmt"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/pkg/qsim"
)

// EncodeUnit prepares a fresh qubit carrying one encoding unit. The bit is
// written first (X on |0>), then the basis rotation (H). The two transforms
// do not commute, so the order is part of the scheme.
func EncodeUnit(backend qsim.Backend, unit domain.EncodingUnit) (*qsim.Qubit, error) {
	q, err := backend.CreateQubit()
	if err != nil {
		return nil, fmt.Errorf("create qubit: %w", err)
	}
	if unit.Bit == domain.One {
		if err := q.X(); err != nil {
			return nil, fmt.Errorf("write bit: %w", err)
		}
	}
	if unit.Basis == domain.BasisConjugate {
		if err := q.H(); err != nil {
			return nil, fmt.Errorf("rotate basis: %w", err)
		}
	}
	return q, nil
}

// DecodeUnit measures a unit in the given basis and consumes the qubit. A
// decode in the wrong basis yields 0 or 1 with equal probability, which is
// what makes tampering statistically visible.
func DecodeUnit(q *qsim.Qubit, basis domain.Basis) (domain.Bit, error) {
	if basis == domain.BasisConjugate {
		if err := q.H(); err != nil {
			return 0, fmt.Errorf("rotate basis: %w", err)
		}
	}
	outcome, err := q.Measure()
	if err != nil {
		return 0, fmt.Errorf("measure: %w", err)
	}
	return domain.Bit(outcome), nil
}

// randomUnit draws an independent uniform (bit, basis) pair.
func randomUnit(src ports.BitSource) (domain.EncodingUnit, error) {
	bit, err := src.Bit()
	if err != nil {
		return domain.EncodingUnit{}, err
	}
	basisBit, err := src.Bit()
	if err != nil {
		return domain.EncodingUnit{}, err
	}
	basis := domain.BasisComputational
	if basisBit == domain.One {
		basis = domain.BasisConjugate
	}
	return domain.EncodingUnit{Bit: bit, Basis: basis}, nil
}
