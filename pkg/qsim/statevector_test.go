package qsim_test

import (
	"fmt"
	"testing"

	"github.com/quantummint/qmintd/pkg/qsim"
	"github.com/stretchr/testify/require"
)

func TestMeasureFreshQubit(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	q, err := backend.CreateQubit()
	require.NoError(t, err)

	outcome, err := q.Measure()
	require.NoError(t, err)
	require.Equal(t, 0, outcome)
}

func TestGateAlgebra(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(q *qsim.Qubit) error
		want    int
	}{
		{
			name:    "X flips zero to one",
			prepare: func(q *qsim.Qubit) error { return q.X() },
			want:    1,
		},
		{
			name: "double hadamard is identity",
			prepare: func(q *qsim.Qubit) error {
				if err := q.H(); err != nil {
					return err
				}
				return q.H()
			},
			want: 0,
		},
		{
			name: "conjugate basis round trip of one",
			prepare: func(q *qsim.Qubit) error {
				if err := q.X(); err != nil {
					return err
				}
				if err := q.H(); err != nil {
					return err
				}
				return q.H()
			},
			want: 1,
		},
		{
			name:    "RY(pi) acts as bit flip",
			prepare: func(q *qsim.Qubit) error { return q.RY(3.141592653589793) },
			want:    1,
		},
		{
			name:    "RZ only shifts phase",
			prepare: func(q *qsim.Qubit) error { return q.RZ(1.234) },
			want:    0,
		},
		{
			name: "custom gate application",
			prepare: func(q *qsim.Qubit) error {
				g, err := qsim.NewGate("NOT", []complex128{0, 1, 1, 0})
				if err != nil {
					return err
				}
				return q.Apply(g)
			},
			want: 1,
		},
	}

	backend := qsim.NewStateVector()
	defer backend.Close()

	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", i, tt.name), func(t *testing.T) {
			q, err := backend.CreateQubit()
			require.NoError(t, err)
			require.NoError(t, tt.prepare(q))

			outcome, err := q.Measure()
			require.NoError(t, err)
			require.Equal(t, tt.want, outcome)
		})
	}
}

func TestWrongBasisStatistics(t *testing.T) {
	backend := qsim.NewSeededStateVector(7)
	defer backend.Close()

	const trials = 2000
	ones := 0
	for i := 0; i < trials; i++ {
		q, err := backend.CreateQubit()
		require.NoError(t, err)
		require.NoError(t, q.H())

		outcome, err := q.Measure()
		require.NoError(t, err)
		ones += outcome
	}

	require.InDelta(t, 0.5, float64(ones)/float64(trials), 0.05)
}

func TestConsumeExactlyOnce(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	t.Run("measure consumes", func(t *testing.T) {
		q, err := backend.CreateQubit()
		require.NoError(t, err)
		_, err = q.Measure()
		require.NoError(t, err)

		_, err = q.Measure()
		require.ErrorIs(t, err, qsim.ErrQubitConsumed)
		require.ErrorIs(t, q.X(), qsim.ErrQubitConsumed)
		require.ErrorIs(t, q.Release(), qsim.ErrQubitConsumed)
	})

	t.Run("release consumes", func(t *testing.T) {
		q, err := backend.CreateQubit()
		require.NoError(t, err)
		require.NoError(t, q.Release())

		_, err = q.Measure()
		require.ErrorIs(t, err, qsim.ErrQubitConsumed)
		require.ErrorIs(t, q.Release(), qsim.ErrQubitConsumed)
	})

	t.Run("consuming one qubit leaves others intact", func(t *testing.T) {
		a, err := backend.CreateQubit()
		require.NoError(t, err)
		b, err := backend.CreateQubit()
		require.NoError(t, err)

		require.NoError(t, a.Release())
		require.NoError(t, b.X())

		outcome, err := b.Measure()
		require.NoError(t, err)
		require.Equal(t, 1, outcome)
	})
}

func TestUnknownQubit(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	q := qsim.Resolve(backend, "no-such-id")
	_, err := q.Measure()
	require.ErrorIs(t, err, qsim.ErrQubitUnknown)
}

func TestNonDestructiveMeasure(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	q, err := backend.CreateQubit()
	require.NoError(t, err)
	require.NoError(t, q.H())

	first, err := q.MeasureNonDestructive()
	require.NoError(t, err)

	// Collapse is sticky: every later measurement agrees with the first.
	for i := 0; i < 5; i++ {
		again, err := q.MeasureNonDestructive()
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	final, err := q.Measure()
	require.NoError(t, err)
	require.Equal(t, first, final)
}

func TestActiveQubits(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	require.Zero(t, backend.ActiveQubits())

	a, err := backend.CreateQubit()
	require.NoError(t, err)
	_, err = backend.CreateQubit()
	require.NoError(t, err)
	require.Equal(t, 2, backend.ActiveQubits())

	require.NoError(t, a.Release())
	require.Equal(t, 1, backend.ActiveQubits())
}

func TestDensityOperator(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	t.Run("ground state", func(t *testing.T) {
		q, err := backend.CreateQubit()
		require.NoError(t, err)

		rho, err := q.DensityOperator()
		require.NoError(t, err)
		require.InDelta(t, 1, real(rho.At(0, 0)), 1e-9)
		require.InDelta(t, 0, real(rho.At(1, 1)), 1e-9)
	})

	t.Run("uniform superposition", func(t *testing.T) {
		q, err := backend.CreateQubit()
		require.NoError(t, err)
		require.NoError(t, q.H())

		rho, err := q.DensityOperator()
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				require.InDelta(t, 0.5, real(rho.At(i, j)), 1e-9)
			}
		}
	})
}

func TestFidelity(t *testing.T) {
	backend := qsim.NewStateVector()
	defer backend.Close()

	zero, err := backend.CreateQubit()
	require.NoError(t, err)

	one, err := backend.CreateQubit()
	require.NoError(t, err)
	require.NoError(t, one.X())

	plus, err := backend.CreateQubit()
	require.NoError(t, err)
	require.NoError(t, plus.H())

	same, err := backend.CreateQubit()
	require.NoError(t, err)

	f, err := zero.Fidelity(same)
	require.NoError(t, err)
	require.InDelta(t, 1, f, 1e-9)

	f, err = zero.Fidelity(one)
	require.NoError(t, err)
	require.InDelta(t, 0, f, 1e-9)

	f, err = zero.Fidelity(plus)
	require.NoError(t, err)
	require.InDelta(t, 0.5, f, 1e-9)
}

func TestSeededDeterminism(t *testing.T) {
	run := func(seed int64) []int {
		backend := qsim.NewSeededStateVector(seed)
		defer backend.Close()

		outcomes := make([]int, 0, 50)
		for i := 0; i < 50; i++ {
			q, err := backend.CreateQubit()
			require.NoError(t, err)
			require.NoError(t, q.H())
			outcome, err := q.Measure()
			require.NoError(t, err)
			outcomes = append(outcomes, outcome)
		}
		return outcomes
	}

	require.Equal(t, run(42), run(42))
}

func TestClosedBackend(t *testing.T) {
	backend := qsim.NewStateVector()

	q, err := backend.CreateQubit()
	require.NoError(t, err)

	require.NoError(t, backend.Close())

	_, err = backend.CreateQubit()
	require.ErrorIs(t, err, qsim.ErrBackendClosed)

	_, err = q.Measure()
	require.ErrorIs(t, err, qsim.ErrBackendClosed)
}
