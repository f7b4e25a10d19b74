package ports

import (
	"context"
	"errors"
	"time"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/pkg/qsim"
)

var (
	// ErrTimeout reports that a bounded receive or ack wait expired before
	// a value arrived. It is the distinguishable no-value signal of the
	// channel abstraction and is always recoverable.
	ErrTimeout = errors.New("channel wait timed out")
	// ErrChannelClosed is returned once the network has been shut down.
	ErrChannelClosed = errors.New("channel closed")
	// ErrNotStarted is returned when an endpoint is used before the network
	// started.
	ErrNotStarted = errors.New("network not started")
)

// NextMessage selects the oldest buffered message regardless of sequence
// number when passed as the seq argument of ReceiveClassical.
const NextMessage int64 = -1

// Endpoint is one party's access to the network: an ordered, reliable pair
// of channels (quantum and classical) towards every other party.
//
// Receives never block forever: they return ErrTimeout once the wait bound
// expires, and context cancellation unblocks them early. A send with
// requireAck blocks until the destination endpoint has taken delivery or
// the network's ack window expires.
type Endpoint interface {
	Party() domain.PartyID

	// SendQuantum transfers ownership of a quantum unit. The qubit must not
	// be used by the sender afterwards.
	SendQuantum(ctx context.Context, to domain.PartyID, q *qsim.Qubit, requireAck bool) error
	ReceiveQuantum(ctx context.Context, from domain.PartyID, wait time.Duration) (*qsim.Qubit, error)

	SendClassical(ctx context.Context, to domain.PartyID, content uint64, requireAck bool) error
	ReceiveClassical(ctx context.Context, from domain.PartyID, seq int64, wait time.Duration) (*domain.ClassicalMessage, error)
}
