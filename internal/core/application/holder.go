package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/pkg/qsim"
)

// Holder receives token encodings, stores them keyed by serial and redeems
// one serial on request. It never learns the (bit, basis) pairs behind the
// units it holds.
type Holder struct {
	endpoint ports.Endpoint
	backend  qsim.Backend
	eventBus ports.EventBus

	lock  sync.Mutex
	held  map[uint64][]*qsim.Qubit
	order []uint64

	statusLock sync.RWMutex
	status     domain.HolderStatus
}

func NewHolder(endpoint ports.Endpoint, backend qsim.Backend, eventBus ports.EventBus) *Holder {
	return &Holder{
		endpoint: endpoint,
		backend:  backend,
		eventBus: eventBus,
		held:     make(map[uint64][]*qsim.Qubit),
		status:   domain.HolderAwaitingToken,
	}
}

func (h *Holder) Status() domain.HolderStatus {
	h.statusLock.RLock()
	defer h.statusLock.RUnlock()
	return h.status
}

// HeldSerials lists the serials currently held, in receipt order.
func (h *Holder) HeldSerials() []uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	serials := make([]uint64, 0, len(h.held))
	for _, serial := range h.order {
		if _, ok := h.held[serial]; ok {
			serials = append(serials, serial)
		}
	}
	return serials
}

func (h *Holder) Holding(serial uint64) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	_, ok := h.held[serial]
	return ok
}

// ReceiveTokens collects tokenCount tokens of unitsPerToken units each from
// the issuer, assigning serials in arrival order starting at firstSerial.
// A unit that never arrives aborts the step: the partial token is released
// and the timeout is surfaced to the caller.
func (h *Holder) ReceiveTokens(
	ctx context.Context, issuer domain.PartyID,
	firstSerial uint64, tokenCount, unitsPerToken int, wait time.Duration,
) error {
	if tokenCount <= 0 || unitsPerToken <= 0 {
		return fmt.Errorf(
			"invalid receive request: %d tokens of %d units", tokenCount, unitsPerToken,
		)
	}

	h.setStatus(domain.HolderAwaitingToken)
	for t := 0; t < tokenCount; t++ {
		serial := firstSerial + uint64(t)
		units := make([]*qsim.Qubit, 0, unitsPerToken)
		for pos := 0; pos < unitsPerToken; pos++ {
			q, err := h.endpoint.ReceiveQuantum(ctx, issuer, wait)
			if err != nil {
				for _, got := range units {
					if relErr := got.Release(); relErr != nil {
						log.WithError(relErr).WithField("serial", serial).
							Debug("failed to release unit of partial token")
					}
				}
				return fmt.Errorf("receive unit %d of serial %d: %w", pos, serial, err)
			}
			units = append(units, q)
		}

		h.lock.Lock()
		h.held[serial] = units
		h.order = append(h.order, serial)
		h.lock.Unlock()

		h.publish(ctx, domain.NewTokenReceived(serial, issuer, len(units)))
		log.WithFields(log.Fields{
			"serial": serial,
			"units":  len(units),
			"from":   issuer,
		}).Info("received token")
	}

	h.setStatus(domain.HolderHolding)
	return nil
}

// Redeem opens the redemption handshake for one serial and streams its
// units to the issuer. The classical announcement is acknowledged before
// the first unit leaves, so the issuer is always ready to receive. All
// other held serials are disposed of afterwards.
func (h *Holder) Redeem(ctx context.Context, issuer domain.PartyID, serial uint64) error {
	h.lock.Lock()
	units, ok := h.held[serial]
	if ok {
		delete(h.held, serial)
	}
	h.lock.Unlock()
	if !ok {
		return fmt.Errorf("serial %d is not held", serial)
	}

	h.setStatus(domain.HolderRedeeming)
	if err := h.endpoint.SendClassical(ctx, issuer, serial, true); err != nil {
		return fmt.Errorf("announce redemption of serial %d: %w", serial, err)
	}
	for pos, q := range units {
		if err := h.endpoint.SendQuantum(ctx, issuer, q, false); err != nil {
			return fmt.Errorf("send unit %d of serial %d: %w", pos, serial, err)
		}
	}
	log.WithFields(log.Fields{
		"serial": serial,
		"units":  len(units),
		"to":     issuer,
	}).Info("redeemed token")

	h.DisposeRemaining(ctx)
	h.setStatus(domain.HolderDone)
	return nil
}

// DisposeRemaining releases every unit of every still-held serial. Disposal
// tolerates units that were already consumed elsewhere: misuse of a single
// unit never blocks the cleanup of the rest.
func (h *Holder) DisposeRemaining(ctx context.Context) {
	h.lock.Lock()
	remaining := h.held
	order := h.order
	h.held = make(map[uint64][]*qsim.Qubit)
	h.order = nil
	h.lock.Unlock()

	for _, serial := range order {
		units, ok := remaining[serial]
		if !ok {
			continue
		}
		released := 0
		for _, q := range units {
			if err := q.Release(); err != nil {
				log.WithError(err).WithField("serial", serial).
					Debug("unit already consumed during disposal")
				continue
			}
			released++
		}
		h.publish(ctx, domain.NewTokenDisposed(serial, released))
		log.WithFields(log.Fields{
			"serial": serial,
			"units":  released,
		}).Info("disposed token")
	}
}

func (h *Holder) setStatus(status domain.HolderStatus) {
	h.statusLock.Lock()
	prev := h.status
	h.status = status
	h.statusLock.Unlock()

	if prev != status {
		log.WithFields(log.Fields{
			"party": h.endpoint.Party(),
			"from":  prev.String(),
			"to":    status.String(),
		}).Debug("holder state transition")
	}
}

func (h *Holder) publish(ctx context.Context, events ...domain.Event) {
	if h.eventBus == nil {
		return
	}
	if err := h.eventBus.Publish(ctx, events...); err != nil {
		log.WithError(err).Warn("failed to publish holder events")
	}
}
