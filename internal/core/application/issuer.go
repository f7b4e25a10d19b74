package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/pkg/qsim"
)

// Issuer mints tokens, distributes their quantum encodings and verifies
// redemptions against its write-once ledger. The ledger never leaves the
// issuer: holders and relays only ever see serials and opaque units.
type Issuer struct {
	endpoint ports.Endpoint
	backend  qsim.Backend
	bits     ports.BitSource
	eventBus ports.EventBus
	ledger   *domain.Ledger

	// one verification at a time: the channel pair carries one handshake
	verifyLock sync.Mutex

	statusLock sync.RWMutex
	status     domain.IssuerStatus
}

func NewIssuer(
	endpoint ports.Endpoint, backend qsim.Backend,
	bits ports.BitSource, eventBus ports.EventBus,
) *Issuer {
	return &Issuer{
		endpoint: endpoint,
		backend:  backend,
		bits:     bits,
		eventBus: eventBus,
		ledger:   domain.NewLedger(),
		status:   domain.IssuerMinting,
	}
}

func (i *Issuer) Ledger() *domain.Ledger {
	return i.ledger
}

func (i *Issuer) Status() domain.IssuerStatus {
	i.statusLock.RLock()
	defer i.statusLock.RUnlock()
	return i.status
}

// MintAndDistribute mints tokenCount tokens of unitsPerToken units each and
// streams every quantum unit to the holder in index order. A token is
// recorded on the ledger before its first unit leaves the issuer, so a
// redemption can never race an unrecorded serial.
func (i *Issuer) MintAndDistribute(
	ctx context.Context, holder domain.PartyID, tokenCount, unitsPerToken int,
) ([]uint64, error) {
	if tokenCount <= 0 || unitsPerToken <= 0 {
		return nil, fmt.Errorf(
			"invalid mint request: %d tokens of %d units", tokenCount, unitsPerToken,
		)
	}

	serials := make([]uint64, 0, tokenCount)
	for t := 0; t < tokenCount; t++ {
		i.setStatus(domain.IssuerMinting)

		serial := i.ledger.NextSerial()
		units := make([]domain.EncodingUnit, unitsPerToken)
		for pos := range units {
			unit, err := randomUnit(i.bits)
			if err != nil {
				return serials, fmt.Errorf("draw unit %d of serial %d: %w", pos, serial, err)
			}
			units[pos] = unit
		}
		if err := i.ledger.Record(serial, units); err != nil {
			return serials, fmt.Errorf("record serial %d: %w", serial, err)
		}
		i.publish(ctx, domain.NewTokenMinted(serial, unitsPerToken))
		log.WithFields(log.Fields{
			"serial": serial,
			"units":  unitsPerToken,
		}).Info("minted token")

		i.setStatus(domain.IssuerDistributing)
		for pos, unit := range units {
			q, err := EncodeUnit(i.backend, unit)
			if err != nil {
				return serials, fmt.Errorf("encode unit %d of serial %d: %w", pos, serial, err)
			}
			if err := i.endpoint.SendQuantum(ctx, holder, q, false); err != nil {
				return serials, fmt.Errorf("send unit %d of serial %d: %w", pos, serial, err)
			}
		}
		i.publish(ctx, domain.NewTokenDistributed(serial, holder))
		log.WithFields(log.Fields{
			"serial": serial,
			"to":     holder,
		}).Info("distributed token")

		serials = append(serials, serial)
	}

	i.setStatus(domain.IssuerAwaitingRedemption)
	return serials, nil
}

// VerifyRedemption serves one redemption attempt. It waits up to wait for
// the classical request, then receives and checks every unit of the claimed
// serial with the same bound per unit.
//
// All positions are measured even after a mismatch, so verification time
// does not leak where a check failed. A missing request yields a TIMED_OUT
// report, a missing unit an INCOMPLETE one; neither is an error. A request
// for a serial the ledger does not know returns domain.ErrUnknownSerial
// without any report.
func (i *Issuer) VerifyRedemption(
	ctx context.Context, holder domain.PartyID, wait time.Duration,
) (*domain.VerificationReport, error) {
	i.verifyLock.Lock()
	defer i.verifyLock.Unlock()

	i.setStatus(domain.IssuerAwaitingRedemption)
	msg, err := i.endpoint.ReceiveClassical(ctx, holder, ports.NextMessage, wait)
	if err != nil {
		if errors.Is(err, ports.ErrTimeout) {
			log.WithField("wait", wait).Warn("no redemption request within window")
			report := &domain.VerificationReport{Outcome: domain.OutcomeTimedOut}
			i.publish(ctx, domain.NewRedemptionVerified(*report))
			i.setStatus(domain.IssuerDone)
			return report, nil
		}
		return nil, fmt.Errorf("receive redemption request: %w", err)
	}

	serial := msg.Content
	i.publish(ctx, domain.NewRedemptionRequested(serial, msg.From))
	log.WithFields(log.Fields{
		"serial": serial,
		"from":   msg.From,
	}).Info("redemption requested")

	expected, err := i.ledger.Lookup(serial)
	if err != nil {
		i.publish(ctx, domain.NewRedemptionAborted(serial, "unknown serial"))
		log.WithField("serial", serial).Warn("redemption request for unknown serial")
		return nil, fmt.Errorf("verify redemption: %w", err)
	}

	i.setStatus(domain.IssuerVerifying)
	mismatches, checked := 0, 0
	for pos, unit := range expected {
		q, err := i.endpoint.ReceiveQuantum(ctx, holder, wait)
		if err != nil {
			if errors.Is(err, ports.ErrTimeout) {
				log.WithFields(log.Fields{
					"serial":   serial,
					"position": pos,
				}).Warn("quantum unit never arrived, aborting verification")
				report := &domain.VerificationReport{
					Serial:       serial,
					Outcome:      domain.OutcomeIncomplete,
					Mismatches:   mismatches,
					UnitsChecked: checked,
				}
				i.publish(ctx, domain.NewRedemptionVerified(*report))
				i.setStatus(domain.IssuerDone)
				return report, nil
			}
			return nil, fmt.Errorf("receive unit %d of serial %d: %w", pos, serial, err)
		}

		bit, err := DecodeUnit(q, unit.Basis)
		if err != nil {
			return nil, fmt.Errorf("decode unit %d of serial %d: %w", pos, serial, err)
		}
		checked++
		if bit != unit.Bit {
			mismatches++
		}
	}

	outcome := domain.OutcomeValid
	if mismatches > 0 {
		outcome = domain.OutcomeInvalid
	}
	report := &domain.VerificationReport{
		Serial:       serial,
		Outcome:      outcome,
		Mismatches:   mismatches,
		UnitsChecked: checked,
	}
	i.publish(ctx, domain.NewRedemptionVerified(*report))
	log.WithFields(log.Fields{
		"serial":     serial,
		"outcome":    outcome.String(),
		"mismatches": mismatches,
		"units":      checked,
	}).Info("verification finished")

	i.setStatus(domain.IssuerDone)
	return report, nil
}

func (i *Issuer) setStatus(status domain.IssuerStatus) {
	i.statusLock.Lock()
	prev := i.status
	i.status = status
	i.statusLock.Unlock()

	if prev != status {
		log.WithFields(log.Fields{
			"party": i.endpoint.Party(),
			"from":  prev.String(),
			"to":    status.String(),
		}).Debug("issuer state transition")
	}
}

func (i *Issuer) publish(ctx context.Context, events ...domain.Event) {
	if i.eventBus == nil {
		return
	}
	if err := i.eventBus.Publish(ctx, events...); err != nil {
		log.WithError(err).Warn("failed to publish issuer events")
	}
}
