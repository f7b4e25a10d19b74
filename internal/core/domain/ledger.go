package domain

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSerialExists is returned when recording a serial that was already
	// minted. Ledger entries are write-once.
	ErrSerialExists = errors.New("serial already recorded")
	// ErrUnknownSerial is returned when a lookup or redemption names a
	// serial the issuer never minted.
	ErrUnknownSerial = errors.New("unknown serial")
)

// Ledger is the issuer's record of minted tokens. Entries are never updated
// or deleted: a serial's encoding is fixed at mint time.
type Ledger struct {
	lock    *sync.RWMutex
	entries map[uint64][]EncodingUnit
	next    uint64
}

func NewLedger() *Ledger {
	return &Ledger{
		lock:    &sync.RWMutex{},
		entries: make(map[uint64][]EncodingUnit),
	}
}

// NextSerial hands out sequential serial numbers starting at zero.
func (l *Ledger) NextSerial() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()

	serial := l.next
	l.next++
	return serial
}

// Record stores the encoding for a serial, rejecting rewrites.
func (l *Ledger) Record(serial uint64, units []EncodingUnit) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.entries[serial]; ok {
		return fmt.Errorf("serial %d: %w", serial, ErrSerialExists)
	}
	entry := make([]EncodingUnit, len(units))
	copy(entry, units)
	l.entries[serial] = entry
	return nil
}

// Lookup returns a copy of the recorded encoding for a serial.
func (l *Ledger) Lookup(serial uint64) ([]EncodingUnit, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	units, ok := l.entries[serial]
	if !ok {
		return nil, fmt.Errorf("serial %d: %w", serial, ErrUnknownSerial)
	}
	entry := make([]EncodingUnit, len(units))
	copy(entry, units)
	return entry, nil
}

func (l *Ledger) Size() int {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return len(l.entries)
}
