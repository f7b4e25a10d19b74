package domain

// EventType labels protocol events published on the event bus.
type EventType string

const (
	EventTypeTokenMinted         EventType = "token_minted"
	EventTypeTokenDistributed    EventType = "token_distributed"
	EventTypeTokenReceived       EventType = "token_received"
	EventTypeRedemptionRequested EventType = "redemption_requested"
	EventTypeRedemptionVerified  EventType = "redemption_verified"
	EventTypeRedemptionAborted   EventType = "redemption_aborted"
	EventTypeTokenDisposed       EventType = "token_disposed"
	EventTypeUnitIntercepted     EventType = "unit_intercepted"
)

// Event is implemented by all protocol events. The type travels inside the
// serialized payload so subscribers can rebuild the concrete event.
type Event interface {
	GetType() EventType
}

type baseEvent struct {
	Type EventType
}

func (e baseEvent) GetType() EventType { return e.Type }

// TokenMinted is emitted once a serial and its encoding are on the ledger.
type TokenMinted struct {
	baseEvent
	Serial uint64
	Units  int
}

func NewTokenMinted(serial uint64, units int) TokenMinted {
	return TokenMinted{baseEvent{EventTypeTokenMinted}, serial, units}
}

// TokenDistributed is emitted after every unit of a token has been sent.
type TokenDistributed struct {
	baseEvent
	Serial uint64
	To     PartyID
}

func NewTokenDistributed(serial uint64, to PartyID) TokenDistributed {
	return TokenDistributed{baseEvent{EventTypeTokenDistributed}, serial, to}
}

// TokenReceived is emitted by the holder once a full token arrived.
type TokenReceived struct {
	baseEvent
	Serial uint64
	From   PartyID
	Units  int
}

func NewTokenReceived(serial uint64, from PartyID, units int) TokenReceived {
	return TokenReceived{baseEvent{EventTypeTokenReceived}, serial, from, units}
}

// RedemptionRequested is emitted by the issuer on receipt of a redemption
// request, before any check runs.
type RedemptionRequested struct {
	baseEvent
	Serial uint64
	From   PartyID
}

func NewRedemptionRequested(serial uint64, from PartyID) RedemptionRequested {
	return RedemptionRequested{baseEvent{EventTypeRedemptionRequested}, serial, from}
}

// RedemptionVerified carries the final report of a redemption attempt,
// whatever the outcome.
type RedemptionVerified struct {
	baseEvent
	Report VerificationReport
}

func NewRedemptionVerified(report VerificationReport) RedemptionVerified {
	return RedemptionVerified{baseEvent{EventTypeRedemptionVerified}, report}
}

// RedemptionAborted is emitted when a request cannot be verified at all,
// for example an unknown serial.
type RedemptionAborted struct {
	baseEvent
	Serial uint64
	Reason string
}

func NewRedemptionAborted(serial uint64, reason string) RedemptionAborted {
	return RedemptionAborted{baseEvent{EventTypeRedemptionAborted}, serial, reason}
}

// TokenDisposed is emitted when the holder releases an unredeemed token.
type TokenDisposed struct {
	baseEvent
	Serial uint64
	Units  int
}

func NewTokenDisposed(serial uint64, units int) TokenDisposed {
	return TokenDisposed{baseEvent{EventTypeTokenDisposed}, serial, units}
}

// UnitIntercepted is emitted by the relay for every quantum unit crossing
// it, named after the transformation policy that ran.
type UnitIntercepted struct {
	baseEvent
	From   PartyID
	To     PartyID
	UnitID string
	Policy string
}

func NewUnitIntercepted(from, to PartyID, unitID, policy string) UnitIntercepted {
	return UnitIntercepted{baseEvent{EventTypeUnitIntercepted}, from, to, unitID, policy}
}
