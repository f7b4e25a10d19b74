package domain

// VerificationOutcome is the issuer's verdict on one redemption attempt.
type VerificationOutcome uint8

const (
	// OutcomeValid means every unit decoded to the recorded bit.
	OutcomeValid VerificationOutcome = iota
	// OutcomeInvalid means at least one unit mismatched: the token was
	// tampered with, forged, or disturbed in transit.
	OutcomeInvalid
	// OutcomeTimedOut means no redemption request arrived within the
	// issuer's wait window. The ledger is untouched.
	OutcomeTimedOut
	// OutcomeIncomplete means the handshake succeeded but a quantum unit
	// never arrived, so not every position could be checked.
	OutcomeIncomplete
)

func (o VerificationOutcome) String() string {
	outcomes := []string{"VALID", "INVALID", "TIMED_OUT", "INCOMPLETE"}
	if int(o) >= len(outcomes) {
		return "UNKNOWN"
	}
	return outcomes[o]
}

// VerificationReport is the recorded result of one redemption attempt.
type VerificationReport struct {
	Serial       uint64              `json:"serial"`
	Outcome      VerificationOutcome `json:"outcome"`
	Mismatches   int                 `json:"mismatches"`
	UnitsChecked int                 `json:"units_checked"`
}

// IssuerStatus tracks the issuer protocol state machine.
type IssuerStatus uint8

const (
	IssuerMinting IssuerStatus = iota
	IssuerDistributing
	IssuerAwaitingRedemption
	IssuerVerifying
	IssuerDone
)

func (s IssuerStatus) String() string {
	statuses := []string{"minting", "distributing", "awaiting_redemption", "verifying", "done"}
	if int(s) >= len(statuses) {
		return "unknown"
	}
	return statuses[s]
}

// HolderStatus tracks the holder protocol state machine.
type HolderStatus uint8

const (
	HolderAwaitingToken HolderStatus = iota
	HolderHolding
	HolderRedeeming
	HolderDone
)

func (s HolderStatus) String() string {
	statuses := []string{"awaiting_token", "holding", "redeeming", "done"}
	if int(s) >= len(statuses) {
		return "unknown"
	}
	return statuses[s]
}
