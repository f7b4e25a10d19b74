package domain

// Bit is one classical bit of a token's secret encoding.
type Bit uint8

const (
	Zero Bit = iota
	One
)

func (b Bit) String() string {
	if b == One {
		return "1"
	}
	return "0"
}

// Basis selects how a bit is written onto a quantum unit. Computational
// encodes into {|0>, |1>}, conjugate into {|+>, |->}.
type Basis uint8

const (
	BasisComputational Basis = iota
	BasisConjugate
)

func (b Basis) String() string {
	bases := []string{"computational", "conjugate"}
	if int(b) >= len(bases) {
		return "unknown"
	}
	return bases[b]
}

// EncodingUnit is one (bit, basis) pair of a token. The pair is secret: only
// the issuer's ledger ever holds it.
type EncodingUnit struct {
	Bit   Bit   `json:"bit"`
	Basis Basis `json:"basis"`
}

// Token pairs a public serial number with its secret encoding units.
type Token struct {
	Serial uint64         `json:"serial"`
	Units  []EncodingUnit `json:"units"`
}
