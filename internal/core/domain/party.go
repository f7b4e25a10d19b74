package domain

// PartyID identifies a protocol participant on the network.
type PartyID string

// Default party identities of a single-issuer run.
const (
	PartyIssuer PartyID = "issuer"
	PartyHolder PartyID = "holder"
	PartyRelay  PartyID = "relay"
)

func (p PartyID) String() string {
	return string(p)
}

// ClassicalMessage is one unit of classical traffic: the sender identity, an
// integer payload and a per-sender sequence number assigned by the transport.
type ClassicalMessage struct {
	From    PartyID `json:"from"`
	Content uint64  `json:"content"`
	Seq     uint64  `json:"seq"`
}
