package network

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quantummint/qmintd/internal/core/domain"
)

const (
	metaFrom       = "from"
	metaTo         = "to"
	metaKind       = "kind"
	metaSeq        = "seq"
	metaRequireAck = "require_ack"
	metaCorrID     = "corr_id"

	kindQuantum   = "quantum"
	kindClassical = "classical"
)

func quantumTopic(p domain.PartyID) string   { return "quantum." + string(p) }
func classicalTopic(p domain.PartyID) string { return "classical." + string(p) }
func ackTopic(p domain.PartyID) string       { return "ack." + string(p) }
func transitTopic(p domain.PartyID) string   { return "transit." + string(p) }

// envelope is the decoded view of a transport message. For quantum traffic
// the payload is the unit id (the ownership baton), for classical traffic a
// JSON-encoded classicalPayload.
type envelope struct {
	from       domain.PartyID
	to         domain.PartyID
	kind       string
	seq        uint64
	requireAck bool
	corrID     string
	payload    []byte
}

type classicalPayload struct {
	Content uint64 `json:"content"`
}

func decodeEnvelope(msg *message.Message) (*envelope, error) {
	kind := msg.Metadata.Get(metaKind)
	if kind != kindQuantum && kind != kindClassical {
		return nil, fmt.Errorf("unsupported message kind %q", kind)
	}
	from := msg.Metadata.Get(metaFrom)
	to := msg.Metadata.Get(metaTo)
	if from == "" || to == "" {
		return nil, fmt.Errorf("message %s is missing routing metadata", msg.UUID)
	}
	seq, err := strconv.ParseUint(msg.Metadata.Get(metaSeq), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("message %s has invalid seq: %w", msg.UUID, err)
	}
	return &envelope{
		from:       domain.PartyID(from),
		to:         domain.PartyID(to),
		kind:       kind,
		seq:        seq,
		requireAck: msg.Metadata.Get(metaRequireAck) == "1",
		corrID:     msg.Metadata.Get(metaCorrID),
		payload:    msg.Payload,
	}, nil
}

func (e *envelope) classicalMessage() (*domain.ClassicalMessage, error) {
	var payload classicalPayload
	if err := json.Unmarshal(e.payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal classical payload: %w", err)
	}
	return &domain.ClassicalMessage{
		From:    e.from,
		Content: payload.Content,
		Seq:     e.seq,
	}, nil
}

func copyMetadata(dst, src *message.Message) {
	for k, v := range src.Metadata {
		dst.Metadata.Set(k, v)
	}
}
