package network

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	log "github.com/sirupsen/logrus"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/pkg/qsim"
)

// endpoint implements ports.Endpoint. Arrivals are demuxed into per-sender
// FIFO queues; a queue that fills up exerts backpressure on the transport.
type endpoint struct {
	net   *Network
	party domain.PartyID

	seqLock sync.Mutex
	seqs    map[string]uint64

	inboxLock sync.Mutex
	inboxes   map[string]chan *envelope

	stashLock sync.Mutex
	stash     map[domain.PartyID]map[uint64]*domain.ClassicalMessage

	ackLock    sync.Mutex
	ackWaiters map[string]chan struct{}
}

func newEndpoint(net *Network, party domain.PartyID) *endpoint {
	return &endpoint{
		net:        net,
		party:      party,
		seqs:       make(map[string]uint64),
		inboxes:    make(map[string]chan *envelope),
		stash:      make(map[domain.PartyID]map[uint64]*domain.ClassicalMessage),
		ackWaiters: make(map[string]chan struct{}),
	}
}

func (e *endpoint) Party() domain.PartyID {
	return e.party
}

func (e *endpoint) SendQuantum(
	ctx context.Context, to domain.PartyID, q *qsim.Qubit, requireAck bool,
) error {
	if q == nil {
		return fmt.Errorf("nil quantum unit")
	}
	return e.send(ctx, to, kindQuantum, []byte(q.ID()), requireAck)
}

func (e *endpoint) SendClassical(
	ctx context.Context, to domain.PartyID, content uint64, requireAck bool,
) error {
	payload, err := json.Marshal(classicalPayload{Content: content})
	if err != nil {
		return fmt.Errorf("marshal classical payload: %w", err)
	}
	return e.send(ctx, to, kindClassical, payload, requireAck)
}

func (e *endpoint) send(
	ctx context.Context, to domain.PartyID, kind string, payload []byte, requireAck bool,
) error {
	if !e.net.isStarted() {
		return ports.ErrNotStarted
	}
	if to == e.party {
		return fmt.Errorf("party %s cannot send to itself", e.party)
	}

	seq := e.nextSeq(to, kind)
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaFrom, string(e.party))
	msg.Metadata.Set(metaTo, string(to))
	msg.Metadata.Set(metaKind, kind)
	msg.Metadata.Set(metaSeq, strconv.FormatUint(seq, 10))
	msg.Metadata.Set(metaCorrID, msg.UUID)
	if requireAck {
		msg.Metadata.Set(metaRequireAck, "1")
	}

	var ackCh chan struct{}
	if requireAck {
		ackCh = e.registerAckWaiter(msg.UUID)
		defer e.unregisterAckWaiter(msg.UUID)
	}

	if err := e.net.pubsub.Publish(e.net.routeTopic(e.party, to, kind), msg); err != nil {
		return fmt.Errorf("publish %s message to %s: %w", kind, to, err)
	}
	log.WithFields(log.Fields{
		"from": e.party,
		"to":   to,
		"kind": kind,
		"seq":  seq,
	}).Trace("message sent")

	if !requireAck {
		return nil
	}
	return e.awaitAck(ctx, ackCh, msg.UUID)
}

func (e *endpoint) ReceiveQuantum(
	ctx context.Context, from domain.PartyID, wait time.Duration,
) (*qsim.Qubit, error) {
	if !e.net.isStarted() {
		return nil, ports.ErrNotStarted
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case env := <-e.inbox(from, kindQuantum):
		log.WithFields(log.Fields{
			"party": e.party,
			"from":  from,
			"seq":   env.seq,
		}).Trace("quantum unit received")
		return qsim.Resolve(e.net.cfg.Backend, string(env.payload)), nil
	case <-timer.C:
		return nil, fmt.Errorf("quantum unit from %s: %w", from, ports.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.net.ctx.Done():
		return nil, ports.ErrChannelClosed
	}
}

func (e *endpoint) ReceiveClassical(
	ctx context.Context, from domain.PartyID, seq int64, wait time.Duration,
) (*domain.ClassicalMessage, error) {
	if !e.net.isStarted() {
		return nil, ports.ErrNotStarted
	}

	if msg := e.takeStashed(from, seq); msg != nil {
		return msg, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case env := <-e.inbox(from, kindClassical):
			msg, err := env.classicalMessage()
			if err != nil {
				log.WithError(err).WithField("party", e.party).
					Warn("dropping malformed classical message")
				continue
			}
			if seq < 0 || msg.Seq == uint64(seq) {
				return msg, nil
			}
			// not the requested sequence number, keep for a later selector
			e.stashMessage(from, msg)
		case <-timer.C:
			return nil, fmt.Errorf("classical message from %s: %w", from, ports.ErrTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.net.ctx.Done():
			return nil, ports.ErrChannelClosed
		}
	}
}

// demux routes one inbox topic's arrivals into per-sender queues, sending
// transport acks once a message sits in its queue.
func (e *endpoint) demux(messages <-chan *message.Message) {
	defer e.net.wg.Done()
	for msg := range messages {
		env, err := decodeEnvelope(msg)
		if err != nil {
			log.WithError(err).WithField("party", e.party).
				Warn("dropping malformed envelope")
			msg.Ack()
			continue
		}
		e.inbox(env.from, env.kind) <- env
		if env.requireAck {
			e.net.sendAck(env)
		}
		msg.Ack()
	}
}

func (e *endpoint) demuxAcks(messages <-chan *message.Message) {
	defer e.net.wg.Done()
	for msg := range messages {
		corrID := msg.Metadata.Get(metaCorrID)

		e.ackLock.Lock()
		waiter, ok := e.ackWaiters[corrID]
		if ok {
			delete(e.ackWaiters, corrID)
		}
		e.ackLock.Unlock()

		if ok {
			close(waiter)
		} else {
			// ack arrived after the sender gave up waiting
			log.WithFields(log.Fields{
				"party":   e.party,
				"corr_id": corrID,
			}).Trace("ack with no waiter")
		}
		msg.Ack()
	}
}

func (e *endpoint) inbox(from domain.PartyID, kind string) chan *envelope {
	e.inboxLock.Lock()
	defer e.inboxLock.Unlock()

	key := string(from) + "/" + kind
	ch, ok := e.inboxes[key]
	if !ok {
		ch = make(chan *envelope, e.net.cfg.Buffer)
		e.inboxes[key] = ch
	}
	return ch
}

func (e *endpoint) nextSeq(to domain.PartyID, kind string) uint64 {
	e.seqLock.Lock()
	defer e.seqLock.Unlock()

	key := string(to) + "/" + kind
	seq := e.seqs[key]
	e.seqs[key]++
	return seq
}

// takeStashed serves a selector from messages parked by earlier selective
// receives. A negative seq takes the oldest stashed message.
func (e *endpoint) takeStashed(from domain.PartyID, seq int64) *domain.ClassicalMessage {
	e.stashLock.Lock()
	defer e.stashLock.Unlock()

	parked := e.stash[from]
	if len(parked) == 0 {
		return nil
	}

	if seq >= 0 {
		msg, ok := parked[uint64(seq)]
		if !ok {
			return nil
		}
		delete(parked, uint64(seq))
		return msg
	}

	oldest := uint64(0)
	found := false
	for s := range parked {
		if !found || s < oldest {
			oldest = s
			found = true
		}
	}
	msg := parked[oldest]
	delete(parked, oldest)
	return msg
}

func (e *endpoint) stashMessage(from domain.PartyID, msg *domain.ClassicalMessage) {
	e.stashLock.Lock()
	defer e.stashLock.Unlock()

	if e.stash[from] == nil {
		e.stash[from] = make(map[uint64]*domain.ClassicalMessage)
	}
	e.stash[from][msg.Seq] = msg
}

func (e *endpoint) registerAckWaiter(corrID string) chan struct{} {
	e.ackLock.Lock()
	defer e.ackLock.Unlock()

	waiter := make(chan struct{})
	e.ackWaiters[corrID] = waiter
	return waiter
}

func (e *endpoint) unregisterAckWaiter(corrID string) {
	e.ackLock.Lock()
	defer e.ackLock.Unlock()
	delete(e.ackWaiters, corrID)
}

func (e *endpoint) awaitAck(ctx context.Context, waiter chan struct{}, corrID string) error {
	timer := time.NewTimer(e.net.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case <-waiter:
		return nil
	case <-timer.C:
		return fmt.Errorf("ack of message %s: %w", corrID, ports.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-e.net.ctx.Done():
		return ports.ErrChannelClosed
	}
}
