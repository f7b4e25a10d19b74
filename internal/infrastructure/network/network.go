// Package network implements the channel abstraction on top of watermill's
// in-memory gochannel Pub/Sub. Every party gets an endpoint with per-sender
// FIFO inboxes for quantum and classical traffic; quantum traffic between
// two non-relay parties crosses the relay, where the registered interceptor
// runs inline on each unit.
package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	log "github.com/sirupsen/logrus"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/internal/infrastructure/interceptor"
	"github.com/quantummint/qmintd/pkg/qsim"
)

const (
	defaultAckTimeout = 10 * time.Second
	defaultBuffer     = 64
)

type Config struct {
	Backend qsim.Backend
	// EventBus, when set, receives a UnitIntercepted event per relayed unit.
	EventBus ports.EventBus
	// Relay names the party all quantum traffic is routed through. Empty
	// disables the relay hop and units travel directly.
	Relay domain.PartyID
	// Interceptor is the relay's transformation policy, identity when nil.
	Interceptor ports.Interceptor
	AckTimeout  time.Duration
	Buffer      int
}

// Network owns the transport for one protocol run. Parties are added before
// Start, sends and receives work between Start and Close.
type Network struct {
	cfg         Config
	interceptor ports.Interceptor
	pubsub      *gochannel.GoChannel

	lock      sync.Mutex
	endpoints map[domain.PartyID]*endpoint
	started   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config) (*Network, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("missing backend")
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	icp := cfg.Interceptor
	if icp == nil {
		icp = interceptor.Identity()
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Blocking publishes keep sequential sends in order end to end: a send
	// returns only once the destination demux has queued the message.
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            int64(cfg.Buffer),
			BlockPublishUntilSubscriberAck: true,
		},
		NewWatermillLogger(),
	)
	return &Network{
		cfg:         cfg,
		interceptor: icp,
		pubsub:      pubsub,
		endpoints:   make(map[domain.PartyID]*endpoint),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// AddParty registers a party and returns its endpoint. All parties must be
// added before Start.
func (n *Network) AddParty(id domain.PartyID) (ports.Endpoint, error) {
	if id == "" {
		return nil, fmt.Errorf("empty party id")
	}

	n.lock.Lock()
	defer n.lock.Unlock()

	if n.started {
		return nil, fmt.Errorf("cannot add party %s: network already started", id)
	}
	if _, ok := n.endpoints[id]; ok {
		return nil, fmt.Errorf("party %s already registered", id)
	}
	ep := newEndpoint(n, id)
	n.endpoints[id] = ep
	return ep, nil
}

// Start subscribes every endpoint to its inbox topics and, when a relay is
// configured, starts the forwarder that runs the interceptor.
func (n *Network) Start() error {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.started {
		return fmt.Errorf("network already started")
	}

	for _, ep := range n.endpoints {
		for _, topic := range []string{quantumTopic(ep.party), classicalTopic(ep.party)} {
			messages, err := n.pubsub.Subscribe(n.ctx, topic)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
			n.wg.Add(1)
			go ep.demux(messages)
		}
		acks, err := n.pubsub.Subscribe(n.ctx, ackTopic(ep.party))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", ackTopic(ep.party), err)
		}
		n.wg.Add(1)
		go ep.demuxAcks(acks)
	}

	if n.cfg.Relay != "" {
		transit, err := n.pubsub.Subscribe(n.ctx, transitTopic(n.cfg.Relay))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", transitTopic(n.cfg.Relay), err)
		}
		n.wg.Add(1)
		go n.forward(transit)
		log.WithFields(log.Fields{
			"relay":  n.cfg.Relay,
			"policy": n.interceptor.Name(),
		}).Info("relay forwarder started")
	}

	n.started = true
	log.WithField("parties", len(n.endpoints)).Info("network started")
	return nil
}

// Close shuts the transport down. Pending receives and ack waits unblock
// with ErrChannelClosed.
func (n *Network) Close() error {
	n.cancel()
	err := n.pubsub.Close()
	n.wg.Wait()

	n.lock.Lock()
	n.started = false
	n.lock.Unlock()

	log.Info("network closed")
	return err
}

func (n *Network) isStarted() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.started
}

// routeTopic picks the destination topic: quantum traffic between two
// non-relay parties takes the transit hop.
func (n *Network) routeTopic(from, to domain.PartyID, kind string) string {
	if kind == kindQuantum {
		if n.cfg.Relay != "" && from != n.cfg.Relay && to != n.cfg.Relay {
			return transitTopic(n.cfg.Relay)
		}
		return quantumTopic(to)
	}
	return classicalTopic(to)
}

func (n *Network) forward(messages <-chan *message.Message) {
	defer n.wg.Done()
	for msg := range messages {
		n.forwardUnit(msg)
		msg.Ack()
	}
}

// forwardUnit runs the interceptor on one transiting unit and republishes
// it towards its destination. A rejected unit is dropped: the sender's ack
// wait, if any, times out.
func (n *Network) forwardUnit(msg *message.Message) {
	env, err := decodeEnvelope(msg)
	if err != nil {
		log.WithError(err).Warn("relay: dropping malformed envelope")
		return
	}

	unit := qsim.Resolve(n.cfg.Backend, string(env.payload))
	out, err := n.interceptor.Transform(n.ctx, env.from, env.to, unit)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"from": env.from,
			"to":   env.to,
		}).Error("relay: interceptor rejected unit, dropping")
		return
	}
	n.publishEvent(domain.NewUnitIntercepted(env.from, env.to, out.ID(), n.interceptor.Name()))
	log.WithFields(log.Fields{
		"from":   env.from,
		"to":     env.to,
		"policy": n.interceptor.Name(),
	}).Debug("relay forwarded unit")

	fwd := message.NewMessage(watermill.NewUUID(), []byte(out.ID()))
	copyMetadata(fwd, msg)
	if err := n.pubsub.Publish(quantumTopic(env.to), fwd); err != nil {
		log.WithError(err).Error("relay: failed to forward unit")
	}
}

func (n *Network) sendAck(env *envelope) {
	ack := message.NewMessage(watermill.NewUUID(), nil)
	ack.Metadata.Set(metaCorrID, env.corrID)
	ack.Metadata.Set(metaFrom, string(env.to))
	if err := n.pubsub.Publish(ackTopic(env.from), ack); err != nil {
		log.WithError(err).Warn("failed to publish ack")
	}
}

func (n *Network) publishEvent(event domain.Event) {
	if n.cfg.EventBus == nil {
		return
	}
	if err := n.cfg.EventBus.Publish(n.ctx, event); err != nil {
		log.WithError(err).Warn("failed to publish network event")
	}
}
