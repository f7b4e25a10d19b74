package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/internal/infrastructure/events"
	"github.com/quantummint/qmintd/internal/infrastructure/interceptor"
	"github.com/quantummint/qmintd/internal/infrastructure/network"
	"github.com/quantummint/qmintd/internal/infrastructure/randsource"
	"github.com/quantummint/qmintd/pkg/qsim"
)

type eventRecorder struct {
	lock   sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) handle(event domain.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType domain.EventType) []domain.Event {
	r.lock.Lock()
	defer r.lock.Unlock()

	matched := make([]domain.Event, 0)
	for _, event := range r.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// countingBackend counts destructive and non-destructive measurements going
// through it, everything else passes straight to the wrapped backend.
type countingBackend struct {
	qsim.Backend

	lock     sync.Mutex
	measures int
}

func (b *countingBackend) Measure(id string, destructive bool) (int, error) {
	b.lock.Lock()
	b.measures++
	b.lock.Unlock()
	return b.Backend.Measure(id, destructive)
}

func (b *countingBackend) measured() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.measures
}

type protocolFixture struct {
	backend  qsim.Backend
	bus      ports.EventBus
	netw     *network.Network
	issuerEP ports.Endpoint
	holderEP ports.Endpoint
	recorder *eventRecorder
	issuer   *Issuer
	holder   *Holder
}

func newProtocolFixture(
	t *testing.T, icp ports.Interceptor, src ports.BitSource, seed int64,
) *protocolFixture {
	return newFixtureWithBackend(t, qsim.NewSeededStateVector(seed), icp, src)
}

func newFixtureWithBackend(
	t *testing.T, backend qsim.Backend, icp ports.Interceptor, src ports.BitSource,
) *protocolFixture {
	bus, err := events.NewBus(32, nil)
	require.NoError(t, err)
	recorder := &eventRecorder{}
	bus.RegisterHandler(recorder.handle)

	netw, err := network.New(network.Config{
		Backend:     backend,
		EventBus:    bus,
		Relay:       domain.PartyRelay,
		Interceptor: icp,
		AckTimeout:  time.Second,
		Buffer:      32,
	})
	require.NoError(t, err)
	issuerEP, err := netw.AddParty(domain.PartyIssuer)
	require.NoError(t, err)
	holderEP, err := netw.AddParty(domain.PartyHolder)
	require.NoError(t, err)
	require.NoError(t, netw.Start())

	t.Cleanup(func() {
		require.NoError(t, netw.Close())
		require.NoError(t, bus.Close())
		require.NoError(t, backend.Close())
	})

	return &protocolFixture{
		backend:  backend,
		bus:      bus,
		netw:     netw,
		issuerEP: issuerEP,
		holderEP: holderEP,
		recorder: recorder,
		issuer:   NewIssuer(issuerEP, backend, src, bus),
		holder:   NewHolder(holderEP, backend, bus),
	}
}

// runProtocol drives one full round with concurrent issuer and holder tasks,
// the way the daemon does, and returns the issuer's verification report.
func runProtocol(
	t *testing.T, fx *protocolFixture, tokenCount, unitsPerToken int, redeemSerial uint64,
) *domain.VerificationReport {
	var report *domain.VerificationReport
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if _, err := fx.issuer.MintAndDistribute(
			ctx, domain.PartyHolder, tokenCount, unitsPerToken,
		); err != nil {
			return err
		}
		r, err := fx.issuer.VerifyRedemption(ctx, domain.PartyHolder, 2*time.Second)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	g.Go(func() error {
		if err := fx.holder.ReceiveTokens(
			ctx, domain.PartyIssuer, 0, tokenCount, unitsPerToken, 2*time.Second,
		); err != nil {
			return err
		}
		return fx.holder.Redeem(ctx, domain.PartyIssuer, redeemSerial)
	})
	require.NoError(t, g.Wait())
	require.NotNil(t, report)
	return report
}

func TestHonestRedemptionIsValid(t *testing.T) {
	fx := newProtocolFixture(t, interceptor.Identity(), randsource.Seeded(1), 1)

	report := runProtocol(t, fx, 2, 8, 0)
	require.Equal(t, domain.OutcomeValid, report.Outcome)
	require.Equal(t, uint64(0), report.Serial)
	require.Zero(t, report.Mismatches)
	require.Equal(t, 8, report.UnitsChecked)

	require.Equal(t, 2, fx.issuer.Ledger().Size())
	require.Equal(t, domain.IssuerDone, fx.issuer.Status())
	require.Equal(t, domain.HolderDone, fx.holder.Status())
	require.Empty(t, fx.holder.HeldSerials())
	require.Zero(t, fx.backend.ActiveQubits())

	require.Len(t, fx.recorder.ofType(domain.EventTypeTokenMinted), 2)
	require.Len(t, fx.recorder.ofType(domain.EventTypeTokenDistributed), 2)
	require.Len(t, fx.recorder.ofType(domain.EventTypeTokenReceived), 2)
	require.Len(t, fx.recorder.ofType(domain.EventTypeRedemptionRequested), 1)
	require.Len(t, fx.recorder.ofType(domain.EventTypeRedemptionVerified), 1)

	disposed := fx.recorder.ofType(domain.EventTypeTokenDisposed)
	require.Len(t, disposed, 1)
	require.Equal(t, uint64(1), disposed[0].(domain.TokenDisposed).Serial)

	// 16 distributed and 8 redeemed units crossed the relay
	require.Len(t, fx.recorder.ofType(domain.EventTypeUnitIntercepted), 24)
}

func TestTamperedRedemptionIsInvalid(t *testing.T) {
	// alternating (0, computational) and (1, conjugate) positions: a bit
	// flip in transit is certain to show on the computational ones and
	// certain to hide on the conjugate ones
	src := newScriptedSource(
		domain.Zero, domain.Zero,
		domain.One, domain.One,
		domain.Zero, domain.Zero,
		domain.One, domain.One,
	)
	fx := newProtocolFixture(t, interceptor.BitFlip(domain.PartyHolder), src, 3)

	report := runProtocol(t, fx, 1, 8, 0)
	require.Equal(t, domain.OutcomeInvalid, report.Outcome)
	require.Equal(t, 8, report.UnitsChecked)
	require.Equal(t, 4, report.Mismatches)
	require.Equal(t, 1, fx.issuer.Ledger().Size())

	for _, event := range fx.recorder.ofType(domain.EventTypeUnitIntercepted) {
		require.Equal(t, "bitflip", event.(domain.UnitIntercepted).Policy)
	}
}

func TestUnknownSerialLeavesNoReport(t *testing.T) {
	fx := newProtocolFixture(t, interceptor.Identity(), randsource.Seeded(1), 5)
	ctx := context.Background()

	require.NoError(t, fx.holderEP.SendClassical(ctx, domain.PartyIssuer, 99, true))

	report, err := fx.issuer.VerifyRedemption(ctx, domain.PartyHolder, time.Second)
	require.ErrorIs(t, err, domain.ErrUnknownSerial)
	require.Nil(t, report)
	require.Zero(t, fx.issuer.Ledger().Size())

	aborted := fx.recorder.ofType(domain.EventTypeRedemptionAborted)
	require.Len(t, aborted, 1)
	require.Equal(t, uint64(99), aborted[0].(domain.RedemptionAborted).Serial)
	require.Empty(t, fx.recorder.ofType(domain.EventTypeRedemptionVerified))

	// the issuer survives the bad request and keeps serving
	report, err = fx.issuer.VerifyRedemption(ctx, domain.PartyHolder, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTimedOut, report.Outcome)
}

func TestVerificationTimesOutWithoutRequest(t *testing.T) {
	fx := newProtocolFixture(t, interceptor.Identity(), randsource.Seeded(1), 7)
	ctx := context.Background()

	_, err := fx.issuer.MintAndDistribute(ctx, domain.PartyHolder, 1, 4)
	require.NoError(t, err)
	require.NoError(t, fx.holder.ReceiveTokens(ctx, domain.PartyIssuer, 0, 1, 4, time.Second))

	report, err := fx.issuer.VerifyRedemption(ctx, domain.PartyHolder, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTimedOut, report.Outcome)
	require.Zero(t, report.UnitsChecked)

	// nothing was redeemed: the holder still holds, the ledger still knows
	require.True(t, fx.holder.Holding(0))
	require.Equal(t, 1, fx.issuer.Ledger().Size())
}

func TestMissingUnitsYieldIncomplete(t *testing.T) {
	fx := newProtocolFixture(t, interceptor.Identity(), randsource.Seeded(1), 9)
	ctx := context.Background()

	_, err := fx.issuer.MintAndDistribute(ctx, domain.PartyHolder, 1, 4)
	require.NoError(t, err)

	units := make([]*qsim.Qubit, 0, 4)
	for i := 0; i < 4; i++ {
		q, err := fx.holderEP.ReceiveQuantum(ctx, domain.PartyIssuer, time.Second)
		require.NoError(t, err)
		units = append(units, q)
	}

	// announce the redemption but deliver only half the units
	require.NoError(t, fx.holderEP.SendClassical(ctx, domain.PartyIssuer, 0, true))
	for _, q := range units[:2] {
		require.NoError(t, fx.holderEP.SendQuantum(ctx, domain.PartyIssuer, q, false))
	}

	report, err := fx.issuer.VerifyRedemption(ctx, domain.PartyHolder, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeIncomplete, report.Outcome)
	require.Equal(t, uint64(0), report.Serial)
	require.Equal(t, 2, report.UnitsChecked)
	require.Zero(t, report.Mismatches)

	for _, q := range units[2:] {
		require.NoError(t, q.Release())
	}
	require.Zero(t, fx.backend.ActiveQubits())
}

func TestEveryPositionIsChecked(t *testing.T) {
	// every unit (1, computational), flipped on the redemption leg: the
	// first position already mismatches, the rest must still be measured
	src := newScriptedSource(domain.One, domain.Zero)
	backend := &countingBackend{Backend: qsim.NewSeededStateVector(13)}
	fx := newFixtureWithBackend(t, backend, interceptor.BitFlip(domain.PartyHolder), src)

	report := runProtocol(t, fx, 1, 6, 0)
	require.Equal(t, domain.OutcomeInvalid, report.Outcome)
	require.Equal(t, 6, report.Mismatches)
	require.Equal(t, 6, report.UnitsChecked)
	require.Equal(t, 6, backend.measured())
}

func TestSingleTokenRunDisposesNothing(t *testing.T) {
	fx := newProtocolFixture(t, interceptor.Identity(), randsource.Seeded(2), 17)

	report := runProtocol(t, fx, 1, 4, 0)
	require.Equal(t, domain.OutcomeValid, report.Outcome)
	require.Empty(t, fx.recorder.ofType(domain.EventTypeTokenDisposed))
	require.Zero(t, fx.backend.ActiveQubits())
}
