package events_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/infrastructure/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBusDeliversEventsInOrder(t *testing.T) {
	bus, err := events.NewBus(8, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, bus.Close()) }()

	var (
		lock sync.Mutex
		got  []domain.Event
	)
	bus.RegisterHandler(func(event domain.Event) {
		lock.Lock()
		got = append(got, event)
		lock.Unlock()
	})

	require.NoError(t, bus.Publish(
		context.Background(),
		domain.NewTokenMinted(0, 8),
		domain.NewTokenDistributed(0, domain.PartyHolder),
	))
	require.NoError(t, bus.Publish(context.Background(), domain.NewRedemptionVerified(
		domain.VerificationReport{
			Serial: 0, Outcome: domain.OutcomeValid, UnitsChecked: 8,
		},
	)))

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, got, 3)

	minted, ok := got[0].(domain.TokenMinted)
	require.True(t, ok)
	require.Equal(t, domain.EventTypeTokenMinted, minted.GetType())
	require.Equal(t, uint64(0), minted.Serial)
	require.Equal(t, 8, minted.Units)

	distributed, ok := got[1].(domain.TokenDistributed)
	require.True(t, ok)
	require.Equal(t, domain.PartyHolder, distributed.To)

	verified, ok := got[2].(domain.RedemptionVerified)
	require.True(t, ok)
	require.Equal(t, domain.OutcomeValid, verified.Report.Outcome)
	require.Equal(t, 8, verified.Report.UnitsChecked)
}

func TestBusFansOutToAllHandlers(t *testing.T) {
	bus, err := events.NewBus(8, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, bus.Close()) }()

	var (
		lock   sync.Mutex
		first  int
		second int
	)
	bus.RegisterHandler(func(domain.Event) {
		lock.Lock()
		first++
		lock.Unlock()
	})
	bus.RegisterHandler(func(domain.Event) {
		lock.Lock()
		second++
		lock.Unlock()
	})

	require.NoError(t, bus.Publish(context.Background(), domain.NewTokenMinted(1, 4)))

	lock.Lock()
	defer lock.Unlock()
	require.Equal(t, 1, first)
	require.Equal(t, 1, second)
}

func TestLateHandlerMissesEarlierEvents(t *testing.T) {
	bus, err := events.NewBus(8, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, bus.Close()) }()

	require.NoError(t, bus.Publish(context.Background(), domain.NewTokenMinted(1, 4)))

	var (
		lock sync.Mutex
		got  []domain.Event
	)
	bus.RegisterHandler(func(event domain.Event) {
		lock.Lock()
		got = append(got, event)
		lock.Unlock()
	})
	require.NoError(t, bus.Publish(context.Background(), domain.NewTokenMinted(2, 4)))

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, uint64(2), got[0].(domain.TokenMinted).Serial)
}

func TestClosedBusRejectsPublish(t *testing.T) {
	bus, err := events.NewBus(8, nil)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	err = bus.Publish(context.Background(), domain.NewTokenMinted(0, 1))
	require.Error(t, err)
}
