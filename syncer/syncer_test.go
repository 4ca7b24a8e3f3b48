package syncer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopstack/farm-ledger/config"
	"github.com/coopstack/farm-ledger/ledger"
	"github.com/coopstack/farm-ledger/ledger/store"
	"github.com/coopstack/farm-ledger/syncer"
)

// =============================================================================
// PROBER TESTS
// =============================================================================

func TestProber_PublishesTransitions(t *testing.T) {
	// GIVEN: A probe that starts failing and then recovers
	// WHEN: The prober polls it
	// THEN: Exactly the offline->online edge is published

	var online atomic.Bool
	probe := func(ctx context.Context) error {
		if online.Load() {
			return nil
		}
		return errors.New("unreachable")
	}

	p := syncer.NewProber(probe, 10*time.Millisecond, nil)
	p.Start()
	defer p.Stop()

	assert.Equal(t, ledger.ConnOffline, p.State())

	online.Store(true)
	select {
	case state := <-p.Transitions():
		assert.Equal(t, ledger.ConnOnline, state)
	case <-time.After(2 * time.Second):
		t.Fatal("no transition published")
	}
	assert.Equal(t, ledger.ConnOnline, p.State())
}

// =============================================================================
// SYNCER TESTS
// =============================================================================

type fakeConn struct {
	ch chan ledger.ConnState
}

func (f *fakeConn) State() ledger.ConnState              { return ledger.ConnOnline }
func (f *fakeConn) Transitions() <-chan ledger.ConnState { return f.ch }

type staticCatalog struct{}

func (staticCatalog) Category(ctx context.Context, id ledger.ProductID) (ledger.ProductCategory, error) {
	return ledger.CategorySimple, nil
}
func (staticCatalog) Lender(ctx context.Context, farm ledger.FarmID, product ledger.ProductID) (ledger.ProductID, bool, error) {
	return "", false, nil
}

type staticModes struct{}

func (staticModes) Mode(ctx context.Context, farm ledger.FarmID) (ledger.FarmMode, error) {
	return ledger.ModeCarryForward, nil
}

func TestSyncer_DrainsOnConnectivityRestored(t *testing.T) {
	// GIVEN: A queued statistic upsert and a reachable remote
	// WHEN: The connectivity watcher sees the link come back
	// THEN: The queue drains and the record lands on the remote

	ctx := context.Background()
	queue := store.NewQueueMemory()
	remote := store.NewRemoteMemory()

	day := ledger.NewDateKey(2026, time.March, 10)
	stat := ledger.StatisticRecord{
		ID:               "tmp-1",
		Farm:             "farm-1",
		Date:             day,
		Product:          "carton-simple",
		Production:       ledger.Quantity{Cartons: 10, Weight: decimal.NewFromInt(100)},
		CurrentInventory: ledger.Quantity{Cartons: 10, Weight: decimal.NewFromInt(100)},
	}
	_, err := queue.Enqueue(ctx, ledger.OpUpsertStatistic, ledger.Payload{Statistic: &stat})
	require.NoError(t, err)

	svc := ledger.NewService(ledger.ServiceOptions{
		Statistics: store.NewStatisticMemory(),
		Invoices:   store.NewInvoiceMemory(),
		Remote:     remote,
		Queue:      queue,
		Catalog:    staticCatalog{},
		Modes:      staticModes{},
		Identity:   ledger.StaticIdentity{Actor: ledger.Actor{ID: "op-1", Name: "Tester"}},
	})
	replayer := ledger.NewReplayer(queue, svc, nil)

	conn := &fakeConn{ch: make(chan ledger.ConnState, 1)}
	s, err := syncer.New(config.Sync{CronSchedule: "@yearly", Timezone: "UTC"}, replayer, conn, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	conn.ch <- ledger.ConnOnline

	require.Eventually(t, func() bool {
		items, err := queue.List(ctx)
		return err == nil && len(items) == 0
	}, 2*time.Second, 10*time.Millisecond, "queue should drain after the online edge")

	res, err := remote.Fetch(ctx, ledger.FetchFilter{Farm: "farm-1", From: day, To: day})
	require.NoError(t, err)
	require.Len(t, res.Statistics, 1)
	assert.Equal(t, int64(10), res.Statistics[0].Production.Cartons)
}
