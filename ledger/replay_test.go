package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopstack/farm-ledger/ledger"
)

// =============================================================================
// DRAIN TESTS
// =============================================================================

func TestDrain_AppliesQueuedMutationsInOrder(t *testing.T) {
	// GIVEN: A statistic upsert queued before its dependent invoice, both
	//        entered while the remote was unreachable
	// WHEN: Connectivity returns and the queue drains
	// THEN: The statistic lands first, the invoice second, and the server
	//       inventory reflects both

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()
	fx.remote.SetOnline(false)

	_, state, err := fx.svc.UpsertStatistic(ctx, ledger.StatisticInput{
		Farm:            testFarm,
		Date:            testDay,
		Product:         "carton-simple",
		PreviousBalance: ledger.NewQuantity(2, 2),
		Production:      ledger.NewQuantity(8, 8),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitQueued, state)

	_, state, err = fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 4,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitQueued, state)
	require.Equal(t, 2, queueLen(t, fx))

	fx.remote.SetOnline(true)
	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Applied)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Remaining)
	assert.Empty(t, report.Conflicts)

	server, err := fx.remote.Stats.GetByKey(ctx,
		ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 6, server.CurrentInventory.Cartons)

	day, err := fx.remote.Invoices.ListDay(ctx, testFarm, testDay)
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "INV-1", day[0].Number)
}

func TestDrain_StopsOnTransientFailure(t *testing.T) {
	// GIVEN: Queued mutations and a still-unreachable remote
	// WHEN: Draining
	// THEN: Nothing applies, nothing is lost, and the drain reports the
	//       remaining backlog without error

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()
	fx.remote.SetOnline(false)

	for _, product := range []ledger.ProductID{"carton-simple", "carton-print"} {
		_, state, err := fx.svc.UpsertStatistic(ctx, ledger.StatisticInput{
			Farm:       testFarm,
			Date:       testDay,
			Product:    product,
			Production: ledger.NewQuantity(5, 5),
		})
		require.NoError(t, err)
		require.Equal(t, ledger.CommitQueued, state)
	}

	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Applied)
	assert.Equal(t, 2, report.Remaining)
	assert.Equal(t, 2, queueLen(t, fx))
}

func TestDrain_ConflictCountsAsApplied(t *testing.T) {
	// GIVEN: A queued invoice whose (number, product) already landed on the
	//        server through a previous partial drain
	// WHEN: Draining again
	// THEN: The conflict is treated as already-applied; the server holds
	//       exactly one document

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 10)
	inv, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 4,
	})
	require.NoError(t, err)

	// Re-queue the same document, as a crashed drain would leave behind.
	_, err = fx.queue.Enqueue(ctx, ledger.OpInsertInvoice, ledger.Payload{Invoice: &inv})
	require.NoError(t, err)

	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Applied)
	assert.Zero(t, report.Failed)
	assert.Zero(t, queueLen(t, fx))

	day, err := fx.remote.Invoices.ListDay(ctx, testFarm, testDay)
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestDrain_GuardRejectionSurfacesAsConflict(t *testing.T) {
	// GIVEN: A queued invoice for a product with no statistic on the server
	// WHEN: Draining
	// THEN: The item is removed and surfaced as a conflict for manual
	//       resolution rather than silently dropped or retried forever

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	orphan := ledger.InvoiceRecord{
		ID:           "local-orphan",
		Number:       "INV-99",
		Farm:         testFarm,
		Date:         testDay,
		Product:      "carton-simple",
		TotalCartons: 3,
	}
	_, err := fx.queue.Enqueue(ctx, ledger.OpInsertInvoice, ledger.Payload{Invoice: &orphan})
	require.NoError(t, err)

	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Applied)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, ledger.OpInsertInvoice, report.Conflicts[0].Item.Op)
	assert.Contains(t, report.Conflicts[0].Reason, "no statistic")
	assert.Zero(t, queueLen(t, fx))
}

func TestDrain_RevalidatesAgainstCurrentServerState(t *testing.T) {
	// GIVEN: An invoice queued offline against stock that another client has
	//        since consumed on the server
	// WHEN: Draining
	// THEN: The guard re-runs against server state and rejects the item

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 10)

	fx.remote.SetOnline(false)
	_, state, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 8,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitQueued, state)

	// Another client sells 7 cartons directly on the server meanwhile.
	fx.remote.SetOnline(true)
	_, err = fx.remote.InsertInvoices(ctx, []ledger.InvoiceRecord{{
		Number:       "INV-OTHER",
		Farm:         testFarm,
		Date:         testDay,
		Product:      "carton-simple",
		TotalCartons: 7,
	}})
	require.NoError(t, err)

	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Conflicts, 1)
	assert.Contains(t, report.Conflicts[0].Reason, "insufficient stock")
}

func TestDrain_DeleteStatisticReRunsDependentUsageGuard(t *testing.T) {
	// GIVEN: A statistic deletion queued offline, after which another client
	//        records a sale against that statistic directly on the server
	// WHEN: Draining
	// THEN: The dependent-usage guard re-runs against server state, the
	//       delete is rejected as a conflict, and the server record survives

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := seedStatistic(t, fx, "carton-simple", 0, 10)

	fx.remote.SetOnline(false)
	state, err := fx.svc.DeleteStatistic(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.CommitQueued, state)
	require.Equal(t, 1, queueLen(t, fx))

	// Another client sells 3 cartons directly on the server meanwhile.
	fx.remote.SetOnline(true)
	_, err = fx.remote.InsertInvoices(ctx, []ledger.InvoiceRecord{{
		Number:       "INV-OTHER",
		Farm:         testFarm,
		Date:         testDay,
		Product:      "carton-simple",
		TotalCartons: 3,
	}})
	require.NoError(t, err)

	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Zero(t, report.Applied)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, ledger.OpDeleteStatistic, report.Conflicts[0].Item.Op)
	assert.Contains(t, report.Conflicts[0].Reason, "recorded usage")
	assert.Zero(t, queueLen(t, fx))

	server, err := fx.remote.Stats.GetByKey(ctx,
		ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, rec.ID, server.ID)
}

func TestDrain_DeleteStatisticAppliesWhenStillUnused(t *testing.T) {
	// GIVEN: A statistic deletion queued offline with no sales recorded
	//        anywhere in the meantime
	// WHEN: Draining
	// THEN: The guard passes against server state and the delete lands

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := seedStatistic(t, fx, "carton-simple", 0, 10)

	fx.remote.SetOnline(false)
	state, err := fx.svc.DeleteStatistic(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.CommitQueued, state)

	fx.remote.SetOnline(true)
	report, err := fx.replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Applied)
	assert.Zero(t, report.Failed)
	assert.Zero(t, queueLen(t, fx))

	_, err = fx.remote.Stats.GetByKey(ctx,
		ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	assert.ErrorIs(t, err, ledger.ErrStatisticNotFound)
}

func TestDrain_FlagsStaleItems(t *testing.T) {
	// GIVEN: An item sitting in the queue past the retention window while the
	//        remote stays unreachable
	// WHEN: Draining
	// THEN: The item is flagged for operator review, never auto-discarded

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := ledger.StatisticRecord{
		ID: "stale-1", Farm: testFarm, Date: testDay, Product: "carton-simple",
		Production: ledger.NewQuantity(5, 5),
	}
	aged := &agedQueue{item: mustQueueItem(t, ledger.OpUpsertStatistic, ledger.Payload{Statistic: &rec})}
	replayer := ledger.NewReplayer(aged, fx.svc, nil)

	fx.remote.SetOnline(false)
	report, err := replayer.Drain(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Remaining)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, aged.item.ID, report.Stale[0].ID)
}

// =============================================================================
// TEST DOUBLES
// =============================================================================

// agedQueue holds one item enqueued longer ago than the retention window.
type agedQueue struct {
	item    ledger.QueueItem
	removed bool
}

func mustQueueItem(t *testing.T, op ledger.Operation, p ledger.Payload) ledger.QueueItem {
	t.Helper()
	raw, err := ledger.EncodePayload(p)
	require.NoError(t, err)
	return ledger.QueueItem{
		ID:         "aged-1",
		Seq:        1,
		Op:         op,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC().Add(-ledger.RetentionWindow - time.Hour),
	}
}

func (q *agedQueue) Enqueue(context.Context, ledger.Operation, ledger.Payload) (ledger.QueueItem, error) {
	return ledger.QueueItem{}, nil
}

func (q *agedQueue) List(context.Context) ([]ledger.QueueItem, error) {
	if q.removed {
		return nil, nil
	}
	return []ledger.QueueItem{q.item}, nil
}

func (q *agedQueue) Remove(_ context.Context, id string) error {
	if id == q.item.ID {
		q.removed = true
	}
	return nil
}

func (q *agedQueue) MarkAttempt(_ context.Context, id string) error {
	if id == q.item.ID {
		q.item.Attempts++
	}
	return nil
}
