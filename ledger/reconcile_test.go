package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopstack/farm-ledger/ledger"
	"github.com/coopstack/farm-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testFarm = ledger.FarmID("farm-1")
	testDay  = ledger.NewDateKey(2026, time.March, 14)
)

// cartonCatalog pairs the simple and printable cartons as mutual lenders.
type cartonCatalog struct{}

func (cartonCatalog) Category(_ context.Context, id ledger.ProductID) (ledger.ProductCategory, error) {
	switch id {
	case "carton-simple":
		return ledger.CategorySimple, nil
	case "carton-print":
		return ledger.CategoryPrintable, nil
	default:
		return ledger.CategoryOther, nil
	}
}

func (cartonCatalog) Lender(_ context.Context, _ ledger.FarmID, product ledger.ProductID) (ledger.ProductID, bool, error) {
	switch product {
	case "carton-simple":
		return "carton-print", true, nil
	case "carton-print":
		return "carton-simple", true, nil
	default:
		return "", false, nil
	}
}

// fixedMode reports the same mode for every farm.
type fixedMode ledger.FarmMode

func (m fixedMode) Mode(context.Context, ledger.FarmID) (ledger.FarmMode, error) {
	return ledger.FarmMode(m), nil
}

type fixture struct {
	svc      *ledger.Service
	replayer *ledger.Replayer
	stats    *store.StatisticMemory
	invoices *store.InvoiceMemory
	queue    *store.QueueMemory
	remote   *store.RemoteMemory
}

func newFixture(t *testing.T, mode ledger.FarmMode) *fixture {
	t.Helper()

	fx := &fixture{
		stats:    store.NewStatisticMemory(),
		invoices: store.NewInvoiceMemory(),
		queue:    store.NewQueueMemory(),
		remote:   store.NewRemoteMemory(),
	}
	fx.svc = ledger.NewService(ledger.ServiceOptions{
		Statistics: fx.stats,
		Invoices:   fx.invoices,
		Remote:     fx.remote,
		Queue:      fx.queue,
		Catalog:    cartonCatalog{},
		Modes:      fixedMode(mode),
		Identity:   ledger.StaticIdentity{Actor: ledger.Actor{ID: "op-1", Name: "Tester", Role: "operator"}},
	})
	fx.replayer = ledger.NewReplayer(fx.queue, fx.svc, nil)
	return fx
}

// seedStatistic upserts a carry-forward statistic through the service while
// the remote is reachable and returns the synced record.
func seedStatistic(t *testing.T, fx *fixture, product ledger.ProductID, previous, production int64) ledger.StatisticRecord {
	t.Helper()

	rec, state, err := fx.svc.UpsertStatistic(context.Background(), ledger.StatisticInput{
		Farm:            testFarm,
		Date:            testDay,
		Product:         product,
		PreviousBalance: ledger.NewQuantity(previous, float64(previous)),
		Production:      ledger.NewQuantity(production, float64(production)),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)
	return rec
}

func queueLen(t *testing.T, fx *fixture) int {
	t.Helper()
	items, err := fx.queue.List(context.Background())
	require.NoError(t, err)
	return len(items)
}

// =============================================================================
// STATISTIC WRITE TESTS
// =============================================================================

func TestUpsertStatistic_CarryForwardDerivesInventory(t *testing.T) {
	// GIVEN: A carry-forward farm with no recorded sales
	// WHEN: Upserting previous balance 2 and production 8
	// THEN: Current inventory derives to 10 and the record syncs

	fx := newFixture(t, ledger.ModeCarryForward)

	rec := seedStatistic(t, fx, "carton-simple", 2, 8)

	assert.EqualValues(t, 10, rec.CurrentInventory.Cartons)
	assert.Equal(t, "op-1", rec.Creator)
	assert.Equal(t, ledger.StatusSynced, fx.svc.Arena().Status(string(rec.ID)))

	// Remote holds the same record under the id it assigned.
	server, err := fx.remote.Stats.GetByKey(context.Background(),
		ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, server.ID)
}

func TestUpsertStatistic_DeclaredStockBackDerivesProduction(t *testing.T) {
	// GIVEN: A declared-stock farm with 4 cartons already sold today
	// WHEN: The operator declares 12 cartons physically on hand
	// THEN: Previous balance is zero, production back-derives to 16, and the
	//       invariant yields exactly the declared stock

	fx := newFixture(t, ledger.ModeDeclaredStock)
	ctx := context.Background()

	rec, state, err := fx.svc.UpsertStatistic(ctx, ledger.StatisticInput{
		Farm:          testFarm,
		Date:          testDay,
		Product:       "carton-simple",
		DeclaredStock: ledger.NewQuantity(100, 100),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)

	_, state, err = fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 4,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)

	rec, state, err = fx.svc.UpsertStatistic(ctx, ledger.StatisticInput{
		Farm:          testFarm,
		Date:          testDay,
		Product:       "carton-simple",
		DeclaredStock: ledger.NewQuantity(12, 12),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)

	assert.EqualValues(t, 0, rec.PreviousBalance.Cartons)
	assert.EqualValues(t, 16, rec.Production.Cartons)
	assert.EqualValues(t, 12, rec.CurrentInventory.Cartons)
}

func TestUpsertStatistic_ReplacesOnNaturalKey(t *testing.T) {
	// GIVEN: A statistic already synced for (farm, day, product)
	// WHEN: Upserting the same natural key with new figures
	// THEN: The record is replaced in place, keeping id and creation time

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	first := seedStatistic(t, fx, "carton-simple", 0, 5)
	second := seedStatistic(t, fx, "carton-simple", 0, 9)

	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 9, second.CurrentInventory.Cartons)

	day, err := fx.remote.Stats.ListDay(ctx, testFarm, testDay)
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestUpdateStatistic_RejectsCapacityBelowUsage(t *testing.T) {
	// GIVEN: A statistic with production 10 and 7 cartons already invoiced
	// WHEN: Editing production down to 5
	// THEN: The edit guard rejects the write and local state is unchanged

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := seedStatistic(t, fx, "carton-simple", 0, 10)
	_, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-7", Cartons: 7,
	})
	require.NoError(t, err)

	_, _, err = fx.svc.UpdateStatistic(ctx, rec.ID, ledger.StatisticInput{
		Production: ledger.NewQuantity(5, 5),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.EqualValues(t, 7, stockErr.Requested)
	assert.EqualValues(t, 5, stockErr.Available)

	// Nothing reached the queue: validation failures are surfaced, not queued.
	assert.Zero(t, queueLen(t, fx))

	kept, err := fx.stats.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, kept.Production.Cartons)
}

func TestDeleteStatistic_RejectsWithDependentUsage(t *testing.T) {
	// GIVEN: A statistic with invoices recorded against it
	// WHEN: Deleting the statistic
	// THEN: The dependent-usage guard rejects the delete

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := seedStatistic(t, fx, "carton-simple", 0, 10)
	_, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-3", Cartons: 3,
	})
	require.NoError(t, err)

	_, err = fx.svc.DeleteStatistic(ctx, rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDependentUsage)

	var depErr *ledger.DependentUsageError
	require.ErrorAs(t, err, &depErr)
	assert.EqualValues(t, 3, depErr.Usage)

	// Record survives the rejected delete.
	_, err = fx.stats.Get(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestDeleteStatistic_SucceedsWithoutUsage(t *testing.T) {
	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	rec := seedStatistic(t, fx, "carton-simple", 0, 10)

	state, err := fx.svc.DeleteStatistic(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitSynced, state)

	_, err = fx.stats.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ledger.ErrStatisticNotFound)
	_, err = fx.remote.Stats.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, ledger.ErrStatisticNotFound)
}

// =============================================================================
// CONVERSION POLICY TESTS
// =============================================================================

func TestCreateInvoice_PlainWhenStockCovers(t *testing.T) {
	// GIVEN: 10 simple cartons on hand
	// WHEN: Selling 4
	// THEN: A plain invoice, inventory drops to 6 locally and on the server

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 2, 8)

	inv, state, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-10", Cartons: 4, Driver: "D. Driver", Plate: "AB-123",
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)

	assert.False(t, inv.IsConverted)
	assert.EqualValues(t, 4, inv.DirectCartons())

	local, err := fx.stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 6, local.CurrentInventory.Cartons)

	server, err := fx.remote.Stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 6, server.CurrentInventory.Cartons)
}

func TestCreateInvoice_ConvertsDeficitFromSibling(t *testing.T) {
	// GIVEN: 5 simple cartons and 10 printable cartons on hand
	// WHEN: Selling 8 simple cartons
	// THEN: One converted invoice borrows 3 from the printable lender;
	//       simple inventory lands on 0 and printable on 7

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 5)
	seedStatistic(t, fx, "carton-print", 0, 10)

	inv, state, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-8", Cartons: 8,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CommitSynced, state)

	assert.True(t, inv.IsConverted)
	assert.Equal(t, ledger.ProductID("carton-print"), inv.SourceProduct)
	assert.EqualValues(t, 3, inv.ConvertedAmount)
	assert.EqualValues(t, 5, inv.DirectCartons())

	simple, err := fx.stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, simple.CurrentInventory.Cartons)

	print, err := fx.stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-print"})
	require.NoError(t, err)
	assert.EqualValues(t, 7, print.CurrentInventory.Cartons)
}

func TestCreateInvoice_ReportsBothShortfalls(t *testing.T) {
	// GIVEN: 5 simple cartons and only 2 printable cartons
	// WHEN: Selling 8 simple cartons (deficit 3, lender covers 2)
	// THEN: The error carries both the requested shortfall and the lender's

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 5)
	seedStatistic(t, fx, "carton-print", 0, 2)

	_, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-8", Cartons: 8,
	})
	require.Error(t, err)

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.EqualValues(t, 8, stockErr.Requested)
	assert.EqualValues(t, 5, stockErr.Available)
	assert.Equal(t, ledger.ProductID("carton-print"), stockErr.Lender)
	assert.EqualValues(t, 3, stockErr.Deficit)
	assert.EqualValues(t, 2, stockErr.LenderAvailable)

	// Nothing was written anywhere.
	day, err := fx.invoices.ListDay(ctx, testFarm, testDay)
	require.NoError(t, err)
	assert.Empty(t, day)
	assert.Zero(t, queueLen(t, fx))
}

func TestCreateInvoice_NoLenderForOtherCategory(t *testing.T) {
	// GIVEN: A product outside the carton pair with too little stock
	// WHEN: Selling more than is on hand
	// THEN: Insufficient stock with no lender named

	fx := newFixture(t, ledger.ModeCarryForward)

	seedStatistic(t, fx, "feed-bag", 0, 2)

	_, _, err := fx.svc.CreateInvoiceWithConversion(context.Background(), ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "feed-bag",
		Number: "INV-9", Cartons: 5,
	})
	require.Error(t, err)

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Empty(t, stockErr.Lender)
}

func TestCreateInvoice_RejectsDuplicateNumberForProduct(t *testing.T) {
	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 10)

	_, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 2,
	})
	require.NoError(t, err)

	_, _, err = fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateInvoiceNumber)
}

func TestCreateInvoice_RequiresStatistic(t *testing.T) {
	// No statistic for the day means there is no stock to sell against.
	fx := newFixture(t, ledger.ModeCarryForward)

	_, _, err := fx.svc.CreateInvoiceWithConversion(context.Background(), ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-1", Cartons: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrStatisticNotFound)
}

func TestDeleteInvoice_RestoresInventory(t *testing.T) {
	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 10)
	inv, _, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-4", Cartons: 4,
	})
	require.NoError(t, err)

	state, err := fx.svc.DeleteInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitSynced, state)

	local, err := fx.stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 10, local.CurrentInventory.Cartons)
}

// =============================================================================
// OFFLINE ROUTING TESTS
// =============================================================================

func TestUpsertStatistic_QueuesWhenRemoteUnreachable(t *testing.T) {
	// GIVEN: The remote store is unreachable
	// WHEN: Upserting a statistic
	// THEN: The write lands locally, the mutation is queued, and the caller
	//       sees a queued commit rather than a failure

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()
	fx.remote.SetOnline(false)

	rec, state, err := fx.svc.UpsertStatistic(ctx, ledger.StatisticInput{
		Farm:       testFarm,
		Date:       testDay,
		Product:    "carton-simple",
		Production: ledger.NewQuantity(10, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitQueued, state)
	assert.Equal(t, ledger.StatusOffline, fx.svc.Arena().Status(string(rec.ID)))

	items, err := fx.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ledger.OpUpsertStatistic, items[0].Op)

	local, err := fx.stats.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, local.CurrentInventory.Cartons)
}

func TestCreateInvoice_QueuesWhenRemoteUnreachable(t *testing.T) {
	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	seedStatistic(t, fx, "carton-simple", 0, 10)
	fx.remote.SetOnline(false)

	inv, state, err := fx.svc.CreateInvoiceWithConversion(ctx, ledger.InvoiceRequest{
		Farm: testFarm, Date: testDay, Product: "carton-simple",
		Number: "INV-5", Cartons: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.CommitQueued, state)
	assert.Equal(t, ledger.StatusOffline, fx.svc.Arena().Status(string(inv.ID)))

	// The local statistic already reflects the queued sale.
	local, err := fx.stats.GetByKey(ctx, ledger.StatisticKey{Farm: testFarm, Date: testDay, Product: "carton-simple"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, local.CurrentInventory.Cartons)
	assert.Equal(t, 1, queueLen(t, fx))
}

func TestUpdateStatistic_RollsBackOnHardRemoteFailure(t *testing.T) {
	// GIVEN: A local statistic the remote store has never seen
	// WHEN: Updating it and the remote rejects with a non-transient error
	// THEN: The optimistic write is discarded and the previous state restored

	fx := newFixture(t, ledger.ModeCarryForward)
	ctx := context.Background()

	prev := ledger.StatisticRecord{
		ID:         "ghost",
		Farm:       testFarm,
		Date:       testDay,
		Product:    "carton-simple",
		Production: ledger.NewQuantity(10, 10),
	}
	require.NoError(t, fx.stats.Insert(ctx, prev))

	_, _, err := fx.svc.UpdateStatistic(ctx, prev.ID, ledger.StatisticInput{
		Production: ledger.NewQuantity(4, 4),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStatisticNotFound)
	assert.Equal(t, ledger.StatusRolledBack, fx.svc.Arena().Status("ghost"))
	assert.Zero(t, queueLen(t, fx))

	kept, err := fx.stats.Get(ctx, prev.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, kept.Production.Cartons)
}
