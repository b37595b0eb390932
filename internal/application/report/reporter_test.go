package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/application/report"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/internal/testutil"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	A = testutil.StoreA
	B = testutil.StoreB
	E = testutil.EdgeE
	P = testutil.ProductP
	Q = testutil.ProductQ
)

type fixture struct {
	env       *testutil.Env
	sales     *sale.Service
	transfers *transfer.Service
}

func newFixture(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	l := ledger.New(env.Store, env.Clock, logger.Nop())
	return &fixture{
		env:       env,
		sales:     sale.NewService(env.Store, l, access.NewGuard(), env.Clock, logger.Nop()),
		transfers: transfer.NewService(env.Store, l, access.NewGuard(), env.Clock, logger.Nop()),
	}
}

func (f *fixture) reporter(cfg report.Config) *report.Reporter {
	return report.NewReporter(f.env.Store, access.NewGuard(), f.env.Clock, logger.Nop(), cfg)
}

func (f *fixture) sell(t *testing.T, store, key, product string, qty int64, price string) *entity.Sale {
	t.Helper()
	res, err := f.sales.ApplySale(context.Background(), testutil.CentralActor(), sale.ApplyInput{
		StoreID: store, ClientKey: key,
		Lines: []entity.SaleLine{{ProductID: product, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}},
	})
	if err != nil && !errors.Is(err, domain.ErrInsufficientStock) {
		require.NoError(t, err)
	}
	return res.Sale
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSalesTotals_OnlyAppliedSales(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.env.SetStock(t, B, Q, 10)
	f.sell(t, A, "a1", P, 3, "5.00")
	f.sell(t, B, "b1", Q, 2, "2.50")
	f.sell(t, B, "b-short", Q, 50, "2.50")
	voided := f.sell(t, A, "a-void", P, 1, "5.00")
	_, err := f.sales.VoidSale(context.Background(), testutil.CentralActor(), voided.ID)
	require.NoError(t, err)

	out, err := f.reporter(report.Config{}).SalesTotals(context.Background(), testutil.CentralActor(), report.Range{}, report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, A, out.Items[0].StoreID)
	assert.True(t, dec("15").Equal(out.Items[0].Total))
	assert.Equal(t, B, out.Items[1].StoreID)
	assert.True(t, dec("5").Equal(out.Items[1].Total))
	assert.Equal(t, 2, out.GlobalCount)
	assert.True(t, dec("20").Equal(out.GlobalTotal))
	assert.Empty(t, out.NextToken)
	assert.Equal(t, out.GeneratedAt, out.AsOf)
}

func TestSalesTotals_StalenessBoundHidesRecentSales(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.sell(t, A, "a1", P, 1, "5.00")

	out, err := f.reporter(report.Config{StalenessBound: time.Hour}).SalesTotals(context.Background(), testutil.CentralActor(), report.Range{}, report.Page{})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, out.GeneratedAt.Add(-time.Hour), out.AsOf)
}

func TestSalesTotals_RangeExcludesEarlierSales(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.sell(t, A, "early", P, 1, "5.00")
	cut := f.env.Clock.Now()
	f.sell(t, A, "late", P, 2, "5.00")

	out, err := f.reporter(report.Config{}).SalesTotals(context.Background(), testutil.CentralActor(), report.Range{From: cut}, report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, 1, out.Items[0].SaleCount)
	assert.True(t, dec("10").Equal(out.Items[0].Total))
}

func TestInventoryValuation_ExcludesTransit(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.env.SetStock(t, B, Q, 4)
	res, err := f.transfers.Create(context.Background(), testutil.CentralActor(), transfer.CreateInput{
		SourceStoreID: A, DestStoreID: B, Lines: []entity.TransferLine{{ProductID: P, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = f.transfers.Dispatch(context.Background(), testutil.CentralActor(), res.Transfer.ID)
	require.NoError(t, err)

	out, err := f.reporter(report.Config{}).InventoryValuation(context.Background(), testutil.CentralActor(), report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, A, out.Items[0].StoreID)
	assert.Equal(t, int64(8), out.Items[0].Units)
	assert.True(t, dec("40").Equal(out.Items[0].Value))
	assert.True(t, dec("10").Equal(out.Items[1].Value))
	assert.Equal(t, int64(12), out.GlobalUnits)
	assert.True(t, dec("50").Equal(out.GlobalValue))
}

func TestInventoryValuation_ReconstructsAtAsOf(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.env.Clock.Advance(2 * time.Hour)
	f.sell(t, A, "later", P, 4, "5.00")

	out, err := f.reporter(report.Config{StalenessBound: time.Hour}).InventoryValuation(context.Background(), testutil.CentralActor(), report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, int64(10), out.Items[0].Units)
}

func TestTopProducts_RankedByRevenue(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 10)
	f.env.SetStock(t, A, Q, 10)
	f.sell(t, A, "p", P, 1, "5.00")
	f.sell(t, A, "q", Q, 4, "2.50")

	r := f.reporter(report.Config{})
	out, err := r.TopProducts(context.Background(), testutil.CentralActor(), report.Range{}, 0, report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, Q, out.Items[0].ProductID)
	assert.Equal(t, int64(4), out.Items[0].Units)
	assert.True(t, dec("10").Equal(out.Items[0].Revenue))

	top1, err := r.TopProducts(context.Background(), testutil.CentralActor(), report.Range{}, 1, report.Page{})
	require.NoError(t, err)
	require.Len(t, top1.Items, 1)
	assert.Equal(t, "SKU-Q", top1.Items[0].SKU)
}

func TestLowStock_UsesProductOverride(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 6)
	f.env.SetStock(t, B, P, 5)
	f.env.SetStock(t, B, Q, 9)
	f.env.SetStock(t, E, Q, 11)

	r := f.reporter(report.Config{LowStockThreshold: 5})
	out, err := r.LowStock(context.Background(), testutil.CentralActor(), "", report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, B, out.Items[0].StoreID)
	assert.Equal(t, Q, out.Items[0].ProductID)
	assert.Equal(t, int64(10), out.Items[0].Threshold)
	assert.Equal(t, P, out.Items[1].ProductID)
	assert.Equal(t, int64(5), out.Items[1].Threshold)

	onlyA, err := r.LowStock(context.Background(), testutil.CentralActor(), A, report.Page{})
	require.NoError(t, err)
	assert.Empty(t, onlyA.Items)
}

func TestTransferThroughput(t *testing.T) {
	f := newFixture(t)
	f.env.SetStock(t, A, P, 20)
	ctx := context.Background()
	admin := testutil.CentralActor()
	create := func(id string, qty int64) {
		_, err := f.transfers.Create(ctx, admin, transfer.CreateInput{
			TransferID: id, SourceStoreID: A, DestStoreID: B, Lines: []entity.TransferLine{{ProductID: P, Quantity: qty}},
		})
		require.NoError(t, err)
	}
	create("T1", 3)
	create("T2", 2)
	create("T3", 5)
	for _, id := range []string{"T1", "T2", "T3"} {
		_, err := f.transfers.Dispatch(ctx, admin, id)
		require.NoError(t, err)
	}
	_, err := f.transfers.Receive(ctx, admin, "T1")
	require.NoError(t, err)
	_, err = f.transfers.Cancel(ctx, admin, "T3")
	require.NoError(t, err)

	out, err := f.reporter(report.Config{}).TransferThroughput(ctx, admin, report.Range{}, report.Page{})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	row := out.Items[0]
	assert.Equal(t, 1, row.ReceivedCount)
	assert.Equal(t, int64(3), row.ReceivedUnits)
	assert.Equal(t, int64(2), row.InTransitUnits)
}

func TestPagination_TokenPinsAsOf(t *testing.T) {
	f := newFixture(t)
	for _, s := range []string{A, B, E} {
		f.env.SetStock(t, s, P, 10)
	}
	f.sell(t, A, "a", P, 3, "5.00")
	f.sell(t, B, "b", P, 2, "5.00")
	f.sell(t, E, "e", P, 1, "5.00")
	r := f.reporter(report.Config{})
	admin := testutil.CentralActor()

	first, err := r.SalesTotals(context.Background(), admin, report.Range{}, report.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextToken)
	assert.Equal(t, []string{A, B}, []string{first.Items[0].StoreID, first.Items[1].StoreID})

	// una venta posterior al asOf fijado no altera la segunda página
	f.sell(t, E, "e2", P, 9, "5.00")

	second, err := r.SalesTotals(context.Background(), admin, report.Range{}, report.Page{Limit: 2, Token: first.NextToken})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, E, second.Items[0].StoreID)
	assert.True(t, dec("5").Equal(second.Items[0].Total))
	assert.True(t, first.AsOf.Equal(second.AsOf))
	assert.Empty(t, second.NextToken)
}

func TestReports_AccessAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reporter(report.Config{}).SalesTotals(ctx, testutil.StoreActor("c", A), report.Range{}, report.Page{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.reporter(report.Config{}).LowStock(ctx, testutil.CentralActor(), "", report.Page{Token: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	broken := report.NewReporter(failingRunner{}, access.NewGuard(), f.env.Clock, logger.Nop(), report.Config{})
	_, err = broken.InventoryValuation(ctx, testutil.CentralActor(), report.Page{})
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, func(repository.Tx) error) error {
	return errors.New("sin conexión")
}

func (failingRunner) ReadOnly(context.Context, func(repository.Tx) error) error {
	return errors.New("sin conexión")
}
