package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type billingFixture struct {
	svc    IBillingService
	stores store.Stores
	clock  *testClock
	client *models.Client
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	stores := store.NewMemoryStores()
	clock := &testClock{now: time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)}
	cfg := &config.Config{BillingCurrency: "PKR", BillingGenerateConcurrency: 4}
	svc := NewBillingService(stores, NewInvoiceNumberAllocator(stores.Ledger, stores.Sequences), cfg,
		WithClock(clock.Now), WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))

	client, err := stores.Clients.Create(context.Background(), &models.Client{
		Name: "Ali Raza", Phone: "+923001234567", Email: "ali@example.com", Type: models.ClientIndividual, IsActive: true,
	})
	require.NoError(t, err)
	return &billingFixture{svc: svc, stores: stores, clock: clock, client: client}
}

func (f *billingFixture) addVehicle(t *testing.T, chassis string, fee float64, mutate ...func(*models.Vehicle)) *models.Vehicle {
	t.Helper()
	owner := f.client.ID
	purchase := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	v := &models.Vehicle{
		ChassisNumber: chassis,
		Brand:         "Toyota",
		Model:         "Corolla",
		Owner:         &owner,
		Status:        models.VehicleAvailable,
		PurchaseDate:  &purchase,
		IsActive:      true,
		MonthlyFee:    fee,
	}
	for _, m := range mutate {
		m(v)
	}
	created, err := f.stores.Vehicles.Create(context.Background(), v)
	require.NoError(t, err)
	return created
}

func TestEnsureMonthlyInvoice_CreatesThenReturnsExisting(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)

	first, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "manager-1")
	require.NoError(t, err)
	assert.True(t, first.Created)
	inv := first.Invoice
	assert.Equal(t, "INV-202410-0001", inv.InvoiceNumber)
	assert.Equal(t, models.TransactionRental, inv.Type)
	assert.Equal(t, 10000.0, inv.BaseAmount)
	assert.Equal(t, 10000.0, inv.TotalAmount)
	assert.Equal(t, 10000.0, inv.BalanceAmount)
	assert.Equal(t, 10, inv.CycleAnchorDay)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, models.StatusOverdue, inv.Status, "due date already passed on the clock")
	assert.Equal(t, "PKR", inv.Currency)
	assert.Equal(t, "manager-1", inv.CreatedBy)
	require.NotNil(t, inv.ClientInfo)
	assert.Equal(t, "Ali Raza", inv.ClientInfo.Name)
	require.NotNil(t, inv.VehicleInfo)
	assert.Equal(t, "CH-1", inv.VehicleInfo.ChassisNumber)
	assert.Equal(t, "Ali Raza", inv.VehicleInfo.OwnerName)

	second, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "manager-2")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, inv.ID, second.Invoice.ID)
	assert.Equal(t, "INV-202410-0001", second.Invoice.InvoiceNumber)
	assert.Equal(t, "manager-1", second.Invoice.CreatedBy)
	assert.Equal(t, "manager-2", second.Invoice.UpdatedBy)

	_, total, err := f.stores.Ledger.List(ctx, store.InvoiceFilter{}, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestEnsureMonthlyInvoice_ConcurrentCallsCreateOnce(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)

	const callers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[utils.SixID]bool{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "manager-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Created {
				created++
			}
			ids[res.Invoice.ID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	_, total, err := f.stores.Ledger.List(ctx, store.InvoiceFilter{BillingPeriod: "2024-11"}, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestEnsureMonthlyInvoice_Eligibility(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.Vehicle)
		wantErr error
	}{
		{"inactive", func(v *models.Vehicle) { v.IsActive = false }, billing.ErrVehicleInactive},
		{"sold", func(v *models.Vehicle) { v.Status = models.VehicleSold }, billing.ErrVehicleSold},
		{"no owner", func(v *models.Vehicle) { v.Owner = nil }, billing.ErrVehicleNoOwner},
		{"no fee", func(v *models.Vehicle) { v.MonthlyFee = 0 }, billing.ErrNoMonthlyFee},
		{"inactive wins over sold", func(v *models.Vehicle) {
			v.IsActive = false
			v.Status = models.VehicleSold
		}, billing.ErrVehicleInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newBillingFixture(t)
			v := f.addVehicle(t, "CH-1", 10000, tt.mutate)

			res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "manager-1")
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, billing.IsInvalidState(err))

			_, total, err := f.stores.Ledger.List(ctx, store.InvoiceFilter{}, store.ListOptions{})
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestEnsureMonthlyInvoice_BadInput(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)

	_, err := f.svc.EnsureMonthlyInvoice(ctx, utils.NewSixID(), "2024-10", "manager-1")
	assert.ErrorIs(t, err, billing.ErrVehicleNotFound)

	_, err = f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-13", "manager-1")
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestEnsureMonthlyInvoice_AnchorClamped(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	purchase := time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC)
	v := f.addVehicle(t, "CH-1", 10000, func(v *models.Vehicle) { v.PurchaseDate = &purchase })

	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-02", "manager-1")
	require.NoError(t, err)
	assert.Equal(t, 28, res.Invoice.CycleAnchorDay)
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), res.Invoice.DueDate)
}

func TestEnsureMonthlyInvoice_NumberingPerMonth(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	a := f.addVehicle(t, "CH-1", 10000)
	b := f.addVehicle(t, "CH-2", 15000)

	ra, err := f.svc.EnsureMonthlyInvoice(ctx, a.ID, "2024-10", "m")
	require.NoError(t, err)
	rb, err := f.svc.EnsureMonthlyInvoice(ctx, b.ID, "2024-10", "m")
	require.NoError(t, err)
	assert.Equal(t, "INV-202410-0001", ra.Invoice.InvoiceNumber)
	assert.Equal(t, "INV-202410-0002", rb.Invoice.InvoiceNumber)

	f.clock.Set(time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC))
	rc, err := f.svc.EnsureMonthlyInvoice(ctx, a.ID, "2024-11", "m")
	require.NoError(t, err)
	assert.Equal(t, "INV-202411-0001", rc.Invoice.InvoiceNumber)
}

func TestEnsureMonthlyInvoice_SnapshotSurvivesFeeChange(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)

	_, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
	require.NoError(t, err)

	v.MonthlyFee = 25000
	require.NoError(t, f.stores.Vehicles.Update(ctx, v))

	again, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, 10000.0, again.Invoice.BaseAmount)
	assert.Equal(t, 10000.0, again.Invoice.TotalAmount)

	next, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-12", "m")
	require.NoError(t, err)
	assert.Equal(t, 25000.0, next.Invoice.BaseAmount)
}

func TestAddPayment_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)
	id := res.Invoice.ID
	assert.Equal(t, models.PaymentPending, res.Invoice.PaymentStatus)
	assert.Equal(t, models.StatusDraft, res.Invoice.Status)

	_, err = f.svc.AddPayment(ctx, id, PaymentInput{Amount: 3000, Method: models.MethodCash})
	assert.ErrorIs(t, err, billing.ErrInvalidPayment)

	partial, err := f.svc.AddPayment(ctx, id, PaymentInput{Amount: 3000, Method: models.MethodCash, ReceivedBy: "cashier"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartial, partial.PaymentStatus)
	assert.Equal(t, models.StatusPartiallyPaid, partial.Status)
	assert.Equal(t, 7000.0, partial.BalanceAmount)
	assert.Equal(t, 30.0, partial.PaymentPercentage)

	bounced, err := f.svc.AddPayment(ctx, id, PaymentInput{Amount: 7000, Method: models.MethodCheque, ReceivedBy: "cashier", Status: models.PaymentStateBounced})
	require.NoError(t, err)
	assert.Equal(t, 3000.0, bounced.PaidAmount)

	paid, err := f.svc.AddPayment(ctx, id, PaymentInput{Amount: 7000, Method: models.MethodBankTransfer, ReceivedBy: "cashier"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, models.StatusPaid, paid.Status)
	assert.Zero(t, paid.BalanceAmount)
	assert.Len(t, paid.Payments, 3)
}

func TestAddPayment_Validation(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)

	_, err := f.svc.AddPayment(ctx, utils.NewSixID(), PaymentInput{Amount: 0, Method: models.MethodCash, ReceivedBy: "c"})
	assert.ErrorIs(t, err, billing.ErrInvalidPayment)
	_, err = f.svc.AddPayment(ctx, utils.NewSixID(), PaymentInput{Amount: 10, Method: "Barter", ReceivedBy: "c"})
	assert.ErrorIs(t, err, billing.ErrInvalidPayment)
	_, err = f.svc.AddPayment(ctx, utils.NewSixID(), PaymentInput{Amount: 10, Method: models.MethodCash, ReceivedBy: "c"})
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestSetAdjustments_DerivedTotals(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)

	adjusted, err := f.svc.SetAdjustments(ctx, res.Invoice.ID, AdjustmentsInput{
		Taxes: []models.Tax{{Name: "GST", Rate: 18, Amount: 1800}},
		AdditionalCharges: []models.AdditionalCharge{
			{Description: "Insurance", Amount: 500, Type: models.ChargeTypeCharge},
			{Description: "Loyalty", Amount: -300, Type: models.ChargeTypeDiscount},
		},
		ActingUser: "m2",
	})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, adjusted.TaxAmount)
	assert.Equal(t, 300.0, adjusted.DiscountAmount)
	assert.Equal(t, 12000.0, adjusted.TotalAmount)
	assert.Equal(t, 12000.0, adjusted.BalanceAmount)
	assert.Equal(t, 10000.0, adjusted.BaseAmount)
	assert.Equal(t, "m2", adjusted.UpdatedBy)
}

func TestRefreshOverdue(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, res.Invoice.ID, PaymentInput{Amount: 3000, Method: models.MethodCash, ReceivedBy: "c"})
	require.NoError(t, err)

	n, err := f.svc.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Set(time.Date(2024, 11, 12, 0, 0, 0, 0, time.UTC))
	n, err = f.svc.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetInvoice(ctx, res.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOverdue, got.PaymentStatus)
	assert.Equal(t, models.StatusOverdue, got.Status)
	assert.True(t, got.IsOverdue)
	assert.Equal(t, 2, got.DaysOverdue)

	overdue, err := f.svc.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, res.Invoice.ID, overdue[0].ID)
}

func TestCancelAndRefund(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	a := f.addVehicle(t, "CH-1", 10000)
	b := f.addVehicle(t, "CH-2", 10000)
	ra, err := f.svc.EnsureMonthlyInvoice(ctx, a.ID, "2024-11", "m")
	require.NoError(t, err)
	rb, err := f.svc.EnsureMonthlyInvoice(ctx, b.ID, "2024-11", "m")
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, ra.Invoice.ID, "vehicle returned", "m")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, "Cancelled: vehicle returned", cancelled.Notes)
	assert.False(t, cancelled.IsOverdue)

	_, err = f.svc.AddPayment(ctx, ra.Invoice.ID, PaymentInput{Amount: 100, Method: models.MethodCash, ReceivedBy: "c"})
	assert.ErrorIs(t, err, billing.ErrInvoiceClosed)
	_, err = f.svc.Refund(ctx, ra.Invoice.ID, "", "m")
	assert.ErrorIs(t, err, billing.ErrInvoiceClosed)

	_, err = f.svc.Refund(ctx, rb.Invoice.ID, "duplicate charge", "m")
	assert.ErrorIs(t, err, billing.ErrNothingPaid)

	paid, err := f.svc.MarkPaid(ctx, rb.Invoice.ID, MarkPaidInput{ReceivedBy: "c"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, paid.Status)
	require.Len(t, paid.Payments, 1)
	assert.Equal(t, 10000.0, paid.Payments[0].Amount)
	assert.Equal(t, models.MethodOther, paid.Payments[0].PaymentMethod)

	refunded, err := f.svc.Refund(ctx, rb.Invoice.ID, "duplicate charge", "m")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, refunded.Status)
	assert.Equal(t, models.PaymentPaid, refunded.PaymentStatus)

	outstanding, err := f.svc.ListOutstanding(ctx)
	require.NoError(t, err)
	assert.Empty(t, outstanding)
}

func TestSendReminder_AppendsWithoutTouchingAmounts(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)

	got, err := f.svc.SendReminder(ctx, res.Invoice.ID, ReminderInput{Message: "Please pay", SentBy: "m"})
	require.NoError(t, err)
	require.Len(t, got.Reminders, 1)
	assert.Equal(t, models.ReminderEmail, got.Reminders[0].Type)
	assert.Equal(t, models.ReminderSent, got.Reminders[0].Status)
	assert.Equal(t, res.Invoice.TotalAmount, got.TotalAmount)
	assert.Equal(t, res.Invoice.PaymentStatus, got.PaymentStatus)
}

func TestListMonthly(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	late := 20
	a := f.addVehicle(t, "CH-1", 10000, func(v *models.Vehicle) { v.BillingAnchorDay = &late })
	f.addVehicle(t, "CH-2", 15000)
	f.addVehicle(t, "CH-3", 7000, func(v *models.Vehicle) { v.IsActive = false })

	empty, err := f.svc.ListMonthly(ctx, "2024-11", ListMonthlyOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	listed, err := f.svc.ListMonthly(ctx, "2024-11", ListMonthlyOptions{Lazy: true, ActingUser: "m"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "CH-2", listed[0].VehicleInfo.ChassisNumber)
	assert.Equal(t, a.ID, listed[1].Vehicle)
	assert.True(t, listed[0].DueDate.Before(listed[1].DueDate))
	assert.Equal(t, "Ali Raza", listed[0].ClientInfo.Name)

	again, err := f.svc.ListMonthly(ctx, "2024-11", ListMonthlyOptions{Lazy: true, ActingUser: "m"})
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestGenerateMonthlyInvoices_Summary(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	a := f.addVehicle(t, "CH-1", 10000)
	f.addVehicle(t, "CH-2", 15000)
	f.addVehicle(t, "CH-3", 7000)

	_, err := f.svc.EnsureMonthlyInvoice(ctx, a.ID, "2024-11", "m")
	require.NoError(t, err)

	summary, err := f.svc.GenerateMonthlyInvoices(ctx, "2024-11", "scheduler")
	require.NoError(t, err)
	assert.Equal(t, &GenerationSummary{Period: "2024-11", Eligible: 3, Created: 2, Existing: 1}, summary)

	_, err = f.svc.GenerateMonthlyInvoices(ctx, "Nov 2024", "scheduler")
	assert.ErrorIs(t, err, billing.ErrInvalidPeriod)
}

func TestListInvoices_Pagination(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	a := f.addVehicle(t, "CH-1", 10000)
	b := f.addVehicle(t, "CH-2", 15000)
	for _, p := range []string{"2024-09", "2024-10", "2024-11"} {
		_, err := f.svc.EnsureMonthlyInvoice(ctx, a.ID, p, "m")
		require.NoError(t, err)
		_, err = f.svc.EnsureMonthlyInvoice(ctx, b.ID, p, "m")
		require.NoError(t, err)
	}

	page, err := f.svc.ListInvoices(ctx, InvoiceQuery{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.Invoices, 4)
	assert.Equal(t, Pagination{Page: 1, Limit: 4, Total: 6, Pages: 2, HasNext: true}, page.Pagination)
	assert.Equal(t, "2024-11", page.Invoices[0].BillingPeriod)

	page, err = f.svc.ListInvoices(ctx, InvoiceQuery{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.Invoices, 2)
	assert.Equal(t, "2024-09", page.Invoices[1].BillingPeriod)

	page, err = f.svc.ListInvoices(ctx, InvoiceQuery{Month: "2024-10", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.Pagination.Limit)
	assert.EqualValues(t, 2, page.Pagination.Total)
}

func TestListInvoices_LazyGeneratesCurrentPeriod(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.addVehicle(t, "CH-1", 10000)

	page, err := f.svc.ListInvoices(ctx, InvoiceQuery{Lazy: true, ActingUser: "m"})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, "2024-10", page.Invoices[0].BillingPeriod)
}

func TestRevenueStats(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	res, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)
	_, err = f.svc.AddPayment(ctx, res.Invoice.ID, PaymentInput{Amount: 4000, Method: models.MethodCash, ReceivedBy: "c"})
	require.NoError(t, err)

	from := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	stats, err := f.svc.RevenueStats(ctx, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, store.RevenueStats{Count: 1, TotalAmount: 10000, PaidAmount: 4000, BalanceAmount: 6000}, stats)

	_, err = f.svc.RevenueStats(ctx, from, from)
	assert.True(t, billing.IsClientError(err))
}

func TestRevenueStats_InvoiceOnMonthBoundary(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	nov := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	f.clock.Set(nov)
	v := f.addVehicle(t, "CH-1", 5000)
	_, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-11", "m")
	require.NoError(t, err)

	october, err := f.svc.RevenueStats(ctx, nov.AddDate(0, -1, 0), nov)
	require.NoError(t, err)
	assert.Equal(t, store.RevenueStats{}, october)

	november, err := f.svc.RevenueStats(ctx, nov, nov.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, store.RevenueStats{Count: 1, TotalAmount: 5000, BalanceAmount: 5000}, november)
}

func TestListInvoices_ClientFilter(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	other, err := f.stores.Clients.Create(ctx, &models.Client{Name: "Sara Khan", Type: models.ClientIndividual, IsActive: true})
	require.NoError(t, err)

	mine := f.addVehicle(t, "CH-1", 10000)
	theirs := f.addVehicle(t, "CH-2", 8000, func(v *models.Vehicle) { v.Owner = &other.ID })
	for _, v := range []*models.Vehicle{mine, theirs} {
		_, err := f.svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
		require.NoError(t, err)
	}

	page, err := f.svc.ListInvoices(ctx, InvoiceQuery{Client: &other.ID})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, theirs.ID, page.Invoices[0].Vehicle)
	assert.EqualValues(t, 1, page.Pagination.Total)
}

// racingLedger makes CreateIfAbsent lose to a rival record inserted just
// before the caller's write lands.
type racingLedger struct {
	store.LedgerStore
	mu    sync.Mutex
	races int
	rival func(inv *models.Invoice) *models.Invoice
}

func (l *racingLedger) CreateIfAbsent(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error) {
	l.mu.Lock()
	race := l.races > 0
	if race {
		l.races--
	}
	l.mu.Unlock()
	if !race {
		return l.LedgerStore.CreateIfAbsent(ctx, inv)
	}
	if _, _, err := l.LedgerStore.CreateIfAbsent(ctx, l.rival(inv)); err != nil {
		return nil, false, err
	}
	// The Mongo upsert reports a lost natural-key race as a duplicate key.
	if _, err := l.LedgerStore.FindByKey(ctx, inv.Vehicle, inv.Type, inv.BillingPeriod); err == nil {
		return nil, false, store.ErrDuplicateKey
	}
	return l.LedgerStore.CreateIfAbsent(ctx, inv)
}

func (f *billingFixture) serviceWithLedger(ledger store.LedgerStore) IBillingService {
	stores := f.stores
	stores.Ledger = ledger
	cfg := &config.Config{BillingCurrency: "PKR", BillingGenerateConcurrency: 4}
	return NewBillingService(stores, NewInvoiceNumberAllocator(ledger, stores.Sequences), cfg, WithClock(f.clock.Now))
}

func TestEnsureMonthlyInvoice_LostRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	ledger := &racingLedger{LedgerStore: f.stores.Ledger, races: 1, rival: func(inv *models.Invoice) *models.Invoice {
		rival := *inv
		rival.InvoiceNumber = "INV-RIVAL-0001"
		rival.CreatedBy = "rival"
		return &rival
	}}
	svc := f.serviceWithLedger(ledger)

	res, err := svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "INV-RIVAL-0001", res.Invoice.InvoiceNumber)
	assert.Equal(t, "rival", res.Invoice.CreatedBy)

	_, total, err := f.stores.Ledger.List(ctx, store.InvoiceFilter{}, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func numberThief(inv *models.Invoice) *models.Invoice {
	rival := *inv
	rival.Vehicle = utils.NewSixID()
	return &rival
}

func TestEnsureMonthlyInvoice_RetriesTakenNumber(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	svc := f.serviceWithLedger(&racingLedger{LedgerStore: f.stores.Ledger, races: 1, rival: numberThief})

	res, err := svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "INV-202410-0002", res.Invoice.InvoiceNumber)
	assert.Equal(t, v.ID, res.Invoice.Vehicle)
}

func TestEnsureMonthlyInvoice_GivesUpAfterRepeatedNumberCollisions(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	v := f.addVehicle(t, "CH-1", 10000)
	svc := f.serviceWithLedger(&racingLedger{LedgerStore: f.stores.Ledger, races: maxAllocRetries + 1, rival: numberThief})

	_, err := svc.EnsureMonthlyInvoice(ctx, v.ID, "2024-10", "m")
	require.ErrorIs(t, err, store.ErrDuplicateKey)

	_, err = f.stores.Ledger.FindByKey(ctx, v.ID, models.TransactionRental, "2024-10")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
