package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
)

var due = time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC)

func sampleInvoice() *models.Invoice {
	return &models.Invoice{
		DueDate:    due,
		BaseAmount: 10000,
		Status:     models.StatusDraft,
		Taxes:      []models.Tax{{Name: "GST", Rate: 18, Amount: 1800}},
		AdditionalCharges: []models.AdditionalCharge{
			{Description: "Parking", Amount: 500, Type: models.ChargeTypeCharge},
			{Description: "Loyalty", Amount: -300, Type: models.ChargeTypeDiscount},
		},
	}
}

func cleared(amount float64) models.Payment {
	return models.Payment{Amount: amount, Status: models.PaymentStateCleared, ReceivedBy: "u1"}
}

func TestRecalculate_DerivedAmounts(t *testing.T) {
	inv := sampleInvoice()
	Recalculate(inv, due.Add(-time.Hour))

	assert.Equal(t, 1800.0, inv.TaxAmount)
	assert.Equal(t, 300.0, inv.DiscountAmount)
	assert.Equal(t, 12000.0, inv.TotalAmount)
	assert.Equal(t, 0.0, inv.PaidAmount)
	assert.Equal(t, 12000.0, inv.BalanceAmount)
	assert.Equal(t, models.PaymentPending, inv.PaymentStatus)
	assert.Equal(t, models.StatusDraft, inv.Status)
}

func TestRecalculate_PaymentStatus(t *testing.T) {
	before := due.Add(-time.Hour)
	after := due.Add(time.Hour)

	tests := []struct {
		name           string
		payments       []models.Payment
		status         models.InvoiceStatus
		now            time.Time
		wantPayment    models.PaymentStatus
		wantStatus     models.InvoiceStatus
		wantPaid       float64
		wantBalance    float64
		wantOverdue    bool
		wantDaysLate   int
		wantPercentage float64
	}{
		{
			name:        "partial payment",
			payments:    []models.Payment{cleared(7000)},
			status:      models.StatusSent,
			now:         before,
			wantPayment: models.PaymentPartial, wantStatus: models.StatusPartiallyPaid,
			wantPaid: 7000, wantBalance: 5000, wantPercentage: 58,
		},
		{
			name:        "paid in full",
			payments:    []models.Payment{cleared(5000), cleared(7000)},
			status:      models.StatusSent,
			now:         before,
			wantPayment: models.PaymentPaid, wantStatus: models.StatusPaid,
			wantPaid: 12000, wantBalance: 0, wantPercentage: 100,
		},
		{
			name:        "paid in full after due date stays paid",
			payments:    []models.Payment{cleared(12000)},
			status:      models.StatusSent,
			now:         after,
			wantPayment: models.PaymentPaid, wantStatus: models.StatusPaid,
			wantPaid: 12000, wantBalance: 0, wantPercentage: 100,
		},
		{
			name:        "unpaid past due",
			status:      models.StatusDraft,
			now:         after,
			wantPayment: models.PaymentOverdue, wantStatus: models.StatusOverdue,
			wantPaid: 0, wantBalance: 12000, wantOverdue: true, wantDaysLate: 1,
		},
		{
			name:        "partial past due",
			payments:    []models.Payment{cleared(7000)},
			status:      models.StatusPartiallyPaid,
			now:         due.Add(49 * time.Hour),
			wantPayment: models.PaymentOverdue, wantStatus: models.StatusOverdue,
			wantPaid: 7000, wantBalance: 5000, wantOverdue: true, wantDaysLate: 3, wantPercentage: 58,
		},
		{
			name: "pending and bounced payments are ignored",
			payments: []models.Payment{
				{Amount: 4000, Status: models.PaymentStatePending},
				{Amount: 4000, Status: models.PaymentStateBounced},
			},
			status:      models.StatusSent,
			now:         before,
			wantPayment: models.PaymentPending, wantStatus: models.StatusSent,
			wantPaid: 0, wantBalance: 12000,
		},
		{
			name:        "cancelled status survives recompute",
			payments:    []models.Payment{cleared(7000)},
			status:      models.StatusCancelled,
			now:         after,
			wantPayment: models.PaymentOverdue, wantStatus: models.StatusCancelled,
			wantPaid: 7000, wantBalance: 5000, wantPercentage: 58,
		},
		{
			name:        "refunded status survives recompute",
			payments:    []models.Payment{cleared(12000)},
			status:      models.StatusRefunded,
			now:         before,
			wantPayment: models.PaymentPaid, wantStatus: models.StatusRefunded,
			wantPaid: 12000, wantBalance: 0, wantPercentage: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := sampleInvoice()
			inv.Payments = tt.payments
			inv.Status = tt.status
			Recalculate(inv, tt.now)

			assert.Equal(t, tt.wantPayment, inv.PaymentStatus)
			assert.Equal(t, tt.wantStatus, inv.Status)
			assert.Equal(t, tt.wantPaid, inv.PaidAmount)
			assert.Equal(t, tt.wantBalance, inv.BalanceAmount)
			assert.Equal(t, tt.wantOverdue, IsOverdue(inv, tt.now))
			assert.Equal(t, tt.wantDaysLate, DaysOverdue(inv, tt.now))
			assert.Equal(t, tt.wantPercentage, PaymentPercentage(inv))
		})
	}
}

func TestRecalculate_Idempotent(t *testing.T) {
	now := due.Add(-time.Hour)
	inv := sampleInvoice()
	inv.Payments = []models.Payment{cleared(3333.33)}
	Recalculate(inv, now)
	first := *inv
	Recalculate(inv, now)
	assert.Equal(t, first, *inv)
}

func TestRecalculate_PaidStatusRevertsWhenTotalGrows(t *testing.T) {
	now := due.Add(-time.Hour)
	inv := sampleInvoice()
	inv.Payments = []models.Payment{cleared(12000)}
	Recalculate(inv, now)
	assert.Equal(t, models.StatusPaid, inv.Status)

	inv.AdditionalCharges = append(inv.AdditionalCharges, models.AdditionalCharge{Description: "Late fee", Amount: 250, Type: models.ChargeTypeCharge})
	Recalculate(inv, now)
	assert.Equal(t, models.PaymentPartial, inv.PaymentStatus)
	assert.Equal(t, models.StatusPartiallyPaid, inv.Status)
	assert.Equal(t, 250.0, inv.BalanceAmount)
}

func TestRecalculate_RoundsToCents(t *testing.T) {
	inv := &models.Invoice{
		DueDate:    due,
		BaseAmount: 0.1,
		Taxes:      []models.Tax{{Name: "A", Amount: 0.2}},
	}
	Recalculate(inv, due)
	assert.Equal(t, 0.3, inv.TotalAmount)
	assert.Equal(t, models.StatusDraft, inv.Status)
}

func TestPaymentPercentage_ZeroTotal(t *testing.T) {
	assert.Equal(t, 0.0, PaymentPercentage(&models.Invoice{}))
}

func TestDetails(t *testing.T) {
	inv := sampleInvoice()
	now := due.Add(36 * time.Hour)
	Recalculate(inv, now)

	d := Details(inv, now)
	assert.Same(t, inv, d.Invoice)
	assert.True(t, d.IsOverdue)
	assert.Equal(t, 2, d.DaysOverdue)
	assert.Equal(t, 0.0, d.PaymentPercentage)
}
