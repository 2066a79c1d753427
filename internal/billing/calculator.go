package billing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
)

const moneyPlaces = 2

// Totals are the derived amounts of an invoice.
type Totals struct {
	Tax      decimal.Decimal
	Charges  decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Balance  decimal.Decimal
}

// ComputeTotals sums line items and cleared payments. It does not touch inv.
func ComputeTotals(inv *models.Invoice) Totals {
	var t Totals
	for _, tax := range inv.Taxes {
		t.Tax = t.Tax.Add(decimal.NewFromFloat(tax.Amount))
	}
	for _, c := range inv.AdditionalCharges {
		amount := decimal.NewFromFloat(c.Amount)
		if c.Type == models.ChargeTypeDiscount {
			t.Discount = t.Discount.Add(amount.Abs())
		} else {
			t.Charges = t.Charges.Add(amount)
		}
	}
	for _, p := range inv.Payments {
		if p.Status == models.PaymentStateCleared {
			t.Paid = t.Paid.Add(decimal.NewFromFloat(p.Amount))
		}
	}
	t.Total = decimal.NewFromFloat(inv.BaseAmount).Add(t.Tax).Add(t.Charges).Sub(t.Discount)
	t.Balance = t.Total.Sub(t.Paid)
	return t
}

// Recalculate rewrites every derived field of inv. It is deterministic for a
// given now and safe to run any number of times. Every write path calls it
// before persisting.
func Recalculate(inv *models.Invoice, now time.Time) {
	t := ComputeTotals(inv)

	inv.TaxAmount = money(t.Tax)
	inv.DiscountAmount = money(t.Discount)
	inv.TotalAmount = money(t.Total)
	inv.PaidAmount = money(t.Paid)
	inv.BalanceAmount = money(t.Balance)

	inv.PaymentStatus = paymentStatus(t.Paid, t.Total, inv.DueDate, now)
	inv.Status = syncStatus(inv.Status, inv.PaymentStatus)
}

func paymentStatus(paid, total decimal.Decimal, due, now time.Time) models.PaymentStatus {
	var status models.PaymentStatus
	switch {
	case paid.IsZero():
		status = models.PaymentPending
	case paid.GreaterThanOrEqual(total):
		status = models.PaymentPaid
	default:
		status = models.PaymentPartial
	}
	if status != models.PaymentPaid && !due.IsZero() && now.After(due) {
		status = models.PaymentOverdue
	}
	return status
}

// syncStatus mirrors the payment status onto the invoice status. Cancelled and
// Refunded are terminal; Draft and Sent survive while nothing is paid.
func syncStatus(current models.InvoiceStatus, ps models.PaymentStatus) models.InvoiceStatus {
	if current.Closed() {
		return current
	}
	switch ps {
	case models.PaymentPaid:
		return models.StatusPaid
	case models.PaymentPartial:
		return models.StatusPartiallyPaid
	case models.PaymentOverdue:
		return models.StatusOverdue
	}
	switch current {
	case models.StatusPaid, models.StatusPartiallyPaid, models.StatusOverdue:
		return models.StatusSent
	case "":
		return models.StatusDraft
	}
	return current
}

// IsOverdue reports whether the invoice is unpaid past its due date at now.
func IsOverdue(inv *models.Invoice, now time.Time) bool {
	return inv.PaymentStatus != models.PaymentPaid && !inv.Status.Closed() && now.After(inv.DueDate)
}

// DaysOverdue counts started days past the due date, 0 when not overdue.
func DaysOverdue(inv *models.Invoice, now time.Time) int {
	if !IsOverdue(inv, now) {
		return 0
	}
	return int(math.Ceil(now.Sub(inv.DueDate).Hours() / 24))
}

// PaymentPercentage is paid/total as a whole percentage, 0 when the total is 0.
func PaymentPercentage(inv *models.Invoice) float64 {
	total := decimal.NewFromFloat(inv.TotalAmount)
	if total.IsZero() {
		return 0
	}
	return decimal.NewFromFloat(inv.PaidAmount).Div(total).Mul(decimal.NewFromInt(100)).Round(0).InexactFloat64()
}

// Details wraps inv with read-time virtual fields.
func Details(inv *models.Invoice, now time.Time) *models.InvoiceDetails {
	return &models.InvoiceDetails{
		Invoice:           inv,
		DaysOverdue:       DaysOverdue(inv, now),
		IsOverdue:         IsOverdue(inv, now),
		PaymentPercentage: PaymentPercentage(inv),
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(moneyPlaces).InexactFloat64()
}
