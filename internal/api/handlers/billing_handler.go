package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamwilson22/Velaa-Backend/internal/api/middleware"
	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/tasks"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

const dateLayout = "2006-01-02"

// BillingHandler serves the /v1/billing routes.
type BillingHandler struct {
	billingService services.IBillingService
	enqueuer       tasks.IEnqueuer
	now            func() time.Time
}

// NewBillingHandler creates a new BillingHandler. enqueuer may be nil, in which
// case the routes that hand work to the worker answer 503.
func NewBillingHandler(billingService services.IBillingService, enqueuer tasks.IEnqueuer) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		enqueuer:       enqueuer,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (h *BillingHandler) currentPeriod() string {
	return billing.PeriodOf(h.now()).String()
}

// invoiceID parses the :id path parameter, writing a 400 when it is malformed.
func invoiceID(c *gin.Context, param string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(param))
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid id", FieldError{Field: param, Reason: "malformed"})
		return utils.SixID{}, false
	}
	return id, true
}

type listQuery struct {
	Page   int                    `form:"page" binding:"omitempty,min=1"`
	Limit  int                    `form:"limit" binding:"omitempty,min=1"`
	Month  string                 `form:"month" binding:"omitempty,billing_period"`
	Type   models.TransactionType `form:"transactionType" binding:"omitempty,oneof=Sale Purchase Service Rental Insurance Other"`
	Client string                 `form:"client"`
	Lazy   bool                   `form:"lazy"`
}

// ListInvoices handles GET /v1/billing
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	var client *utils.SixID
	if q.Client != "" {
		id, err := utils.ParseSixID(q.Client)
		if err != nil {
			fail(c, http.StatusBadRequest, "Invalid client id", FieldError{Field: "client", Reason: "is not a valid id"})
			return
		}
		client = &id
	}
	page, err := h.billingService.ListInvoices(c.Request.Context(), services.InvoiceQuery{
		Page:       q.Page,
		Limit:      q.Limit,
		Month:      q.Month,
		Type:       q.Type,
		Client:     client,
		Lazy:       q.Lazy,
		ActingUser: middleware.ActingUser(c),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Invoices retrieved", page)
}

type monthQuery struct {
	Month string `form:"month" binding:"omitempty,billing_period"`
	Lazy  bool   `form:"lazy"`
}

// ListMonthly handles GET /v1/billing/list
func (h *BillingHandler) ListMonthly(c *gin.Context) {
	var q monthQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.Month == "" {
		q.Month = h.currentPeriod()
	}
	invoices, err := h.billingService.ListMonthly(c.Request.Context(), q.Month, services.ListMonthlyOptions{
		Lazy:       q.Lazy,
		ActingUser: middleware.ActingUser(c),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Monthly invoices retrieved", gin.H{"month": q.Month, "invoices": invoices})
}

// EnsureVehicleInvoice handles GET /v1/billing/ensure/vehicle/:vehicleId
func (h *BillingHandler) EnsureVehicleInvoice(c *gin.Context) {
	vehicleID, ok := invoiceID(c, "vehicleId")
	if !ok {
		return
	}
	var q monthQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.Month == "" {
		q.Month = h.currentPeriod()
	}
	res, err := h.billingService.EnsureMonthlyInvoice(c.Request.Context(), vehicleID, q.Month, middleware.ActingUser(c))
	if err != nil {
		failWith(c, err)
		return
	}
	if res.Created {
		respond(c, http.StatusCreated, "Invoice created", res)
		return
	}
	respond(c, http.StatusOK, "Invoice already exists", res)
}

type generateQuery struct {
	Month string `form:"month" binding:"omitempty,billing_period"`
	Async bool   `form:"async"`
}

// GenerateMonthly handles POST /v1/billing/generate
func (h *BillingHandler) GenerateMonthly(c *gin.Context) {
	var q generateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.Month == "" {
		q.Month = h.currentPeriod()
	}
	if q.Async {
		if h.enqueuer == nil {
			fail(c, http.StatusServiceUnavailable, "Background worker is not configured")
			return
		}
		info, err := h.enqueuer.EnqueueGenerate(c.Request.Context(), tasks.InvoiceGeneratePayload{Period: q.Month, ActingUser: middleware.ActingUser(c)})
		if err != nil {
			failWith(c, err)
			return
		}
		respond(c, http.StatusAccepted, "Generation queued", gin.H{"task_id": info.ID, "month": q.Month})
		return
	}
	summary, err := h.billingService.GenerateMonthlyInvoices(c.Request.Context(), q.Month, middleware.ActingUser(c))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Invoices generated", summary)
}

// ExportMonthly handles POST /v1/billing/export
func (h *BillingHandler) ExportMonthly(c *gin.Context) {
	var q monthQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	if q.Month == "" {
		q.Month = h.currentPeriod()
	}
	if h.enqueuer == nil {
		fail(c, http.StatusServiceUnavailable, "Background worker is not configured")
		return
	}
	info, err := h.enqueuer.EnqueueExport(c.Request.Context(), tasks.ExportPayload{Period: q.Month})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusAccepted, "Export queued", gin.H{"task_id": info.ID, "month": q.Month})
}

// ListOutstanding handles GET /v1/billing/outstanding
func (h *BillingHandler) ListOutstanding(c *gin.Context) {
	invoices, err := h.billingService.ListOutstanding(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Outstanding invoices retrieved", invoices)
}

// ListOverdue handles GET /v1/billing/overdue
func (h *BillingHandler) ListOverdue(c *gin.Context) {
	invoices, err := h.billingService.ListOverdue(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Overdue invoices retrieved", invoices)
}

type revenueQuery struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// RevenueStats handles GET /v1/billing/reports/revenue. The range defaults
// to the current month; both bounds are inclusive days.
func (h *BillingHandler) RevenueStats(c *gin.Context) {
	var q revenueQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBinding(c, err)
		return
	}
	current := billing.PeriodOf(h.now())
	from := current.Start()
	to := current.Next().Start()
	if q.From != "" {
		from, _ = time.Parse(dateLayout, q.From)
	}
	if q.To != "" {
		day, _ := time.Parse(dateLayout, q.To)
		to = day.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		fail(c, http.StatusBadRequest, "Invalid range", FieldError{Field: "from", Reason: "must not be after to"})
		return
	}
	stats, err := h.billingService.RevenueStats(c.Request.Context(), from, to)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Revenue statistics retrieved", gin.H{
		"from":  from.Format(dateLayout),
		"to":    to.AddDate(0, 0, -1).Format(dateLayout),
		"stats": stats,
	})
}

// GetInvoice handles GET /v1/billing/:id
func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	inv, err := h.billingService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Invoice retrieved", inv)
}

type adjustmentsRequest struct {
	Taxes             []models.Tax              `json:"taxes" binding:"dive"`
	AdditionalCharges []models.AdditionalCharge `json:"additional_charges" binding:"dive"`
	Terms             *string                   `json:"terms"`
	Notes             *string                   `json:"notes"`
}

// SetAdjustments handles PUT /v1/billing/:id/adjustments
func (h *BillingHandler) SetAdjustments(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	var req adjustmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	inv, err := h.billingService.SetAdjustments(c.Request.Context(), id, services.AdjustmentsInput{
		Taxes:             req.Taxes,
		AdditionalCharges: req.AdditionalCharges,
		Terms:             req.Terms,
		Notes:             req.Notes,
		ActingUser:        middleware.ActingUser(c),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Invoice updated", inv)
}

type paymentRequest struct {
	Amount          float64              `json:"amount"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" binding:"required"`
	PaymentDate     *time.Time           `json:"payment_date"`
	ReferenceNumber string               `json:"reference_number"`
	Notes           string               `json:"notes"`
	Status          models.PaymentState  `json:"status"`
}

// AddPayment handles POST /v1/billing/:id/payment
func (h *BillingHandler) AddPayment(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	inv, err := h.billingService.AddPayment(c.Request.Context(), id, services.PaymentInput{
		Amount:          req.Amount,
		Method:          req.PaymentMethod,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
		ReceivedBy:      middleware.ActingUser(c),
		Status:          req.Status,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, "Payment recorded", inv)
}

// ListPayments handles GET /v1/billing/:id/payments
func (h *BillingHandler) ListPayments(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	inv, err := h.billingService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Payments retrieved", gin.H{
		"invoice_number": inv.InvoiceNumber,
		"paid_amount":    inv.PaidAmount,
		"balance_amount": inv.BalanceAmount,
		"payments":       inv.Payments,
	})
}

type reminderRequest struct {
	Type       models.ReminderType   `json:"type" binding:"required,oneof=Email SMS Phone WhatsApp"`
	Status     models.ReminderStatus `json:"status" binding:"omitempty,oneof=Sent Delivered Failed"`
	Message    string                `json:"message"`
	Deliver    bool                  `json:"deliver"`
	TemplateID string                `json:"template_id"`
	Locale     string                `json:"locale"`
}

// SendReminder handles POST /v1/billing/:id/send-reminder. With deliver set,
// an Email reminder is handed to the worker, which sends it and records the
// outcome; otherwise the reminder is recorded as given.
func (h *BillingHandler) SendReminder(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}

	if req.Deliver {
		if req.Type != models.ReminderEmail {
			fail(c, http.StatusBadRequest, "Only email reminders can be delivered", FieldError{Field: "type", Reason: "must be Email"})
			return
		}
		if h.enqueuer == nil {
			fail(c, http.StatusServiceUnavailable, "Background worker is not configured")
			return
		}
		if _, err := h.billingService.GetInvoice(c.Request.Context(), id); err != nil {
			failWith(c, err)
			return
		}
		info, err := h.enqueuer.EnqueueReminder(c.Request.Context(), tasks.ReminderPayload{
			InvoiceID:  id.String(),
			TemplateID: req.TemplateID,
			Locale:     req.Locale,
			SentBy:     middleware.ActingUser(c),
		})
		if err != nil {
			failWith(c, err)
			return
		}
		respond(c, http.StatusAccepted, "Reminder queued", gin.H{"task_id": info.ID})
		return
	}

	inv, err := h.billingService.SendReminder(c.Request.Context(), id, services.ReminderInput{
		Type:    req.Type,
		Status:  req.Status,
		Message: req.Message,
		SentBy:  middleware.ActingUser(c),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Reminder recorded", inv)
}

// ListReminders handles GET /v1/billing/:id/reminders
func (h *BillingHandler) ListReminders(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	inv, err := h.billingService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Reminders retrieved", gin.H{
		"invoice_number": inv.InvoiceNumber,
		"reminders":      inv.Reminders,
	})
}

type markPaidRequest struct {
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	ReferenceNumber string               `json:"reference_number"`
}

// MarkPaid handles PUT /v1/billing/:id/mark-paid. The body is optional.
func (h *BillingHandler) MarkPaid(c *gin.Context) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	var req markPaidRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			failBinding(c, err)
			return
		}
	}
	inv, err := h.billingService.MarkPaid(c.Request.Context(), id, services.MarkPaidInput{
		Method:          req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		ReceivedBy:      middleware.ActingUser(c),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "Invoice marked as paid", inv)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Cancel handles PUT /v1/billing/:id/cancel
func (h *BillingHandler) Cancel(c *gin.Context) {
	h.close(c, "Invoice cancelled", h.billingService.Cancel)
}

// Refund handles PUT /v1/billing/:id/refund
func (h *BillingHandler) Refund(c *gin.Context) {
	h.close(c, "Invoice refunded", h.billingService.Refund)
}

type closeFunc func(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error)

func (h *BillingHandler) close(c *gin.Context, message string, fn closeFunc) {
	id, ok := invoiceID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBinding(c, err)
		return
	}
	inv, err := fn(c.Request.Context(), id, req.Reason, middleware.ActingUser(c))
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, message, inv)
}
