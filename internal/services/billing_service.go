package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/db"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

const (
	maxSaveRetries  = 5
	maxAllocRetries = 3
	maxPageSize     = 100
	defaultPageSize = 20
)

// IBillingService defines the recurring invoice and ledger operations.
type IBillingService interface {
	// EnsureMonthlyInvoice creates the Rental invoice for (vehicle, period) unless it exists.
	EnsureMonthlyInvoice(ctx context.Context, vehicleID utils.SixID, period, actingUser string) (*EnsureResult, error)
	// GenerateMonthlyInvoices ensures invoices for every billable vehicle.
	GenerateMonthlyInvoices(ctx context.Context, period, actingUser string) (*GenerationSummary, error)
	ListMonthly(ctx context.Context, period string, opts ListMonthlyOptions) ([]*models.InvoiceDetails, error)
	ListInvoices(ctx context.Context, q InvoiceQuery) (*InvoicePage, error)
	GetInvoice(ctx context.Context, id utils.SixID) (*models.InvoiceDetails, error)

	AddPayment(ctx context.Context, id utils.SixID, in PaymentInput) (*models.InvoiceDetails, error)
	SendReminder(ctx context.Context, id utils.SixID, in ReminderInput) (*models.InvoiceDetails, error)
	SetAdjustments(ctx context.Context, id utils.SixID, in AdjustmentsInput) (*models.InvoiceDetails, error)
	MarkPaid(ctx context.Context, id utils.SixID, in MarkPaidInput) (*models.InvoiceDetails, error)
	Cancel(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error)
	Refund(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error)

	ListOutstanding(ctx context.Context) ([]*models.InvoiceDetails, error)
	ListOverdue(ctx context.Context) ([]*models.InvoiceDetails, error)
	// RefreshOverdue recomputes unpaid invoices past their due date and returns how many changed.
	RefreshOverdue(ctx context.Context) (int, error)
	RevenueStats(ctx context.Context, from, to time.Time) (store.RevenueStats, error)
}

// EnsureResult reports whether the invoice was created by this call.
type EnsureResult struct {
	Created bool                   `json:"created"`
	Invoice *models.InvoiceDetails `json:"invoice"`
}

// GenerationSummary counts the outcomes of a bulk run.
type GenerationSummary struct {
	Period   string `json:"period"`
	Eligible int    `json:"eligible"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Failed   int    `json:"failed"`
}

type ListMonthlyOptions struct {
	Lazy       bool
	ActingUser string
}

// InvoiceQuery selects a page of invoices. Page is 1-based.
type InvoiceQuery struct {
	Page       int
	Limit      int
	Month      string
	Type       models.TransactionType
	Client     *utils.SixID
	Lazy       bool
	ActingUser string
}

type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	Pages   int64 `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

type InvoicePage struct {
	Invoices   []*models.InvoiceDetails `json:"invoices"`
	Pagination Pagination               `json:"pagination"`
}

type PaymentInput struct {
	Amount          float64              `json:"amount"`
	Method          models.PaymentMethod `json:"payment_method"`
	PaymentDate     *time.Time           `json:"payment_date,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	ReceivedBy      string               `json:"received_by"`
	Status          models.PaymentState  `json:"status,omitempty"`
}

type ReminderInput struct {
	Type    models.ReminderType   `json:"type"`
	Status  models.ReminderStatus `json:"status,omitempty"`
	Message string                `json:"message,omitempty"`
	SentBy  string                `json:"sent_by"`
}

// AdjustmentsInput replaces the caller-supplied taxes and charges.
type AdjustmentsInput struct {
	Taxes             []models.Tax              `json:"taxes"`
	AdditionalCharges []models.AdditionalCharge `json:"additional_charges"`
	Terms             *string                   `json:"terms,omitempty"`
	Notes             *string                   `json:"notes,omitempty"`
	ActingUser        string                    `json:"-"`
}

type MarkPaidInput struct {
	Method          models.PaymentMethod `json:"payment_method,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`
	ReceivedBy      string               `json:"received_by"`
}

// BillingOption customises a billing service.
type BillingOption func(*billingService)

// WithClock replaces the time source.
func WithClock(now func() time.Time) BillingOption {
	return func(s *billingService) { s.now = now }
}

// WithMetrics records ensure, payment and reminder counters.
func WithMetrics(m *metrics.Metrics) BillingOption {
	return func(s *billingService) { s.metrics = m }
}

// billingService implements IBillingService.
type billingService struct {
	stores      store.Stores
	numbers     IInvoiceNumberAllocator
	currency    string
	concurrency int
	metrics     *metrics.Metrics
	now         func() time.Time
	log         zerolog.Logger
}

// NewBillingService creates a new BillingService.
func NewBillingService(stores store.Stores, numbers IInvoiceNumberAllocator, cfg *config.Config, opts ...BillingOption) IBillingService {
	s := &billingService{
		stores:      stores,
		numbers:     numbers,
		currency:    cfg.BillingCurrency,
		concurrency: cfg.BillingGenerateConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.WithComponent("billing"),
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *billingService) EnsureMonthlyInvoice(ctx context.Context, vehicleID utils.SixID, period, actingUser string) (*EnsureResult, error) {
	res, err := s.ensure(ctx, vehicleID, period, actingUser)
	switch {
	case err == nil && res.Created:
		s.metrics.Ensure(metrics.OutcomeCreated)
	case err == nil:
		s.metrics.Ensure(metrics.OutcomeExisting)
	case billing.IsInvalidState(err) || billing.IsNotFound(err) || billing.IsClientError(err):
		s.metrics.Ensure(metrics.OutcomeRejected)
	default:
		s.metrics.Ensure(metrics.OutcomeError)
	}
	return res, err
}

func (s *billingService) ensure(ctx context.Context, vehicleID utils.SixID, period, actingUser string) (*EnsureResult, error) {
	p, err := billing.ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	vehicle, err := s.stores.Vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, billing.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to load vehicle %s: %w", vehicleID, err)
	}
	if err := checkEligibility(vehicle); err != nil {
		return nil, err
	}

	existing, err := s.stores.Ledger.FindByKey(ctx, vehicle.ID, models.TransactionRental, p.String())
	switch {
	case err == nil:
		stamped, err := s.stores.Ledger.StampUpdatedBy(ctx, existing.ID, actingUser)
		if err != nil {
			return nil, fmt.Errorf("failed to stamp invoice %s: %w", existing.ID, err)
		}
		return s.ensureResult(ctx, stamped, vehicle, false)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to look up invoice: %w", err)
	}

	anchor := billing.AnchorDay(vehicle.BillingAnchorDay, vehicle.PurchaseDate)
	var (
		stored  *models.Invoice
		created bool
	)
	// A number taken by a concurrent caller surfaces as ErrDuplicateKey and is
	// retried with a fresh number; a natural-key race resolves to the winner.
	err = db.WithRetries(func() error {
		now := s.now()
		number, err := s.numbers.Allocate(ctx, now)
		if err != nil {
			return err
		}
		inv := &models.Invoice{
			InvoiceNumber:     number,
			InvoiceDate:       now,
			DueDate:           billing.DueDate(p, anchor),
			Client:            *vehicle.Owner,
			Vehicle:           vehicle.ID,
			Type:              models.TransactionRental,
			BillingPeriod:     p.String(),
			CycleAnchorDay:    anchor,
			Currency:          s.currency,
			BaseAmount:        vehicle.MonthlyFee,
			Taxes:             []models.Tax{},
			AdditionalCharges: []models.AdditionalCharge{},
			Payments:          []models.Payment{},
			Reminders:         []models.Reminder{},
			Status:            models.StatusDraft,
			CreatedBy:         actingUser,
			UpdatedBy:         actingUser,
		}
		billing.Recalculate(inv, now)

		stored, created, err = s.stores.Ledger.CreateIfAbsent(ctx, inv)
		if !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
		winner, ferr := s.stores.Ledger.FindByKey(ctx, vehicle.ID, models.TransactionRental, p.String())
		if ferr == nil {
			stored, created = winner, false
			return nil
		}
		if !errors.Is(ferr, store.ErrNotFound) {
			return ferr
		}
		return err
	}, maxAllocRetries, func(err error) bool { return errors.Is(err, store.ErrDuplicateKey) })
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice for vehicle %s period %s: %w", vehicle.ID, p, err)
	}

	if created {
		s.log.Info().
			Str("invoice_number", stored.InvoiceNumber).
			Str("vehicle", vehicle.ID.String()).
			Str("period", stored.BillingPeriod).
			Float64("amount", stored.TotalAmount).
			Msg("monthly invoice created")
	}
	return s.ensureResult(ctx, stored, vehicle, created)
}

func checkEligibility(v *models.Vehicle) error {
	switch {
	case !v.IsActive:
		return billing.ErrVehicleInactive
	case v.Status == models.VehicleSold:
		return billing.ErrVehicleSold
	case v.Owner == nil || v.Owner.IsZero():
		return billing.ErrVehicleNoOwner
	case v.MonthlyFee <= 0:
		return billing.ErrNoMonthlyFee
	}
	return nil
}

func (s *billingService) ensureResult(ctx context.Context, inv *models.Invoice, vehicle *models.Vehicle, created bool) (*EnsureResult, error) {
	details := billing.Details(inv, s.now())
	client, err := s.stores.Clients.FindByID(ctx, inv.Client)
	ownerName := ""
	switch {
	case err == nil:
		details.ClientInfo = client.Summary()
		ownerName = client.Name
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to load client %s: %w", inv.Client, err)
	}
	details.VehicleInfo = vehicle.Summary(ownerName)
	return &EnsureResult{Created: created, Invoice: details}, nil
}

func (s *billingService) GenerateMonthlyInvoices(ctx context.Context, period, actingUser string) (*GenerationSummary, error) {
	if _, err := billing.ParsePeriod(period); err != nil {
		return nil, err
	}
	vehicles, err := s.stores.Vehicles.ListBillable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list billable vehicles: %w", err)
	}

	summary := &GenerationSummary{Period: period, Eligible: len(vehicles)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range vehicles {
		vehicleID := vehicles[i].ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.EnsureMonthlyInvoice(gctx, vehicleID, period, actingUser)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				s.log.Warn().Err(err).Str("vehicle", vehicleID.String()).Str("period", period).Msg("skipping vehicle")
			case res.Created:
				summary.Created++
			default:
				summary.Existing++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	s.log.Info().
		Str("period", period).
		Int("eligible", summary.Eligible).
		Int("created", summary.Created).
		Int("existing", summary.Existing).
		Int("failed", summary.Failed).
		Msg("monthly generation finished")
	return summary, nil
}

func (s *billingService) ListMonthly(ctx context.Context, period string, opts ListMonthlyOptions) ([]*models.InvoiceDetails, error) {
	if period == "" {
		period = billing.PeriodOf(s.now()).String()
	}
	if _, err := billing.ParsePeriod(period); err != nil {
		return nil, err
	}
	if opts.Lazy {
		if _, err := s.GenerateMonthlyInvoices(ctx, period, opts.ActingUser); err != nil {
			return nil, err
		}
	}
	invoices, _, err := s.stores.Ledger.List(ctx, store.InvoiceFilter{
		Type:          models.TransactionRental,
		BillingPeriod: period,
	}, store.ListOptions{Sort: store.SortByDueDate})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for %s: %w", period, err)
	}
	return s.populate(ctx, invoices)
}

func (s *billingService) ListInvoices(ctx context.Context, q InvoiceQuery) (*InvoicePage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Type == "" {
		q.Type = models.TransactionRental
	}
	if q.Month != "" {
		if _, err := billing.ParsePeriod(q.Month); err != nil {
			return nil, err
		}
	}

	filter := store.InvoiceFilter{Type: q.Type, BillingPeriod: q.Month, Client: q.Client}
	opts := store.ListOptions{Sort: store.SortByPeriodDesc, Skip: int64((q.Page - 1) * q.Limit), Limit: int64(q.Limit)}
	invoices, total, err := s.stores.Ledger.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if total == 0 && q.Lazy {
		current := billing.PeriodOf(s.now()).String()
		if _, err := s.GenerateMonthlyInvoices(ctx, current, q.ActingUser); err != nil {
			return nil, err
		}
		if invoices, total, err = s.stores.Ledger.List(ctx, filter, opts); err != nil {
			return nil, fmt.Errorf("failed to list invoices: %w", err)
		}
	}

	details, err := s.populate(ctx, invoices)
	if err != nil {
		return nil, err
	}
	pages := total / int64(q.Limit)
	if total%int64(q.Limit) != 0 {
		pages++
	}
	return &InvoicePage{
		Invoices: details,
		Pagination: Pagination{
			Page:    q.Page,
			Limit:   q.Limit,
			Total:   total,
			Pages:   pages,
			HasNext: int64(q.Page) < pages,
			HasPrev: q.Page > 1,
		},
	}, nil
}

func (s *billingService) GetInvoice(ctx context.Context, id utils.SixID) (*models.InvoiceDetails, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, inv)
}

func (s *billingService) AddPayment(ctx context.Context, id utils.SixID, in PaymentInput) (*models.InvoiceDetails, error) {
	if strings.TrimSpace(in.ReceivedBy) == "" {
		return nil, billing.InvalidPayment("received_by", "is required")
	}
	if in.Amount <= 0 {
		return nil, billing.InvalidPayment("amount", "must be greater than zero")
	}
	if !validMethod(in.Method) {
		return nil, billing.InvalidPayment("payment_method", "is not supported")
	}
	if in.Status == "" {
		in.Status = models.PaymentStateCleared
	}
	if !validPaymentState(in.Status) {
		return nil, billing.InvalidPayment("status", "is not supported")
	}

	inv, err := s.mutate(ctx, id, true, func(inv *models.Invoice) error {
		if inv.Status.Closed() {
			return billing.ErrInvoiceClosed
		}
		date := s.now()
		if in.PaymentDate != nil {
			date = in.PaymentDate.UTC()
		}
		inv.Payments = append(inv.Payments, models.Payment{
			ID:              utils.NewSixID(),
			PaymentDate:     date,
			Amount:          in.Amount,
			PaymentMethod:   in.Method,
			ReferenceNumber: in.ReferenceNumber,
			Notes:           in.Notes,
			ReceivedBy:      in.ReceivedBy,
			Status:          in.Status,
		})
		inv.UpdatedBy = in.ReceivedBy
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Payment(string(in.Method), string(in.Status))
	s.log.Info().
		Str("invoice_number", inv.InvoiceNumber).
		Float64("amount", in.Amount).
		Str("payment_status", string(inv.PaymentStatus)).
		Msg("payment recorded")
	return s.populateOne(ctx, inv)
}

func (s *billingService) SendReminder(ctx context.Context, id utils.SixID, in ReminderInput) (*models.InvoiceDetails, error) {
	if in.Type == "" {
		in.Type = models.ReminderEmail
	}
	if in.Status == "" {
		in.Status = models.ReminderSent
	}
	inv, err := s.mutate(ctx, id, false, func(inv *models.Invoice) error {
		inv.Reminders = append(inv.Reminders, models.Reminder{
			SentDate: s.now(),
			Type:     in.Type,
			Status:   in.Status,
			Message:  in.Message,
			SentBy:   in.SentBy,
		})
		if in.SentBy != "" {
			inv.UpdatedBy = in.SentBy
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Reminder(string(in.Type), string(in.Status))
	return s.populateOne(ctx, inv)
}

func (s *billingService) SetAdjustments(ctx context.Context, id utils.SixID, in AdjustmentsInput) (*models.InvoiceDetails, error) {
	for _, t := range in.Taxes {
		if t.Amount < 0 {
			return nil, billing.Invalid("taxes.amount", "must not be negative")
		}
	}
	for _, c := range in.AdditionalCharges {
		if c.Type != models.ChargeTypeCharge && c.Type != models.ChargeTypeDiscount {
			return nil, billing.Invalid("additional_charges.type", "must be Charge or Discount")
		}
	}
	inv, err := s.mutate(ctx, id, true, func(inv *models.Invoice) error {
		if inv.Status.Closed() {
			return billing.ErrInvoiceClosed
		}
		inv.Taxes = append([]models.Tax{}, in.Taxes...)
		inv.AdditionalCharges = append([]models.AdditionalCharge{}, in.AdditionalCharges...)
		if in.Terms != nil {
			inv.Terms = *in.Terms
		}
		if in.Notes != nil {
			inv.Notes = *in.Notes
		}
		inv.UpdatedBy = in.ActingUser
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, inv)
}

// MarkPaid settles the outstanding balance with a single cleared payment.
func (s *billingService) MarkPaid(ctx context.Context, id utils.SixID, in MarkPaidInput) (*models.InvoiceDetails, error) {
	if strings.TrimSpace(in.ReceivedBy) == "" {
		return nil, billing.InvalidPayment("received_by", "is required")
	}
	if in.Method == "" {
		in.Method = models.MethodOther
	}
	if !validMethod(in.Method) {
		return nil, billing.InvalidPayment("payment_method", "is not supported")
	}
	inv, err := s.mutate(ctx, id, true, func(inv *models.Invoice) error {
		if inv.Status.Closed() {
			return billing.ErrInvoiceClosed
		}
		billing.Recalculate(inv, s.now())
		if inv.BalanceAmount > 0 {
			inv.Payments = append(inv.Payments, models.Payment{
				ID:              utils.NewSixID(),
				PaymentDate:     s.now(),
				Amount:          inv.BalanceAmount,
				PaymentMethod:   in.Method,
				ReferenceNumber: in.ReferenceNumber,
				Notes:           "Marked as paid",
				ReceivedBy:      in.ReceivedBy,
				Status:          models.PaymentStateCleared,
			})
		}
		inv.UpdatedBy = in.ReceivedBy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, inv)
}

func (s *billingService) Cancel(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error) {
	inv, err := s.mutate(ctx, id, true, func(inv *models.Invoice) error {
		if inv.Status == models.StatusRefunded {
			return billing.ErrInvoiceClosed
		}
		inv.Status = models.StatusCancelled
		inv.Notes = appendNote(inv.Notes, "Cancelled", reason)
		inv.UpdatedBy = actingUser
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("invoice_number", inv.InvoiceNumber).Str("reason", reason).Msg("invoice cancelled")
	return s.populateOne(ctx, inv)
}

func (s *billingService) Refund(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error) {
	inv, err := s.mutate(ctx, id, true, func(inv *models.Invoice) error {
		if inv.Status == models.StatusCancelled {
			return billing.ErrInvoiceClosed
		}
		if inv.PaidAmount <= 0 {
			return billing.ErrNothingPaid
		}
		inv.Status = models.StatusRefunded
		inv.Notes = appendNote(inv.Notes, "Refunded", reason)
		inv.UpdatedBy = actingUser
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("invoice_number", inv.InvoiceNumber).Str("reason", reason).Msg("invoice refunded")
	return s.populateOne(ctx, inv)
}

func appendNote(notes, label, reason string) string {
	line := label
	if reason != "" {
		line += ": " + reason
	}
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

var closedStatuses = []models.InvoiceStatus{models.StatusCancelled, models.StatusRefunded}

func (s *billingService) ListOutstanding(ctx context.Context) ([]*models.InvoiceDetails, error) {
	invoices, _, err := s.stores.Ledger.List(ctx, store.InvoiceFilter{
		PaymentStatuses: []models.PaymentStatus{models.PaymentPending, models.PaymentPartial, models.PaymentOverdue},
		ExcludeStatuses: closedStatuses,
	}, store.ListOptions{Sort: store.SortByDueDate})
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding invoices: %w", err)
	}
	return s.populate(ctx, invoices)
}

func (s *billingService) ListOverdue(ctx context.Context) ([]*models.InvoiceDetails, error) {
	now := s.now()
	invoices, _, err := s.stores.Ledger.List(ctx, store.InvoiceFilter{
		PaymentStatuses: []models.PaymentStatus{models.PaymentPending, models.PaymentPartial, models.PaymentOverdue},
		ExcludeStatuses: closedStatuses,
		DueBefore:       &now,
	}, store.ListOptions{Sort: store.SortByDueDate})
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	return s.populate(ctx, invoices)
}

func (s *billingService) RefreshOverdue(ctx context.Context) (int, error) {
	now := s.now()
	invoices, _, err := s.stores.Ledger.List(ctx, store.InvoiceFilter{
		PaymentStatuses: []models.PaymentStatus{models.PaymentPending, models.PaymentPartial},
		ExcludeStatuses: closedStatuses,
		DueBefore:       &now,
	}, store.ListOptions{Sort: store.SortByDueDate})
	if err != nil {
		return 0, fmt.Errorf("failed to list invoices past due: %w", err)
	}

	updated := 0
	for i := range invoices {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if _, err := s.mutate(ctx, invoices[i].ID, true, func(*models.Invoice) error { return nil }); err != nil {
			s.log.Warn().Err(err).Str("invoice_number", invoices[i].InvoiceNumber).Msg("failed to refresh overdue invoice")
			continue
		}
		updated++
	}
	if updated > 0 {
		s.log.Info().Int("updated", updated).Msg("overdue invoices refreshed")
	}
	return updated, nil
}

func (s *billingService) RevenueStats(ctx context.Context, from, to time.Time) (store.RevenueStats, error) {
	if !to.After(from) {
		return store.RevenueStats{}, billing.Invalid("to", "must be after from")
	}
	stats, err := s.stores.Ledger.Revenue(ctx, from, to)
	if err != nil {
		return store.RevenueStats{}, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	return stats, nil
}

func (s *billingService) load(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	inv, err := s.stores.Ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to load invoice %s: %w", id, err)
	}
	return inv, nil
}

// mutate loads the invoice, applies fn, optionally runs the calculator and
// saves, reloading and reapplying fn when another writer got there first.
func (s *billingService) mutate(ctx context.Context, id utils.SixID, recalc bool, fn func(*models.Invoice) error) (*models.Invoice, error) {
	var out *models.Invoice
	err := db.WithRetries(func() error {
		inv, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(inv); err != nil {
			return err
		}
		if recalc {
			billing.Recalculate(inv, s.now())
		}
		if err := s.stores.Ledger.Save(ctx, inv); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return billing.ErrInvoiceNotFound
			}
			if billing.IsRetryable(err) {
				s.metrics.SaveConflict()
			}
			return err
		}
		out = inv
		return nil
	}, maxSaveRetries, billing.IsRetryable)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *billingService) populateOne(ctx context.Context, inv *models.Invoice) (*models.InvoiceDetails, error) {
	details, err := s.populate(ctx, []models.Invoice{*inv})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

// populate attaches client and vehicle summaries with two batched lookups.
func (s *billingService) populate(ctx context.Context, invoices []models.Invoice) ([]*models.InvoiceDetails, error) {
	out := make([]*models.InvoiceDetails, 0, len(invoices))
	if len(invoices) == 0 {
		return out, nil
	}

	vehicleIDs := make([]utils.SixID, 0, len(invoices))
	for i := range invoices {
		vehicleIDs = append(vehicleIDs, invoices[i].Vehicle)
	}
	vehicles, err := s.stores.Vehicles.FindByIDs(ctx, vehicleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load vehicles: %w", err)
	}

	clientIDs := make([]utils.SixID, 0, len(invoices)+len(vehicles))
	for i := range invoices {
		clientIDs = append(clientIDs, invoices[i].Client)
	}
	for _, v := range vehicles {
		if v.Owner != nil {
			clientIDs = append(clientIDs, *v.Owner)
		}
	}
	clients, err := s.stores.Clients.FindByIDs(ctx, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}

	now := s.now()
	for i := range invoices {
		inv := invoices[i]
		details := billing.Details(&inv, now)
		if c, ok := clients[inv.Client]; ok {
			details.ClientInfo = c.Summary()
		}
		if v, ok := vehicles[inv.Vehicle]; ok {
			ownerName := ""
			if v.Owner != nil {
				if owner, ok := clients[*v.Owner]; ok {
					ownerName = owner.Name
				}
			}
			details.VehicleInfo = v.Summary(ownerName)
		}
		out = append(out, details)
	}
	return out, nil
}

func validMethod(m models.PaymentMethod) bool {
	switch m {
	case models.MethodCash, models.MethodBankTransfer, models.MethodCheque, models.MethodUPI,
		models.MethodCreditCard, models.MethodDebitCard, models.MethodOther:
		return true
	}
	return false
}

func validPaymentState(s models.PaymentState) bool {
	switch s {
	case models.PaymentStatePending, models.PaymentStateCleared, models.PaymentStateBounced, models.PaymentStateCancelled:
		return true
	}
	return false
}
