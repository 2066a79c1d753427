package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/email"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

const (
	schedulerUser       = "scheduler"
	overdueTemplateID   = "invoice_overdue"
	reminderDateLayout  = "2 Jan 2006"
	defaultFromFallback = "noreply@example.com"
)

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                  *config.Config
	billingService       services.IBillingService
	exportService        services.IExportService
	emailSender          email.Sender
	emailTemplateService services.IEmailTemplateService
	metrics              *metrics.Metrics
	log                  zerolog.Logger
}

func NewTaskProcessor(
	cfg *config.Config,
	billingService services.IBillingService,
	exportService services.IExportService,
	emailSender email.Sender,
	emailTemplateService services.IEmailTemplateService,
	m *metrics.Metrics,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                  cfg,
		billingService:       billingService,
		exportService:        exportService,
		emailSender:          emailSender,
		emailTemplateService: emailTemplateService,
		metrics:              m,
		log:                  logger.WithComponent("tasks"),
	}
}

// HandleInvoiceGenerateTask ensures this period's invoices for every billable vehicle.
func (p *TaskProcessor) HandleInvoiceGenerateTask(ctx context.Context, t *asynq.Task) error {
	tracker := p.metrics.Track(TypeInvoiceGenerate)
	var payload InvoiceGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("failed to unmarshal generate payload: %v: %w", err, asynq.SkipRetry))
	}
	if payload.Period == "" {
		payload.Period = billing.PeriodOf(time.Now()).String()
	}
	if payload.ActingUser == "" {
		payload.ActingUser = schedulerUser
	}

	summary, err := p.billingService.GenerateMonthlyInvoices(ctx, payload.Period, payload.ActingUser)
	if err != nil {
		if billing.IsClientError(err) {
			return tracker.End(fmt.Errorf("invalid generate payload: %v: %w", err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	p.log.Info().
		Str("period", summary.Period).
		Int("created", summary.Created).
		Int("failed", summary.Failed).
		Msg("invoice generation task finished")
	return tracker.End(nil)
}

// HandleInvoiceCheckOverdueTask moves unpaid invoices past their due date to Overdue.
func (p *TaskProcessor) HandleInvoiceCheckOverdueTask(ctx context.Context, t *asynq.Task) error {
	tracker := p.metrics.Track(TypeInvoiceCheckOverdue)
	n, err := p.billingService.RefreshOverdue(ctx)
	if err != nil {
		return tracker.End(err)
	}
	p.log.Info().Int("updated", n).Msg("overdue check finished")
	return tracker.End(nil)
}

// ReminderEmailData is the data reminder templates are rendered with.
type ReminderEmailData struct {
	ClientName    string
	InvoiceNumber string
	Vehicle       string
	BillingPeriod string
	DueDate       string
	Currency      string
	TotalAmount   float64
	BalanceAmount float64
	DaysOverdue   int
	AppName       string
}

// HandleReminderDeliveryTask emails a payment reminder and records the attempt on the invoice.
func (p *TaskProcessor) HandleReminderDeliveryTask(ctx context.Context, t *asynq.Task) error {
	tracker := p.metrics.Track(TypeReminderDelivery)
	var payload ReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("failed to unmarshal reminder payload: %v: %w", err, asynq.SkipRetry))
	}
	id, err := utils.ParseSixID(payload.InvoiceID)
	if err != nil {
		return tracker.End(fmt.Errorf("invalid invoice id %q: %w", payload.InvoiceID, asynq.SkipRetry))
	}

	inv, err := p.billingService.GetInvoice(ctx, id)
	if err != nil {
		if billing.IsNotFound(err) {
			return tracker.End(fmt.Errorf("invoice %s: %v: %w", payload.InvoiceID, err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	log := p.log.With().Str("invoice_number", inv.InvoiceNumber).Logger()
	if inv.Status.Closed() || inv.PaymentStatus == models.PaymentPaid {
		log.Info().Str("status", string(inv.Status)).Msg("reminder skipped, nothing outstanding")
		return tracker.End(nil)
	}

	if inv.ClientInfo == nil || strings.TrimSpace(inv.ClientInfo.Email) == "" {
		p.record(ctx, id, payload.SentBy, models.ReminderFailed, "client has no email address")
		return tracker.End(fmt.Errorf("invoice %s has no client email: %w", inv.InvoiceNumber, asynq.SkipRetry))
	}

	templateID := payload.TemplateID
	if templateID == "" {
		templateID = p.cfg.ReminderTemplateID
		if inv.IsOverdue {
			templateID = overdueTemplateID
		}
	}
	subject, body, err := p.emailTemplateService.Render(ctx, templateID, payload.Locale, reminderData(inv, p.cfg))
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) {
			return tracker.End(fmt.Errorf("reminder template: %v: %w", err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = defaultFromFallback
	}
	msg := email.Message{
		From:     from,
		To:       []string{inv.ClientInfo.Email},
		Subject:  subject,
		Body:     body,
		Template: templateID,
	}
	if err := p.emailSender.Send(ctx, msg.To, subject, msg.Bytes()); err != nil {
		p.record(ctx, id, payload.SentBy, models.ReminderFailed, err.Error())
		return tracker.End(fmt.Errorf("failed to send reminder for %s: %w", inv.InvoiceNumber, err))
	}

	p.record(ctx, id, payload.SentBy, models.ReminderSent, subject)
	log.Info().Str("to", inv.ClientInfo.Email).Msg("reminder sent")
	return tracker.End(nil)
}

func (p *TaskProcessor) record(ctx context.Context, id utils.SixID, sentBy string, status models.ReminderStatus, message string) {
	if sentBy == "" {
		sentBy = schedulerUser
	}
	_, err := p.billingService.SendReminder(ctx, id, services.ReminderInput{
		Type:    models.ReminderEmail,
		Status:  status,
		Message: message,
		SentBy:  sentBy,
	})
	if err != nil {
		p.log.Error().Err(err).Str("invoice", id.String()).Msg("failed to record reminder")
	}
}

func reminderData(inv *models.InvoiceDetails, cfg *config.Config) ReminderEmailData {
	d := ReminderEmailData{
		InvoiceNumber: inv.InvoiceNumber,
		BillingPeriod: inv.BillingPeriod,
		DueDate:       inv.DueDate.Format(reminderDateLayout),
		Currency:      inv.Currency,
		TotalAmount:   inv.TotalAmount,
		BalanceAmount: inv.BalanceAmount,
		DaysOverdue:   inv.DaysOverdue,
		AppName:       cfg.AppName,
	}
	if d.Currency == "" {
		d.Currency = cfg.BillingCurrency
	}
	if inv.ClientInfo != nil {
		d.ClientName = inv.ClientInfo.Name
	}
	if v := inv.VehicleInfo; v != nil {
		d.Vehicle = strings.TrimSpace(fmt.Sprintf("%s %s (%s)", v.Brand, v.Model, v.ChassisNumber))
	}
	return d
}

// HandleExportMonthlyTask uploads a CSV of a period's invoices.
func (p *TaskProcessor) HandleExportMonthlyTask(ctx context.Context, t *asynq.Task) error {
	tracker := p.metrics.Track(TypeExportMonthly)
	var payload ExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("failed to unmarshal export payload: %v: %w", err, asynq.SkipRetry))
	}
	if p.exportService == nil {
		return tracker.End(fmt.Errorf("exports are not configured: %w", asynq.SkipRetry))
	}
	res, err := p.exportService.ExportMonthly(ctx, payload.Period)
	if err != nil {
		if billing.IsClientError(err) {
			return tracker.End(fmt.Errorf("invalid export payload: %v: %w", err, asynq.SkipRetry))
		}
		return tracker.End(err)
	}
	p.log.Info().Str("period", res.Period).Int("rows", res.Rows).Str("key", res.Key).Msg("monthly export uploaded")
	return tracker.End(nil)
}
