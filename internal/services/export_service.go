package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/storage"
)

// ExportResult locates an uploaded export.
type ExportResult struct {
	Period    string    `json:"period"`
	Rows      int       `json:"rows"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IExportService writes monthly ledgers to object storage.
type IExportService interface {
	ExportMonthly(ctx context.Context, period string) (*ExportResult, error)
}

type exportService struct {
	billing IBillingService
	storage storage.IS3Storage
	urlTTL  time.Duration
}

func NewExportService(billing IBillingService, store storage.IS3Storage, urlTTL time.Duration) IExportService {
	return &exportService{billing: billing, storage: store, urlTTL: urlTTL}
}

var exportHeader = []string{
	"invoice_number", "billing_period", "due_date", "client", "chassis_number",
	"base_amount", "tax_amount", "discount_amount", "total_amount", "paid_amount",
	"balance_amount", "payment_status", "status",
}

func (s *exportService) ExportMonthly(ctx context.Context, period string) (*ExportResult, error) {
	invoices, err := s.billing.ListMonthly(ctx, period, ListMonthlyOptions{})
	if err != nil {
		return nil, err
	}
	body, err := MonthlyCSV(invoices)
	if err != nil {
		return nil, err
	}

	key := storage.ExportKey(period, "csv")
	if err := s.storage.PutObject(ctx, key, "text/csv", body); err != nil {
		return nil, err
	}
	url, err := s.storage.PresignGet(ctx, key, s.urlTTL)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Period:    period,
		Rows:      len(invoices),
		Key:       key,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(s.urlTTL),
	}, nil
}

// MonthlyCSV renders invoices as CSV with a header row.
func MonthlyCSV(invoices []*models.InvoiceDetails) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		client, chassis := "", ""
		if inv.ClientInfo != nil {
			client = inv.ClientInfo.Name
		}
		if inv.VehicleInfo != nil {
			chassis = inv.VehicleInfo.ChassisNumber
		}
		row := []string{
			inv.InvoiceNumber,
			inv.BillingPeriod,
			inv.DueDate.Format("2006-01-02"),
			client,
			chassis,
			amount(inv.BaseAmount),
			amount(inv.TaxAmount),
			amount(inv.DiscountAmount),
			amount(inv.TotalAmount),
			amount(inv.PaidAmount),
			amount(inv.BalanceAmount),
			string(inv.PaymentStatus),
			string(inv.Status),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	return buf.Bytes(), nil
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
