package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reminderData struct {
	ClientName    string
	InvoiceNumber string
	Vehicle       string
	BillingPeriod string
	DueDate       string
	Currency      string
	BalanceAmount float64
	DaysOverdue   int
	AppName       string
}

func TestEmailTemplateService_RenderDefault(t *testing.T) {
	svc := NewEmailTemplateService(nil)
	subject, body, err := svc.Render(context.Background(), "invoice_reminder", "", reminderData{
		ClientName:    "Ali Raza",
		InvoiceNumber: "INV-202410-0001",
		Vehicle:       "Toyota Corolla (CH-1)",
		BillingPeriod: "2024-10",
		DueDate:       "2024-10-10",
		Currency:      "PKR",
		BalanceAmount: 7000,
		AppName:       "Velaa",
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-202410-0001 for 2024-10", subject)
	assert.Contains(t, body, "Dear Ali Raza,")
	assert.Contains(t, body, "Outstanding balance: PKR 7000.00.")
}

func TestEmailTemplateService_Errors(t *testing.T) {
	svc := NewEmailTemplateService(nil)

	_, err := svc.GetTemplate(context.Background(), "welcome", "en-US")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, _, err = svc.Render(context.Background(), "invoice_reminder", "", map[string]any{"ClientName": "x"})
	assert.Error(t, err)

	assert.Error(t, svc.DeleteTemplate(context.Background(), "invoice_reminder", "en-US"))
}
