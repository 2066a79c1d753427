package handlers_test

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
	"github.com/adamwilson22/Velaa-Backend/internal/tasks"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// MockBillingService implements services.IBillingService
type MockBillingService struct {
	mock.Mock
}

func details(args mock.Arguments) (*models.InvoiceDetails, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InvoiceDetails), args.Error(1)
}

func detailList(args mock.Arguments) ([]*models.InvoiceDetails, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InvoiceDetails), args.Error(1)
}

func (m *MockBillingService) EnsureMonthlyInvoice(ctx context.Context, vehicleID utils.SixID, period, actingUser string) (*services.EnsureResult, error) {
	args := m.Called(ctx, vehicleID, period, actingUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EnsureResult), args.Error(1)
}

func (m *MockBillingService) GenerateMonthlyInvoices(ctx context.Context, period, actingUser string) (*services.GenerationSummary, error) {
	args := m.Called(ctx, period, actingUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GenerationSummary), args.Error(1)
}

func (m *MockBillingService) ListMonthly(ctx context.Context, period string, opts services.ListMonthlyOptions) ([]*models.InvoiceDetails, error) {
	return detailList(m.Called(ctx, period, opts))
}

func (m *MockBillingService) ListInvoices(ctx context.Context, q services.InvoiceQuery) (*services.InvoicePage, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InvoicePage), args.Error(1)
}

func (m *MockBillingService) GetInvoice(ctx context.Context, id utils.SixID) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id))
}

func (m *MockBillingService) AddPayment(ctx context.Context, id utils.SixID, in services.PaymentInput) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, in))
}

func (m *MockBillingService) SendReminder(ctx context.Context, id utils.SixID, in services.ReminderInput) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, in))
}

func (m *MockBillingService) SetAdjustments(ctx context.Context, id utils.SixID, in services.AdjustmentsInput) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, in))
}

func (m *MockBillingService) MarkPaid(ctx context.Context, id utils.SixID, in services.MarkPaidInput) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, in))
}

func (m *MockBillingService) Cancel(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, reason, actingUser))
}

func (m *MockBillingService) Refund(ctx context.Context, id utils.SixID, reason, actingUser string) (*models.InvoiceDetails, error) {
	return details(m.Called(ctx, id, reason, actingUser))
}

func (m *MockBillingService) ListOutstanding(ctx context.Context) ([]*models.InvoiceDetails, error) {
	return detailList(m.Called(ctx))
}

func (m *MockBillingService) ListOverdue(ctx context.Context) ([]*models.InvoiceDetails, error) {
	return detailList(m.Called(ctx))
}

func (m *MockBillingService) RefreshOverdue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockBillingService) RevenueStats(ctx context.Context, from, to time.Time) (store.RevenueStats, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(store.RevenueStats), args.Error(1)
}

// MockEnqueuer implements tasks.IEnqueuer
type MockEnqueuer struct {
	mock.Mock
}

func taskInfo(args mock.Arguments) (*asynq.TaskInfo, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func (m *MockEnqueuer) EnqueueGenerate(ctx context.Context, p tasks.InvoiceGeneratePayload) (*asynq.TaskInfo, error) {
	return taskInfo(m.Called(ctx, p))
}

func (m *MockEnqueuer) EnqueueReminder(ctx context.Context, p tasks.ReminderPayload) (*asynq.TaskInfo, error) {
	return taskInfo(m.Called(ctx, p))
}

func (m *MockEnqueuer) EnqueueExport(ctx context.Context, p tasks.ExportPayload) (*asynq.TaskInfo, error) {
	return taskInfo(m.Called(ctx, p))
}
