// Package store persists invoices, vehicles, clients and invoice counters.
// Each store has a MongoDB implementation and an in-memory one with the same
// uniqueness guarantees, used by tests and the memory run mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateKey is returned when a unique index rejects a write. For
	// CreateIfAbsent that is either a reused invoice number or a natural-key
	// race lost to a concurrent insert; callers tell them apart by re-fetching
	// the natural key.
	ErrDuplicateKey = errors.New("store: duplicate key")
)

// InvoiceSort selects the ordering of invoice listings.
type InvoiceSort int

const (
	// SortByDueDate orders by due date ascending, then invoice number.
	SortByDueDate InvoiceSort = iota
	// SortByPeriodDesc orders by billing period descending, then due date ascending.
	SortByPeriodDesc
)

// InvoiceFilter narrows invoice queries. Zero values match everything.
type InvoiceFilter struct {
	Type            models.TransactionType
	BillingPeriod   string
	Client          *utils.SixID
	PaymentStatuses []models.PaymentStatus
	ExcludeStatuses []models.InvoiceStatus
	DueBefore       *time.Time
	// InvoiceFrom is inclusive and InvoiceTo exclusive.
	InvoiceFrom *time.Time
	InvoiceTo   *time.Time
}

// ListOptions control ordering and paging. Limit 0 means no limit.
type ListOptions struct {
	Sort  InvoiceSort
	Skip  int64
	Limit int64
}

// RevenueStats aggregates invoice amounts.
type RevenueStats struct {
	Count         int64   `json:"count"`
	TotalAmount   float64 `json:"total_amount"`
	PaidAmount    float64 `json:"paid_amount"`
	BalanceAmount float64 `json:"balance_amount"`
}

// LedgerStore persists invoices.
type LedgerStore interface {
	// CreateIfAbsent atomically inserts inv unless an invoice with the same
	// (vehicle, type, billing period) exists. When one exists only its
	// updated_by is stamped, and it is returned with created=false.
	// A collision on any other unique field returns ErrDuplicateKey.
	CreateIfAbsent(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error)
	FindByKey(ctx context.Context, vehicle utils.SixID, typ models.TransactionType, period string) (*models.Invoice, error)
	// StampUpdatedBy records the acting user without touching anything else.
	StampUpdatedBy(ctx context.Context, id utils.SixID, user string) (*models.Invoice, error)
	// Save replaces inv if its version is unchanged and bumps the version.
	// A lost race returns billing.ErrConcurrentModification.
	Save(ctx context.Context, inv *models.Invoice) error
	List(ctx context.Context, filter InvoiceFilter, opts ListOptions) ([]models.Invoice, int64, error)
	// InvoiceNumbers returns every invoice number starting with prefix.
	InvoiceNumbers(ctx context.Context, prefix string) ([]string, error)
	// Revenue sums invoices dated in [from, to), excluding cancelled ones.
	Revenue(ctx context.Context, from, to time.Time) (RevenueStats, error)
}

// VehicleStore persists vehicles.
type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error)
	Update(ctx context.Context, v *models.Vehicle) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Vehicle, error)
	FindByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.Vehicle, error)
	// ListBillable returns active, unsold vehicles with an owner and a positive monthly fee.
	ListBillable(ctx context.Context) ([]models.Vehicle, error)
}

// ClientStore persists clients.
type ClientStore interface {
	Create(ctx context.Context, c *models.Client) (*models.Client, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Client, error)
	FindByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.Client, error)
}

// SequenceStore hands out monotonically increasing numbers per key.
type SequenceStore interface {
	// Next raises the counter for key to at least floor, increments it and
	// returns the new value.
	Next(ctx context.Context, key string, floor int64) (int64, error)
}

// Stores bundles the stores used by the services.
type Stores struct {
	Ledger    LedgerStore
	Vehicles  VehicleStore
	Clients   ClientStore
	Sequences SequenceStore
}

// revenueFilter selects invoices dated in [from, to) that were not cancelled.
func revenueFilter(from, to time.Time) InvoiceFilter {
	return InvoiceFilter{
		ExcludeStatuses: []models.InvoiceStatus{models.StatusCancelled},
		InvoiceFrom:     &from,
		InvoiceTo:       &to,
	}
}
