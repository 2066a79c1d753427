package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// =============================================================================
// MEMORY STORES - In-memory implementations (for testing/dev)
// =============================================================================

type invoiceKey struct {
	vehicle utils.SixID
	typ     models.TransactionType
	period  string
}

// MemoryLedgerStore enforces the same unique keys as the Mongo indexes under a
// single mutex, so CreateIfAbsent is atomic.
type MemoryLedgerStore struct {
	mu       sync.RWMutex
	invoices map[utils.SixID]*models.Invoice
	byKey    map[invoiceKey]utils.SixID
	byNumber map[string]utils.SixID
	now      func() time.Time
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		invoices: make(map[utils.SixID]*models.Invoice),
		byKey:    make(map[invoiceKey]utils.SixID),
		byNumber: make(map[string]utils.SixID),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cloneInvoice(inv *models.Invoice) *models.Invoice {
	c := *inv
	c.Taxes = append([]models.Tax(nil), inv.Taxes...)
	c.AdditionalCharges = append([]models.AdditionalCharge(nil), inv.AdditionalCharges...)
	c.Payments = append([]models.Payment(nil), inv.Payments...)
	c.Reminders = append([]models.Reminder(nil), inv.Reminders...)
	return &c
}

func (m *MemoryLedgerStore) CreateIfAbsent(_ context.Context, inv *models.Invoice) (*models.Invoice, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := invoiceKey{vehicle: inv.Vehicle, typ: inv.Type, period: inv.BillingPeriod}
	if id, ok := m.byKey[k]; ok {
		existing := m.invoices[id]
		existing.UpdatedBy = inv.UpdatedBy
		existing.UpdatedAt = now
		return cloneInvoice(existing), false, nil
	}
	if _, ok := m.byNumber[inv.InvoiceNumber]; ok {
		return nil, false, ErrDuplicateKey
	}

	inv.GenIDIfEmpty()
	for {
		if _, taken := m.invoices[inv.ID]; !taken {
			break
		}
		inv.GenID()
	}
	inv.Touch(now)

	stored := cloneInvoice(inv)
	m.invoices[stored.ID] = stored
	m.byKey[k] = stored.ID
	m.byNumber[stored.InvoiceNumber] = stored.ID
	return cloneInvoice(stored), true, nil
}

func (m *MemoryLedgerStore) FindByID(_ context.Context, id utils.SixID) (*models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *MemoryLedgerStore) FindByKey(_ context.Context, vehicle utils.SixID, typ models.TransactionType, period string) (*models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[invoiceKey{vehicle: vehicle, typ: typ, period: period}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInvoice(m.invoices[id]), nil
}

func (m *MemoryLedgerStore) StampUpdatedBy(_ context.Context, id utils.SixID, user string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	inv.UpdatedBy = user
	inv.UpdatedAt = m.now()
	return cloneInvoice(inv), nil
}

func (m *MemoryLedgerStore) Save(_ context.Context, inv *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != inv.Version {
		return billing.ErrConcurrentModification
	}
	if current.InvoiceNumber != inv.InvoiceNumber {
		if _, taken := m.byNumber[inv.InvoiceNumber]; taken {
			return ErrDuplicateKey
		}
		delete(m.byNumber, current.InvoiceNumber)
		m.byNumber[inv.InvoiceNumber] = inv.ID
	}
	inv.Version++
	inv.UpdatedAt = m.now()
	m.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func matches(inv *models.Invoice, f InvoiceFilter) bool {
	if f.Type != "" && inv.Type != f.Type {
		return false
	}
	if f.BillingPeriod != "" && inv.BillingPeriod != f.BillingPeriod {
		return false
	}
	if f.Client != nil && inv.Client != *f.Client {
		return false
	}
	if len(f.PaymentStatuses) > 0 && !containsPaymentStatus(f.PaymentStatuses, inv.PaymentStatus) {
		return false
	}
	for _, s := range f.ExcludeStatuses {
		if inv.Status == s {
			return false
		}
	}
	if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
		return false
	}
	if f.InvoiceFrom != nil && inv.InvoiceDate.Before(*f.InvoiceFrom) {
		return false
	}
	if f.InvoiceTo != nil && !inv.InvoiceDate.Before(*f.InvoiceTo) {
		return false
	}
	return true
}

func containsPaymentStatus(list []models.PaymentStatus, s models.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryLedgerStore) List(_ context.Context, filter InvoiceFilter, opts ListOptions) ([]models.Invoice, int64, error) {
	m.mu.RLock()
	var all []models.Invoice
	for _, inv := range m.invoices {
		if matches(inv, filter) {
			all = append(all, *cloneInvoice(inv))
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if opts.Sort == SortByPeriodDesc && a.BillingPeriod != b.BillingPeriod {
			return a.BillingPeriod > b.BillingPeriod
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.InvoiceNumber < b.InvoiceNumber
	})

	total := int64(len(all))
	start := opts.Skip
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return append([]models.Invoice{}, all[start:end]...), total, nil
}

func (m *MemoryLedgerStore) InvoiceNumbers(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var numbers []string
	for n := range m.byNumber {
		if strings.HasPrefix(n, prefix) {
			numbers = append(numbers, n)
		}
	}
	return numbers, nil
}

func (m *MemoryLedgerStore) Revenue(_ context.Context, from, to time.Time) (RevenueStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats RevenueStats
	var total, paid, balance decimal.Decimal
	filter := revenueFilter(from, to)
	for _, inv := range m.invoices {
		if !matches(inv, filter) {
			continue
		}
		stats.Count++
		total = total.Add(decimal.NewFromFloat(inv.TotalAmount))
		paid = paid.Add(decimal.NewFromFloat(inv.PaidAmount))
		balance = balance.Add(decimal.NewFromFloat(inv.BalanceAmount))
	}
	stats.TotalAmount = total.Round(2).InexactFloat64()
	stats.PaidAmount = paid.Round(2).InexactFloat64()
	stats.BalanceAmount = balance.Round(2).InexactFloat64()
	return stats, nil
}

func roundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// MemoryVehicleStore is an in-memory VehicleStore.
type MemoryVehicleStore struct {
	mu       sync.RWMutex
	vehicles map[utils.SixID]models.Vehicle
}

func NewMemoryVehicleStore() *MemoryVehicleStore {
	return &MemoryVehicleStore{vehicles: make(map[utils.SixID]models.Vehicle)}
}

func (m *MemoryVehicleStore) Create(_ context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.GenIDIfEmpty()
	if _, taken := m.vehicles[v.ID]; taken {
		return nil, ErrDuplicateKey
	}
	for _, existing := range m.vehicles {
		if v.ChassisNumber != "" && existing.ChassisNumber == v.ChassisNumber {
			return nil, ErrDuplicateKey
		}
	}
	v.Touch(time.Now().UTC())
	m.vehicles[v.ID] = *v
	return v, nil
}

func (m *MemoryVehicleStore) Update(_ context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[v.ID]; !ok {
		return ErrNotFound
	}
	v.Touch(time.Now().UTC())
	m.vehicles[v.ID] = *v
	return nil
}

func (m *MemoryVehicleStore) FindByID(_ context.Context, id utils.SixID) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryVehicleStore) FindByIDs(_ context.Context, ids []utils.SixID) (map[utils.SixID]*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[utils.SixID]*models.Vehicle, len(ids))
	for _, id := range ids {
		if v, ok := m.vehicles[id]; ok {
			out[id] = &v
		}
	}
	return out, nil
}

func (m *MemoryVehicleStore) ListBillable(_ context.Context) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Vehicle{}
	for _, v := range m.vehicles {
		if v.IsActive && v.Status != models.VehicleSold && v.Owner != nil && v.MonthlyFee > 0 {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// MemoryClientStore is an in-memory ClientStore.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients map[utils.SixID]models.Client
}

func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{clients: make(map[utils.SixID]models.Client)}
}

func (m *MemoryClientStore) Create(_ context.Context, c *models.Client) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.GenIDIfEmpty()
	if _, taken := m.clients[c.ID]; taken {
		return nil, ErrDuplicateKey
	}
	c.Touch(time.Now().UTC())
	m.clients[c.ID] = *c
	return c, nil
}

func (m *MemoryClientStore) FindByID(_ context.Context, id utils.SixID) (*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryClientStore) FindByIDs(_ context.Context, ids []utils.SixID) (map[utils.SixID]*models.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[utils.SixID]*models.Client, len(ids))
	for _, id := range ids {
		if c, ok := m.clients[id]; ok {
			out[id] = &c
		}
	}
	return out, nil
}

// MemorySequenceStore is an in-memory SequenceStore.
type MemorySequenceStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{counters: make(map[string]int64)}
}

func (m *MemorySequenceStore) Next(_ context.Context, key string, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[key] < floor {
		m.counters[key] = floor
	}
	m.counters[key]++
	return m.counters[key], nil
}

// NewMemoryStores returns a fresh set of in-memory stores.
func NewMemoryStores() Stores {
	return Stores{
		Ledger:    NewMemoryLedgerStore(),
		Vehicles:  NewMemoryVehicleStore(),
		Clients:   NewMemoryClientStore(),
		Sequences: NewMemorySequenceStore(),
	}
}
