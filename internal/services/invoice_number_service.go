package services

import (
	"context"
	"fmt"
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
)

// IInvoiceNumberAllocator hands out INV-YYYYMM-NNNN numbers.
type IInvoiceNumberAllocator interface {
	Allocate(ctx context.Context, now time.Time) (string, error)
}

type invoiceNumberAllocator struct {
	ledger    store.LedgerStore
	sequences store.SequenceStore
}

// NewInvoiceNumberAllocator creates an allocator that scans existing numbers for
// the month and then advances a per-month counter seeded from that scan.
func NewInvoiceNumberAllocator(ledger store.LedgerStore, sequences store.SequenceStore) IInvoiceNumberAllocator {
	return &invoiceNumberAllocator{ledger: ledger, sequences: sequences}
}

func (a *invoiceNumberAllocator) Allocate(ctx context.Context, now time.Time) (string, error) {
	prefix := billing.NumberPrefix(now)
	numbers, err := a.ledger.InvoiceNumbers(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to scan invoice numbers: %w", err)
	}
	// The counter never goes below numbers already issued, including ones
	// written before the counter existed.
	seq, err := a.sequences.Next(ctx, "invoice:"+billing.SequenceKey(now), billing.MaxSequence(numbers, prefix))
	if err != nil {
		return "", fmt.Errorf("failed to advance invoice sequence: %w", err)
	}
	return billing.FormatInvoiceNumber(now, seq), nil
}
