package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const invoicePrefix = "INV-"

// NumberPrefix returns "INV-YYYYMM-" for the UTC month of t.
func NumberPrefix(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d%02d-", invoicePrefix, t.Year(), int(t.Month()))
}

// SequenceKey identifies the per-month counter, e.g. "202410".
func SequenceKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%02d", t.Year(), int(t.Month()))
}

// FormatInvoiceNumber renders INV-{YYYYMM}-{seq:04d}. Sequences past 9999 widen.
func FormatInvoiceNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("%s%04d", NumberPrefix(t), seq)
}

// ParseSequence extracts the numeric suffix of an invoice number carrying prefix.
func ParseSequence(invoiceNumber, prefix string) (int64, bool) {
	if !strings.HasPrefix(invoiceNumber, prefix) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(invoiceNumber, prefix), 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// MaxSequence returns the highest suffix among numbers sharing prefix, 0 when none do.
func MaxSequence(numbers []string, prefix string) int64 {
	var max int64
	for _, n := range numbers {
		if seq, ok := ParseSequence(n, prefix); ok && seq > max {
			max = seq
		}
	}
	return max
}
