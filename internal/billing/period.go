package billing

import (
	"fmt"
	"regexp"
	"time"
)

// MaxAnchorDay keeps the anchor valid in every month, February included.
const MaxAnchorDay = 28

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Period is a calendar month in UTC.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a "YYYY-MM" billing period.
func ParsePeriod(s string) (Period, error) {
	if !periodPattern.MatchString(s) {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// IsValidPeriod reports whether s is a well-formed "YYYY-MM" period.
func IsValidPeriod(s string) bool {
	return periodPattern.MatchString(s)
}

// PeriodOf returns the period containing t, evaluated in UTC.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

// AnchorDay resolves the billing day of month for a vehicle. An override >= 1
// wins; otherwise the purchase date's UTC day is used; 1 when neither is known.
// The result is always within 1..MaxAnchorDay.
func AnchorDay(override *int, purchaseDate *time.Time) int {
	day := 1
	switch {
	case override != nil && *override >= 1:
		day = *override
	case purchaseDate != nil && !purchaseDate.IsZero():
		day = purchaseDate.UTC().Day()
	}
	return clampAnchor(day)
}

func clampAnchor(day int) int {
	if day < 1 {
		return 1
	}
	if day > MaxAnchorDay {
		return MaxAnchorDay
	}
	return day
}

// DueDate is the anchor day of the period at midnight UTC.
func DueDate(p Period, anchorDay int) time.Time {
	return p.Start().AddDate(0, 0, clampAnchor(anchorDay)-1)
}
