package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-02")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2024, Month: time.February}, p)
	assert.Equal(t, "2024-02", p.String())
	assert.Equal(t, "2024-03", p.Next().String())
	assert.Equal(t, "2025-01", Period{Year: 2024, Month: time.December}.Next().String())

	for _, bad := range []string{"", "2024-13", "2024-00", "2024-2", "24-02", "2024/02", "2024-02-01"} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
		assert.False(t, IsValidPeriod(bad), bad)
	}
}

func TestPeriodOf_UsesUTC(t *testing.T) {
	karachi := time.FixedZone("PKT", 5*3600)
	local := time.Date(2024, 11, 1, 2, 0, 0, 0, karachi)
	assert.Equal(t, "2024-10", PeriodOf(local).String())
}

func TestAnchorDay(t *testing.T) {
	tests := []struct {
		name     string
		override *int
		purchase *time.Time
		want     int
	}{
		{"no data defaults to 1", nil, nil, 1},
		{"purchase day", nil, timePtr(time.Date(2023, 5, 17, 10, 0, 0, 0, time.UTC)), 17},
		{"purchase on 31st clamps", nil, timePtr(time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)), 28},
		{"purchase day evaluated in UTC", nil, timePtr(time.Date(2024, 3, 1, 2, 0, 0, 0, time.FixedZone("PKT", 5*3600))), 28},
		{"override wins", intPtr(5), timePtr(time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)), 5},
		{"override clamps high", intPtr(31), nil, 28},
		{"zero override ignored", intPtr(0), timePtr(time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)), 9},
		{"negative override ignored", intPtr(-4), nil, 1},
		{"zero purchase date ignored", nil, timePtr(time.Time{}), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnchorDay(tt.override, tt.purchase))
		})
	}
}

func TestDueDate(t *testing.T) {
	feb := Period{Year: 2024, Month: time.February}
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), DueDate(feb, AnchorDay(nil, timePtr(time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)))))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), DueDate(feb, 1))
	assert.Equal(t, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), DueDate(feb, 40))
}
