package interest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/pawnledger/pkg/models"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestElapsedDays(t *testing.T) {
	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{"same instant", jan1, 0},
		{"before start", jan1.Add(-time.Hour), 0},
		{"under a day", jan1.Add(23*time.Hour + 59*time.Minute), 0},
		{"exactly one day", jan1.Add(24 * time.Hour), 1},
		{"thirty days", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 30},
		{"leap february", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedDays(jan1, tt.to))
		})
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		days      int
		want      string
	}{
		{"thirty days at 2 percent", "100000", "2", 30, "2000"},
		{"one day", "100000", "2", 1, "67"},
		{"rounds half away from zero", "1500", "1", 1, "1"},
		{"rounds down", "1000", "1", 1, "0"},
		{"fractional rate", "25000", "1.5", 45, "563"},
		{"zero days", "100000", "2", 0, "0"},
		{"zero principal", "0", "2", 30, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(decimal.RequireFromString(tt.principal), decimal.RequireFromString(tt.rate),
				jan1, jan1.AddDate(0, 0, tt.days))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCompute_NeverNegative(t *testing.T) {
	got := Compute(decimal.NewFromInt(100000), decimal.NewFromInt(2), jan1, jan1.AddDate(0, -1, 0))
	assert.True(t, got.IsZero())

	got = Compute(decimal.NewFromInt(-100), decimal.NewFromInt(2), jan1, jan1.AddDate(0, 1, 0))
	assert.True(t, got.IsZero())
}

func TestProject(t *testing.T) {
	a, err := Project(decimal.NewFromInt(50000), decimal.NewFromInt(3), jan1, jan1.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, a.Days)
	assert.Equal(t, "500", a.Interest.String())
	assert.Equal(t, jan1, a.From)

	_, err = Project(decimal.NewFromInt(-1), decimal.NewFromInt(3), jan1, jan1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = Project(decimal.NewFromInt(1), decimal.Zero, jan1, jan1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = Project(decimal.NewFromInt(1), decimal.NewFromInt(3), time.Time{}, jan1)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "from_date", verr.Field)
}

func TestQuote(t *testing.T) {
	q, err := Quote(decimal.NewFromInt(100000), jan1, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, 30, q.Days)
	assert.Equal(t, "2000", q.Interest.String())
	assert.Equal(t, "0.0667", q.DailyRate.String())
	assert.Equal(t, "2", q.MonthlyRate.String())

	invalid := []struct {
		name   string
		amount int64
		rate   int64
		from   time.Time
		to     time.Time
	}{
		{"zero amount", 0, 2, jan1, jan1.AddDate(0, 0, 1)},
		{"zero rate", 100, 0, jan1, jan1.AddDate(0, 0, 1)},
		{"missing date", 100, 2, time.Time{}, jan1},
		{"equal dates", 100, 2, jan1, jan1},
		{"reversed dates", 100, 2, jan1.AddDate(0, 0, 1), jan1},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Quote(decimal.NewFromInt(tt.amount), tt.from, tt.to, decimal.NewFromInt(tt.rate))
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}
