// Package interest computes simple, non-compounding interest on pawn loans.
//
// Rates are quoted per month and converted to a daily rate over a fixed
// 30-day month. Elapsed time is counted in whole calendar days and the
// result is rounded to whole currency units.
package interest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/models"
)

const (
	daysPerMonth = 30
	day          = 24 * time.Hour
)

var (
	monthDays = decimal.NewFromInt(daysPerMonth)
	// principal * monthlyRate * days / (30 * 100)
	divisor = decimal.NewFromInt(daysPerMonth * 100)
)

// ElapsedDays returns the number of whole days between from and to, or 0
// when to is not after from.
func ElapsedDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / day)
}

// DailyRate converts a monthly percentage into a daily percentage.
func DailyRate(monthlyRate decimal.Decimal) decimal.Decimal {
	return monthlyRate.Div(monthDays)
}

// Compute returns the interest owed on principal between from and to. It
// never returns a negative amount.
func Compute(principal, monthlyRate decimal.Decimal, from, to time.Time) decimal.Decimal {
	days := ElapsedDays(from, to)
	if days <= 0 || !principal.IsPositive() || !monthlyRate.IsPositive() {
		return decimal.Zero
	}
	return principal.
		Mul(monthlyRate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(divisor).
		Round(0)
}

// Accrual is the interest projected over a window.
type Accrual struct {
	From     time.Time
	To       time.Time
	Days     int
	Interest decimal.Decimal
}

// Project is Compute with its inputs checked. It is used where the inputs come
// from stored or caller-supplied data rather than from trusted code.
func Project(principal, monthlyRate decimal.Decimal, from, to time.Time) (Accrual, error) {
	if principal.IsNegative() {
		return Accrual{}, models.NewValidationError("principal", "must not be negative")
	}
	if !monthlyRate.IsPositive() {
		return Accrual{}, models.NewValidationError("percentage", "must be greater than zero")
	}
	if from.IsZero() {
		return Accrual{}, models.NewValidationError("from_date", "required")
	}
	if to.IsZero() {
		return Accrual{}, models.NewValidationError("to_date", "required")
	}
	return Accrual{
		From:     from,
		To:       to,
		Days:     ElapsedDays(from, to),
		Interest: Compute(principal, monthlyRate, from, to),
	}, nil
}

// Quotation is a what-if interest figure that is never persisted.
type Quotation struct {
	Amount      decimal.Decimal `json:"amount"`
	FromDate    time.Time       `json:"from_date"`
	ToDate      time.Time       `json:"to_date"`
	Days        int             `json:"days"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	DailyRate   decimal.Decimal `json:"daily_rate"`
	Interest    decimal.Decimal `json:"interest"`
}

// Quote prices interest on a caller-supplied amount. Unlike Compute it
// rejects windows that do not move forward.
func Quote(amount decimal.Decimal, from, to time.Time, monthlyRate decimal.Decimal) (Quotation, error) {
	if !amount.IsPositive() {
		return Quotation{}, models.NewValidationError("amount", "must be greater than zero")
	}
	if !monthlyRate.IsPositive() {
		return Quotation{}, models.NewValidationError("monthly_rate", "must be greater than zero")
	}
	if from.IsZero() || to.IsZero() {
		return Quotation{}, models.NewValidationError("dates", "from and to dates are required")
	}
	if !to.After(from) {
		return Quotation{}, models.NewValidationError("to_date", "must be after from_date")
	}

	return Quotation{
		Amount:      amount,
		FromDate:    from,
		ToDate:      to,
		Days:        ElapsedDays(from, to),
		MonthlyRate: monthlyRate,
		DailyRate:   DailyRate(monthlyRate).Round(4),
		Interest:    Compute(amount, monthlyRate, from, to),
	}, nil
}
