package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for amounts and rates.
const MoneyScale = 4

type Customer struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	GuardianName string    `json:"guardian_name"`
	Relation     string    `json:"relation"` // e.g. "son_of", "wife_of"
	Address      string    `json:"address"`
	MobileNumber string    `json:"mobile_number,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Category string

const (
	CategoryGold   Category = "gold"
	CategorySilver Category = "silver"
)

func (c Category) IsValid() bool {
	return c == CategoryGold || c == CategorySilver
}

type ItemStatus string

const (
	ItemStatusActive  ItemStatus = "active"
	ItemStatusSettled ItemStatus = "settled"
)

// Item is a pledged article together with the loan taken against it.
type Item struct {
	ID               uuid.UUID       `json:"id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	Name             string          `json:"name"`
	Category         Category        `json:"category"`
	Weight           string          `json:"weight"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`             // Original principal, fixed at origination
	RemainingAmount  decimal.Decimal `json:"remaining_amount"`   // Outstanding principal
	Percentage       decimal.Decimal `json:"percentage"`         // Monthly interest rate in percent
	TotalPaid        decimal.Decimal `json:"total_paid"`         // Interest + principal received so far
	InterestPaidTill *time.Time      `json:"interest_paid_till"` // Nil until the first payment
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Status reports whether any principal is still outstanding.
func (i *Item) Status() ItemStatus {
	if i.RemainingAmount.GreaterThan(decimal.Zero) {
		return ItemStatusActive
	}
	return ItemStatusSettled
}

// InterestStart is the date interest currently accrues from.
func (i *Item) InterestStart() time.Time {
	if i.InterestPaidTill != nil {
		return *i.InterestPaidTill
	}
	return i.CreatedAt
}

// Payment is an immutable ledger entry. AmountPaid always equals
// InterestPaid + PrincipalPaid.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	InterestPaid  decimal.Decimal `json:"interest_paid"`
	PrincipalPaid decimal.Decimal `json:"principal_paid"`
	PaidAt        time.Time       `json:"paid_at"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// InterestRecord captures the accrual window a payment settled and how the
// declared interest compared with the projected figure.
type InterestRecord struct {
	ID                uuid.UUID       `json:"id"`
	ItemID            uuid.UUID       `json:"item_id"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	FromDate          time.Time       `json:"from_date"`
	ToDate            time.Time       `json:"to_date"`
	Days              int             `json:"days"`
	Principal         decimal.Decimal `json:"principal"`
	ProjectedInterest decimal.Decimal `json:"projected_interest"`
	DeclaredInterest  decimal.Decimal `json:"declared_interest"`
	Flagged           bool            `json:"flagged"`
	RecordedAt        time.Time       `json:"recorded_at"`
}
