package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/interest"
	"github.com/mcclellann/pawnledger/pkg/models"
)

// InterestStatus is interest owed on an item as of now. Nothing is persisted.
type InterestStatus struct {
	ItemID          uuid.UUID         `json:"item_id"`
	Principal       decimal.Decimal   `json:"principal"`
	MonthlyRate     decimal.Decimal   `json:"monthly_rate"`
	FromDate        time.Time         `json:"from_date"`
	ToDate          time.Time         `json:"to_date"`
	Days            int               `json:"days"`
	AccruedInterest decimal.Decimal   `json:"accrued_interest"`
	Status          models.ItemStatus `json:"status"`
	LastPayment     *models.Payment   `json:"last_payment"`
}

// GetCurrentInterestStatus projects the interest accrued since the
// watermark (or origination) on the remaining principal.
func (l *Ledger) GetCurrentInterestStatus(ctx context.Context, itemID uuid.UUID) (*InterestStatus, error) {
	item, payments, err := l.storage.LoadLedger(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("GetCurrentInterestStatus: %w", err)
	}

	accrual, err := interest.Project(item.RemainingAmount, item.Percentage, item.InterestStart(), l.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("GetCurrentInterestStatus: %w", err)
	}

	status := &InterestStatus{
		ItemID:          item.ID,
		Principal:       item.RemainingAmount,
		MonthlyRate:     item.Percentage,
		FromDate:        accrual.From,
		ToDate:          accrual.To,
		Days:            accrual.Days,
		AccruedInterest: accrual.Interest,
		Status:          item.Status(),
	}
	if n := len(payments); n > 0 {
		status.LastPayment = payments[n-1]
	}
	return status, nil
}

type ItemSnapshot struct {
	Amount           decimal.Decimal   `json:"amount"`
	RemainingAmount  decimal.Decimal   `json:"remaining_amount"`
	TotalPaid        decimal.Decimal   `json:"total_paid"`
	Percentage       decimal.Decimal   `json:"percentage"`
	InterestPaidTill *time.Time        `json:"interest_paid_till"`
	Status           models.ItemStatus `json:"status"`
}

type PaymentTotals struct {
	TotalAmountPaid    decimal.Decimal `json:"total_amount_paid"`
	TotalInterestPaid  decimal.Decimal `json:"total_interest_paid"`
	TotalPrincipalPaid decimal.Decimal `json:"total_principal_paid"`
}

type PaymentHistory struct {
	ItemID   uuid.UUID         `json:"item_id"`
	Item     ItemSnapshot      `json:"item"`
	Totals   PaymentTotals     `json:"totals"`
	Payments []*models.Payment `json:"history"`
}

// GetPaymentHistory returns an item's payments oldest first with totals
// taken from the same snapshot.
func (l *Ledger) GetPaymentHistory(ctx context.Context, itemID uuid.UUID) (*PaymentHistory, error) {
	item, payments, err := l.storage.LoadLedger(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentHistory: %w", err)
	}

	totals := PaymentTotals{
		TotalAmountPaid:    decimal.Zero,
		TotalInterestPaid:  decimal.Zero,
		TotalPrincipalPaid: decimal.Zero,
	}
	for _, p := range payments {
		totals.TotalAmountPaid = totals.TotalAmountPaid.Add(p.AmountPaid)
		totals.TotalInterestPaid = totals.TotalInterestPaid.Add(p.InterestPaid)
		totals.TotalPrincipalPaid = totals.TotalPrincipalPaid.Add(p.PrincipalPaid)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}

	return &PaymentHistory{
		ItemID: item.ID,
		Item: ItemSnapshot{
			Amount:           item.Amount,
			RemainingAmount:  item.RemainingAmount,
			TotalPaid:        item.TotalPaid,
			Percentage:       item.Percentage,
			InterestPaidTill: item.InterestPaidTill,
			Status:           item.Status(),
		},
		Totals:   totals,
		Payments: payments,
	}, nil
}

// GetInterestHistory returns the accrual windows settled by each payment.
func (l *Ledger) GetInterestHistory(ctx context.Context, itemID uuid.UUID) ([]*models.InterestRecord, error) {
	if _, err := l.storage.GetItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("GetInterestHistory: %w", err)
	}
	records, err := l.storage.GetInterestHistory(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("GetInterestHistory: %w", err)
	}
	if records == nil {
		records = []*models.InterestRecord{}
	}
	return records, nil
}

// CalculateStandaloneInterest prices interest on an arbitrary amount without
// touching any item.
func (l *Ledger) CalculateStandaloneInterest(amount decimal.Decimal, from, to time.Time, monthlyRate decimal.Decimal) (interest.Quotation, error) {
	q, err := interest.Quote(amount, from, to, monthlyRate)
	if err != nil {
		return interest.Quotation{}, fmt.Errorf("CalculateStandaloneInterest: %w", err)
	}
	return q, nil
}
