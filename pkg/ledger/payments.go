package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/interest"
	"github.com/mcclellann/pawnledger/pkg/logging"
	"github.com/mcclellann/pawnledger/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// Reconciliation compares the interest a payment declared with the interest
// the calculator projects for the window the payment settles.
type Reconciliation struct {
	FromDate          time.Time       `json:"from_date"`
	ToDate            time.Time       `json:"to_date"`
	Days              int             `json:"days"`
	Principal         decimal.Decimal `json:"principal"`
	ProjectedInterest decimal.Decimal `json:"projected_interest"`
	DeclaredInterest  decimal.Decimal `json:"declared_interest"`
	Difference        decimal.Decimal `json:"difference"`
	Flagged           bool            `json:"flagged"`
}

// PaymentReceipt is the item's state right after a payment was applied.
type PaymentReceipt struct {
	PaymentID        uuid.UUID         `json:"payment_id"`
	ItemID           uuid.UUID         `json:"item_id"`
	PaidAt           time.Time         `json:"paid_at"`
	AmountPaid       decimal.Decimal   `json:"amount_paid"`
	InterestPaid     decimal.Decimal   `json:"interest_paid"`
	PrincipalPaid    decimal.Decimal   `json:"principal_paid"`
	RemainingAmount  decimal.Decimal   `json:"remaining_amount"`
	TotalPaid        decimal.Decimal   `json:"total_paid"`
	InterestPaidTill time.Time         `json:"interest_paid_till"`
	Status           models.ItemStatus `json:"status"`
	Reconciliation   Reconciliation    `json:"reconciliation"`
}

// ApplyPayment records a payment whose interest and principal split was
// decided by the caller. The item's remaining principal, total paid and
// interest-paid-till watermark are updated together with the new payment
// record, or not at all.
func (l *Ledger) ApplyPayment(ctx context.Context, itemID uuid.UUID, interestAmount, principalAmount decimal.Decimal, paidAt time.Time) (*PaymentReceipt, error) {
	log := logging.FromContext(ctx).With("item_id", itemID)

	receipt, err := l.applyPayment(ctx, itemID, interestAmount, principalAmount, paidAt)
	if err != nil {
		reason := rejectReason(err)
		l.recorder.PaymentRejected(reason)
		if reason == "internal" {
			log.Error("payment failed", "error", err)
		} else {
			log.Info("payment rejected", "reason", reason, "error", err)
		}
		return nil, fmt.Errorf("ApplyPayment: %w", err)
	}

	l.recorder.PaymentApplied(receipt.InterestPaid, receipt.PrincipalPaid)
	if receipt.Reconciliation.Flagged {
		l.recorder.InterestMismatch()
		log.Warn("declared interest differs from projection",
			"payment_id", receipt.PaymentID,
			"declared", receipt.Reconciliation.DeclaredInterest.String(),
			"projected", receipt.Reconciliation.ProjectedInterest.String(),
			"days", receipt.Reconciliation.Days,
		)
	}
	log.Info("payment applied",
		"payment_id", receipt.PaymentID,
		"interest_paid", receipt.InterestPaid.String(),
		"principal_paid", receipt.PrincipalPaid.String(),
		"remaining_amount", receipt.RemainingAmount.String(),
		"status", receipt.Status,
	)
	return receipt, nil
}

func (l *Ledger) applyPayment(ctx context.Context, itemID uuid.UUID, interestAmount, principalAmount decimal.Decimal, paidAt time.Time) (*PaymentReceipt, error) {
	if err := validatePayment(interestAmount, principalAmount, paidAt); err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(itemID)
	defer unlock()

	item, err := l.storage.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status() == models.ItemStatusSettled {
		return nil, fmt.Errorf("item %s is already settled: %w", item.ID, models.ErrInvalidState)
	}
	if principalAmount.GreaterThan(item.RemainingAmount) {
		return nil, models.NewValidationError("principal",
			fmt.Sprintf("%s exceeds remaining principal %s", principalAmount, item.RemainingAmount))
	}
	if paidAt.Before(item.CreatedAt) {
		return nil, models.NewValidationError("paid_at",
			fmt.Sprintf("cannot precede the loan's start %s", item.CreatedAt.UTC().Format("2006-01-02")))
	}

	recon, err := l.reconcile(item, interestAmount, paidAt)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	amountPaid := interestAmount.Add(principalAmount)
	payment := &models.Payment{
		ID:            uuid.New(),
		ItemID:        item.ID,
		AmountPaid:    amountPaid,
		InterestPaid:  interestAmount,
		PrincipalPaid: principalAmount,
		PaidAt:        paidAt.UTC(),
		RecordedAt:    now,
	}
	record := &models.InterestRecord{
		ID:                uuid.New(),
		ItemID:            item.ID,
		PaymentID:         payment.ID,
		FromDate:          recon.FromDate,
		ToDate:            recon.ToDate,
		Days:              recon.Days,
		Principal:         recon.Principal,
		ProjectedInterest: recon.ProjectedInterest,
		DeclaredInterest:  recon.DeclaredInterest,
		Flagged:           recon.Flagged,
		RecordedAt:        now,
	}

	next := *item
	next.RemainingAmount = item.RemainingAmount.Sub(principalAmount)
	next.TotalPaid = item.TotalPaid.Add(amountPaid)
	// Backdated payments never move the watermark backwards.
	watermark := payment.PaidAt
	if start := item.InterestStart(); start.After(watermark) {
		watermark = start.UTC()
	}
	next.InterestPaidTill = &watermark
	next.Version = item.Version + 1
	next.UpdatedAt = now

	if err := l.storage.RecordPayment(ctx, &next, payment, record); err != nil {
		return nil, err
	}

	return &PaymentReceipt{
		PaymentID:        payment.ID,
		ItemID:           item.ID,
		PaidAt:           payment.PaidAt,
		AmountPaid:       amountPaid,
		InterestPaid:     interestAmount,
		PrincipalPaid:    principalAmount,
		RemainingAmount:  next.RemainingAmount,
		TotalPaid:        next.TotalPaid,
		InterestPaidTill: watermark,
		Status:           next.Status(),
		Reconciliation:   recon,
	}, nil
}

func validatePayment(interestAmount, principalAmount decimal.Decimal, paidAt time.Time) error {
	if interestAmount.IsNegative() {
		return models.NewValidationError("interest", "must not be negative")
	}
	if principalAmount.IsNegative() {
		return models.NewValidationError("principal", "must not be negative")
	}
	if err := checkScale("interest", interestAmount); err != nil {
		return err
	}
	if err := checkScale("principal", principalAmount); err != nil {
		return err
	}
	if interestAmount.IsZero() && principalAmount.IsZero() {
		return models.NewValidationError("amount", "interest and principal cannot both be zero")
	}
	if paidAt.IsZero() {
		return models.NewValidationError("paid_at", "required")
	}
	return nil
}

// checkScale rejects amounts finer than the stores keep.
func checkScale(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(models.MoneyScale)) {
		return models.NewValidationError(field, fmt.Sprintf("at most %d decimal places", models.MoneyScale))
	}
	return nil
}

// reconcile projects interest on the pre-payment principal from the current
// watermark to the payment date. The payment is flagged, never refused, when
// the declared figure strays beyond the tolerance.
func (l *Ledger) reconcile(item *models.Item, declared decimal.Decimal, paidAt time.Time) (Reconciliation, error) {
	accrual, err := interest.Project(item.RemainingAmount, item.Percentage, item.InterestStart(), paidAt)
	if err != nil {
		return Reconciliation{}, err
	}

	diff := declared.Sub(accrual.Interest)
	allowed := accrual.Interest.Mul(l.tolerance).Div(hundred)
	return Reconciliation{
		FromDate:          accrual.From.UTC(),
		ToDate:            accrual.To.UTC(),
		Days:              accrual.Days,
		Principal:         item.RemainingAmount,
		ProjectedInterest: accrual.Interest,
		DeclaredInterest:  declared,
		Difference:        diff,
		Flagged:           diff.Abs().GreaterThan(allowed),
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "internal"
	}
}
