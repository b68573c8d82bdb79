// Package insights aggregates portfolio figures across all customers and
// items for dashboards.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/models"
)

const (
	MaxMonths = 120
	MaxDays   = 366
)

// Source is the read side of store.Storage used here.
type Source interface {
	GetAllCustomers(ctx context.Context) ([]*models.Customer, error)
	GetAllItems(ctx context.Context) ([]*models.Item, error)
	GetPaymentsSince(ctx context.Context, since time.Time) ([]*models.Payment, error)
}

type Service struct {
	source Source
	now    func() time.Time
}

func NewService(source Source, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{source: source, now: now}
}

type CategoryBreakdown struct {
	Category        models.Category `json:"category"`
	Items           int             `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
}

type Summary struct {
	TotalCustomers       int                 `json:"total_customers"`
	TotalItems           int                 `json:"total_items"`
	ActiveItems          int                 `json:"active_items"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	TotalPaidAmount      decimal.Decimal     `json:"total_paid_amount"`
	TotalRemainingAmount decimal.Decimal     `json:"total_remaining_amount"`
	TotalInterest        decimal.Decimal     `json:"total_interest"`
	AverageInterestRate  decimal.Decimal     `json:"average_interest_rate"`
	Categories           []CategoryBreakdown `json:"categories"`
}

// Summary totals the whole book. TotalInterest is the interest actually
// received, summed from payments.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	customers, err := s.source.GetAllCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}
	items, err := s.source.GetAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}
	payments, err := s.source.GetPaymentsSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}

	sum := &Summary{
		TotalCustomers:       len(customers),
		TotalItems:           len(items),
		TotalAmount:          decimal.Zero,
		TotalPaidAmount:      decimal.Zero,
		TotalRemainingAmount: decimal.Zero,
		TotalInterest:        decimal.Zero,
		AverageInterestRate:  decimal.Zero,
		Categories:           []CategoryBreakdown{},
	}

	rates := decimal.Zero
	byCategory := make(map[models.Category]*CategoryBreakdown)
	for _, item := range items {
		if item.Status() == models.ItemStatusActive {
			sum.ActiveItems++
		}
		sum.TotalAmount = sum.TotalAmount.Add(item.Amount)
		sum.TotalPaidAmount = sum.TotalPaidAmount.Add(item.TotalPaid)
		sum.TotalRemainingAmount = sum.TotalRemainingAmount.Add(item.RemainingAmount)
		rates = rates.Add(item.Percentage)

		cb, ok := byCategory[item.Category]
		if !ok {
			cb = &CategoryBreakdown{
				Category:        item.Category,
				TotalAmount:     decimal.Zero,
				RemainingAmount: decimal.Zero,
				TotalPaid:       decimal.Zero,
			}
			byCategory[item.Category] = cb
		}
		cb.Items++
		cb.TotalAmount = cb.TotalAmount.Add(item.Amount)
		cb.RemainingAmount = cb.RemainingAmount.Add(item.RemainingAmount)
		cb.TotalPaid = cb.TotalPaid.Add(item.TotalPaid)
	}
	if len(items) > 0 {
		sum.AverageInterestRate = rates.Div(decimal.NewFromInt(int64(len(items)))).Round(2)
	}
	for _, p := range payments {
		sum.TotalInterest = sum.TotalInterest.Add(p.InterestPaid)
	}

	for _, cb := range byCategory {
		sum.Categories = append(sum.Categories, *cb)
	}
	sort.Slice(sum.Categories, func(i, j int) bool { return sum.Categories[i].Category < sum.Categories[j].Category })
	return sum, nil
}

// Series is a zero-filled time series of money received. Labels are UTC
// dates in YYYY-MM or YYYY-MM-DD form.
type Series struct {
	Labels       []string          `json:"labels"`
	TotalPaid    []decimal.Decimal `json:"total_paid"`
	InterestPaid []decimal.Decimal `json:"interest_paid"`
}

// Monthly buckets payments into the last months calendar months, the
// current month included.
func (s *Service) Monthly(ctx context.Context, months int) (*Series, error) {
	if months < 1 || months > MaxMonths {
		return nil, fmt.Errorf("Monthly: %w", models.NewValidationError("months", fmt.Sprintf("must be between 1 and %d", MaxMonths)))
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	labels := make([]string, 0, months)
	for i := 0; i < months; i++ {
		labels = append(labels, start.AddDate(0, i, 0).Format("2006-01"))
	}
	return s.bucket(ctx, start, labels, "2006-01")
}

// Daily buckets payments into the last days calendar days, today included.
func (s *Service) Daily(ctx context.Context, days int) (*Series, error) {
	if days < 1 || days > MaxDays {
		return nil, fmt.Errorf("Daily: %w", models.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", MaxDays)))
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	labels := make([]string, 0, days)
	for i := 0; i < days; i++ {
		labels = append(labels, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	return s.bucket(ctx, start, labels, "2006-01-02")
}

func (s *Service) bucket(ctx context.Context, start time.Time, labels []string, layout string) (*Series, error) {
	payments, err := s.source.GetPaymentsSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("insights: payments since %s: %w", start.Format(layout), err)
	}

	index := make(map[string]int, len(labels))
	series := &Series{
		Labels:       labels,
		TotalPaid:    make([]decimal.Decimal, len(labels)),
		InterestPaid: make([]decimal.Decimal, len(labels)),
	}
	for i, l := range labels {
		index[l] = i
		series.TotalPaid[i] = decimal.Zero
		series.InterestPaid[i] = decimal.Zero
	}

	for _, p := range payments {
		// Payments dated after today fall outside every bucket.
		i, ok := index[p.PaidAt.UTC().Format(layout)]
		if !ok {
			continue
		}
		series.TotalPaid[i] = series.TotalPaid[i].Add(p.AmountPaid)
		series.InterestPaid[i] = series.InterestPaid[i].Add(p.InterestPaid)
	}
	return series, nil
}
