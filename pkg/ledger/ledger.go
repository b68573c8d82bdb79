package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mcclellann/pawnledger/pkg/logging"
	"github.com/mcclellann/pawnledger/pkg/models"
	"github.com/mcclellann/pawnledger/pkg/store"
)

// DefaultInterestTolerance is the percentage by which declared interest may
// differ from the projected figure before the payment is flagged.
var DefaultInterestTolerance = decimal.NewFromInt(10)

// Recorder receives ledger events for metrics.
type Recorder interface {
	ItemOriginated(category string)
	PaymentApplied(interestPaid, principalPaid decimal.Decimal)
	PaymentRejected(reason string)
	InterestMismatch()
}

type nopRecorder struct{}

func (nopRecorder) ItemOriginated(string)                           {}
func (nopRecorder) PaymentApplied(decimal.Decimal, decimal.Decimal) {}
func (nopRecorder) PaymentRejected(string)                          {}
func (nopRecorder) InterestMismatch()                               {}

// Ledger handles the business logic for customers, pledged items and the
// payments made against them.
type Ledger struct {
	storage   store.Storage
	now       func() time.Time
	tolerance decimal.Decimal
	recorder  Recorder
	locks     *itemLocks
}

type Option func(*Ledger)

// WithClock replaces time.Now for status projections and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithInterestTolerance sets the reconciliation tolerance as a percentage of
// the projected interest.
func WithInterestTolerance(pct decimal.Decimal) Option {
	return func(l *Ledger) { l.tolerance = pct }
}

func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:   s,
		now:       time.Now,
		tolerance: DefaultInterestTolerance,
		recorder:  nopRecorder{},
		locks:     newItemLocks(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CustomerInput carries the editable customer fields.
type CustomerInput struct {
	Name         string `json:"name"`
	GuardianName string `json:"guardian_name"`
	Relation     string `json:"relation"`
	Address      string `json:"address"`
	MobileNumber string `json:"mobile_number"`
}

func (in *CustomerInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.GuardianName = strings.TrimSpace(in.GuardianName)
	in.Relation = strings.TrimSpace(in.Relation)
	in.Address = strings.TrimSpace(in.Address)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	if in.Name == "" {
		return models.NewValidationError("name", "required")
	}
	return nil
}

func (l *Ledger) CreateCustomer(ctx context.Context, in CustomerInput) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, fmt.Errorf("CreateCustomer: %w", err)
	}

	now := l.now().UTC()
	c := &models.Customer{
		ID:           uuid.New(),
		Name:         in.Name,
		GuardianName: in.GuardianName,
		Relation:     in.Relation,
		Address:      in.Address,
		MobileNumber: in.MobileNumber,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.storage.CreateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("CreateCustomer: %w", err)
	}

	logging.FromContext(ctx).Info("customer created", "customer_id", c.ID)
	return c, nil
}

func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(ctx, id)
}

// CustomerFilter narrows a customer listing. Every set field must appear,
// case-insensitively, in the matching customer field.
type CustomerFilter struct {
	Name         string
	GuardianName string
	Address      string
}

func (f CustomerFilter) matches(c *models.Customer) bool {
	return containsFold(c.Name, f.Name) &&
		containsFold(c.GuardianName, f.GuardianName) &&
		containsFold(c.Address, f.Address)
}

func (l *Ledger) ListCustomers(ctx context.Context, filter CustomerFilter, params ListParams) (*Page[*models.Customer], error) {
	if err := params.normalize(); err != nil {
		return nil, fmt.Errorf("ListCustomers: %w", err)
	}
	customers, err := l.storage.GetAllCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCustomers: %w", err)
	}

	out := make([]*models.Customer, 0, len(customers))
	for _, c := range customers {
		if filter.matches(c) {
			out = append(out, c)
		}
	}
	sortRecords(out, params, func(c *models.Customer) (time.Time, time.Time, uuid.UUID) {
		return c.CreatedAt, c.UpdatedAt, c.ID
	})
	return paginate(out, params), nil
}

func (l *Ledger) UpdateCustomer(ctx context.Context, id uuid.UUID, in CustomerInput) (*models.Customer, error) {
	if err := in.normalize(); err != nil {
		return nil, fmt.Errorf("UpdateCustomer: %w", err)
	}
	c, err := l.storage.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateCustomer: %w", err)
	}

	c.Name = in.Name
	c.GuardianName = in.GuardianName
	c.Relation = in.Relation
	c.Address = in.Address
	c.MobileNumber = in.MobileNumber
	c.UpdatedAt = l.now().UTC()
	if err := l.storage.UpdateCustomer(ctx, c); err != nil {
		return nil, fmt.Errorf("UpdateCustomer: %w", err)
	}
	return c, nil
}

// DeleteCustomer fails with models.ErrInvalidState while the customer still
// has pledged items.
func (l *Ledger) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	if err := l.storage.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("DeleteCustomer: %w", err)
	}
	logging.FromContext(ctx).Info("customer deleted", "customer_id", id)
	return nil
}

// NewItem describes an item being pledged. CreatedAt may backdate the loan;
// zero means now.
type NewItem struct {
	CustomerID  uuid.UUID       `json:"customer_id"`
	Name        string          `json:"name"`
	Category    models.Category `json:"category"`
	Weight      string          `json:"weight"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Percentage  decimal.Decimal `json:"percentage"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ItemDetails carries the descriptive fields of an item. Amounts and the rate
// are fixed at origination.
type ItemDetails struct {
	Name        string          `json:"name"`
	Category    models.Category `json:"category"`
	Weight      string          `json:"weight"`
	Description string          `json:"description"`
}

func (d *ItemDetails) normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Weight = strings.TrimSpace(d.Weight)
	d.Category = models.Category(strings.ToLower(strings.TrimSpace(string(d.Category))))
	if d.Name == "" {
		return models.NewValidationError("name", "required")
	}
	if !d.Category.IsValid() {
		return models.NewValidationError("category", "must be gold or silver")
	}
	return nil
}

// CreateItem originates a loan against a pledged item.
func (l *Ledger) CreateItem(ctx context.Context, in NewItem) (*models.Item, error) {
	details := ItemDetails{Name: in.Name, Category: in.Category, Weight: in.Weight, Description: in.Description}
	if err := details.normalize(); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("CreateItem: %w", models.NewValidationError("amount", "must be greater than zero"))
	}
	if !in.Percentage.IsPositive() {
		return nil, fmt.Errorf("CreateItem: %w", models.NewValidationError("percentage", "must be greater than zero"))
	}
	if err := checkScale("amount", in.Amount); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}
	if err := checkScale("percentage", in.Percentage); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}

	now := l.now().UTC()
	createdAt := now
	if !in.CreatedAt.IsZero() {
		if in.CreatedAt.After(now) {
			return nil, fmt.Errorf("CreateItem: %w", models.NewValidationError("created_at", "cannot be in the future"))
		}
		createdAt = in.CreatedAt.UTC()
	}

	if _, err := l.storage.GetCustomer(ctx, in.CustomerID); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}

	item := &models.Item{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		Name:            details.Name,
		Category:        details.Category,
		Weight:          details.Weight,
		Description:     details.Description,
		Amount:          in.Amount,
		RemainingAmount: in.Amount,
		Percentage:      in.Percentage,
		TotalPaid:       decimal.Zero,
		Version:         1,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}
	if err := l.storage.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("CreateItem: %w", err)
	}

	l.recorder.ItemOriginated(string(item.Category))
	logging.FromContext(ctx).Info("item originated",
		"item_id", item.ID,
		"customer_id", item.CustomerID,
		"amount", item.Amount.String(),
		"percentage", item.Percentage.String(),
	)
	return item, nil
}

func (l *Ledger) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return l.storage.GetItem(ctx, id)
}

// ItemFilter narrows an item listing. A nil CustomerID lists every item.
type ItemFilter struct {
	CustomerID uuid.UUID
	Name       string
}

func (l *Ledger) ListItems(ctx context.Context, filter ItemFilter, params ListParams) (*Page[*models.Item], error) {
	if err := params.normalize(); err != nil {
		return nil, fmt.Errorf("ListItems: %w", err)
	}

	var (
		items []*models.Item
		err   error
	)
	if filter.CustomerID == uuid.Nil {
		items, err = l.storage.GetAllItems(ctx)
	} else {
		if _, err := l.storage.GetCustomer(ctx, filter.CustomerID); err != nil {
			return nil, fmt.Errorf("ListItems: %w", err)
		}
		items, err = l.storage.GetItemsForCustomer(ctx, filter.CustomerID)
	}
	if err != nil {
		return nil, fmt.Errorf("ListItems: %w", err)
	}

	out := make([]*models.Item, 0, len(items))
	for _, item := range items {
		if containsFold(item.Name, filter.Name) {
			out = append(out, item)
		}
	}
	sortRecords(out, params, func(i *models.Item) (time.Time, time.Time, uuid.UUID) {
		return i.CreatedAt, i.UpdatedAt, i.ID
	})
	return paginate(out, params), nil
}

// UpdateItemDetails rewrites descriptive fields. Balances are untouched.
func (l *Ledger) UpdateItemDetails(ctx context.Context, id uuid.UUID, d ItemDetails) (*models.Item, error) {
	if err := d.normalize(); err != nil {
		return nil, fmt.Errorf("UpdateItemDetails: %w", err)
	}
	item, err := l.storage.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateItemDetails: %w", err)
	}

	item.Name = d.Name
	item.Category = d.Category
	item.Weight = d.Weight
	item.Description = d.Description
	item.UpdatedAt = l.now().UTC()
	if err := l.storage.UpdateItemDetails(ctx, item); err != nil {
		return nil, fmt.Errorf("UpdateItemDetails: %w", err)
	}
	return item, nil
}

// DeleteItem removes an item together with its payments and interest history.
func (l *Ledger) DeleteItem(ctx context.Context, id uuid.UUID) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	if err := l.storage.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("DeleteItem: %w", err)
	}
	logging.FromContext(ctx).Warn("item deleted with its payment history", "item_id", id)
	return nil
}
