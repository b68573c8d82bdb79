package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/pawnledger/pkg/models"
)

// Storage defines the interface for database operations on customers, pledged
// items and their payment history.
type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error
	// DeleteCustomer fails with models.ErrInvalidState while the customer
	// still has items.
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	GetAllCustomers(ctx context.Context) ([]*models.Customer, error)

	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	// UpdateItemDetails writes descriptive fields only. Balances change
	// through RecordPayment.
	UpdateItemDetails(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id uuid.UUID) error
	GetItemsForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Item, error)
	GetAllItems(ctx context.Context) ([]*models.Item, error)

	// RecordPayment stores the item's new ledger state and appends the payment
	// and its interest record in one transaction. The item write only applies
	// when the stored version equals item.Version-1; otherwise nothing is
	// written and models.ErrConcurrencyConflict is returned.
	RecordPayment(ctx context.Context, item *models.Item, payment *models.Payment, record *models.InterestRecord) error
	// LoadLedger reads an item and its payments (oldest first) from one
	// consistent snapshot.
	LoadLedger(ctx context.Context, itemID uuid.UUID) (*models.Item, []*models.Payment, error)
	GetPaymentsSince(ctx context.Context, since time.Time) ([]*models.Payment, error)
	GetInterestHistory(ctx context.Context, itemID uuid.UUID) ([]*models.InterestRecord, error)

	Close() error
}
