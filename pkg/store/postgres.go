package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mcclellann/pawnledger/pkg/models"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Storage on PostgreSQL. Schema changes are applied
// with RunMigrations before the store is opened.
type PostgresStore struct {
	db *sql.DB
}

var _ Storage = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, databaseURL string, pool PoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresStore: open: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresStore: ping: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID.String(), c.Name, c.GuardianName, c.Relation, c.Address, c.MobileNumber, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateCustomer: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id.String())
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("GetCustomer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE customers SET name = $1, guardian_name = $2, relation = $3, address = $4, mobile_number = $5, updated_at = $6
		WHERE id = $7`,
		c.Name, c.GuardianName, c.Relation, c.Address, c.MobileNumber, c.UpdatedAt, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("UpdateCustomer: %w", err)
	}
	return expectOneRow(result, "customer", c.ID)
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteCustomer: begin: %w", err)
	}
	defer tx.Rollback()

	// Lock the customer row so no item can be originated against it while
	// the delete is in flight.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, id.String()).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("DeleteCustomer: lock: %w", err)
	}

	var items int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE customer_id = $1`, id.String()).Scan(&items); err != nil {
		return fmt.Errorf("DeleteCustomer: count items: %w", err)
	}
	if items > 0 {
		return fmt.Errorf("customer %s still has %d items: %w", id, items, models.ErrInvalidState)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id.String()); err != nil {
		return fmt.Errorf("DeleteCustomer: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetAllCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("GetAllCustomers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAllCustomers: scan: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *models.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		item.ID.String(), item.CustomerID.String(), item.Name, item.Category, item.Weight, item.Description,
		item.Amount, item.RemainingAmount, item.Percentage, item.TotalPaid, item.InterestPaidTill,
		item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateItem: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return s.getItem(ctx, s.db, id)
}

func (s *PostgresStore) getItem(ctx context.Context, q queryer, id uuid.UUID) (*models.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id.String())
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("GetItem: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateItemDetails(ctx context.Context, item *models.Item) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = $1, category = $2, weight = $3, description = $4, updated_at = $5 WHERE id = $6`,
		item.Name, item.Category, item.Weight, item.Description, item.UpdatedAt, item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("UpdateItemDetails: %w", err)
	}
	return expectOneRow(result, "item", item.ID)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteItem: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interest_history WHERE item_id = $1`, id.String()); err != nil {
		return fmt.Errorf("DeleteItem: interest history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE item_id = $1`, id.String()); err != nil {
		return fmt.Errorf("DeleteItem: payments: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("DeleteItem: %w", err)
	}
	if err := expectOneRow(result, "item", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) GetItemsForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE customer_id = $1 ORDER BY created_at DESC`, customerID.String())
	if err != nil {
		return nil, fmt.Errorf("GetItemsForCustomer: %w", err)
	}
	defer rows.Close()
	return scanItemRows(rows)
}

func (s *PostgresStore) GetAllItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("GetAllItems: %w", err)
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// RecordPayment locks the item row, checks the caller's view of it is still
// current, then writes the new balances, the payment and the interest record.
func (s *PostgresStore) RecordPayment(ctx context.Context, item *models.Item, payment *models.Payment, record *models.InterestRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("RecordPayment: begin: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM items WHERE id = $1 FOR UPDATE`, item.ID.String()).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("item %s: %w", item.ID, models.ErrNotFound)
		}
		return fmt.Errorf("RecordPayment: lock item: %w", err)
	}
	if version != item.Version-1 {
		return fmt.Errorf("item %s at version %d, expected %d: %w", item.ID, version, item.Version-1, models.ErrConcurrencyConflict)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET remaining_amount = $1, total_paid = $2, interest_paid_till = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		item.RemainingAmount, item.TotalPaid, item.InterestPaidTill, item.Version, item.UpdatedAt,
		item.ID.String(), version,
	)
	if err != nil {
		return fmt.Errorf("RecordPayment: update item: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		payment.ID.String(), payment.ItemID.String(), payment.AmountPaid, payment.InterestPaid, payment.PrincipalPaid,
		payment.PaidAt, payment.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("RecordPayment: insert payment: %w", err)
	}

	if record != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO interest_history (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			record.ID.String(), record.ItemID.String(), record.PaymentID.String(), record.FromDate, record.ToDate,
			record.Days, record.Principal, record.ProjectedInterest, record.DeclaredInterest, record.Flagged, record.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("RecordPayment: insert interest record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("RecordPayment: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadLedger(ctx context.Context, itemID uuid.UUID) (*models.Item, []*models.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("LoadLedger: begin: %w", err)
	}
	defer tx.Rollback()

	item, err := s.getItem(ctx, tx, itemID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE item_id = $1 ORDER BY paid_at ASC, recorded_at ASC`, itemID.String())
	if err != nil {
		return nil, nil, fmt.Errorf("LoadLedger: payments: %w", err)
	}
	defer rows.Close()

	payments, err := scanPayments(rows)
	if err != nil {
		return nil, nil, err
	}
	return item, payments, nil
}

func (s *PostgresStore) GetPaymentsSince(ctx context.Context, since time.Time) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE paid_at >= $1 ORDER BY paid_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentsSince: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (s *PostgresStore) GetInterestHistory(ctx context.Context, itemID uuid.UUID) ([]*models.InterestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM interest_history WHERE item_id = $1 ORDER BY recorded_at ASC`, itemID.String())
	if err != nil {
		return nil, fmt.Errorf("GetInterestHistory: %w", err)
	}
	defer rows.Close()
	return scanInterestRecords(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
