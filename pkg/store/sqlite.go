package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/pawnledger/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	slog.Info("sqlite store ready", "path", dataSourceName)
	return s, nil
}

// initSchema creates the database tables if they don't already exist and adds new columns if necessary.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		guardian_name TEXT NOT NULL DEFAULT '',
		relation TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		weight TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		percentage TEXT NOT NULL,
		total_paid TEXT NOT NULL DEFAULT '0',
		interest_paid_till DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_items_customer ON items(customer_id);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		paid_at DATETIME NOT NULL,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY(item_id) REFERENCES items(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_item_paid_at ON payments(item_id, paid_at);
	CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON payments(paid_at);
	CREATE TABLE IF NOT EXISTS interest_history (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		from_date DATETIME NOT NULL,
		to_date DATETIME NOT NULL,
		days INTEGER NOT NULL,
		principal TEXT NOT NULL,
		projected_interest TEXT NOT NULL,
		declared_interest TEXT NOT NULL,
		flagged INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY(item_id) REFERENCES items(id),
		FOREIGN KEY(payment_id) REFERENCES payments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_interest_history_item ON interest_history(item_id, to_date);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Columns added after the first release. Reopened databases already have
	// them and report a duplicate column.
	columns := []string{
		"description TEXT NOT NULL DEFAULT ''",
		"version INTEGER NOT NULL DEFAULT 1",
	}

	for _, col := range columns {
		_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE items ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

const (
	customerColumns = `id, name, guardian_name, relation, address, mobile_number, created_at, updated_at`
	itemColumns     = `id, customer_id, name, category, weight, description, amount, remaining_amount,
		percentage, total_paid, interest_paid_till, version, created_at, updated_at`
	paymentColumns = `id, item_id, amount_paid, interest_paid, principal_paid, paid_at, recorded_at`
	recordColumns  = `id, item_id, payment_id, from_date, to_date, days, principal,
		projected_interest, declared_interest, flagged, recorded_at`
)

// CreateCustomer inserts a new customer into the database.
func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.GuardianName, c.Relation, c.Address, c.MobileNumber, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id.String())
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// UpdateCustomer rewrites a customer's descriptive fields.
func (s *SQLiteStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE customers SET name = ?, guardian_name = ?, relation = ?, address = ?, mobile_number = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.GuardianName, c.Relation, c.Address, c.MobileNumber, c.UpdatedAt.UTC(), c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectOneRow(result, "customer", c.ID)
}

// DeleteCustomer removes a customer that no longer has any items.
func (s *SQLiteStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var items int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE customer_id = ?`, id.String()).Scan(&items); err != nil {
		return fmt.Errorf("failed to count customer items: %w", err)
	}
	if items > 0 {
		return fmt.Errorf("customer %s still has %d items: %w", id, items, models.ErrInvalidState)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if err := expectOneRow(result, "customer", id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAllCustomers retrieves all customers, newest first.
func (s *SQLiteStore) GetAllCustomers(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// CreateItem inserts a newly originated item.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.CustomerID.String(), item.Name, item.Category, item.Weight, item.Description,
		item.Amount, item.RemainingAmount, item.Percentage, item.TotalPaid, utcOrNil(item.InterestPaidTill),
		item.Version, item.CreatedAt.UTC(), item.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by its ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q queryer, id uuid.UUID) (*models.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id.String())
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// UpdateItemDetails rewrites the descriptive fields of an item.
func (s *SQLiteStore) UpdateItemDetails(ctx context.Context, item *models.Item) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = ?, category = ?, weight = ?, description = ?, updated_at = ? WHERE id = ?`,
		item.Name, item.Category, item.Weight, item.Description, item.UpdatedAt.UTC(), item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return expectOneRow(result, "item", item.ID)
}

// DeleteItem removes an item and its history from the database within a transaction.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interest_history WHERE item_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete interest history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE item_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated payments: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if err := expectOneRow(result, "item", id); err != nil {
		return err
	}

	return tx.Commit()
}

// GetItemsForCustomer retrieves a customer's items, newest first.
func (s *SQLiteStore) GetItemsForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE customer_id = ? ORDER BY created_at DESC`, customerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get items for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	return scanItemRows(rows)
}

// GetAllItems retrieves all items.
func (s *SQLiteStore) GetAllItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all items: %w", err)
	}
	defer rows.Close()

	return scanItemRows(rows)
}

func scanItemRows(rows *sql.Rows) ([]*models.Item, error) {
	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return items, nil
}

// RecordPayment applies a payment's effect on the item and appends the
// payment and interest record atomically.
func (s *SQLiteStore) RecordPayment(ctx context.Context, item *models.Item, payment *models.Payment, record *models.InterestRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET remaining_amount = ?, total_paid = ?, interest_paid_till = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.RemainingAmount, item.TotalPaid, utcOrNil(item.InterestPaidTill), item.Version, item.UpdatedAt.UTC(),
		item.ID.String(), item.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update item balances: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := getItem(ctx, tx, item.ID); err != nil {
			return err
		}
		return fmt.Errorf("item %s version %d: %w", item.ID, item.Version-1, models.ErrConcurrencyConflict)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.ItemID.String(), payment.AmountPaid, payment.InterestPaid, payment.PrincipalPaid,
		payment.PaidAt.UTC(), payment.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	if record != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO interest_history (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID.String(), record.ItemID.String(), record.PaymentID.String(), record.FromDate.UTC(), record.ToDate.UTC(),
			record.Days, record.Principal, record.ProjectedInterest, record.DeclaredInterest, record.Flagged, record.RecordedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create interest record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}
	return nil
}

// LoadLedger reads an item and its payments inside one read transaction.
func (s *SQLiteStore) LoadLedger(ctx context.Context, itemID uuid.UUID) (*models.Item, []*models.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getItem(ctx, tx, itemID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE item_id = ? ORDER BY paid_at ASC, recorded_at ASC`, itemID.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payments for item %s: %w", itemID, err)
	}
	defer rows.Close()

	payments, err := scanPayments(rows)
	if err != nil {
		return nil, nil, err
	}
	return item, payments, nil
}

// GetPaymentsSince retrieves payments dated on or after since across all items.
func (s *SQLiteStore) GetPaymentsSince(ctx context.Context, since time.Time) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE paid_at >= ? ORDER BY paid_at ASC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get payments since %s: %w", since, err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// GetInterestHistory retrieves an item's interest records in settlement order.
func (s *SQLiteStore) GetInterestHistory(ctx context.Context, itemID uuid.UUID) ([]*models.InterestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM interest_history WHERE item_id = ? ORDER BY recorded_at ASC`, itemID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get interest history for item %s: %w", itemID, err)
	}
	defer rows.Close()

	return scanInterestRecords(rows)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var id string
	if err := row.Scan(&id, &c.Name, &c.GuardianName, &c.Relation, &c.Address, &c.MobileNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(id)
	return &c, nil
}

func scanItem(row scanner) (*models.Item, error) {
	var item models.Item
	var id, customerID string
	var paidTill sql.NullTime
	err := row.Scan(&id, &customerID, &item.Name, &item.Category, &item.Weight, &item.Description,
		&item.Amount, &item.RemainingAmount, &item.Percentage, &item.TotalPaid, &paidTill,
		&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.ID = uuid.MustParse(id)
	item.CustomerID = uuid.MustParse(customerID)
	if paidTill.Valid {
		item.InterestPaidTill = &paidTill.Time
	}
	return &item, nil
}

func scanPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		var id, itemID string
		if err := rows.Scan(&id, &itemID, &p.AmountPaid, &p.InterestPaid, &p.PrincipalPaid, &p.PaidAt, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		p.ID = uuid.MustParse(id)
		p.ItemID = uuid.MustParse(itemID)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for payments: %w", err)
	}
	return payments, nil
}

func scanInterestRecords(rows *sql.Rows) ([]*models.InterestRecord, error) {
	var records []*models.InterestRecord
	for rows.Next() {
		var r models.InterestRecord
		var id, item, payment string
		if err := rows.Scan(&id, &item, &payment, &r.FromDate, &r.ToDate, &r.Days, &r.Principal,
			&r.ProjectedInterest, &r.DeclaredInterest, &r.Flagged, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interest record row: %w", err)
		}
		r.ID = uuid.MustParse(id)
		r.ItemID = uuid.MustParse(item)
		r.PaymentID = uuid.MustParse(payment)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for interest history: %w", err)
	}
	return records, nil
}

func expectOneRow(result sql.Result, kind string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
