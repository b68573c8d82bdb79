package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcclellann/pawnledger/pkg/models"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pawnledger_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(connStr))

	s, err := NewPostgresStore(ctx, connStr, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()

	c := seedCustomer(t, s)
	item := seedItem(t, s, c.ID, 10000)

	fetched, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Nil(t, fetched.InterestPaidTill)

	paidAt := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	payment := &models.Payment{
		ID: uuid.New(), ItemID: item.ID,
		AmountPaid: decimal.NewFromInt(2200), InterestPaid: decimal.NewFromInt(200), PrincipalPaid: decimal.NewFromInt(2000),
		PaidAt: paidAt, RecordedAt: paidAt,
	}
	item.RemainingAmount = decimal.NewFromInt(8000)
	item.TotalPaid = decimal.NewFromInt(2200)
	item.InterestPaidTill = &paidAt
	item.Version = 2
	require.NoError(t, s.RecordPayment(ctx, item, payment, &models.InterestRecord{
		ID: uuid.New(), ItemID: item.ID, PaymentID: payment.ID,
		FromDate: item.CreatedAt, ToDate: paidAt, Days: 30,
		Principal: decimal.NewFromInt(10000), ProjectedInterest: decimal.NewFromInt(200), DeclaredInterest: decimal.NewFromInt(200),
		RecordedAt: paidAt,
	}))

	loaded, payments, err := s.LoadLedger(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, loaded.RemainingAmount.Equal(decimal.NewFromInt(8000)))
	require.NotNil(t, loaded.InterestPaidTill)
	assert.True(t, loaded.InterestPaidTill.Equal(paidAt))
	require.Len(t, payments, 1)

	history, err := s.GetInterestHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 30, history[0].Days)

	assert.ErrorIs(t, s.DeleteCustomer(ctx, c.ID), models.ErrInvalidState)
	require.NoError(t, s.DeleteItem(ctx, item.ID))
	require.NoError(t, s.DeleteCustomer(ctx, c.ID))
}

func TestPostgresStore_ConcurrentRecordPayment(t *testing.T) {
	s := setupPostgresStore(t)
	ctx := context.Background()
	c := seedCustomer(t, s)
	item := seedItem(t, s, c.ID, 10000)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := *item
			next.RemainingAmount = decimal.NewFromInt(9000)
			next.Version = 2
			paidAt := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			errs[i] = s.RecordPayment(ctx, &next, &models.Payment{
				ID: uuid.New(), ItemID: item.ID,
				AmountPaid: decimal.NewFromInt(1000), InterestPaid: decimal.Zero, PrincipalPaid: decimal.NewFromInt(1000),
				PaidAt: paidAt, RecordedAt: paidAt,
			}, nil)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConcurrencyConflict)
	}
	assert.Equal(t, 1, succeeded)

	_, payments, err := s.LoadLedger(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pawnledger_migrate"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, RunMigrations(connStr))
	require.NoError(t, RunMigrations(connStr))
	require.NoError(t, RunMigrationsDown(connStr))
}
