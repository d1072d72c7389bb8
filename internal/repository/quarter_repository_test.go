package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/database"
	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/lgu-eportal/rptpay/internal/verification"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestConfig returns database configuration for integration tests.
func getTestConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "eportal"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  2,
		PoolMax:  5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupTestRepository connects to the test database, applies migrations and
// returns a repository. The test is skipped when no database is reachable.
func setupTestRepository(t *testing.T) (QuarterRepository, *database.Database) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, getTestConfig())
	if err != nil {
		t.Skipf("Database not available: %v", err)
	}
	t.Cleanup(db.Close)

	_, err = db.Migrate(ctx)
	require.NoError(t, err)

	return NewQuarterRepository(db), db
}

// seedAssessment inserts an assessment with four quarters: Q1 overdue, Q2 and
// Q3 unpaid, Q4 already paid.
func seedAssessment(t *testing.T, repo QuarterRepository) (*models.PropertyTaxAssessment, []models.TaxQuarter) {
	t.Helper()

	a := &models.PropertyTaxAssessment{
		ApplicationID:   time.Now().UnixNano(),
		TDN:             "TD-2026-00123",
		PropertyAddress: "Lot 4, Purok 2, Poblacion",
		OwnerName:       "Juan Dela Cruz",
		AssessmentYear:  2026,
		AssessedValue:   decimal.RequireFromString("250000.00"),
		AnnualTax:       decimal.RequireFromString("2500.00"),
	}
	quarters := []models.TaxQuarter{
		{Quarter: 1, AmountDue: decimal.RequireFromString("625.00"), Status: models.StatusOverdue, DueDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)},
		{Quarter: 2, AmountDue: decimal.RequireFromString("625.00"), Status: models.StatusUnpaid, DueDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)},
		{Quarter: 3, AmountDue: decimal.RequireFromString("625.00"), Status: models.StatusUnpaid, DueDate: time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)},
		{Quarter: 4, AmountDue: decimal.RequireFromString("625.00"), Status: models.StatusPaid, DueDate: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	require.NoError(t, repo.CreateAssessment(context.Background(), a, quarters))
	require.NotZero(t, a.ID)
	return a, quarters
}

// issueCode writes code to the given quarters in its own transaction.
func issueCode(t *testing.T, repo QuarterRepository, assessmentID int64, code string, ids ...int64) {
	t.Helper()
	err := repo.InTx(context.Background(), func(tx QuarterTx) error {
		_, err := tx.SetVerification(context.Background(), assessmentID, ids, models.VerificationIssue{
			Code:          code,
			ExpiresAt:     time.Now().Add(10 * time.Minute),
			PaymentMethod: models.MethodGCash,
			Phone:         "09171234567",
			Email:         "owner@example.com",
		})
		return err
	})
	require.NoError(t, err)
}

func uniqueReceipt(t *testing.T) string {
	t.Helper()
	id, err := verification.ReferenceID(time.Now())
	require.NoError(t, err)
	return "OR-" + id
}

func TestNewQuarterRepository(t *testing.T) {
	repo := NewQuarterRepository(&database.Database{})
	assert.NotNil(t, repo)
}

func TestGetAssessment_NotFound(t *testing.T) {
	repo, _ := setupTestRepository(t)

	a, err := repo.GetAssessment(context.Background(), -1)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestCreateAndListQuarters(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	a, _ := seedAssessment(t, repo)

	got, err := repo.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TD-2026-00123", got.TDN)
	assert.True(t, got.AnnualTax.Equal(decimal.RequireFromString("2500")))

	quarters, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, quarters, 4)
	for i, q := range quarters {
		assert.Equal(t, i+1, q.Quarter, "quarters are ordered by number")
		assert.Nil(t, q.VerificationCode)
	}
	assert.Equal(t, models.StatusOverdue, quarters[0].Status)
	assert.Equal(t, models.StatusPaid, quarters[3].Status)
}

func TestListQuarters_Empty(t *testing.T) {
	repo, _ := setupTestRepository(t)

	quarters, err := repo.ListQuarters(context.Background(), -1)
	require.NoError(t, err)
	assert.Empty(t, quarters)
}

func TestVerificationLifecycle(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)

	expires := time.Now().Add(10 * time.Minute).Truncate(time.Microsecond)
	issue := models.VerificationIssue{
		Code:          "123456",
		ExpiresAt:     expires,
		PaymentMethod: models.MethodMaya,
		Phone:         "09171234567",
		Email:         "owner@example.com",
	}

	// The paid quarter id is passed too and must be left alone
	ids := []int64{quarters[0].ID, quarters[1].ID, quarters[2].ID, quarters[3].ID}
	err := repo.InTx(ctx, func(tx QuarterTx) error {
		locked, err := tx.LockQuarters(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, locked, 4)

		n, err := tx.SetVerification(ctx, a.ID, ids, issue)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = tx.IncrementAttempts(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		return nil
	})
	require.NoError(t, err)

	listed, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	pending := PendingQuarter(listed)
	require.NotNil(t, pending)
	assert.Equal(t, "123456", *pending.VerificationCode)
	assert.Equal(t, 1, pending.VerificationAttempts)
	assert.Equal(t, "maya", *pending.PaymentMethod)
	assert.Nil(t, listed[3].VerificationCode)

	err = repo.InTx(ctx, func(tx QuarterTx) error {
		n, err := tx.ClearVerification(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		return nil
	})
	require.NoError(t, err)

	listed, err = repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, PendingQuarter(listed))
	for _, q := range listed {
		assert.Zero(t, q.VerificationAttempts)
	}
}

func TestSettle_AllQuarters(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)
	ids := []int64{quarters[0].ID, quarters[1].ID, quarters[2].ID, quarters[3].ID}
	issueCode(t, repo, a.ID, "123456", ids...)

	receipt := uniqueReceipt(t)
	paidAt := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)

	err := repo.InTx(ctx, func(tx QuarterTx) error {
		n, err := tx.Settle(ctx, models.Settlement{
			AssessmentID:  a.ID,
			QuarterIDs:    ids,
			Code:          "123456",
			PaidAt:        paidAt,
			PaidDate:      models.BusinessDate(paidAt),
			ReceiptNo:     receipt,
			PaymentMethod: models.MethodGCash,
			Phone:         "09171234567",
			Email:         "owner@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n, "only the three payable quarters are settled")

		ok, err := tx.InsertPayment(ctx, &models.TaxPayment{
			ReceiptNo:     receipt,
			TransactionID: "TAX-" + receipt[3:],
			AssessmentID:  a.ID,
			Amount:        decimal.RequireFromString("1875.00"),
			PaymentMethod: models.MethodGCash,
			Phone:         "09171234567",
			Email:         "owner@example.com",
			QuarterCount:  3,
			PaidAt:        paidAt,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	listed, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	for _, q := range listed {
		assert.Equal(t, models.StatusPaid, q.Status)
	}
	for _, q := range listed[:3] {
		require.NotNil(t, q.ReceiptNo)
		assert.Equal(t, receipt, *q.ReceiptNo)
		require.NotNil(t, q.PaidDate)
		assert.Equal(t, "2026-03-15", q.PaidDate.Format("2006-01-02"), "paid date is the Manila calendar day")
		assert.NotNil(t, q.VerifiedAt)
	}
	assert.Nil(t, listed[3].ReceiptNo, "previously paid quarter keeps its own record")
}

func TestSettle_SingleQuarter(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)

	target := quarters[1].ID
	issueCode(t, repo, a.ID, "123456", target)
	err := repo.InTx(ctx, func(tx QuarterTx) error {
		n, err := tx.Settle(ctx, models.Settlement{
			AssessmentID:  a.ID,
			QuarterIDs:    []int64{target},
			Code:          "123456",
			PaidAt:        time.Now(),
			PaidDate:      models.BusinessDate(time.Now()),
			ReceiptNo:     uniqueReceipt(t),
			PaymentMethod: models.MethodGCash,
			Phone:         "09171234567",
			Email:         "owner@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	listed, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, listed[0].Status)
	assert.Equal(t, models.StatusPaid, listed[1].Status)
	assert.Equal(t, models.StatusUnpaid, listed[2].Status)
}

func TestSettle_AlreadyPaidAffectsNothing(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)

	paid := quarters[3].ID
	issueCode(t, repo, a.ID, "123456", paid)
	err := repo.InTx(ctx, func(tx QuarterTx) error {
		n, err := tx.Settle(ctx, models.Settlement{
			AssessmentID:  a.ID,
			QuarterIDs:    []int64{paid},
			Code:          "123456",
			PaidAt:        time.Now(),
			PaidDate:      models.BusinessDate(time.Now()),
			ReceiptNo:     uniqueReceipt(t),
			PaymentMethod: models.MethodGCash,
		})
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestSettle_OnlyRowsHoldingTheCode(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)
	issueCode(t, repo, a.ID, "123456", quarters[2].ID)

	err := repo.InTx(ctx, func(tx QuarterTx) error {
		n, err := tx.Settle(ctx, models.Settlement{
			AssessmentID:  a.ID,
			QuarterIDs:    []int64{quarters[0].ID, quarters[1].ID, quarters[2].ID},
			Code:          "123456",
			PaidAt:        time.Now(),
			PaidDate:      models.BusinessDate(time.Now()),
			ReceiptNo:     uniqueReceipt(t),
			PaymentMethod: models.MethodGCash,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	listed, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, listed[0].Status)
	assert.Equal(t, models.StatusUnpaid, listed[1].Status)
	assert.Equal(t, models.StatusPaid, listed[2].Status)
}

func TestInsertPayment_DuplicateReceipt(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, _ := seedAssessment(t, repo)

	receipt := uniqueReceipt(t)
	payment := func(txID string) *models.TaxPayment {
		return &models.TaxPayment{
			ReceiptNo:     receipt,
			TransactionID: txID,
			AssessmentID:  a.ID,
			Amount:        decimal.RequireFromString("625.00"),
			PaymentMethod: models.MethodGCash,
			Phone:         "09171234567",
			Email:         "owner@example.com",
			QuarterCount:  1,
			PaidAt:        time.Now(),
		}
	}

	err := repo.InTx(ctx, func(tx QuarterTx) error {
		first, err := tx.InsertPayment(ctx, payment("TAX-"+receipt[3:]))
		require.NoError(t, err)
		assert.True(t, first)

		second, err := tx.InsertPayment(ctx, payment("TAX-"+receipt[3:]+"X"))
		require.NoError(t, err)
		assert.False(t, second, "a taken receipt number is reported, not raised")
		return nil
	})
	require.NoError(t, err)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	a, quarters := seedAssessment(t, repo)
	ids := []int64{quarters[0].ID, quarters[1].ID, quarters[2].ID}
	issueCode(t, repo, a.ID, "123456", ids...)

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(tx QuarterTx) error {
		_, err := tx.Settle(ctx, models.Settlement{
			AssessmentID:  a.ID,
			QuarterIDs:    ids,
			Code:          "123456",
			PaidAt:        time.Now(),
			PaidDate:      models.BusinessDate(time.Now()),
			ReceiptNo:     uniqueReceipt(t),
			PaymentMethod: models.MethodGCash,
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	listed, err := repo.ListQuarters(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, listed[0].Status, "settlement was rolled back")
	assert.Equal(t, models.StatusUnpaid, listed[1].Status)
}

func TestPendingQuarter(t *testing.T) {
	code := "123456"
	early := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	late := early.Add(5 * time.Minute)

	quarters := []models.TaxQuarter{
		{ID: 1, Status: models.StatusUnpaid},
		{ID: 2, Status: models.StatusUnpaid, VerificationCode: &code, CodeExpiresAt: &early},
		{ID: 3, Status: models.StatusOverdue, VerificationCode: &code, CodeExpiresAt: &late},
		{ID: 4, Status: models.StatusPaid, VerificationCode: &code, CodeExpiresAt: &late},
	}

	pending := PendingQuarter(quarters)
	require.NotNil(t, pending)
	assert.Equal(t, int64(3), pending.ID)

	assert.Nil(t, PendingQuarter(quarters[:1]))
	assert.Nil(t, PendingQuarter(nil))
}
