package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lgu-eportal/rptpay/internal/database"
	"github.com/lgu-eportal/rptpay/internal/models"
)

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuarterRepository defines data access for assessments and their tax quarters.
type QuarterRepository interface {
	// GetAssessment returns the assessment with the given id.
	// Returns nil, nil if no assessment is found (not an error).
	GetAssessment(ctx context.Context, assessmentID int64) (*models.PropertyTaxAssessment, error)

	// ListQuarters returns every quarter of an assessment ordered by quarter number.
	// Returns an empty slice if the assessment has no quarters.
	ListQuarters(ctx context.Context, assessmentID int64) ([]models.TaxQuarter, error)

	// CreateAssessment inserts an assessment together with its quarters and
	// fills in the generated ids and timestamps.
	CreateAssessment(ctx context.Context, a *models.PropertyTaxAssessment, quarters []models.TaxQuarter) error

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx QuarterTx) error) error
}

// QuarterTx holds the statements that mutate quarter rows. It is only
// available inside QuarterRepository.InTx.
type QuarterTx interface {
	// LockQuarters returns every quarter of the assessment and holds row locks
	// on them until the transaction ends.
	LockQuarters(ctx context.Context, assessmentID int64) ([]models.TaxQuarter, error)

	// SetVerification writes a freshly issued code to the given payable quarters
	// and resets their attempt counters. Returns the number of rows updated.
	SetVerification(ctx context.Context, assessmentID int64, quarterIDs []int64, issue models.VerificationIssue) (int64, error)

	// ClearVerification removes the code, expiry and attempt count from every
	// payable quarter of the assessment that still holds a code.
	ClearVerification(ctx context.Context, assessmentID int64) (int64, error)

	// IncrementAttempts adds one to the attempt counter of every payable quarter
	// of the assessment that holds a code.
	IncrementAttempts(ctx context.Context, assessmentID int64) (int64, error)

	// Settle marks the listed payable quarters that still hold the settlement's
	// code paid and returns the number of rows updated. Zero means nothing
	// matched anymore.
	Settle(ctx context.Context, s models.Settlement) (int64, error)

	// InsertPayment records a ledger row. It returns false without an error when
	// the receipt number is already taken.
	InsertPayment(ctx context.Context, p *models.TaxPayment) (bool, error)
}

const quarterColumns = `
	id,
	assessment_id,
	quarter,
	amount_due,
	status,
	due_date,
	paid_date,
	receipt_no,
	payment_method,
	contact_phone,
	contact_email,
	verification_code,
	code_expires_at,
	verification_attempts,
	verified_at,
	created_at,
	updated_at`

// quarterRepository is the concrete implementation of QuarterRepository.
type quarterRepository struct {
	db *database.Database
}

// NewQuarterRepository creates a new instance of QuarterRepository.
func NewQuarterRepository(db *database.Database) QuarterRepository {
	return &quarterRepository{
		db: db,
	}
}

func (r *quarterRepository) GetAssessment(ctx context.Context, assessmentID int64) (*models.PropertyTaxAssessment, error) {
	query := `
		SELECT
			id,
			application_id,
			tdn,
			property_address,
			owner_name,
			assessment_year,
			assessed_value,
			annual_tax,
			created_at,
			updated_at
		FROM property_tax_assessments
		WHERE id = $1
	`

	var a models.PropertyTaxAssessment
	err := r.db.Pool.QueryRow(ctx, query, assessmentID).Scan(
		&a.ID,
		&a.ApplicationID,
		&a.TDN,
		&a.PropertyAddress,
		&a.OwnerName,
		&a.AssessmentYear,
		&a.AssessedValue,
		&a.AnnualTax,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	// Handle no rows found - this is not an error at the repository level
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query assessment %d: %w", assessmentID, err)
	}

	return &a, nil
}

func (r *quarterRepository) ListQuarters(ctx context.Context, assessmentID int64) ([]models.TaxQuarter, error) {
	return selectQuarters(ctx, r.db.Pool, assessmentID, false)
}

func (r *quarterRepository) CreateAssessment(ctx context.Context, a *models.PropertyTaxAssessment, quarters []models.TaxQuarter) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO property_tax_assessments (
				application_id, tdn, property_address, owner_name,
				assessment_year, assessed_value, annual_tax
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`,
			a.ApplicationID, a.TDN, a.PropertyAddress, a.OwnerName,
			a.AssessmentYear, a.AssessedValue, a.AnnualTax,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert assessment: %w", err)
		}

		for i := range quarters {
			q := &quarters[i]
			q.AssessmentID = a.ID
			if q.Status == "" {
				q.Status = models.StatusUnpaid
			}
			err := tx.QueryRow(ctx, `
				INSERT INTO tax_quarters (assessment_id, quarter, amount_due, status, due_date)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at, updated_at
			`, q.AssessmentID, q.Quarter, q.AmountDue, string(q.Status), q.DueDate,
			).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert quarter %d of assessment %d: %w", q.Quarter, a.ID, err)
			}
		}
		return nil
	})
}

func (r *quarterRepository) InTx(ctx context.Context, fn func(tx QuarterTx) error) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		return fn(&quarterTx{q: tx})
	})
}

// quarterTx implements QuarterTx on top of a pgx transaction.
type quarterTx struct {
	q querier
}

func (t *quarterTx) LockQuarters(ctx context.Context, assessmentID int64) ([]models.TaxQuarter, error) {
	return selectQuarters(ctx, t.q, assessmentID, true)
}

func (t *quarterTx) SetVerification(ctx context.Context, assessmentID int64, quarterIDs []int64, issue models.VerificationIssue) (int64, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE tax_quarters
		SET verification_code = $3,
			code_expires_at = $4,
			payment_method = $5,
			contact_phone = $6,
			contact_email = $7,
			verification_attempts = 0,
			updated_at = NOW()
		WHERE assessment_id = $1
			AND id = ANY($2)
			AND status IN ('unpaid', 'overdue')
	`, assessmentID, quarterIDs, issue.Code, issue.ExpiresAt, string(issue.PaymentMethod), issue.Phone, issue.Email)
	if err != nil {
		return 0, fmt.Errorf("failed to store verification for assessment %d: %w", assessmentID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *quarterTx) ClearVerification(ctx context.Context, assessmentID int64) (int64, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE tax_quarters
		SET verification_code = NULL,
			code_expires_at = NULL,
			verification_attempts = 0,
			updated_at = NOW()
		WHERE assessment_id = $1
			AND verification_code IS NOT NULL
			AND status IN ('unpaid', 'overdue')
	`, assessmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear verification for assessment %d: %w", assessmentID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *quarterTx) IncrementAttempts(ctx context.Context, assessmentID int64) (int64, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE tax_quarters
		SET verification_attempts = verification_attempts + 1,
			updated_at = NOW()
		WHERE assessment_id = $1
			AND verification_code IS NOT NULL
			AND status IN ('unpaid', 'overdue')
	`, assessmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts for assessment %d: %w", assessmentID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *quarterTx) Settle(ctx context.Context, s models.Settlement) (int64, error) {
	// Rows that no longer hold the confirmed code were never covered by it
	tag, err := t.q.Exec(ctx, `
		UPDATE tax_quarters
		SET status = 'paid',
			payment_method = $2,
			contact_phone = $3,
			contact_email = $4,
			paid_date = $5::date,
			receipt_no = $6,
			verified_at = $7,
			verification_code = NULL,
			code_expires_at = NULL,
			verification_attempts = 0,
			updated_at = NOW()
		WHERE assessment_id = $1
			AND status IN ('unpaid', 'overdue')
			AND id = ANY($8)
			AND verification_code = $9
	`, s.AssessmentID, string(s.PaymentMethod), s.Phone, s.Email, s.PaidDate, s.ReceiptNo, s.PaidAt, s.QuarterIDs, s.Code)
	if err != nil {
		return 0, fmt.Errorf("failed to settle assessment %d: %w", s.AssessmentID, err)
	}
	return tag.RowsAffected(), nil
}

func (t *quarterTx) InsertPayment(ctx context.Context, p *models.TaxPayment) (bool, error) {
	err := t.q.QueryRow(ctx, `
		INSERT INTO tax_payments (
			receipt_no, transaction_id, assessment_id, quarter_id, amount,
			payment_method, phone, email, quarter_count, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (receipt_no) DO NOTHING
		RETURNING id
	`,
		p.ReceiptNo, p.TransactionID, p.AssessmentID, p.QuarterID, p.Amount,
		string(p.PaymentMethod), p.Phone, p.Email, p.QuarterCount, p.PaidAt,
	).Scan(&p.ID)
	if err != nil {
		// ON CONFLICT DO NOTHING returns no row when the receipt number is taken
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record payment %s: %w", p.ReceiptNo, err)
	}
	return true, nil
}

func selectQuarters(ctx context.Context, q querier, assessmentID int64, forUpdate bool) ([]models.TaxQuarter, error) {
	query := `SELECT ` + quarterColumns + `
		FROM tax_quarters
		WHERE assessment_id = $1
		ORDER BY quarter`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarters of assessment %d: %w", assessmentID, err)
	}
	defer rows.Close()

	results := []models.TaxQuarter{}
	for rows.Next() {
		var qt models.TaxQuarter
		var status string
		err := rows.Scan(
			&qt.ID,
			&qt.AssessmentID,
			&qt.Quarter,
			&qt.AmountDue,
			&status,
			&qt.DueDate,
			&qt.PaidDate,
			&qt.ReceiptNo,
			&qt.PaymentMethod,
			&qt.ContactPhone,
			&qt.ContactEmail,
			&qt.VerificationCode,
			&qt.CodeExpiresAt,
			&qt.VerificationAttempts,
			&qt.VerifiedAt,
			&qt.CreatedAt,
			&qt.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quarter row: %w", err)
		}
		qt.Status = models.QuarterStatus(status)
		results = append(results, qt)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarter rows: %w", err)
	}

	return results, nil
}

// PendingQuarter returns the quarter holding the most recently expiring code
// among the payable quarters, or nil when none holds a code.
func PendingQuarter(quarters []models.TaxQuarter) *models.TaxQuarter {
	var latest *models.TaxQuarter
	for i := range quarters {
		q := &quarters[i]
		if !q.HasPendingCode() {
			continue
		}
		if latest == nil || expiry(q).After(expiry(latest)) {
			latest = q
		}
	}
	return latest
}

func expiry(q *models.TaxQuarter) time.Time {
	if q.CodeExpiresAt == nil {
		return time.Time{}
	}
	return *q.CodeExpiresAt
}
