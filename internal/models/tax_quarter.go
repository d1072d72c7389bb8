package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuarterStatus is the billing status of a tax quarter.
type QuarterStatus string

// Quarter statuses as stored in tax_quarters.status.
const (
	StatusUnpaid  QuarterStatus = "unpaid"
	StatusOverdue QuarterStatus = "overdue"
	StatusPaid    QuarterStatus = "paid"
)

// FullYearQuarter marks a single aggregate row billed for the whole year.
const FullYearQuarter = 0

// PortalLocation is the treasury's time zone. Receipt dates and paid dates
// are calendar days in this zone. The Philippines observes no DST.
var PortalLocation = time.FixedZone("Asia/Manila", 8*60*60)

// BusinessDate returns the calendar day of t in PortalLocation, as midnight UTC.
func BusinessDate(t time.Time) time.Time {
	y, m, d := t.In(PortalLocation).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TaxQuarter is a billable obligation for one quarter of an assessed property.
// The verification fields hold the active one-time code while a payment is
// being confirmed and are cleared on settlement, expiry, or attempt exhaustion.
// All nullable columns use pointers to distinguish between zero values and NULL.
type TaxQuarter struct {
	DueDate              time.Time       `json:"dueDate"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	PaidDate             *time.Time      `json:"paidDate,omitempty"`
	ReceiptNo            *string         `json:"receiptNo,omitempty"`
	PaymentMethod        *string         `json:"paymentMethod,omitempty"`
	ContactPhone         *string         `json:"-"`
	ContactEmail         *string         `json:"-"`
	VerificationCode     *string         `json:"-"`
	CodeExpiresAt        *time.Time      `json:"-"`
	VerifiedAt           *time.Time      `json:"verifiedAt,omitempty"`
	AmountDue            decimal.Decimal `json:"amountDue"`
	Status               QuarterStatus   `json:"status"`
	ID                   int64           `json:"id"`
	AssessmentID         int64           `json:"assessmentId"`
	Quarter              int             `json:"quarter"`
	VerificationAttempts int             `json:"-"`
}

// IsPayable reports whether the quarter can still be settled.
// Overdue quarters behave exactly like unpaid ones.
func (q *TaxQuarter) IsPayable() bool {
	return q.Status == StatusUnpaid || q.Status == StatusOverdue
}

// HasPendingCode reports whether the quarter holds an issued verification code
// and is still payable.
func (q *TaxQuarter) HasPendingCode() bool {
	return q.VerificationCode != nil && q.IsPayable()
}

// TableName returns the table backing TaxQuarter.
func (TaxQuarter) TableName() string {
	return "tax_quarters"
}
