package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the channel an owner pays a tax quarter through.
type PaymentMethod string

// Supported payment methods.
const (
	MethodGCash          PaymentMethod = "gcash"
	MethodMaya           PaymentMethod = "maya"
	MethodOnlineBanking  PaymentMethod = "online_banking"
	MethodOverTheCounter PaymentMethod = "over_the_counter"
)

// DefaultPaymentMethod is used when a request does not name a method.
const DefaultPaymentMethod = MethodGCash

// Valid reports whether m is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodGCash, MethodMaya, MethodOnlineBanking, MethodOverTheCounter:
		return true
	}
	return false
}

// PaymentTarget selects which quarters of an assessment a payment covers.
// A nil QuarterID means every unpaid or overdue quarter of the assessment.
type PaymentTarget struct {
	QuarterID    *int64 `json:"quarterId,omitempty"`
	AssessmentID int64  `json:"assessmentId"`
}

// AllQuarters reports whether the target covers every payable quarter.
func (t PaymentTarget) AllQuarters() bool {
	return t.QuarterID == nil
}

// Mode returns the payment mode label used in logs and responses.
func (t PaymentTarget) Mode() string {
	if t.AllQuarters() {
		return "all_quarters"
	}
	return "single_quarter"
}

// VerificationIssue carries the values written to quarter rows when a code is issued.
type VerificationIssue struct {
	ExpiresAt     time.Time
	Code          string
	PaymentMethod PaymentMethod
	Phone         string
	Email         string
}

// Settlement carries the values written to quarter rows when a payment is confirmed.
// Only the listed quarters that still hold Code are updated.
type Settlement struct {
	PaidAt        time.Time
	PaidDate      time.Time
	QuarterIDs    []int64
	Code          string
	ReceiptNo     string
	PaymentMethod PaymentMethod
	Phone         string
	Email         string
	AssessmentID  int64
}

// TaxPayment is the ledger row recorded for every settled payment.
// ReceiptNo and TransactionID are unique across the ledger.
type TaxPayment struct {
	PaidAt        time.Time       `json:"paidAt"`
	QuarterID     *int64          `json:"quarterId,omitempty"`
	ReceiptNo     string          `json:"receiptNo"`
	TransactionID string          `json:"transactionId"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Phone         string          `json:"-"`
	Email         string          `json:"-"`
	Amount        decimal.Decimal `json:"amount"`
	ID            int64           `json:"id"`
	AssessmentID  int64           `json:"assessmentId"`
	QuarterCount  int             `json:"quarterCount"`
}

// PaymentSuccess is the confirmation summary shown once after settlement.
type PaymentSuccess struct {
	PaidAt          time.Time       `json:"paid_at"`
	ReceiptNo       string          `json:"receipt_no"`
	TransactionID   string          `json:"transaction_id"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	TDN             string          `json:"tdn"`
	PropertyAddress string          `json:"property_address"`
	Mode            string          `json:"mode"`
	Amount          decimal.Decimal `json:"amount"`
	ApplicationID   int64           `json:"application_id"`
	AssessmentID    int64           `json:"assessment_id"`
	AssessmentYear  int             `json:"assessment_year"`
	QuarterCount    int             `json:"quarter_count"`
}

// VerificationRef is the opaque handle a session holds for an active
// verification. It never carries the code itself.
type VerificationRef struct {
	ExpiresAt   time.Time     `json:"expires_at"`
	ID          string        `json:"id"`
	MaskedPhone string        `json:"masked_phone"`
	MaskedEmail string        `json:"masked_email"`
	Target      PaymentTarget `json:"target"`
}

// PendingStatus is the cached view of an assessment's active verification.
type PendingStatus struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
	Attempts  int        `json:"attempts"`
	Remaining int        `json:"remaining_attempts"`
}

// At returns the status as observed at now. A code past its expiry is no
// longer active even if the status was recorded while it was.
func (p PendingStatus) At(now time.Time) PendingStatus {
	if p.Active && p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
		p.Active = false
	}
	return p
}
