package verification

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/oklog/ulid/v2"
)

// Code and receipt formats.
const (
	CodeLength        = 6
	maxCode           = 999999
	maxReceiptSerial  = 9999
	receiptPrefix     = "OR-"
	transactionPrefix = "TAX-"
)

var (
	codePattern    = regexp.MustCompile(`^\d{6}$`)
	receiptPattern = regexp.MustCompile(`^OR-\d{8}-\d{4}$`)
)

// randReader is the entropy source for codes, receipts and transaction ids.
var randReader io.Reader = rand.Reader

// randomInRange returns a uniform integer in [1, upper].
func randomInRange(upper int64) (int64, error) {
	n, err := rand.Int(randReader, big.NewInt(upper))
	if err != nil {
		return 0, fmt.Errorf("failed to read random number: %w", err)
	}
	return n.Int64() + 1, nil
}

// GenerateCode returns a zero-padded six digit code in 000001..999999.
// The all-zero code is never produced.
func GenerateCode() (string, error) {
	n, err := randomInRange(maxCode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n), nil
}

// IsCode reports whether s has the shape of a verification code.
func IsCode(s string) bool {
	return codePattern.MatchString(s)
}

// ReceiptNumber returns an official receipt number of the form
// OR-YYYYMMDD-NNNN where NNNN is a random serial in 0001..9999. The date is
// the business date of now, the same day recorded as the paid date.
// Callers must check the number against issued receipts and retry on collision.
func ReceiptNumber(now time.Time) (string, error) {
	n, err := randomInRange(maxReceiptSerial)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s-%04d", receiptPrefix, models.BusinessDate(now).Format("20060102"), n), nil
}

// IsReceiptNumber reports whether s is a well-formed receipt number.
func IsReceiptNumber(s string) bool {
	return receiptPattern.MatchString(s)
}

// TransactionID returns a time-ordered internal transaction identifier.
func TransactionID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), randReader)
	if err != nil {
		return "", fmt.Errorf("failed to generate transaction id: %w", err)
	}
	return transactionPrefix + id.String(), nil
}

// ReferenceID returns an opaque identifier for a verification session.
func ReferenceID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), randReader)
	if err != nil {
		return "", fmt.Errorf("failed to generate reference id: %w", err)
	}
	return id.String(), nil
}
