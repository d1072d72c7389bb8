package verification

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidContact is wrapped by every contact validation failure.
var ErrInvalidContact = errors.New("invalid contact details")

// Contact validation failures, reported in this order.
var (
	ErrPhoneRequired = &ContactError{Field: "phone_number", Message: "Phone number is required"}
	ErrEmailRequired = &ContactError{Field: "email", Message: "Email address is required"}
	ErrInvalidPhone  = &ContactError{Field: "phone_number", Message: "Phone number must be 11 digits starting with 09"}
	ErrInvalidEmail  = &ContactError{Field: "email", Message: "Please enter a valid email address"}
)

// ContactError describes the first contact field that failed validation.
type ContactError struct {
	Field   string
	Message string
}

func (e *ContactError) Error() string { return e.Message }

func (e *ContactError) Unwrap() error { return ErrInvalidContact }

var (
	mobilePattern = regexp.MustCompile(`^09\d{9}$`)
	validate      = validator.New()
)

// ValidateContact checks the phone number and email an owner supplies when
// starting a payment. The first failing rule wins: phone present, email
// present, phone is a Philippine mobile number (09 followed by nine digits),
// email is well formed.
func ValidateContact(phone, email string) error {
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)

	if phone == "" {
		return ErrPhoneRequired
	}
	if email == "" {
		return ErrEmailRequired
	}
	if !mobilePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	if err := validate.Var(email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ToE164 converts a local 09XXXXXXXXX mobile number to +639XXXXXXXXX.
// Numbers in any other shape are returned unchanged.
func ToE164(phone string) string {
	if mobilePattern.MatchString(phone) {
		return "+63" + phone[1:]
	}
	return phone
}

// MaskPhone hides the middle digits of a phone number: 0917***4567.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:4] + strings.Repeat("*", len(phone)-8) + phone[len(phone)-4:]
}

// MaskEmail keeps the first character of the local part: j***@example.com.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
