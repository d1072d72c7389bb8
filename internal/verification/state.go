// Package verification models the payment confirmation lifecycle of a tax
// quarter: issuing a one-time code, checking submissions against it, and the
// identifiers stamped on a settled payment.
//
// The lifecycle is a small state machine:
//
//	Unpaid --IssueCode--> Pending --SubmitCode(match)--> Paid
//	Pending --SubmitCode(mismatch, attempts left)--> Pending (attempts+1)
//	Pending --SubmitCode(expired | exhausted)--> Unpaid (code cleared)
//
// Overdue quarters follow the same transitions as unpaid ones. Paid is terminal.
package verification

import (
	"errors"
	"fmt"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the combined status and verification state of a tax quarter.
// Implementations are Unpaid, Pending and Paid.
type State interface {
	Name() string
	isState()
}

// Unpaid is a payable quarter with no active code.
type Unpaid struct {
	Overdue bool
}

// Pending is a payable quarter holding an issued code.
type Pending struct {
	ExpiresAt time.Time
	Code      string
	Attempts  int
	Overdue   bool
}

// Paid is the terminal state.
type Paid struct {
	PaidAt    time.Time
	ReceiptNo string
}

func (Unpaid) Name() string  { return "unpaid" }
func (Pending) Name() string { return "pending_verification" }
func (Paid) Name() string    { return "paid" }

func (Unpaid) isState()  {}
func (Pending) isState() {}
func (Paid) isState()    {}

// StateOf derives the lifecycle state from a quarter row.
func StateOf(q *models.TaxQuarter) State {
	if q.Status == models.StatusPaid {
		s := Paid{}
		if q.PaidDate != nil {
			s.PaidAt = *q.PaidDate
		}
		if q.ReceiptNo != nil {
			s.ReceiptNo = *q.ReceiptNo
		}
		return s
	}

	overdue := q.Status == models.StatusOverdue
	if q.VerificationCode == nil {
		return Unpaid{Overdue: overdue}
	}

	s := Pending{
		Code:     *q.VerificationCode,
		Attempts: q.VerificationAttempts,
		Overdue:  overdue,
	}
	if q.CodeExpiresAt != nil {
		s.ExpiresAt = *q.CodeExpiresAt
	}
	return s
}

// Outcome is the result of checking a submitted code.
type Outcome int

// Check outcomes, in the order they are evaluated.
const (
	OutcomeNoActive Outcome = iota
	OutcomeExpired
	OutcomeExhausted
	OutcomeMismatch
	OutcomeMatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoActive:
		return "no_active_verification"
	case OutcomeExpired:
		return "expired"
	case OutcomeExhausted:
		return "too_many_attempts"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeMatch:
		return "match"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Check evaluates a submitted code against a state. Expiry is checked before
// the attempt budget, and both before the code itself, so a correct code
// submitted too late or after exhaustion never matches.
func Check(s State, submitted string, now time.Time, maxAttempts int) Outcome {
	p, ok := s.(Pending)
	if !ok {
		return OutcomeNoActive
	}
	if p.ExpiresAt.Before(now) {
		return OutcomeExpired
	}
	if p.Attempts >= maxAttempts {
		return OutcomeExhausted
	}
	if submitted != p.Code {
		return OutcomeMismatch
	}
	return OutcomeMatch
}

// Event drives a transition. Implementations are IssueCode and SubmitCode.
type Event interface {
	isEvent()
}

// IssueCode issues (or reissues) a code for a payable quarter.
type IssueCode struct {
	ExpiresAt time.Time
	Code      string
}

// SubmitCode submits a code for checking.
type SubmitCode struct {
	Code string
}

func (IssueCode) isEvent()  {}
func (SubmitCode) isEvent() {}

// Transition applies an event to a state and returns the next state with the
// check outcome (OutcomeNoActive for events that do not check a code).
// A matched code moves to Paid with PaidAt set to now; the receipt number is
// assigned by the settlement that follows.
func Transition(s State, e Event, now time.Time, maxAttempts int) (State, Outcome, error) {
	switch ev := e.(type) {
	case IssueCode:
		switch cur := s.(type) {
		case Unpaid:
			return Pending{Code: ev.Code, ExpiresAt: ev.ExpiresAt, Overdue: cur.Overdue}, OutcomeNoActive, nil
		case Pending:
			return Pending{Code: ev.Code, ExpiresAt: ev.ExpiresAt, Overdue: cur.Overdue}, OutcomeNoActive, nil
		default:
			return s, OutcomeNoActive, fmt.Errorf("%w: cannot issue a code in state %s", ErrInvalidTransition, s.Name())
		}

	case SubmitCode:
		outcome := Check(s, ev.Code, now, maxAttempts)
		cur, pending := s.(Pending)
		switch outcome {
		case OutcomeNoActive:
			return s, outcome, nil
		case OutcomeExpired, OutcomeExhausted:
			return Unpaid{Overdue: cur.Overdue}, outcome, nil
		case OutcomeMismatch:
			cur.Attempts++
			return cur, outcome, nil
		case OutcomeMatch:
			if !pending {
				return s, outcome, fmt.Errorf("%w: match outside pending state", ErrInvalidTransition)
			}
			return Paid{PaidAt: now}, outcome, nil
		}
	}

	return s, OutcomeNoActive, fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, e)
}
