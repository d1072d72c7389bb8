package verification

import (
	"testing"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxAttempts = 3

var now = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestStateOf(t *testing.T) {
	expires := now.Add(10 * time.Minute)
	paidAt := now.Add(-time.Hour)

	tests := []struct {
		name     string
		quarter  models.TaxQuarter
		expected State
	}{
		{
			name:     "unpaid without code",
			quarter:  models.TaxQuarter{Status: models.StatusUnpaid},
			expected: Unpaid{},
		},
		{
			name:     "overdue without code",
			quarter:  models.TaxQuarter{Status: models.StatusOverdue},
			expected: Unpaid{Overdue: true},
		},
		{
			name: "unpaid with code",
			quarter: models.TaxQuarter{
				Status:               models.StatusUnpaid,
				VerificationCode:     strPtr("123456"),
				CodeExpiresAt:        &expires,
				VerificationAttempts: 2,
			},
			expected: Pending{Code: "123456", ExpiresAt: expires, Attempts: 2},
		},
		{
			name: "paid",
			quarter: models.TaxQuarter{
				Status:    models.StatusPaid,
				PaidDate:  &paidAt,
				ReceiptNo: strPtr("OR-20261018-0001"),
			},
			expected: Paid{PaidAt: paidAt, ReceiptNo: "OR-20261018-0001"},
		},
		{
			name: "paid row with stale code is still paid",
			quarter: models.TaxQuarter{
				Status:           models.StatusPaid,
				VerificationCode: strPtr("123456"),
			},
			expected: Paid{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StateOf(&tt.quarter))
		})
	}
}

func TestCheck_Precedence(t *testing.T) {
	valid := Pending{Code: "123456", ExpiresAt: now.Add(time.Minute)}

	tests := []struct {
		name      string
		state     State
		submitted string
		expected  Outcome
	}{
		{"unpaid has no active code", Unpaid{}, "123456", OutcomeNoActive},
		{"paid has no active code", Paid{ReceiptNo: "OR-20261018-0001"}, "123456", OutcomeNoActive},
		{"correct code matches", valid, "123456", OutcomeMatch},
		{"wrong code mismatches", valid, "000000", OutcomeMismatch},
		{
			"expiry precedes a correct code",
			Pending{Code: "123456", ExpiresAt: now.Add(-time.Second)},
			"123456",
			OutcomeExpired,
		},
		{
			"expiry precedes exhaustion",
			Pending{Code: "123456", ExpiresAt: now.Add(-time.Second), Attempts: 3},
			"123456",
			OutcomeExpired,
		},
		{
			"exhaustion precedes a correct code",
			Pending{Code: "123456", ExpiresAt: now.Add(time.Minute), Attempts: 3},
			"123456",
			OutcomeExhausted,
		},
		{
			"two prior mismatches still allow a match",
			Pending{Code: "123456", ExpiresAt: now.Add(time.Minute), Attempts: 2},
			"123456",
			OutcomeMatch,
		},
		{
			"code expiring exactly now is still valid",
			Pending{Code: "123456", ExpiresAt: now},
			"123456",
			OutcomeMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Check(tt.state, tt.submitted, now, maxAttempts))
		})
	}
}

func TestTransition_IssueCode(t *testing.T) {
	expires := now.Add(10 * time.Minute)
	issue := IssueCode{Code: "654321", ExpiresAt: expires}

	t.Run("unpaid becomes pending", func(t *testing.T) {
		next, _, err := Transition(Unpaid{}, issue, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, Pending{Code: "654321", ExpiresAt: expires}, next)
	})

	t.Run("overdue keeps its flag", func(t *testing.T) {
		next, _, err := Transition(Unpaid{Overdue: true}, issue, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, Pending{Code: "654321", ExpiresAt: expires, Overdue: true}, next)
	})

	t.Run("reissue resets attempts", func(t *testing.T) {
		cur := Pending{Code: "111111", ExpiresAt: now, Attempts: 2}
		next, _, err := Transition(cur, issue, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, Pending{Code: "654321", ExpiresAt: expires}, next)
	})

	t.Run("paid is terminal", func(t *testing.T) {
		cur := Paid{ReceiptNo: "OR-20261018-0001"}
		next, _, err := Transition(cur, issue, now, maxAttempts)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, cur, next)
	})
}

func TestTransition_WrongCodeRetryThenSuccess(t *testing.T) {
	var s State = Pending{Code: "123456", ExpiresAt: now.Add(10 * time.Minute)}

	for i := 1; i <= 2; i++ {
		next, outcome, err := Transition(s, SubmitCode{Code: "000000"}, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, outcome)
		require.IsType(t, Pending{}, next)
		assert.Equal(t, i, next.(Pending).Attempts)
		s = next
	}

	next, outcome, err := Transition(s, SubmitCode{Code: "123456"}, now, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatch, outcome)
	assert.Equal(t, Paid{PaidAt: now}, next)

	// Paid is terminal: the same code no longer finds an active verification
	again, outcome, err := Transition(next, SubmitCode{Code: "123456"}, now, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActive, outcome)
	assert.Equal(t, next, again)
}

func TestTransition_FourthMismatchExhausts(t *testing.T) {
	var s State = Pending{Code: "123456", ExpiresAt: now.Add(10 * time.Minute), Overdue: true}

	for i := 0; i < 3; i++ {
		next, outcome, err := Transition(s, SubmitCode{Code: "999999"}, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, OutcomeMismatch, outcome)
		s = next
	}

	// Any code on the fourth attempt, even the correct one, is refused
	for _, code := range []string{"999999", "123456"} {
		next, outcome, err := Transition(s, SubmitCode{Code: code}, now, maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, OutcomeExhausted, outcome)
		assert.Equal(t, Unpaid{Overdue: true}, next, "exhaustion clears back to the payable state")
	}
}

func TestTransition_ExpiredClears(t *testing.T) {
	s := Pending{Code: "123456", ExpiresAt: now.Add(-time.Minute)}

	next, outcome, err := Transition(s, SubmitCode{Code: "123456"}, now, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.Equal(t, Unpaid{}, next)
}

func TestTransition_SubmitWithoutCode(t *testing.T) {
	next, outcome, err := Transition(Unpaid{}, SubmitCode{Code: "123456"}, now, maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoActive, outcome)
	assert.Equal(t, Unpaid{}, next)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "no_active_verification", OutcomeNoActive.String())
	assert.Equal(t, "expired", OutcomeExpired.String())
	assert.Equal(t, "too_many_attempts", OutcomeExhausted.String())
	assert.Equal(t, "mismatch", OutcomeMismatch.String())
	assert.Equal(t, "match", OutcomeMatch.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "unpaid", Unpaid{}.Name())
	assert.Equal(t, "pending_verification", Pending{}.Name())
	assert.Equal(t, "paid", Paid{}.Name())
}
