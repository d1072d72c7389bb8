package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lgu-eportal/rptpay/internal/cache"
	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/logger"
	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/lgu-eportal/rptpay/internal/notify"
	"github.com/lgu-eportal/rptpay/internal/repository"
	"github.com/lgu-eportal/rptpay/internal/verification"
	"github.com/shopspring/decimal"
)

// Service-level errors
var (
	ErrAssessmentNotFound     = errors.New("assessment not found")
	ErrQuarterNotFound        = errors.New("tax quarter not found")
	ErrNothingPayable         = errors.New("no unpaid or overdue quarters to pay")
	ErrInvalidPaymentMethod   = errors.New("unsupported payment method")
	ErrNoActiveVerification   = errors.New("no active verification found")
	ErrCodeExpired            = errors.New("verification code has expired")
	ErrTooManyAttempts        = errors.New("too many failed verification attempts")
	ErrInvalidCode            = errors.New("invalid verification code")
	ErrSettlementFailed       = errors.New("payment failed")
	ErrReceiptExhausted       = errors.New("could not allocate a unique receipt number")
	ErrNotificationFailed     = errors.New("verification code could not be delivered")
	ErrPaymentSuccessNotFound = errors.New("payment confirmation not found")
)

// InvalidCodeError reports a mismatched code and the attempts left before
// the verification is cleared.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrInvalidCode, e.Remaining)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }

// SettlementError reports a settlement that did not update every targeted
// quarter. The transaction was rolled back.
type SettlementError struct {
	AffectedRows int64
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("%s: %d rows affected", ErrSettlementFailed, e.AffectedRows)
}

func (e *SettlementError) Unwrap() error { return ErrSettlementFailed }

// IssueRequest starts a payment for the target quarters.
type IssueRequest struct {
	Target        models.PaymentTarget
	Phone         string
	Email         string
	PaymentMethod models.PaymentMethod
}

// IssueResult describes the verification that was issued. It never carries
// the code.
type IssueResult struct {
	ExpiresAt   time.Time `json:"expires_at"`
	ReferenceID string    `json:"reference_id"`
	MaskedPhone string    `json:"masked_phone"`
	MaskedEmail string    `json:"masked_email"`
}

// VerifyRequest submits a code for the target quarters.
type VerifyRequest struct {
	Target models.PaymentTarget
	Code   string
}

// PaymentContext is what the payment page needs before a code is issued.
type PaymentContext struct {
	Assessment   *models.PropertyTaxAssessment
	Verification *models.VerificationRef
	Quarters     []models.TaxQuarter
	Target       models.PaymentTarget
	TotalDue     decimal.Decimal
	Pending      models.PendingStatus
}

// Options holds the verification limits used by the payment service.
type Options struct {
	CodeTTL        time.Duration
	SessionTTL     time.Duration
	MaxAttempts    int
	ReceiptRetries int
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(v config.VerificationConfig, s config.SessionConfig) Options {
	return Options{
		CodeTTL:        v.CodeTTL,
		SessionTTL:     s.TTL,
		MaxAttempts:    v.MaxAttempts,
		ReceiptRetries: v.ReceiptRetries,
	}
}

// PaymentService issues verification codes, checks submitted codes and
// settles tax quarters once a code matches.
type PaymentService interface {
	// GetPaymentContext loads the assessment, the targeted quarters and the
	// amount due. A stale session reference is dropped when the database no
	// longer holds an active code.
	// Returns ErrAssessmentNotFound or ErrQuarterNotFound for unknown ids.
	GetPaymentContext(ctx context.Context, sessionID string, target models.PaymentTarget) (*PaymentContext, error)

	// GetPendingStatus returns the cached view of the assessment's active
	// verification, loading it from the database on a miss.
	GetPendingStatus(ctx context.Context, assessmentID int64) (models.PendingStatus, error)

	// IssueVerification validates the contact details, stores a fresh code on
	// the target quarters and delivers it. Any other pending code on the
	// assessment is cleared first.
	// Returns a *verification.ContactError for bad contact details,
	// ErrNothingPayable when no target quarter is unpaid or overdue, and
	// ErrNotificationFailed when the code was stored but every channel failed.
	IssueVerification(ctx context.Context, sessionID string, req IssueRequest) (*IssueResult, error)

	// VerifyAndSettle checks a submitted code and settles the target quarters
	// when it matches.
	// Returns ErrNoActiveVerification, ErrCodeExpired, ErrTooManyAttempts,
	// *InvalidCodeError, *SettlementError or ErrReceiptExhausted.
	VerifyAndSettle(ctx context.Context, sessionID string, req VerifyRequest) (*models.PaymentSuccess, error)

	// ConsumePaymentSuccess returns the confirmation stored by a successful
	// settlement. It can be read once.
	// Returns ErrPaymentSuccessNotFound when nothing is stored.
	ConsumePaymentSuccess(ctx context.Context, sessionID string, applicationID int64) (*models.PaymentSuccess, error)
}

// paymentService is the concrete implementation of PaymentService.
type paymentService struct {
	repo     repository.QuarterRepository
	sessions cache.SessionStore
	status   cache.StatusCache
	notifier notify.Notifier
	log      *logger.Logger
	opts     Options

	now              func() time.Time
	newCode          func() (string, error)
	newReceipt       func(time.Time) (string, error)
	newTransactionID func(time.Time) (string, error)
}

// NewPaymentService creates a new instance of PaymentService.
func NewPaymentService(
	repo repository.QuarterRepository,
	sessions cache.SessionStore,
	status cache.StatusCache,
	notifier notify.Notifier,
	log *logger.Logger,
	opts Options,
) PaymentService {
	return &paymentService{
		repo:             repo,
		sessions:         sessions,
		status:           status,
		notifier:         notifier,
		log:              log,
		opts:             opts,
		now:              time.Now,
		newCode:          verification.GenerateCode,
		newReceipt:       verification.ReceiptNumber,
		newTransactionID: verification.TransactionID,
	}
}

func (s *paymentService) GetPaymentContext(ctx context.Context, sessionID string, target models.PaymentTarget) (*PaymentContext, error) {
	assessment, err := s.loadAssessment(ctx, target.AssessmentID)
	if err != nil {
		return nil, err
	}

	generation, genOK := s.statusGeneration(ctx, target.AssessmentID)
	quarters, err := s.repo.ListQuarters(ctx, target.AssessmentID)
	if err != nil {
		s.log.Error("Failed to list quarters", err, map[string]interface{}{
			"assessment_id": target.AssessmentID,
		})
		return nil, fmt.Errorf("failed to list quarters: %w", err)
	}

	pc := &PaymentContext{
		Assessment: assessment,
		Target:     target,
		TotalDue:   decimal.Zero,
		Quarters:   []models.TaxQuarter{},
	}

	if target.AllQuarters() {
		for _, q := range quarters {
			if q.IsPayable() {
				pc.Quarters = append(pc.Quarters, q)
			}
		}
	} else {
		q := findQuarter(quarters, *target.QuarterID)
		if q == nil {
			return nil, ErrQuarterNotFound
		}
		pc.Quarters = append(pc.Quarters, *q)
	}
	for _, q := range pc.Quarters {
		if q.IsPayable() {
			pc.TotalDue = pc.TotalDue.Add(q.AmountDue)
		}
	}

	// The database is the source of truth for the pending status
	pc.Pending = s.pendingStatusOf(quarters)
	s.cacheStatus(ctx, target.AssessmentID, pc.Pending, generation, genOK)

	ref, err := s.sessions.GetVerification(ctx, sessionID, target.AssessmentID)
	if err != nil {
		s.log.Warn("Failed to read session verification", map[string]interface{}{
			"assessment_id": target.AssessmentID,
			"error":         err.Error(),
		})
	}
	if ref != nil && !pc.Pending.Active {
		s.clearSessionRef(ctx, sessionID, target.AssessmentID)
		ref = nil
	}
	pc.Verification = ref

	return pc, nil
}

func (s *paymentService) GetPendingStatus(ctx context.Context, assessmentID int64) (models.PendingStatus, error) {
	cached, err := s.status.Get(ctx, assessmentID)
	if err != nil {
		s.log.Warn("Pending status cache read failed", map[string]interface{}{
			"assessment_id": assessmentID,
			"error":         err.Error(),
		})
	}
	if cached != nil {
		return cached.At(s.now()), nil
	}

	generation, genOK := s.statusGeneration(ctx, assessmentID)
	quarters, err := s.repo.ListQuarters(ctx, assessmentID)
	if err != nil {
		return models.PendingStatus{}, fmt.Errorf("failed to list quarters: %w", err)
	}
	if len(quarters) == 0 {
		return models.PendingStatus{}, ErrAssessmentNotFound
	}

	status := s.pendingStatusOf(quarters)
	s.cacheStatus(ctx, assessmentID, status, generation, genOK)
	return status, nil
}

func (s *paymentService) IssueVerification(ctx context.Context, sessionID string, req IssueRequest) (*IssueResult, error) {
	phone := strings.TrimSpace(req.Phone)
	email := strings.TrimSpace(req.Email)
	if err := verification.ValidateContact(phone, email); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = models.DefaultPaymentMethod
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, method)
	}

	assessment, err := s.loadAssessment(ctx, req.Target.AssessmentID)
	if err != nil {
		return nil, err
	}

	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	now := s.now()
	issue := models.VerificationIssue{
		Code:          code,
		ExpiresAt:     now.Add(s.opts.CodeTTL),
		PaymentMethod: method,
		Phone:         phone,
		Email:         email,
	}

	log := s.log.WithAssessment(req.Target.AssessmentID)
	var quarterCount int

	err = s.repo.InTx(ctx, func(tx repository.QuarterTx) error {
		locked, err := tx.LockQuarters(ctx, req.Target.AssessmentID)
		if err != nil {
			return err
		}

		targets, err := payableTargets(locked, req.Target)
		if err != nil {
			return err
		}

		// At most one active verification per assessment
		if _, err := tx.ClearVerification(ctx, req.Target.AssessmentID); err != nil {
			return err
		}

		ids := make([]int64, 0, len(targets))
		for _, q := range targets {
			ids = append(ids, q.ID)
		}
		n, err := tx.SetVerification(ctx, req.Target.AssessmentID, ids, issue)
		if err != nil {
			return err
		}
		quarterCount = int(n)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingPayable) || errors.Is(err, ErrQuarterNotFound) {
			log.Warn("Verification not issued", map[string]interface{}{
				"mode":   req.Target.Mode(),
				"reason": err.Error(),
			})
			return nil, err
		}
		log.Error("Failed to issue verification", err, map[string]interface{}{
			"mode": req.Target.Mode(),
		})
		return nil, fmt.Errorf("failed to issue verification: %w", err)
	}

	s.invalidateStatus(ctx, req.Target.AssessmentID)

	refID, err := verification.ReferenceID(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification reference: %w", err)
	}
	ref := models.VerificationRef{
		ID:          refID,
		ExpiresAt:   issue.ExpiresAt,
		MaskedPhone: verification.MaskPhone(phone),
		MaskedEmail: verification.MaskEmail(email),
		Target:      req.Target,
	}
	if err := s.sessions.SaveVerification(ctx, sessionID, ref, s.opts.SessionTTL); err != nil {
		log.Error("Failed to store verification reference", err, nil)
		return nil, fmt.Errorf("failed to store verification reference: %w", err)
	}

	log.Info("Verification issued", map[string]interface{}{
		"mode":          req.Target.Mode(),
		"quarter_count": quarterCount,
		"reference_id":  refID,
		"phone":         ref.MaskedPhone,
		"expires_at":    issue.ExpiresAt,
	})

	delivery := notify.Delivery{
		AssessmentID: req.Target.AssessmentID,
		Code:         code,
		Phone:        phone,
		Email:        email,
		TDN:          assessment.TDN,
		ExpiresAt:    issue.ExpiresAt,
		ValidFor:     s.opts.CodeTTL,
	}
	if err := s.notifier.SendVerificationCode(ctx, delivery); err != nil {
		log.Error("Failed to deliver verification code", err, map[string]interface{}{
			"reference_id": refID,
		})
		return nil, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	return &IssueResult{
		ReferenceID: refID,
		ExpiresAt:   issue.ExpiresAt,
		MaskedPhone: ref.MaskedPhone,
		MaskedEmail: ref.MaskedEmail,
	}, nil
}

func (s *paymentService) VerifyAndSettle(ctx context.Context, sessionID string, req VerifyRequest) (*models.PaymentSuccess, error) {
	assessmentID := req.Target.AssessmentID
	log := s.log.WithAssessment(assessmentID)

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	code := strings.TrimSpace(req.Code)

	var (
		outcome   verification.Outcome
		attempts  int
		target    = req.Target
		success   *models.PaymentSuccess
		settleErr *SettlementError
	)

	err = s.repo.InTx(ctx, func(tx repository.QuarterTx) error {
		locked, err := tx.LockQuarters(ctx, assessmentID)
		if err != nil {
			return err
		}

		pending := repository.PendingQuarter(locked)
		if pending == nil {
			outcome = verification.OutcomeNoActive
			return nil
		}
		attempts = pending.VerificationAttempts

		_, outcome, err = verification.Transition(verification.StateOf(pending), verification.SubmitCode{Code: code}, now, s.opts.MaxAttempts)
		if err != nil {
			return err
		}

		switch outcome {
		case verification.OutcomeExpired, verification.OutcomeExhausted:
			_, err := tx.ClearVerification(ctx, assessmentID)
			return err
		case verification.OutcomeMismatch:
			_, err := tx.IncrementAttempts(ctx, assessmentID)
			return err
		case verification.OutcomeMatch:
			// The code covers exactly the quarters it was written to
			holders := codeHolders(locked, pending)
			target = issuedTarget(req.Target, locked, holders)
			if !sameTarget(target, req.Target) {
				log.Warn("Submitted target differs from the issued verification", map[string]interface{}{
					"submitted_mode": req.Target.Mode(),
					"issued_mode":    target.Mode(),
					"quarter_count":  len(holders),
				})
			}
			success, err = s.settle(ctx, tx, assessment, holders, pending, target, now)
			return err
		}
		return nil
	})

	if errors.As(err, &settleErr) {
		log.Error("Settlement rolled back", err, map[string]interface{}{
			"mode":          target.Mode(),
			"affected_rows": settleErr.AffectedRows,
		})
		s.resetAfterFailedSettlement(ctx, sessionID, assessmentID)
		return nil, err
	}
	if err != nil {
		if errors.Is(err, ErrReceiptExhausted) {
			log.Error("Receipt allocation failed", err, nil)
			return nil, err
		}
		log.Error("Failed to verify payment", err, nil)
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}

	switch outcome {
	case verification.OutcomeNoActive:
		s.clearSessionRef(ctx, sessionID, assessmentID)
		log.Warn("No active verification", nil)
		return nil, ErrNoActiveVerification

	case verification.OutcomeExpired:
		s.invalidateStatus(ctx, assessmentID)
		s.clearSessionRef(ctx, sessionID, assessmentID)
		log.Warn("Verification code expired", nil)
		return nil, ErrCodeExpired

	case verification.OutcomeExhausted:
		s.invalidateStatus(ctx, assessmentID)
		s.clearSessionRef(ctx, sessionID, assessmentID)
		log.Warn("Verification attempts exhausted", map[string]interface{}{"attempts": attempts})
		return nil, ErrTooManyAttempts

	case verification.OutcomeMismatch:
		s.invalidateStatus(ctx, assessmentID)
		remaining := s.opts.MaxAttempts - (attempts + 1)
		if remaining < 0 {
			remaining = 0
		}
		log.Warn("Verification code mismatch", map[string]interface{}{"remaining_attempts": remaining})
		return nil, &InvalidCodeError{Remaining: remaining}
	}

	s.invalidateStatus(ctx, assessmentID)
	s.clearSessionRef(ctx, sessionID, assessmentID)
	if err := s.sessions.SavePaymentSuccess(ctx, sessionID, *success, s.opts.SessionTTL); err != nil {
		// The payment is committed; only the confirmation page is affected
		log.Error("Failed to store payment confirmation", err, map[string]interface{}{
			"receipt_no": success.ReceiptNo,
		})
	}

	log.Info("Payment settled", map[string]interface{}{
		"mode":           success.Mode,
		"receipt_no":     success.ReceiptNo,
		"transaction_id": success.TransactionID,
		"quarter_count":  success.QuarterCount,
		"amount":         success.Amount.StringFixed(2),
	})

	return success, nil
}

// settle records the payment and marks the quarters holding the confirmed
// code paid inside tx. Any error rolls the whole transaction back.
func (s *paymentService) settle(
	ctx context.Context,
	tx repository.QuarterTx,
	assessment *models.PropertyTaxAssessment,
	targets []models.TaxQuarter,
	pending *models.TaxQuarter,
	target models.PaymentTarget,
	now time.Time,
) (*models.PaymentSuccess, error) {
	if len(targets) == 0 {
		return nil, &SettlementError{AffectedRows: 0}
	}
	var err error

	amount := decimal.Zero
	for _, q := range targets {
		amount = amount.Add(q.AmountDue)
	}

	method := models.DefaultPaymentMethod
	if pending.PaymentMethod != nil && *pending.PaymentMethod != "" {
		method = models.PaymentMethod(*pending.PaymentMethod)
	}

	payment := &models.TaxPayment{
		AssessmentID:  assessment.ID,
		QuarterID:     target.QuarterID,
		Amount:        amount,
		PaymentMethod: method,
		Phone:         deref(pending.ContactPhone),
		Email:         deref(pending.ContactEmail),
		QuarterCount:  len(targets),
		PaidAt:        now,
	}

	// Claim a receipt number; the ledger's unique constraint rejects repeats
	claimed := false
	for i := 0; i < s.opts.ReceiptRetries && !claimed; i++ {
		if payment.ReceiptNo, err = s.newReceipt(now); err != nil {
			return nil, fmt.Errorf("failed to generate receipt number: %w", err)
		}
		if payment.TransactionID, err = s.newTransactionID(now); err != nil {
			return nil, fmt.Errorf("failed to generate transaction id: %w", err)
		}
		if claimed, err = tx.InsertPayment(ctx, payment); err != nil {
			return nil, err
		}
		if !claimed {
			s.log.Warn("Receipt number collision", map[string]interface{}{
				"assessment_id": assessment.ID,
				"receipt_no":    payment.ReceiptNo,
				"attempt":       i + 1,
			})
		}
	}
	if !claimed {
		return nil, fmt.Errorf("%w after %d attempts", ErrReceiptExhausted, s.opts.ReceiptRetries)
	}

	ids := make([]int64, 0, len(targets))
	for _, q := range targets {
		ids = append(ids, q.ID)
	}
	affected, err := tx.Settle(ctx, models.Settlement{
		AssessmentID:  assessment.ID,
		QuarterIDs:    ids,
		Code:          deref(pending.VerificationCode),
		PaidAt:        now,
		PaidDate:      models.BusinessDate(now),
		ReceiptNo:     payment.ReceiptNo,
		PaymentMethod: method,
		Phone:         payment.Phone,
		Email:         payment.Email,
	})
	if err != nil {
		return nil, err
	}
	if affected != int64(len(targets)) {
		return nil, &SettlementError{AffectedRows: affected}
	}

	return &models.PaymentSuccess{
		ApplicationID:   assessment.ApplicationID,
		AssessmentID:    assessment.ID,
		AssessmentYear:  assessment.AssessmentYear,
		TDN:             assessment.TDN,
		PropertyAddress: assessment.PropertyAddress,
		ReceiptNo:       payment.ReceiptNo,
		TransactionID:   payment.TransactionID,
		Amount:          amount,
		PaymentMethod:   method,
		Mode:            target.Mode(),
		QuarterCount:    len(targets),
		PaidAt:          now,
	}, nil
}

// resetAfterFailedSettlement clears the consumed code so the payer has to
// request a new one.
func (s *paymentService) resetAfterFailedSettlement(ctx context.Context, sessionID string, assessmentID int64) {
	err := s.repo.InTx(ctx, func(tx repository.QuarterTx) error {
		_, err := tx.ClearVerification(ctx, assessmentID)
		return err
	})
	if err != nil {
		s.log.Error("Failed to clear verification after settlement failure", err, map[string]interface{}{
			"assessment_id": assessmentID,
		})
	}
	s.invalidateStatus(ctx, assessmentID)
	s.clearSessionRef(ctx, sessionID, assessmentID)
}

func (s *paymentService) ConsumePaymentSuccess(ctx context.Context, sessionID string, applicationID int64) (*models.PaymentSuccess, error) {
	summary, err := s.sessions.ConsumePaymentSuccess(ctx, sessionID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment confirmation: %w", err)
	}
	if summary == nil {
		return nil, ErrPaymentSuccessNotFound
	}
	return summary, nil
}

func (s *paymentService) loadAssessment(ctx context.Context, assessmentID int64) (*models.PropertyTaxAssessment, error) {
	assessment, err := s.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		s.log.Error("Failed to query assessment", err, map[string]interface{}{
			"assessment_id": assessmentID,
		})
		return nil, fmt.Errorf("failed to query assessment: %w", err)
	}
	if assessment == nil {
		return nil, ErrAssessmentNotFound
	}
	return assessment, nil
}

// pendingStatusOf derives the pending status from an assessment's quarters.
func (s *paymentService) pendingStatusOf(quarters []models.TaxQuarter) models.PendingStatus {
	pending := repository.PendingQuarter(quarters)
	if pending == nil {
		return models.PendingStatus{Remaining: s.opts.MaxAttempts}
	}

	status := models.PendingStatus{
		Attempts:  pending.VerificationAttempts,
		ExpiresAt: pending.CodeExpiresAt,
	}
	status.Remaining = s.opts.MaxAttempts - status.Attempts
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if p, ok := verification.StateOf(pending).(verification.Pending); ok {
		status.Active = !p.ExpiresAt.Before(s.now()) && p.Attempts < s.opts.MaxAttempts
	}
	return status
}

// statusGeneration reads the cache generation ahead of a database load. The
// load is not cached when the generation is unknown.
func (s *paymentService) statusGeneration(ctx context.Context, assessmentID int64) (int64, bool) {
	gen, err := s.status.Generation(ctx, assessmentID)
	if err != nil {
		s.log.Warn("Pending status generation read failed", map[string]interface{}{
			"assessment_id": assessmentID,
			"error":         err.Error(),
		})
		return 0, false
	}
	return gen, true
}

func (s *paymentService) cacheStatus(ctx context.Context, assessmentID int64, status models.PendingStatus, generation int64, ok bool) {
	if !ok {
		return
	}
	if err := s.status.Set(ctx, assessmentID, status, generation); err != nil {
		s.log.Warn("Pending status cache write failed", map[string]interface{}{
			"assessment_id": assessmentID,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) invalidateStatus(ctx context.Context, assessmentID int64) {
	if err := s.status.Invalidate(ctx, assessmentID); err != nil {
		s.log.Warn("Pending status cache invalidation failed", map[string]interface{}{
			"assessment_id": assessmentID,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) clearSessionRef(ctx context.Context, sessionID string, assessmentID int64) {
	if err := s.sessions.ClearVerification(ctx, sessionID, assessmentID); err != nil {
		s.log.Warn("Failed to clear session verification", map[string]interface{}{
			"assessment_id": assessmentID,
			"error":         err.Error(),
		})
	}
}

// codeHolders returns the payable quarters that carry the pending quarter's code.
func codeHolders(quarters []models.TaxQuarter, pending *models.TaxQuarter) []models.TaxQuarter {
	code := deref(pending.VerificationCode)
	var holders []models.TaxQuarter
	for _, q := range quarters {
		if q.HasPendingCode() && *q.VerificationCode == code {
			holders = append(holders, q)
		}
	}
	return holders
}

// issuedTarget names the target a code was issued for from the quarters
// holding it: one quarter out of several payable ones, or all of them. A
// submitted single-quarter target naming the only holder is kept as is.
func issuedTarget(submitted models.PaymentTarget, quarters, holders []models.TaxQuarter) models.PaymentTarget {
	assessmentID := submitted.AssessmentID
	if len(holders) == 1 && !submitted.AllQuarters() && *submitted.QuarterID == holders[0].ID {
		return submitted
	}
	payable := 0
	for _, q := range quarters {
		if q.IsPayable() {
			payable++
		}
	}
	if len(holders) == 1 && payable > 1 {
		id := holders[0].ID
		return models.PaymentTarget{AssessmentID: assessmentID, QuarterID: &id}
	}
	return models.PaymentTarget{AssessmentID: assessmentID}
}

func sameTarget(a, b models.PaymentTarget) bool {
	if a.AllQuarters() || b.AllQuarters() {
		return a.AllQuarters() == b.AllQuarters()
	}
	return *a.QuarterID == *b.QuarterID
}

// payableTargets resolves a payment target against locked quarter rows.
func payableTargets(quarters []models.TaxQuarter, target models.PaymentTarget) ([]models.TaxQuarter, error) {
	if !target.AllQuarters() {
		q := findQuarter(quarters, *target.QuarterID)
		if q == nil {
			return nil, ErrQuarterNotFound
		}
		if !q.IsPayable() {
			return nil, ErrNothingPayable
		}
		return []models.TaxQuarter{*q}, nil
	}

	var targets []models.TaxQuarter
	for _, q := range quarters {
		if q.IsPayable() {
			targets = append(targets, q)
		}
	}
	if len(targets) == 0 {
		return nil, ErrNothingPayable
	}
	return targets, nil
}

func findQuarter(quarters []models.TaxQuarter, id int64) *models.TaxQuarter {
	for i := range quarters {
		if quarters[i].ID == id {
			return &quarters[i]
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
