package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/lgu-eportal/rptpay/internal/errors"
	"github.com/lgu-eportal/rptpay/internal/middleware"
	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/lgu-eportal/rptpay/internal/services"
	"github.com/lgu-eportal/rptpay/internal/verification"
)

// SuccessPath is where a settled payment redirects to.
const SuccessPath = "/api/v1/payments/success"

// PaymentHandler handles the RPT payment verification endpoints.
type PaymentHandler struct {
	service services.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler instance.
func NewPaymentHandler(service services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service: service,
	}
}

// PaymentRequest is the POST body, sent as a form or as JSON.
// A verification_code field, even an empty one, submits the code; otherwise
// the contact fields request a new one. The payment method is checked by the
// service after the contact fields.
type PaymentRequest struct {
	QuarterID        *int64  `form:"quarter_id" json:"quarter_id" binding:"omitempty,gt=0"`
	VerificationCode *string `form:"verification_code" json:"verification_code" binding:"omitempty,max=16"`
	PhoneNumber      string  `form:"phone_number" json:"phone_number" binding:"omitempty,max=32"`
	Email            string  `form:"email" json:"email" binding:"omitempty,max=255"`
	PaymentMethod    string  `form:"payment_method" json:"payment_method" binding:"omitempty,max=32"`
}

// SuccessRequest represents the query parameters for the success endpoint.
type SuccessRequest struct {
	ApplicationID int64 `form:"application_id" binding:"required,gt=0"`
}

// AssessmentData is the assessment summary shown on the payment page.
type AssessmentData struct {
	TDN             string `json:"tdn"`
	PropertyAddress string `json:"property_address"`
	OwnerName       string `json:"owner_name"`
	AnnualTax       string `json:"annual_tax"`
	ID              int64  `json:"id"`
	ApplicationID   int64  `json:"application_id"`
	AssessmentYear  int    `json:"assessment_year"`
}

// QuarterData is one quarter in the payment context.
type QuarterData struct {
	DueDate   string  `json:"due_date"`
	Status    string  `json:"status"`
	AmountDue string  `json:"amount_due"`
	ReceiptNo *string `json:"receipt_no,omitempty"`
	ID        int64   `json:"id"`
	Quarter   int     `json:"quarter"`
	Payable   bool    `json:"payable"`
}

// VerificationData describes the session's active verification. It never
// carries the code.
type VerificationData struct {
	ExpiresAt   time.Time `json:"expires_at"`
	ReferenceID string    `json:"reference_id"`
	MaskedPhone string    `json:"masked_phone"`
	MaskedEmail string    `json:"masked_email"`
}

// PaymentContextResponse represents the response for the payment context endpoint.
type PaymentContextResponse struct {
	Verification     *VerificationData    `json:"verification,omitempty"`
	Mode             string               `json:"mode"`
	TotalDue         string               `json:"total_due"`
	Quarters         []QuarterData        `json:"quarters"`
	Pending          models.PendingStatus `json:"pending"`
	Assessment       AssessmentData       `json:"assessment"`
	ShowVerification bool                 `json:"show_verification"`
}

// IssueResponse represents the response after a code is sent.
type IssueResponse struct {
	ExpiresAt        time.Time `json:"expires_at"`
	ReferenceID      string    `json:"reference_id"`
	MaskedPhone      string    `json:"masked_phone"`
	MaskedEmail      string    `json:"masked_email"`
	ShowVerification bool      `json:"show_verification"`
}

// SuccessResponse represents the one-time payment confirmation.
type SuccessResponse struct {
	Payment *models.PaymentSuccess `json:"payment"`
}

// GetPayment handles GET /api/v1/assessments/:assessmentId/payment endpoint.
// An optional quarter_id query parameter selects a single quarter.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	target, ok := parseTarget(c, nil)
	if !ok {
		return
	}

	pc, err := h.service.GetPaymentContext(c.Request.Context(), middleware.GetSessionID(c), target)
	if err != nil {
		respondPaymentError(c, err, "Failed to load payment details")
		return
	}

	c.JSON(http.StatusOK, mapPaymentContext(pc))
}

// GetStatus handles GET /api/v1/assessments/:assessmentId/payment/status endpoint.
// It reports whether a verification code is active for the assessment.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	target, ok := parseTarget(c, nil)
	if !ok {
		return
	}

	status, err := h.service.GetPendingStatus(c.Request.Context(), target.AssessmentID)
	if err != nil {
		respondPaymentError(c, err, "Failed to load verification status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// PostPayment handles POST /api/v1/assessments/:assessmentId/payment endpoint.
// Without a verification code it issues one; with a code it checks the code
// and, on a match, settles the payment and redirects to the success page.
func (h *PaymentHandler) PostPayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBind(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	target, ok := parseTarget(c, req.QuarterID)
	if !ok {
		return
	}

	if req.VerificationCode != nil {
		h.verify(c, target, strings.TrimSpace(*req.VerificationCode))
		return
	}
	h.issue(c, target, req)
}

func (h *PaymentHandler) issue(c *gin.Context, target models.PaymentTarget, req PaymentRequest) {
	res, err := h.service.IssueVerification(c.Request.Context(), middleware.GetSessionID(c), services.IssueRequest{
		Target:        target,
		Phone:         req.PhoneNumber,
		Email:         req.Email,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondPaymentError(c, err, "Failed to issue verification code")
		return
	}

	c.JSON(http.StatusOK, IssueResponse{
		ShowVerification: true,
		ReferenceID:      res.ReferenceID,
		ExpiresAt:        res.ExpiresAt,
		MaskedPhone:      res.MaskedPhone,
		MaskedEmail:      res.MaskedEmail,
	})
}

func (h *PaymentHandler) verify(c *gin.Context, target models.PaymentTarget, code string) {
	// A malformed code can never match, so it does not count as an attempt
	if !verification.IsCode(code) {
		apierrors.FieldError(c, "verification_code", "Please enter the 6-digit verification code.",
			map[string]interface{}{"show_verification": true})
		return
	}

	success, err := h.service.VerifyAndSettle(c.Request.Context(), middleware.GetSessionID(c), services.VerifyRequest{
		Target: target,
		Code:   code,
	})
	if err != nil {
		respondPaymentError(c, err, "Failed to verify payment")
		return
	}

	c.Redirect(http.StatusSeeOther, fmt.Sprintf("%s?application_id=%d", SuccessPath, success.ApplicationID))
}

// GetSuccess handles GET /api/v1/payments/success endpoint.
// The confirmation can be read once per settled payment.
func (h *PaymentHandler) GetSuccess(c *gin.Context) {
	var req SuccessRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return
	}

	summary, err := h.service.ConsumePaymentSuccess(c.Request.Context(), middleware.GetSessionID(c), req.ApplicationID)
	if err != nil {
		if errors.Is(err, services.ErrPaymentSuccessNotFound) {
			apierrors.NotFound(c, "No payment confirmation found")
			return
		}
		apierrors.InternalServerError(c, "Failed to load payment confirmation", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Payment: summary})
}

// parseTarget reads the assessment id from the path and the optional quarter
// id from the query string, falling back to the body. It writes the error
// response itself and reports false on bad input.
func parseTarget(c *gin.Context, bodyQuarterID *int64) (models.PaymentTarget, bool) {
	raw := c.Param("assessmentId")
	assessmentID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || assessmentID <= 0 {
		apierrors.BadRequest(c, "Invalid assessment id", map[string]interface{}{"assessment_id": raw})
		return models.PaymentTarget{}, false
	}

	target := models.PaymentTarget{AssessmentID: assessmentID, QuarterID: bodyQuarterID}
	if q := c.Query("quarter_id"); q != "" {
		quarterID, err := strconv.ParseInt(q, 10, 64)
		if err != nil || quarterID <= 0 {
			apierrors.BadRequest(c, "Invalid quarter id", map[string]interface{}{"quarter_id": q})
			return models.PaymentTarget{}, false
		}
		target.QuarterID = &quarterID
	}
	return target, true
}

// respondPaymentError maps service errors to the error envelope.
// details.show_verification tells the client whether to keep the code
// entry open.
func respondPaymentError(c *gin.Context, err error, internalMessage string) {
	var (
		contactErr *verification.ContactError
		invalidErr *services.InvalidCodeError
		settleErr  *services.SettlementError
	)
	closed := map[string]interface{}{"show_verification": false}

	switch {
	case errors.As(err, &contactErr):
		apierrors.FieldError(c, contactErr.Field, contactErr.Message, closed)
	case errors.Is(err, services.ErrInvalidPaymentMethod):
		apierrors.FieldError(c, "payment_method", "Unsupported payment method", closed)
	case errors.Is(err, services.ErrAssessmentNotFound):
		apierrors.NotFound(c, "Assessment not found")
	case errors.Is(err, services.ErrQuarterNotFound):
		apierrors.NotFound(c, "Tax quarter not found")
	case errors.Is(err, services.ErrNothingPayable):
		apierrors.Respond(c, http.StatusConflict, apierrors.ErrNothingPayable,
			"No unpaid quarters found for this property", closed)
	case errors.Is(err, services.ErrNoActiveVerification):
		apierrors.Respond(c, http.StatusConflict, apierrors.ErrNoActiveVerification,
			"No active verification found. Please request a new code.", closed)
	case errors.Is(err, services.ErrCodeExpired):
		apierrors.Respond(c, http.StatusGone, apierrors.ErrVerificationExpired,
			"Verification code has expired. Please request a new code.", closed)
	case errors.Is(err, services.ErrTooManyAttempts):
		apierrors.Respond(c, http.StatusTooManyRequests, apierrors.ErrTooManyAttempts,
			"Too many failed attempts. Please request a new code.", closed)
	case errors.As(err, &invalidErr):
		apierrors.Respond(c, http.StatusBadRequest, apierrors.ErrInvalidCode,
			fmt.Sprintf("Invalid verification code. %d attempt(s) remaining.", invalidErr.Remaining),
			map[string]interface{}{
				"show_verification":  true,
				"remaining_attempts": invalidErr.Remaining,
			})
	case errors.As(err, &settleErr):
		apierrors.Respond(c, http.StatusConflict, apierrors.ErrPaymentFailed,
			fmt.Sprintf("Payment failed. No records were updated (affected rows: %d). Please request a new code.", settleErr.AffectedRows),
			map[string]interface{}{
				"show_verification": false,
				"affected_rows":     settleErr.AffectedRows,
			})
	case errors.Is(err, services.ErrNotificationFailed):
		apierrors.Respond(c, http.StatusBadGateway, apierrors.ErrNotificationFailed,
			"We could not send your verification code. Please try again.", closed)
	default:
		apierrors.InternalServerError(c, internalMessage, err)
	}
}

func mapPaymentContext(pc *services.PaymentContext) PaymentContextResponse {
	resp := PaymentContextResponse{
		Assessment: AssessmentData{
			ID:              pc.Assessment.ID,
			ApplicationID:   pc.Assessment.ApplicationID,
			TDN:             pc.Assessment.TDN,
			PropertyAddress: pc.Assessment.PropertyAddress,
			OwnerName:       pc.Assessment.OwnerName,
			AssessmentYear:  pc.Assessment.AssessmentYear,
			AnnualTax:       pc.Assessment.AnnualTax.StringFixed(2),
		},
		Mode:     pc.Target.Mode(),
		TotalDue: pc.TotalDue.StringFixed(2),
		Quarters: make([]QuarterData, 0, len(pc.Quarters)),
		Pending:  pc.Pending,
	}

	for i := range pc.Quarters {
		q := &pc.Quarters[i]
		resp.Quarters = append(resp.Quarters, QuarterData{
			ID:        q.ID,
			Quarter:   q.Quarter,
			Status:    string(q.Status),
			AmountDue: q.AmountDue.StringFixed(2),
			DueDate:   q.DueDate.Format("2006-01-02"),
			ReceiptNo: q.ReceiptNo,
			Payable:   q.IsPayable(),
		})
	}

	if pc.Verification != nil {
		resp.Verification = &VerificationData{
			ReferenceID: pc.Verification.ID,
			ExpiresAt:   pc.Verification.ExpiresAt,
			MaskedPhone: pc.Verification.MaskedPhone,
			MaskedEmail: pc.Verification.MaskedEmail,
		}
		resp.ShowVerification = pc.Pending.Active
	}

	return resp
}
