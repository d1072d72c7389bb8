package notify

import (
	"context"

	"github.com/lgu-eportal/rptpay/internal/logger"
	"github.com/lgu-eportal/rptpay/internal/verification"
)

// LogNotifier writes codes to the debug log. Development only: production
// loggers run at info level and drop these entries.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier that logs through log.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, d Delivery) error {
	n.log.Debug("Verification code issued", map[string]interface{}{
		"assessment_id": d.AssessmentID,
		"phone":         verification.MaskPhone(d.Phone),
		"email":         verification.MaskEmail(d.Email),
		"code":          d.Code,
		"expires_at":    d.ExpiresAt,
	})
	return nil
}
