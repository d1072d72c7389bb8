// Package notify delivers one-time verification codes to property owners.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/logger"
)

// ErrNoChannels is returned when no delivery channel is configured.
var ErrNoChannels = errors.New("no notification channels configured")

// Delivery is one verification code addressed to a payer.
type Delivery struct {
	ExpiresAt    time.Time
	Code         string
	Phone        string
	Email        string
	TDN          string
	AssessmentID int64
	ValidFor     time.Duration
}

// Notifier sends a verification code to the payer.
type Notifier interface {
	SendVerificationCode(ctx context.Context, d Delivery) error
}

// Message renders the text sent over every channel.
func Message(d Delivery) string {
	minutes := int(math.Ceil(d.ValidFor.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	msg := fmt.Sprintf("Your e-Portal RPT payment verification code is %s. It expires in %d minutes.", d.Code, minutes)
	if d.TDN != "" {
		msg += fmt.Sprintf(" TDN: %s.", d.TDN)
	}
	return msg + " Do not share this code with anyone."
}

// namedNotifier pairs a channel name with its notifier for logging.
type namedNotifier struct {
	name string
	n    Notifier
}

// MultiNotifier fans a delivery out to every channel. The delivery succeeds
// when at least one channel accepts it.
type MultiNotifier struct {
	channels []namedNotifier
	log      *logger.Logger
}

// NewMultiNotifier creates an empty MultiNotifier. Channels are added with Add.
func NewMultiNotifier(log *logger.Logger) *MultiNotifier {
	return &MultiNotifier{log: log}
}

// Add registers a channel under name.
func (m *MultiNotifier) Add(name string, n Notifier) *MultiNotifier {
	m.channels = append(m.channels, namedNotifier{name: name, n: n})
	return m
}

// Len returns the number of registered channels.
func (m *MultiNotifier) Len() int {
	return len(m.channels)
}

func (m *MultiNotifier) SendVerificationCode(ctx context.Context, d Delivery) error {
	if len(m.channels) == 0 {
		return ErrNoChannels
	}

	var errs []error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.n.SendVerificationCode(ctx, d); err != nil {
			m.log.Warn("Verification code delivery failed", map[string]interface{}{
				"channel":       ch.name,
				"assessment_id": d.AssessmentID,
				"error":         err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("all notification channels failed: %w", errors.Join(errs...))
	}
	return nil
}

// New builds the notifier for the configured channels.
func New(ctx context.Context, cfg config.NotifyConfig, log *logger.Logger) (*MultiNotifier, error) {
	multi := NewMultiNotifier(log)

	for _, name := range cfg.Channels {
		switch name {
		case config.ChannelLog:
			multi.Add(name, NewLogNotifier(log))
		case config.ChannelSMS:
			sns, err := NewSNSNotifier(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to configure sms channel: %w", err)
			}
			multi.Add(name, sns)
		case config.ChannelEmail:
			multi.Add(name, NewSMTPNotifier(cfg))
		default:
			return nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}

	if multi.Len() == 0 {
		return nil, ErrNoChannels
	}
	return multi, nil
}
