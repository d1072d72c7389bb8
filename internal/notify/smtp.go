package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/lgu-eportal/rptpay/internal/config"
)

const emailSubject = "RPT payment verification code"

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends codes by email.
type SMTPNotifier struct {
	host     string
	port     string
	from     string
	username string
	password string
	send     sendMailFunc
}

// NewSMTPNotifier creates an email notifier from the SMTP settings.
func NewSMTPNotifier(cfg config.NotifyConfig) *SMTPNotifier {
	return &SMTPNotifier{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

func (n *SMTPNotifier) SendVerificationCode(_ context.Context, d Delivery) error {
	if d.Email == "" {
		return fmt.Errorf("email delivery requires an address")
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		n.from, d.Email, emailSubject, Message(d),
	)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := n.send(net.JoinHostPort(n.host, n.port), auth, n.from, []string{d.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
