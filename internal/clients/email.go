package clients

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"gopkg.in/gomail.v2"
)

var _ Notifier = (*SMTPNotifier)(nil)

var statusEmailTemplate = template.Must(template.New("status").Parse(
	`<p>Your UniEats order <strong>{{.OrderID}}</strong> is now <strong>{{.NewStatus}}</strong>.</p>` +
		`{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}`,
))

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier emails status changes directly to the customer.
type SMTPNotifier struct {
	sender Sender
	from   string
	logger *logging.Logger
}

// NewSMTPNotifier creates a notifier that dials cfg for every message.
func NewSMTPNotifier(cfg config.SMTPConfig, logger *logging.Logger) *SMTPNotifier {
	return NewSMTPNotifierWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, logger)
}

func NewSMTPNotifierWithSender(sender Sender, from string, logger *logging.Logger) *SMTPNotifier {
	return &SMTPNotifier{sender: sender, from: from, logger: logger}
}

// SendNotification emails the customer. Orders without an address are skipped.
func (s *SMTPNotifier) SendNotification(ctx context.Context, n *Notification) error {
	if n.Email == "" {
		s.logger.Debug("No customer email, skipping notification", logging.Fields{"order_id": n.OrderID})
		return nil
	}

	m, err := s.compose(n)
	if err != nil {
		return err
	}

	if err := s.sender.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send email", logging.Fields{
			"order_id": n.OrderID,
			"error":    err.Error(),
		})
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("Email sent", logging.Fields{
		"order_id":   n.OrderID,
		"new_status": n.NewStatus,
	})
	return nil
}

func (s *SMTPNotifier) compose(n *Notification) (*gomail.Message, error) {
	body, err := renderStatusEmail(n)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", fmt.Sprintf("Order %s is %s", n.OrderID, n.NewStatus))
	m.SetBody("text/html", body)
	return m, nil
}

// renderStatusEmail builds the HTML body. Reasons arrive unescaped and the
// template escapes them.
func renderStatusEmail(n *Notification) (string, error) {
	var body bytes.Buffer
	if err := statusEmailTemplate.Execute(&body, n); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return body.String(), nil
}
