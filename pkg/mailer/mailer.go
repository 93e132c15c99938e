// Package mailer sends transactional mail through SendGrid. A disabled
// mailer drops messages silently so local environments need no API key.
package mailer

import (
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// Mailer delivers messages via the SendGrid v3 API.
type Mailer struct {
	enabled bool
	key     string
	from    *sgmail.Email
	logger  *zap.Logger
}

// New constructs a Mailer. When enabled is false Send becomes a no-op.
func New(enabled bool, key, fromName, fromAddress string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		enabled: enabled && key != "",
		key:     key,
		from:    sgmail.NewEmail(fromName, fromAddress),
		logger:  logger,
	}
}

// Enabled reports whether messages will actually be delivered.
func (m *Mailer) Enabled() bool {
	return m.enabled
}

// Send delivers one message synchronously.
func (m *Mailer) Send(msg Message) error {
	if !m.enabled {
		m.logger.Debug("mailer disabled, dropping message", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject))
		return nil
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Body))

	req := sendgrid.GetRequest(m.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send mail: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
