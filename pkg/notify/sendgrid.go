package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridNotifier delivers reminders by e-mail through the SendGrid v3 API.
type SendGridNotifier struct {
	key  string
	from *sgmail.Email
	host string
	call func(req rest.Request) (*rest.Response, error)
}

// NewSendGridNotifier constructs a SendGridNotifier.
func NewSendGridNotifier(key, fromName, fromEmail string) *SendGridNotifier {
	return &SendGridNotifier{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
		host: sendGridHost,
		call: sendgrid.API,
	}
}

// Channel implements Notifier.
func (n *SendGridNotifier) Channel() string { return ChannelSendGrid }

// Send posts msg to SendGrid. Recipients without e-mail are unreachable.
func (n *SendGridNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To.Email) == "" {
		return ErrNoContact
	}

	req := sendgrid.GetRequest(n.key, sendGridEndpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(msg))

	res, err := n.call(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (n *SendGridNotifier) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}
