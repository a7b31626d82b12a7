package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/pkg/config"
)

// Channel names accepted by NOTIFY_CHANNEL.
const (
	ChannelLog      = "log"
	ChannelSendGrid = "sendgrid"
)

// ErrNoContact reports a recipient the channel cannot reach.
var ErrNoContact = errors.New("recipient has no reachable contact")

// Recipient is the addressee of a reminder.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Message is a plain text notification.
type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Notifier delivers messages over one channel.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// New builds the notifier selected by cfg.Channel.
func New(cfg config.NotificationConfig, logger *zap.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", ChannelLog:
		return NewLogNotifier(logger), nil
	case ChannelSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("notify: SENDGRID_API_KEY is required for the sendgrid channel")
		}
		if cfg.FromEmail == "" {
			return nil, fmt.Errorf("notify: NOTIFY_FROM_EMAIL is required for the sendgrid channel")
		}
		return NewSendGridNotifier(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail), nil
	default:
		return nil, fmt.Errorf("notify: unknown channel %q", cfg.Channel)
	}
}

// LogNotifier writes reminders to the application log. It stands in for
// messaging channels that are not integrated yet.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Channel implements Notifier.
func (n *LogNotifier) Channel() string { return ChannelLog }

// Send logs msg. A recipient needs a phone or an e-mail address.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(msg.To.Phone) == "" && strings.TrimSpace(msg.To.Email) == "" {
		return ErrNoContact
	}
	n.logger.Info("notification sent",
		zap.String("to", msg.To.Name),
		zap.String("phone", msg.To.Phone),
		zap.String("email", msg.To.Email),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
