package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// SendResult identifies a delivered message. PreviewURL is set by transports
// that expose a hosted preview of the captured message; the SMTP sender
// leaves it empty.
type SendResult struct {
	MessageID  string
	PreviewURL string
}

// Sender is the mail transport capability consumed by the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// SMTPSender delivers messages over SMTP.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	messageID := fmt.Sprintf("<%s@sendlater>", uuid.NewString())

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return SendResult{}, fmt.Errorf("smtp send error: %w", err)
	}

	return SendResult{MessageID: messageID}, nil
}

// SendWithRetry attempts the send up to attempts times with exponential
// backoff starting at initialInterval. The last transport error is returned
// once attempts are exhausted.
func SendWithRetry(
	ctx context.Context,
	sender Sender,
	msg Message,
	attempts int,
	initialInterval time.Duration,
) (SendResult, error) {

	if attempts < 1 {
		attempts = 1
	}

	var result SendResult

	operation := func() error {
		var err error
		result, err = sender.Send(ctx, msg)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
	if err != nil {
		return SendResult{}, err
	}

	return result, nil
}
