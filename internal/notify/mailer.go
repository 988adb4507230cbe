package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"fives.org/internal/obs"
)

// LogMailer stands in for an email gateway by writing each message to the
// log.
type LogMailer struct {
	log logrus.FieldLogger
}

// NewLogMailer returns a mailer writing to log.
func NewLogMailer(log logrus.FieldLogger) *LogMailer {
	return &LogMailer{log: obs.OrDefault(log).WithField("component", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"to":      recipient,
		"subject": subject,
		"body":    body,
	}).Info("email sent")
	return nil
}
