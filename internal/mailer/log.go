// internal/mailer/log.go
package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier only logs messages. It is used when no mail transport is
// configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		names = append(names, att.Filename)
	}

	logrus.WithFields(logrus.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": names,
	}).Info("Email would be sent")
	return nil
}
