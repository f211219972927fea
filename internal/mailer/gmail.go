// internal/mailer/gmail.go
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// UserID is the mailbox to send as, "me" for the authorized account.
	UserID string
}

// GmailNotifier sends through the Gmail API with an offline refresh token.
type GmailNotifier struct {
	service *gmail.Service
	userID  string
	sender  Sender
	now     func() time.Time
}

func NewGmailNotifier(ctx context.Context, cfg GmailConfig, sender Sender) (*GmailNotifier, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	client := oauthConfig.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}

	return &GmailNotifier{service: service, userID: userID, sender: sender, now: time.Now}, nil
}

func (n *GmailNotifier) Send(ctx context.Context, msg Message) error {
	raw, err := Compose(n.sender, msg, n.now())
	if err != nil {
		return err
	}

	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := n.service.Users.Messages.Send(n.userID, message).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send failed: %w", err)
	}
	return nil
}
