// internal/services/services.go
package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/events"
	"github.com/idlabstudio/idlab-backend/internal/mailer"
	"github.com/idlabstudio/idlab-backend/internal/store"
)

// Services wires the workflow services to one store, notifier and event bus.
type Services struct {
	Auth          *AuthService
	License       *LicenseService
	Payment       *PaymentService
	Approval      *ApprovalService
	Admin         *AdminService
	Notifications *NotificationService
	Storage       *StorageService
	Bus           *events.Bus
}

// New builds the services with the notifier selected by configuration.
func New(ctx context.Context, cfg *config.Config, st store.Store) (*Services, error) {
	notifier, err := NewNotifier(ctx, cfg.Email)
	if err != nil {
		return nil, err
	}

	storage, err := NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	var verifier PaymentVerifier
	if cfg.Payment.StripeSecretKey != "" {
		verifier = NewStripeVerifier(cfg.Payment.StripeSecretKey)
	}

	return NewWithDeps(cfg, st, notifier, storage, verifier), nil
}

// NewWithDeps builds the services around explicit collaborators.
func NewWithDeps(cfg *config.Config, st store.Store, notifier mailer.Notifier, storage *StorageService, verifier PaymentVerifier) *Services {
	bus := events.NewBus()
	notifications := NewNotificationService(st, notifier, NewReceiptRenderer(cfg.Brand), cfg)

	svcs := &Services{
		Auth:          NewAuthService(cfg),
		License:       NewLicenseService(st, bus, storage, verifier, cfg.Workflow),
		Payment:       NewPaymentService(st, bus, notifications, cfg.Workflow),
		Approval:      NewApprovalService(st, bus, notifications, cfg),
		Admin:         NewAdminService(st),
		Notifications: notifications,
		Storage:       storage,
		Bus:           bus,
	}

	bus.Subscribe(events.TopicPaymentUpdated, "license-email", svcs.Payment.HandlePaymentUpdated)
	bus.Subscribe(events.TopicApprovalUpdated, "approval-confirmation", svcs.Approval.HandleApprovalUpdated)

	return svcs
}

func NewNotifier(ctx context.Context, cfg config.EmailConfig) (mailer.Notifier, error) {
	sender := mailer.Sender{Name: cfg.FromName, Email: cfg.FromEmail, ReplyTo: cfg.ReplyTo}

	switch cfg.Provider {
	case "gmail":
		notifier, err := mailer.NewGmailNotifier(ctx, mailer.GmailConfig{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailSecret,
			RefreshToken: cfg.GmailRefresh,
			UserID:       cfg.GmailSenderKey,
		}, sender)
		if err != nil {
			return nil, fmt.Errorf("failed to create gmail notifier: %w", err)
		}
		return notifier, nil
	case "log":
		return mailer.LogNotifier{}, nil
	default:
		if cfg.SMTPUsername == "" {
			logrus.Warn("SMTP credentials not configured, emails will only be logged")
			return mailer.LogNotifier{}, nil
		}
		return mailer.NewSMTPNotifier(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, sender), nil
	}
}
