// internal/services/payment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/events"
	"github.com/idlabstudio/idlab-backend/internal/metrics"
	"github.com/idlabstudio/idlab-backend/internal/models"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

// PaymentService owns payments and the license e-mail that follows their
// approval.
type PaymentService struct {
	store         store.Store
	bus           *events.Bus
	notifications *NotificationService
	workflow      config.WorkflowConfig
	now           func() time.Time
}

type CreatePaymentRequest struct {
	FullName          string  `json:"full_name" validate:"required,notblank,max=255"`
	Email             string  `json:"email" validate:"required,email"`
	Phone             string  `json:"phone" validate:"max=50"`
	School            string  `json:"school" validate:"max=255"`
	BusinessName      string  `json:"business_name" validate:"max=255"`
	PackageType       string  `json:"package_type" validate:"required,notblank,max=50"`
	DurationMonths    int     `json:"duration_months" validate:"min=0,max=120"`
	Amount            float64 `json:"amount" validate:"min=0"`
	PaymentMethod     string  `json:"payment_method" validate:"required,notblank,max=50"`
	TransactionID     string  `json:"transaction_id" validate:"max=255"`
	ProofOfPaymentURL string  `json:"proof_of_payment_url"`
}

// ReconcileResult summarizes a reconciliation pass.
type ReconcileResult struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type notifyOutcome int

const (
	notifySkipped notifyOutcome = iota
	notifySent
	notifyFailed
)

var errLicenseMissing = errors.New("no license is linked to this payment")

func NewPaymentService(st store.Store, bus *events.Bus, notifications *NotificationService, workflow config.WorkflowConfig) *PaymentService {
	return &PaymentService{
		store:         st,
		bus:           bus,
		notifications: notifications,
		workflow:      workflow,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*models.Payment, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	payment := &models.Payment{
		FullName:          strings.TrimSpace(req.FullName),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:             req.Phone,
		School:            req.School,
		BusinessName:      req.BusinessName,
		PackageType:       strings.TrimSpace(req.PackageType),
		DurationMonths:    req.DurationMonths,
		Amount:            req.Amount,
		PaymentMethod:     strings.TrimSpace(req.PaymentMethod),
		TransactionID:     strings.TrimSpace(req.TransactionID),
		ProofOfPaymentURL: req.ProofOfPaymentURL,
		Source:            models.PaymentSourceDirect,
		Status:            models.PaymentStatusPending,
		SubmittedAt:       now,
	}
	payment.CreatedAt = now

	if err := s.store.Create(ctx, payment); err != nil {
		return nil, internalError("failed to create payment", err)
	}

	metrics.Transition("payment", string(models.PaymentStatusPending))
	return payment, nil
}

// ApprovePayment approves a directly recorded payment and issues its
// license.
func (s *PaymentService) ApprovePayment(ctx context.Context, id uuid.UUID, approver string) (*models.Payment, *models.License, error) {
	var before models.Payment
	if err := s.store.Get(ctx, &before, id); err != nil {
		return nil, nil, storeError("payment", err)
	}
	if before.Status != models.PaymentStatusPending {
		return nil, nil, newError(CodeFailedPrecondition, fmt.Sprintf("payment is already %s", before.Status))
	}

	now := s.now()
	var license *models.License

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		issued, err := issueLicense(ctx, tx, s.workflow, &before, before.LicenseRequestID, now)
		if err != nil {
			return err
		}
		license = issued

		return tx.Update(ctx, &models.Payment{}, id,
			store.Fields{"status": models.PaymentStatusPending},
			store.Fields{
				"status":      models.PaymentStatusApproved,
				"approved_at": now,
				"approved_by": approver,
				"license_id":  issued.ID,
				"license_key": issued.Key,
			})
	})
	if err != nil {
		if store.IsConditionFailed(err) {
			return nil, nil, wrapError(CodeFailedPrecondition, "payment is no longer pending", err)
		}
		return nil, nil, internalError("failed to approve payment", err)
	}

	after := before
	after.Status = models.PaymentStatusApproved
	after.ApprovedAt = &now
	after.ApprovedBy = approver
	after.LicenseID = &license.ID
	after.LicenseKey = license.Key

	// Committed: the trigger runs even if the caller has gone.
	ctx = context.WithoutCancel(ctx)

	logrus.WithFields(logrus.Fields{
		"payment_id": id,
		"license_id": license.ID,
		"approver":   approver,
	}).Info("Payment approved")
	metrics.Transition("payment", string(models.PaymentStatusApproved))

	s.bus.Publish(ctx, events.PaymentUpdated{Before: before, After: after})
	return &after, license, nil
}

func (s *PaymentService) RejectPayment(ctx context.Context, id uuid.UUID, reason, rejecter string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(CodeInvalidArgument, "a rejection reason is required")
	}

	var before models.Payment
	if err := s.store.Get(ctx, &before, id); err != nil {
		return nil, storeError("payment", err)
	}
	if before.Status != models.PaymentStatusPending {
		return nil, newError(CodeFailedPrecondition, fmt.Sprintf("payment is already %s", before.Status))
	}

	now := s.now()
	err := s.store.Update(ctx, &models.Payment{}, id,
		store.Fields{"status": models.PaymentStatusPending},
		store.Fields{
			"status":           models.PaymentStatusRejected,
			"rejected_at":      now,
			"rejected_by":      rejecter,
			"rejection_reason": reason,
		})
	if err != nil {
		if store.IsConditionFailed(err) {
			return nil, wrapError(CodeFailedPrecondition, "payment is no longer pending", err)
		}
		return nil, internalError("failed to reject payment", err)
	}

	after := before
	after.Status = models.PaymentStatusRejected
	after.RejectedAt = &now
	after.RejectedBy = rejecter
	after.RejectionReason = reason
	ctx = context.WithoutCancel(ctx)

	logrus.WithFields(logrus.Fields{"payment_id": id, "rejecter": rejecter}).Info("Payment rejected")
	metrics.Transition("payment", string(models.PaymentStatusRejected))

	s.bus.Publish(ctx, events.PaymentUpdated{Before: before, After: after})
	return &after, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.store.Get(ctx, &payment, id); err != nil {
		return nil, storeError("payment", err)
	}
	return &payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, params utils.PaginationParams) ([]models.Payment, int64, error) {
	filters := store.Fields{}
	if params.Status != "" {
		filters["status"] = params.Status
	}

	total, err := s.store.Count(ctx, &models.Payment{}, filters)
	if err != nil {
		return nil, 0, internalError("failed to count payments", err)
	}

	var payments []models.Payment
	if err := s.store.Find(ctx, &payments, params.ToQuery(filters, []string{"created_at", "amount", "full_name", "status"})); err != nil {
		return nil, 0, internalError("failed to list payments", err)
	}
	return payments, total, nil
}

// HandlePaymentUpdated sends the license e-mail when a payment becomes
// approved. Subscribed to payments.updated.
func (s *PaymentService) HandlePaymentUpdated(ctx context.Context, event events.Event) error {
	change, ok := event.(events.PaymentUpdated)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	if change.Before.Status == models.PaymentStatusApproved || change.After.Status != models.PaymentStatusApproved {
		return nil
	}

	_, err := s.notifyLicense(ctx, change.After.ID)
	return err
}

// ReconcileNotifications runs the approval trigger for approved payments
// that never had a license e-mail attempt.
func (s *PaymentService) ReconcileNotifications(ctx context.Context) (*ReconcileResult, error) {
	var payments []models.Payment
	err := s.store.Find(ctx, &payments, store.Query{
		Filters: store.Fields{
			"status":             models.PaymentStatusApproved,
			"email_attempted_at": nil,
		},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, internalError("failed to list unnotified payments", err)
	}

	result := &ReconcileResult{Scanned: len(payments)}
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := s.notifyLicense(ctx, payment.ID)
		if err != nil {
			return result, internalError("failed to reconcile payment "+payment.ID.String(), err)
		}
		switch outcome {
		case notifySent:
			result.Sent++
		case notifyFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	logrus.WithFields(logrus.Fields{
		"scanned": result.Scanned,
		"sent":    result.Sent,
		"failed":  result.Failed,
	}).Info("Payment notifications reconciled")
	return result, nil
}

// notifyLicense claims the payment's e-mail gate and sends the license
// e-mail at most once. Delivery failures are recorded, not returned.
func (s *PaymentService) notifyLicense(ctx context.Context, paymentID uuid.UUID) (notifyOutcome, error) {
	now := s.now()
	err := s.store.Update(ctx, &models.Payment{}, paymentID,
		store.Fields{"status": models.PaymentStatusApproved, "email_attempted_at": nil},
		store.Fields{"email_attempted_at": now, "email_last_attempt_at": now})
	if err != nil {
		if store.IsConditionFailed(err) || store.IsNotFound(err) {
			return notifySkipped, nil
		}
		return notifySkipped, fmt.Errorf("failed to claim license email: %w", err)
	}

	// The gate is claimed and nothing else will send this e-mail, so the
	// attempt runs to completion and every failure lands in email_errors.
	ctx = context.WithoutCancel(ctx)

	var payment models.Payment
	if err := s.store.Get(ctx, &payment, paymentID); err != nil {
		s.notifications.RecordFailure(ctx, models.EmailErrorLicenseEmail, "", &paymentID, nil, err)
		return notifyFailed, fmt.Errorf("failed to load payment: %w", err)
	}

	var license models.License
	if err := s.store.First(ctx, &license, store.Fields{"payment_id": paymentID}); err != nil {
		if !store.IsNotFound(err) {
			s.notifications.RecordFailure(ctx, models.EmailErrorLicenseEmail, payment.Email, &payment.ID, nil, err)
			return notifyFailed, fmt.Errorf("failed to load license: %w", err)
		}
		s.notifications.RecordFailure(ctx, models.EmailErrorLicenseEmail, payment.Email, &payment.ID, nil, errLicenseMissing)
		return notifyFailed, nil
	}

	if err := s.notifications.SendLicenseEmail(ctx, &payment, &license, false); err != nil {
		s.notifications.RecordFailure(ctx, models.EmailErrorLicenseEmail, payment.Email, &payment.ID, nil, err)
		return notifyFailed, nil
	}

	if err := s.store.Update(ctx, &models.Payment{}, paymentID, nil, store.Fields{
		"email_sent":    true,
		"email_sent_at": s.now(),
	}); err != nil {
		logrus.WithError(err).WithField("payment_id", paymentID).Error("Failed to mark license email as sent")
	}

	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"license_id": license.ID,
	}).Info("License email sent")
	return notifySent, nil
}

// ResendNotification sends the license e-mail again on an administrator's
// request.
func (s *PaymentService) ResendNotification(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.store.Get(ctx, &payment, id); err != nil {
		return nil, storeError("payment", err)
	}
	if payment.Status != models.PaymentStatusApproved {
		return nil, newError(CodeFailedPrecondition, "only approved payments have a license to resend")
	}

	var license models.License
	if err := s.store.First(ctx, &license, store.Fields{"payment_id": id}); err != nil {
		return nil, storeError("license", err)
	}

	if err := s.notifications.SendLicenseEmail(ctx, &payment, &license, true); err != nil {
		s.notifications.RecordFailure(ctx, models.EmailErrorLicenseResend, payment.Email, &payment.ID, nil, err)
		return nil, internalError("failed to resend license email", err)
	}

	now := s.now()
	if err := s.store.Update(context.WithoutCancel(ctx), &models.Payment{}, id, nil, store.Fields{
		"email_sent":            true,
		"email_sent_at":         now,
		"email_last_attempt_at": now,
	}); err != nil {
		return nil, internalError("failed to record resend", err)
	}

	logrus.WithFields(logrus.Fields{"payment_id": id, "license_id": license.ID}).Info("License email resent")
	return s.GetPayment(ctx, id)
}
