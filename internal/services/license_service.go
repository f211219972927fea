// internal/services/license_service.go
package services

import (
	"context"
	"fmt"
	"io"
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

// LicenseService runs the license request lifecycle and owns issued
// licenses.
type LicenseService struct {
	store    store.Store
	bus      *events.Bus
	storage  *StorageService
	verifier PaymentVerifier
	workflow config.WorkflowConfig
	now      func() time.Time
}

type SubmitLicenseRequest struct {
	FullName         string  `json:"full_name" validate:"required,notblank,max=255"`
	Email            string  `json:"email" validate:"required,email"`
	Phone            string  `json:"phone" validate:"max=50"`
	SchoolName       string  `json:"school_name" validate:"max=255"`
	BusinessName     string  `json:"business_name" validate:"max=255"`
	Province         string  `json:"province" validate:"max=100"`
	LicenseType      string  `json:"license_type" validate:"max=50"`
	HowHeard         string  `json:"how_heard" validate:"max=100"`
	PackageType      string  `json:"package_type" validate:"required,notblank,max=50"`
	DurationMonths   int     `json:"duration_months" validate:"min=0,max=120"`
	Amount           float64 `json:"amount" validate:"min=0"`
	AmountPaid       float64 `json:"amount_paid" validate:"min=0"`
	PaymentMethod    string  `json:"payment_method" validate:"required,notblank,max=50"`
	PaymentReference string  `json:"payment_reference" validate:"max=255"`
	PaymentProofURL  string  `json:"payment_proof_url" validate:"required,notblank"`
	PaymentProofPath string  `json:"payment_proof_path"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,notblank"`
}

// ApprovedRequest is everything an approval produced.
type ApprovedRequest struct {
	Request *models.LicenseRequest `json:"request"`
	Payment *models.Payment        `json:"payment"`
	License *models.License        `json:"license"`
}

type LicenseFilter struct {
	utils.PaginationParams
	Active *bool
	Email  string
}

func NewLicenseService(st store.Store, bus *events.Bus, storage *StorageService, verifier PaymentVerifier, workflow config.WorkflowConfig) *LicenseService {
	return &LicenseService{
		store:    st,
		bus:      bus,
		storage:  storage,
		verifier: verifier,
		workflow: workflow,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *LicenseService) SubmitRequest(ctx context.Context, req *SubmitLicenseRequest) (*models.LicenseRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	request := &models.LicenseRequest{
		FullName:         strings.TrimSpace(req.FullName),
		Email:            strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:            req.Phone,
		SchoolName:       req.SchoolName,
		BusinessName:     req.BusinessName,
		Province:         req.Province,
		LicenseType:      req.LicenseType,
		HowHeard:         req.HowHeard,
		PackageType:      strings.TrimSpace(req.PackageType),
		DurationMonths:   req.DurationMonths,
		Amount:           req.Amount,
		AmountPaid:       req.AmountPaid,
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		PaymentProofURL:  req.PaymentProofURL,
		PaymentProofPath: req.PaymentProofPath,
		Status:           models.RequestStatusPending,
	}
	request.CreatedAt = s.now()

	if err := s.store.Create(ctx, request); err != nil {
		return nil, internalError("failed to create license request", err)
	}

	logrus.WithFields(logrus.Fields{
		"request_id": request.ID,
		"package":    request.PackageType,
	}).Info("License request submitted")
	metrics.Transition("license_request", string(models.RequestStatusPending))

	return request, nil
}

// UploadPaymentProof stores the proof file before the request is submitted.
func (s *LicenseService) UploadPaymentProof(ctx context.Context, file io.Reader, filename string, size int64) (*UploadResult, error) {
	return s.storage.UploadPaymentProof(ctx, file, filename, size)
}

// PaymentProofURL returns a viewable URL for a request's proof.
func (s *LicenseService) PaymentProofURL(ctx context.Context, id uuid.UUID) (string, error) {
	request, err := s.GetRequest(ctx, id)
	if err != nil {
		return "", err
	}
	if request.PaymentProofPath == "" {
		return request.PaymentProofURL, nil
	}

	url, err := s.storage.PresignProof(request.PaymentProofPath, 15*time.Minute)
	if err != nil {
		if CodeOf(err) == CodeFailedPrecondition {
			return request.PaymentProofURL, nil
		}
		return "", err
	}
	return url, nil
}

// ApproveRequest issues the payment and license of a pending request in a
// single transaction. The license e-mail goes out through the payment
// trigger once the transaction has committed.
func (s *LicenseService) ApproveRequest(ctx context.Context, id uuid.UUID, approver string) (*ApprovedRequest, error) {
	var request models.LicenseRequest
	if err := s.store.Get(ctx, &request, id); err != nil {
		return nil, storeError("license request", err)
	}
	if request.Status != models.RequestStatusPending {
		return nil, newError(CodeFailedPrecondition, fmt.Sprintf("license request is already %s", request.Status))
	}

	if err := s.verifyPayment(ctx, &request); err != nil {
		return nil, err
	}

	now := s.now()
	result := &ApprovedRequest{}
	var pending models.Payment

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		payment := &models.Payment{
			FullName:          request.FullName,
			Email:             request.Email,
			Phone:             request.Phone,
			School:            request.SchoolName,
			BusinessName:      request.BusinessName,
			PackageType:       request.PackageType,
			DurationMonths:    request.DurationMonths,
			Amount:            request.Amount,
			PaymentMethod:     request.PaymentMethod,
			TransactionID:     request.PaymentReference,
			ProofOfPaymentURL: request.PaymentProofURL,
			Source:            models.PaymentSourceLicenseRequest,
			LicenseRequestID:  &request.ID,
			Status:            models.PaymentStatusPending,
			SubmittedAt:       request.CreatedAt,
		}
		payment.CreatedAt = now
		if err := tx.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		snapshot := *payment

		license, err := issueLicense(ctx, tx, s.workflow, payment, &request.ID, now)
		if err != nil {
			return err
		}

		if err := tx.Update(ctx, &models.Payment{}, payment.ID,
			store.Fields{"status": models.PaymentStatusPending},
			store.Fields{
				"status":      models.PaymentStatusApproved,
				"approved_at": now,
				"approved_by": approver,
				"license_id":  license.ID,
				"license_key": license.Key,
			}); err != nil {
			return fmt.Errorf("failed to approve payment: %w", err)
		}

		if err := tx.Update(ctx, &models.LicenseRequest{}, request.ID,
			store.Fields{"status": models.RequestStatusPending},
			store.Fields{
				"status":      models.RequestStatusApproved,
				"approved_at": now,
				"approved_by": approver,
				"license_key": license.Key,
				"license_id":  license.ID,
				"payment_id":  payment.ID,
			}); err != nil {
			return fmt.Errorf("failed to approve license request: %w", err)
		}

		payment.Status = models.PaymentStatusApproved
		payment.ApprovedAt = &now
		payment.ApprovedBy = approver
		payment.LicenseID = &license.ID
		payment.LicenseKey = license.Key

		approved := request
		approved.Status = models.RequestStatusApproved
		approved.ApprovedAt = &now
		approved.ApprovedBy = approver
		approved.LicenseKey = license.Key
		approved.LicenseID = &license.ID
		approved.PaymentID = &payment.ID

		pending = snapshot
		result.Payment = payment
		result.Request = &approved
		result.License = license
		return nil
	})
	if err != nil {
		// A concurrent approval wins the conditional updates or the unique
		// license_request_id index; report it the same way either way.
		var current models.LicenseRequest
		if getErr := s.store.Get(ctx, &current, id); getErr == nil && current.Status != models.RequestStatusPending {
			return nil, wrapError(CodeFailedPrecondition, fmt.Sprintf("license request is already %s", current.Status), err)
		}
		return nil, internalError("failed to approve license request", err)
	}

	// Committed: the trigger runs even if the caller has gone.
	ctx = context.WithoutCancel(ctx)

	logrus.WithFields(logrus.Fields{
		"request_id": request.ID,
		"payment_id": result.Payment.ID,
		"license_id": result.License.ID,
		"approver":   approver,
	}).Info("License request approved")
	metrics.Transition("license_request", string(models.RequestStatusApproved))
	metrics.Transition("payment", string(models.PaymentStatusApproved))

	s.bus.Publish(ctx, events.PaymentUpdated{Before: pending, After: *result.Payment})

	return result, nil
}

func (s *LicenseService) RejectRequest(ctx context.Context, id uuid.UUID, reason, rejecter string) (*models.LicenseRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(CodeInvalidArgument, "a rejection reason is required")
	}

	var request models.LicenseRequest
	if err := s.store.Get(ctx, &request, id); err != nil {
		return nil, storeError("license request", err)
	}
	if request.Status != models.RequestStatusPending {
		return nil, newError(CodeFailedPrecondition, fmt.Sprintf("license request is already %s", request.Status))
	}

	now := s.now()
	err := s.store.Update(ctx, &models.LicenseRequest{}, id,
		store.Fields{"status": models.RequestStatusPending},
		store.Fields{
			"status":           models.RequestStatusRejected,
			"rejected_at":      now,
			"rejected_by":      rejecter,
			"rejection_reason": reason,
		})
	if err != nil {
		if store.IsConditionFailed(err) {
			return nil, wrapError(CodeFailedPrecondition, "license request is no longer pending", err)
		}
		return nil, internalError("failed to reject license request", err)
	}

	request.Status = models.RequestStatusRejected
	request.RejectedAt = &now
	request.RejectedBy = rejecter
	request.RejectionReason = reason

	logrus.WithFields(logrus.Fields{
		"request_id": id,
		"rejecter":   rejecter,
	}).Info("License request rejected")
	metrics.Transition("license_request", string(models.RequestStatusRejected))

	return &request, nil
}

func (s *LicenseService) GetRequest(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	var request models.LicenseRequest
	if err := s.store.Get(ctx, &request, id); err != nil {
		return nil, storeError("license request", err)
	}
	return &request, nil
}

func (s *LicenseService) ListRequests(ctx context.Context, params utils.PaginationParams) ([]models.LicenseRequest, int64, error) {
	filters := store.Fields{}
	if params.Status != "" {
		filters["status"] = params.Status
	}

	total, err := s.store.Count(ctx, &models.LicenseRequest{}, filters)
	if err != nil {
		return nil, 0, internalError("failed to count license requests", err)
	}

	var requests []models.LicenseRequest
	if err := s.store.Find(ctx, &requests, params.ToQuery(filters, []string{"created_at", "full_name", "status"})); err != nil {
		return nil, 0, internalError("failed to list license requests", err)
	}
	return requests, total, nil
}

func (s *LicenseService) GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := s.store.Get(ctx, &license, id); err != nil {
		return nil, storeError("license", err)
	}
	return &license, nil
}

func (s *LicenseService) ListLicenses(ctx context.Context, filter LicenseFilter) ([]models.License, int64, error) {
	filters := store.Fields{}
	if filter.Active != nil {
		filters["is_active"] = *filter.Active
	}
	if filter.Email != "" {
		filters["user_email"] = strings.ToLower(filter.Email)
	}

	total, err := s.store.Count(ctx, &models.License{}, filters)
	if err != nil {
		return nil, 0, internalError("failed to count licenses", err)
	}

	var licenses []models.License
	query := filter.ToQuery(filters, []string{"created_at", "expires_at", "user_email"})
	if err := s.store.Find(ctx, &licenses, query); err != nil {
		return nil, 0, internalError("failed to list licenses", err)
	}
	return licenses, total, nil
}

func (s *LicenseService) DeactivateLicense(ctx context.Context, id uuid.UUID, actor string) (*models.License, error) {
	err := s.store.Update(ctx, &models.License{}, id,
		store.Fields{"is_active": true},
		store.Fields{
			"is_active":      false,
			"deactivated_at": s.now(),
			"deactivated_by": actor,
		})
	switch {
	case store.IsNotFound(err):
		return nil, wrapError(CodeNotFound, "license not found", err)
	case store.IsConditionFailed(err):
		return nil, wrapError(CodeFailedPrecondition, "license is already inactive", err)
	case err != nil:
		return nil, internalError("failed to deactivate license", err)
	}

	logrus.WithFields(logrus.Fields{"license_id": id, "actor": actor}).Info("License deactivated")
	metrics.Transition("license", "deactivated")
	return s.GetLicense(ctx, id)
}

func (s *LicenseService) verifyPayment(ctx context.Context, request *models.LicenseRequest) error {
	if s.verifier == nil || request.PaymentReference == "" ||
		!strings.EqualFold(request.PaymentMethod, models.PaymentMethodStripe) {
		return nil
	}

	if err := s.verifier.VerifyPayment(ctx, request.PaymentReference); err != nil {
		if CodeOf(err) == CodeFailedPrecondition {
			return err
		}
		return wrapError(CodeFailedPrecondition, "payment could not be verified", err)
	}
	return nil
}

// issueLicense creates the active license for an approved payment.
func issueLicense(ctx context.Context, tx store.Store, workflow config.WorkflowConfig, payment *models.Payment, requestID *uuid.UUID, now time.Time) (*models.License, error) {
	key, err := utils.GenerateLicenseKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate license key: %w", err)
	}

	duration := workflow.DurationOrDefault(payment.DurationMonths)
	paymentID := payment.ID

	license := &models.License{
		Key:              key,
		UserEmail:        payment.Email,
		UserName:         payment.FullName,
		Organization:     payment.Organization(),
		Type:             payment.PackageType,
		DurationMonths:   duration,
		ExpiresAt:        now.AddDate(0, duration, 0),
		IsActive:         true,
		MaxDevices:       workflow.MaxDevicesFor(payment.PackageType),
		PaymentID:        &paymentID,
		LicenseRequestID: requestID,
	}
	license.CreatedAt = now

	if err := tx.Create(ctx, license); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}
	return license, nil
}
