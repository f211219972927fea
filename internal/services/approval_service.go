// internal/services/approval_service.go
package services

import (
	"context"
	"fmt"
	"net/url"
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

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) status() models.ApprovalStatus {
	if d == DecisionApprove {
		return models.ApprovalStatusApproved
	}
	return models.ApprovalStatusRejected
}

// ApprovalService runs the generic approval workflow decided through signed
// e-mail links or from the dashboard.
type ApprovalService struct {
	store         store.Store
	bus           *events.Bus
	notifications *NotificationService
	workflow      config.WorkflowConfig
	publicURL     string
	now           func() time.Time
}

type CreateApprovalRequest struct {
	RequesterEmail string                 `json:"requester_email" validate:"required,email"`
	RequesterName  string                 `json:"requester_name" validate:"max=255"`
	ApproverEmail  string                 `json:"approver_email" validate:"required,email"`
	ApproverName   string                 `json:"approver_name" validate:"max=255"`
	Type           string                 `json:"type" validate:"required,notblank,max=100"`
	Details        map[string]interface{} `json:"details"`
}

type ManualDecisionRequest struct {
	Decision string `json:"decision" validate:"required,decision"`
	Reason   string `json:"reason" validate:"max=2000"`
}

func NewApprovalService(st store.Store, bus *events.Bus, notifications *NotificationService, cfg *config.Config) *ApprovalService {
	return &ApprovalService{
		store:         st,
		bus:           bus,
		notifications: notifications,
		workflow:      cfg.Workflow,
		publicURL:     strings.TrimRight(cfg.Frontend.PublicURL, "/"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a pending approval and e-mails the approver its decision
// links. A failed e-mail is recorded and does not fail the call.
func (s *ApprovalService) Create(ctx context.Context, requesterID string, req *CreateApprovalRequest) (*models.Approval, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}

	token, err := utils.GenerateApprovalToken()
	if err != nil {
		return nil, internalError("failed to generate approval token", err)
	}

	ttl := s.workflow.ApprovalTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	now := s.now()
	approval := &models.Approval{
		RequesterID:    requesterID,
		RequesterEmail: strings.ToLower(strings.TrimSpace(req.RequesterEmail)),
		RequesterName:  strings.TrimSpace(req.RequesterName),
		ApproverEmail:  strings.ToLower(strings.TrimSpace(req.ApproverEmail)),
		ApproverName:   strings.TrimSpace(req.ApproverName),
		Type:           strings.TrimSpace(req.Type),
		Status:         models.ApprovalStatusPending,
		Details:        models.JSONB(req.Details),
		TokenHash:      utils.HashString(token),
		ExpiresAt:      now.Add(ttl),
	}
	approval.CreatedAt = now

	if err := s.store.Create(ctx, approval); err != nil {
		return nil, internalError("failed to create approval", err)
	}

	logrus.WithFields(logrus.Fields{
		"approval_id": approval.ID,
		"type":        approval.Type,
		"approver":    approval.ApproverEmail,
	}).Info("Approval created")
	metrics.Transition("approval", string(models.ApprovalStatusPending))

	// Persisted; the links go out even if the caller has gone.
	ctx = context.WithoutCancel(ctx)

	approveURL, rejectURL := s.links(approval.ID, token)
	if err := s.notifications.SendApprovalRequest(ctx, approval, approveURL, rejectURL); err != nil {
		s.notifications.RecordFailure(ctx, models.EmailErrorApprovalRequest, approval.ApproverEmail, nil, &approval.ID, err)
		return approval, nil
	}

	sentAt := s.now()
	if err := s.store.Update(ctx, &models.Approval{}, approval.ID, nil, store.Fields{
		"email_sent":    true,
		"email_sent_at": sentAt,
	}); err != nil {
		logrus.WithError(err).WithField("approval_id", approval.ID).Error("Failed to mark approval email as sent")
		return approval, nil
	}
	approval.EmailSent = true
	approval.EmailSentAt = &sentAt

	return approval, nil
}

func (s *ApprovalService) links(id uuid.UUID, token string) (string, string) {
	query := url.Values{}
	query.Set("id", id.String())
	query.Set("token", token)
	encoded := query.Encode()

	return fmt.Sprintf("%s/v1/approvals/approve?%s", s.publicURL, encoded),
		fmt.Sprintf("%s/v1/approvals/reject?%s", s.publicURL, encoded)
}

// EvaluateApprovalLink decides whether a link may act on approval. Checks
// run in a fixed order: token, expiry, status.
func EvaluateApprovalLink(approval *models.Approval, token string, now time.Time) error {
	if !utils.TokenMatches(approval.TokenHash, token) {
		return newError(CodeUnauthorized, "invalid approval link")
	}
	if approval.IsExpired(now) {
		return newError(CodeExpired, "this approval link has expired")
	}
	if !approval.IsPending() {
		return newError(CodeAlreadyProcessed, fmt.Sprintf("this request was already %s", approval.Status))
	}
	return nil
}

// CheckLink loads the approval a link points to and validates the link
// without changing anything.
func (s *ApprovalService) CheckLink(ctx context.Context, rawID, token string) (*models.Approval, error) {
	if strings.TrimSpace(rawID) == "" || strings.TrimSpace(token) == "" {
		return nil, newError(CodeInvalidArgument, "the link is missing its id or token")
	}
	if !utils.IsWellFormedToken(token) {
		return nil, newError(CodeUnauthorized, "invalid approval link")
	}

	// Without a record the token cannot be checked, so an unknown id is
	// reported like a bad token and never reveals whether a record exists.
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, wrapError(CodeUnauthorized, "invalid approval link", err)
	}

	var approval models.Approval
	if err := s.store.Get(ctx, &approval, id); err != nil {
		if store.IsNotFound(err) {
			return nil, wrapError(CodeUnauthorized, "invalid approval link", err)
		}
		return nil, storeError("approval", err)
	}

	if err := EvaluateApprovalLink(&approval, token, s.now()); err != nil {
		return &approval, err
	}
	return &approval, nil
}

// DecideWithToken applies the approver's decision from an e-mail link.
func (s *ApprovalService) DecideWithToken(ctx context.Context, rawID, token string, decision Decision, reason string) (*models.Approval, error) {
	reason = strings.TrimSpace(reason)
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, newError(CodeInvalidArgument, "unknown decision")
	}

	approval, err := s.CheckLink(ctx, rawID, token)
	if err != nil {
		return approval, err
	}
	if decision == DecisionReject && reason == "" {
		return approval, newError(CodeInvalidArgument, "a rejection reason is required")
	}

	after, err := s.applyDecision(ctx, *approval, decision, approval.ApproverEmail, reason)
	if err != nil {
		if store.IsConditionFailed(err) {
			return s.alreadyProcessed(ctx, approval.ID, err)
		}
		return nil, internalError("failed to record decision", err)
	}

	return s.completeDecision(ctx, *approval, after, approval.ApproverEmail), nil
}

// ManualDecide applies a decision made by an authenticated administrator.
// The status update is retried; an earlier attempt that landed is treated
// as applied.
func (s *ApprovalService) ManualDecide(ctx context.Context, id uuid.UUID, req *ManualDecisionRequest, actor string) (*models.Approval, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationError(err)
	}
	decision := Decision(req.Decision)
	reason := strings.TrimSpace(req.Reason)
	if decision == DecisionReject && reason == "" {
		return nil, newError(CodeInvalidArgument, "a rejection reason is required")
	}

	var approval models.Approval
	if err := s.store.Get(ctx, &approval, id); err != nil {
		return nil, storeError("approval", err)
	}
	if approval.IsExpired(s.now()) {
		return &approval, newError(CodeExpired, "this approval has expired")
	}
	if !approval.IsPending() {
		return &approval, newError(CodeAlreadyProcessed, fmt.Sprintf("this request was already %s", approval.Status))
	}

	var after models.Approval
	err := utils.Retry(ctx, s.workflow.RetryAttempts, s.workflow.RetryDelay, func() error {
		var err error
		after, err = s.applyDecision(ctx, approval, decision, actor, reason)
		if store.IsConditionFailed(err) || store.IsNotFound(err) {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		// An attempt may have landed before the caller went away.
		var current models.Approval
		if getErr := s.store.Get(context.WithoutCancel(ctx), &current, id); getErr != nil {
			return nil, internalError("failed to record decision", err)
		}
		if !decidedBy(&current, decision, actor) {
			if store.IsConditionFailed(err) || !current.IsPending() {
				return &current, wrapError(CodeAlreadyProcessed, fmt.Sprintf("this request was already %s", current.Status), err)
			}
			return nil, internalError("failed to record decision", err)
		}
		logrus.WithField("approval_id", id).Warn("Decision was already applied by an earlier attempt")
		after = current
	}

	return s.completeDecision(ctx, approval, after, actor), nil
}

// HandleApprovalUpdated sends the requester's confirmation for decisions
// that were not made through this service. Subscribed to approvals.updated.
func (s *ApprovalService) HandleApprovalUpdated(ctx context.Context, event events.Event) error {
	change, ok := event.(events.ApprovalUpdated)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	if change.Before.Status != models.ApprovalStatusPending || change.After.Status == models.ApprovalStatusPending {
		return nil
	}

	err := s.store.Update(ctx, &models.Approval{}, change.After.ID,
		store.Fields{"status": change.After.Status, "notification_claimed_at": nil},
		store.Fields{"notification_claimed_at": s.now()})
	if err != nil {
		if store.IsConditionFailed(err) || store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to claim approval notification: %w", err)
	}

	s.sendDecision(context.WithoutCancel(ctx), change.After)
	return nil
}

func (s *ApprovalService) GetApproval(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	var approval models.Approval
	if err := s.store.Get(ctx, &approval, id); err != nil {
		return nil, storeError("approval", err)
	}
	return &approval, nil
}

func (s *ApprovalService) ListApprovals(ctx context.Context, params utils.PaginationParams, approvalType string) ([]models.Approval, int64, error) {
	filters := store.Fields{}
	if params.Status != "" {
		filters["status"] = params.Status
	}
	if approvalType != "" {
		filters["type"] = approvalType
	}

	total, err := s.store.Count(ctx, &models.Approval{}, filters)
	if err != nil {
		return nil, 0, internalError("failed to count approvals", err)
	}

	var approvals []models.Approval
	if err := s.store.Find(ctx, &approvals, params.ToQuery(filters, []string{"created_at", "expires_at", "type", "status"})); err != nil {
		return nil, 0, internalError("failed to list approvals", err)
	}
	return approvals, total, nil
}

// applyDecision moves a pending approval to its decided status and claims
// the confirmation gate in the same update. It returns the record as written.
func (s *ApprovalService) applyDecision(ctx context.Context, before models.Approval, decision Decision, actor, reason string) (models.Approval, error) {
	now := s.now()
	after := before
	after.Status = decision.status()
	after.NotificationClaimedAt = &now
	set := store.Fields{
		"status":                  after.Status,
		"notification_claimed_at": now,
	}
	if decision == DecisionApprove {
		after.ApprovedAt, after.ApprovedBy = &now, actor
		set["approved_at"] = now
		set["approved_by"] = actor
	} else {
		after.RejectedAt, after.RejectedBy, after.RejectionReason = &now, actor, reason
		set["rejected_at"] = now
		set["rejected_by"] = actor
		set["rejection_reason"] = reason
	}

	err := s.store.Update(ctx, &models.Approval{}, before.ID, store.Fields{"status": models.ApprovalStatusPending}, set)
	return after, err
}

// completeDecision runs after this caller's update won: it confirms to the
// requester and publishes the change. The decision is committed, so nothing
// here depends on the caller's context or can fail the call.
func (s *ApprovalService) completeDecision(ctx context.Context, before, after models.Approval, actor string) *models.Approval {
	ctx = context.WithoutCancel(ctx)

	logrus.WithFields(logrus.Fields{
		"approval_id": after.ID,
		"status":      after.Status,
		"actor":       actor,
	}).Info("Approval decided")
	metrics.Transition("approval", string(after.Status))

	confirmed := s.sendDecision(ctx, after)
	s.bus.Publish(ctx, events.ApprovalUpdated{Before: before, After: *confirmed})
	return confirmed
}

// sendDecision sends the confirmation for approval unless it already went
// out. The caller must hold the notification claim.
func (s *ApprovalService) sendDecision(ctx context.Context, approval models.Approval) *models.Approval {
	if approval.NotificationEmailSent {
		return &approval
	}

	if err := s.notifications.SendApprovalDecision(ctx, &approval); err != nil {
		s.notifications.RecordFailure(ctx, models.EmailErrorApprovalNotification, approval.RequesterEmail, nil, &approval.ID, err)
		return &approval
	}

	sentAt := s.now()
	if err := s.store.Update(ctx, &models.Approval{}, approval.ID, nil, store.Fields{
		"notification_email_sent":    true,
		"notification_email_sent_at": sentAt,
	}); err != nil {
		logrus.WithError(err).WithField("approval_id", approval.ID).Error("Failed to mark approval notification as sent")
		return &approval
	}
	approval.NotificationEmailSent = true
	approval.NotificationEmailSentAt = &sentAt

	return &approval
}

func (s *ApprovalService) alreadyProcessed(ctx context.Context, id uuid.UUID, cause error) (*models.Approval, error) {
	var current models.Approval
	if err := s.store.Get(ctx, &current, id); err != nil {
		return nil, internalError("failed to load approval", err)
	}
	return &current, wrapError(CodeAlreadyProcessed, fmt.Sprintf("this request was already %s", current.Status), cause)
}

func decidedBy(approval *models.Approval, decision Decision, actor string) bool {
	if approval.Status != decision.status() {
		return false
	}
	if decision == DecisionApprove {
		return approval.ApprovedBy == actor
	}
	return approval.RejectedBy == actor
}
