// internal/services/approval_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/idlabstudio/idlab-backend/internal/events"
	"github.com/idlabstudio/idlab-backend/internal/models"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type ApprovalWorkflowTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.MemoryStore
	svcs     *Services
	notifier *recordingNotifier
	now      time.Time
}

func (suite *ApprovalWorkflowTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = store.NewMemoryStore()
	suite.svcs, suite.notifier = newTestServices(suite.T(), suite.store, nil)
	suite.now = time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)
	suite.svcs.Approval.now = fixedClock(suite.now)
}

// create makes a budget increase approval and returns it with the token
// from the approver's e-mail.
func (suite *ApprovalWorkflowTestSuite) create() (*models.Approval, string) {
	approval, err := suite.svcs.Approval.Create(suite.ctx, "user-42", &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		RequesterName:  "Mercy Tembo",
		ApproverEmail:  "finance@idlab.studio",
		ApproverName:   "Finance Lead",
		Type:           "budget_increase",
		Details: map[string]interface{}{
			"amount":     250000,
			"department": "Marketing",
			"reason":     "Trade fair stand",
		},
	})
	suite.Require().NoError(err)

	sent := suite.notifier.MessagesTo("finance@idlab.studio")
	suite.Require().NotEmpty(sent)
	return approval, linkToken(suite.T(), sent[len(sent)-1])
}

func (suite *ApprovalWorkflowTestSuite) stored(id uuid.UUID) models.Approval {
	var approval models.Approval
	suite.Require().NoError(suite.store.Get(suite.ctx, &approval, id))
	return approval
}

func (suite *ApprovalWorkflowTestSuite) TestCreateStoresHashAndEmailsLinks() {
	approval, token := suite.create()

	assert.Equal(suite.T(), models.ApprovalStatusPending, approval.Status)
	assert.True(suite.T(), approval.ExpiresAt.Equal(suite.now.Add(7*24*time.Hour)))
	assert.True(suite.T(), approval.EmailSent)

	stored := suite.stored(approval.ID)
	assert.Equal(suite.T(), utils.HashString(token), stored.TokenHash)
	assert.NotEqual(suite.T(), token, stored.TokenHash)
	assert.True(suite.T(), stored.EmailSent)

	msg := suite.notifier.MessagesTo("finance@idlab.studio")[0]
	assert.Equal(suite.T(), "Approval needed: Budget Increase", msg.Subject)
	assert.Contains(suite.T(), msg.HTML, "https://api.idlab.test/v1/approvals/approve?id="+approval.ID.String())
	assert.Contains(suite.T(), msg.HTML, "https://api.idlab.test/v1/approvals/reject?id="+approval.ID.String())
	assert.Contains(suite.T(), msg.HTML, "Department")
	assert.Contains(suite.T(), msg.HTML, "Marketing")
}

func (suite *ApprovalWorkflowTestSuite) TestCreateValidatesInput() {
	_, err := suite.svcs.Approval.Create(suite.ctx, "user-42", &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		Type:           "budget_increase",
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)

	_, err = suite.svcs.Approval.Create(suite.ctx, "user-42", &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		ApproverEmail:  "finance@idlab.studio",
		Type:           "  ",
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)

	total, err := suite.store.Count(suite.ctx, &models.Approval{}, nil)
	suite.Require().NoError(err)
	assert.Zero(suite.T(), total)
}

func (suite *ApprovalWorkflowTestSuite) TestCreateSurvivesEmailFailure() {
	suite.notifier.FailWith(errors.New("smtp: 421 service not available"))

	approval, err := suite.svcs.Approval.Create(suite.ctx, "user-42", &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		ApproverEmail:  "finance@idlab.studio",
		Type:           "leave_request",
	})
	suite.Require().NoError(err)
	assert.False(suite.T(), approval.EmailSent)
	assert.Equal(suite.T(), models.ApprovalStatusPending, suite.stored(approval.ID).Status)

	total, err := suite.store.Count(suite.ctx, &models.EmailErrorLog{}, store.Fields{
		"type":        models.EmailErrorApprovalRequest,
		"approval_id": approval.ID,
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), total)
}

func (suite *ApprovalWorkflowTestSuite) TestCheckLinkRejectsBadInput() {
	approval, token := suite.create()

	_, err := suite.svcs.Approval.CheckLink(suite.ctx, "", token)
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)

	_, err = suite.svcs.Approval.CheckLink(suite.ctx, approval.ID.String(), "not-a-token")
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)

	// An unknown id looks the same as a forged token.
	_, err = suite.svcs.Approval.CheckLink(suite.ctx, uuid.NewString(), token)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)
	assert.NotErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.svcs.Approval.CheckLink(suite.ctx, "definitely-not-a-uuid", token)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)

	other, err := utils.GenerateApprovalToken()
	suite.Require().NoError(err)
	_, err = suite.svcs.Approval.CheckLink(suite.ctx, approval.ID.String(), other)
	assert.ErrorIs(suite.T(), err, ErrUnauthorized)

	checked, err := suite.svcs.Approval.CheckLink(suite.ctx, approval.ID.String(), token)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), approval.ID, checked.ID)
}

func (suite *ApprovalWorkflowTestSuite) TestApproveThroughLink() {
	approval, token := suite.create()

	decided, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionApprove, "")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.ApprovalStatusApproved, decided.Status)
	assert.Equal(suite.T(), "finance@idlab.studio", decided.ApprovedBy)
	assert.True(suite.T(), decided.NotificationEmailSent)

	stored := suite.stored(approval.ID)
	assert.NotNil(suite.T(), stored.ApprovedAt)
	assert.NotNil(suite.T(), stored.NotificationClaimedAt)
	assert.NotNil(suite.T(), stored.NotificationEmailSentAt)

	confirmations := suite.notifier.MessagesTo("mercy@idlab.studio")
	suite.Require().Len(confirmations, 1)
	assert.Equal(suite.T(), "Your Budget Increase request was approved", confirmations[0].Subject)

	// A second click is informational and sends nothing.
	_, err = suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionApprove, "")
	assert.ErrorIs(suite.T(), err, ErrAlreadyProcessed)
	_, err = suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionReject, "changed my mind")
	assert.ErrorIs(suite.T(), err, ErrAlreadyProcessed)
	assert.Len(suite.T(), suite.notifier.MessagesTo("mercy@idlab.studio"), 1)
}

func (suite *ApprovalWorkflowTestSuite) TestRejectThroughLinkNeedsReason() {
	approval, token := suite.create()

	_, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionReject, "  ")
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)
	assert.Equal(suite.T(), models.ApprovalStatusPending, suite.stored(approval.ID).Status)

	decided, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionReject, "Budget is frozen until Q3")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.ApprovalStatusRejected, decided.Status)
	assert.Equal(suite.T(), "Budget is frozen until Q3", decided.RejectionReason)
	assert.Equal(suite.T(), "finance@idlab.studio", decided.RejectedBy)

	confirmations := suite.notifier.MessagesTo("mercy@idlab.studio")
	suite.Require().Len(confirmations, 1)
	assert.Contains(suite.T(), confirmations[0].HTML, "Budget is frozen until Q3")
	assert.Equal(suite.T(), "Your Budget Increase request was rejected", confirmations[0].Subject)
}

func (suite *ApprovalWorkflowTestSuite) TestExpiredLink() {
	approval, token := suite.create()

	suite.svcs.Approval.now = fixedClock(suite.now.Add(7*24*time.Hour + time.Second))
	_, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionApprove, "")
	assert.ErrorIs(suite.T(), err, ErrExpired)
	assert.Equal(suite.T(), models.ApprovalStatusPending, suite.stored(approval.ID).Status)
	assert.Empty(suite.T(), suite.notifier.MessagesTo("mercy@idlab.studio"))
}

func (suite *ApprovalWorkflowTestSuite) TestConcurrentClicksDecideOnce() {
	approval, token := suite.create()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var applied, processed int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionApprove, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ErrAlreadyProcessed):
				processed++
			}
		}()
	}
	wg.Wait()

	assert.Equal(suite.T(), 1, applied)
	assert.Equal(suite.T(), 9, processed)
	assert.Len(suite.T(), suite.notifier.MessagesTo("mercy@idlab.studio"), 1)
}

func (suite *ApprovalWorkflowTestSuite) TestManualDecide() {
	approval, _ := suite.create()

	_, err := suite.svcs.Approval.ManualDecide(suite.ctx, approval.ID, &ManualDecisionRequest{Decision: "reject"}, "admin@idlab.studio")
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)

	_, err = suite.svcs.Approval.ManualDecide(suite.ctx, approval.ID, &ManualDecisionRequest{Decision: "maybe"}, "admin@idlab.studio")
	assert.ErrorIs(suite.T(), err, ErrInvalidArgument)

	_, err = suite.svcs.Approval.ManualDecide(suite.ctx, uuid.New(), &ManualDecisionRequest{Decision: "approve"}, "admin@idlab.studio")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	decided, err := suite.svcs.Approval.ManualDecide(suite.ctx, approval.ID, &ManualDecisionRequest{Decision: "approve"}, "admin@idlab.studio")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.ApprovalStatusApproved, decided.Status)
	assert.Equal(suite.T(), "admin@idlab.studio", decided.ApprovedBy)
	assert.Len(suite.T(), suite.notifier.MessagesTo("mercy@idlab.studio"), 1)

	_, err = suite.svcs.Approval.ManualDecide(suite.ctx, approval.ID, &ManualDecisionRequest{Decision: "approve"}, "admin@idlab.studio")
	assert.ErrorIs(suite.T(), err, ErrAlreadyProcessed)
	assert.Len(suite.T(), suite.notifier.MessagesTo("mercy@idlab.studio"), 1)
}

func (suite *ApprovalWorkflowTestSuite) TestWatcherConfirmsExternalDecision() {
	approval, _ := suite.create()
	before := suite.stored(approval.ID)

	// Decided outside the service, without claiming the confirmation.
	suite.Require().NoError(suite.store.Update(suite.ctx, &models.Approval{}, approval.ID,
		store.Fields{"status": models.ApprovalStatusPending},
		store.Fields{"status": models.ApprovalStatusApproved, "approved_by": "ops@idlab.studio"}))
	after := suite.stored(approval.ID)

	suite.svcs.Bus.Publish(suite.ctx, events.ApprovalUpdated{Before: before, After: after})
	suite.svcs.Bus.Publish(suite.ctx, events.ApprovalUpdated{Before: before, After: after})

	confirmations := suite.notifier.MessagesTo("mercy@idlab.studio")
	suite.Require().Len(confirmations, 1)
	assert.Contains(suite.T(), confirmations[0].HTML, "ops@idlab.studio")
	assert.True(suite.T(), suite.stored(approval.ID).NotificationEmailSent)
}

func (suite *ApprovalWorkflowTestSuite) TestConfirmationFailureIsRecorded() {
	approval, token := suite.create()
	suite.notifier.FailWith(errors.New("smtp: mailbox unavailable"))

	decided, err := suite.svcs.Approval.DecideWithToken(suite.ctx, approval.ID.String(), token, DecisionApprove, "")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.ApprovalStatusApproved, decided.Status)
	assert.False(suite.T(), decided.NotificationEmailSent)

	total, err := suite.store.Count(suite.ctx, &models.EmailErrorLog{}, store.Fields{"type": models.EmailErrorApprovalNotification})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), total)
}

func TestApprovalWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ApprovalWorkflowTestSuite))
}

func TestEvaluateApprovalLink(t *testing.T) {
	token, err := utils.GenerateApprovalToken()
	require.NoError(t, err)
	wrong := strings.Repeat("0", 64)
	now := time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)

	pending := &models.Approval{
		TokenHash: utils.HashString(token),
		Status:    models.ApprovalStatusPending,
		ExpiresAt: now.Add(time.Hour),
	}
	expired := *pending
	expired.ExpiresAt = now.Add(-time.Second)
	decided := *pending
	decided.Status = models.ApprovalStatusRejected
	decidedAndExpired := decided
	decidedAndExpired.ExpiresAt = now.Add(-time.Hour)

	tests := []struct {
		name     string
		approval *models.Approval
		token    string
		want     error
	}{
		{"valid", pending, token, nil},
		{"wrong token", pending, wrong, ErrUnauthorized},
		{"token checked before expiry", &expired, wrong, ErrUnauthorized},
		{"expired", &expired, token, ErrExpired},
		{"already decided", &decided, token, ErrAlreadyProcessed},
		{"expiry checked before status", &decidedAndExpired, token, ErrExpired},
		{"expires exactly now", &models.Approval{TokenHash: pending.TokenHash, Status: models.ApprovalStatusPending, ExpiresAt: now}, token, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EvaluateApprovalLink(tt.approval, tt.token, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// flakyStore applies the first approval update and then reports a failure,
// as a dropped connection after commit would.
type flakyStore struct {
	store.Store
	mu      sync.Mutex
	tripped bool
}

func (s *flakyStore) Update(ctx context.Context, doc store.Document, id uuid.UUID, where, set store.Fields) error {
	err := s.Store.Update(ctx, doc, id, where, set)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil && !s.tripped && doc.TableName() == "approvals" && set["status"] != nil {
		s.tripped = true
		return errors.New("connection reset by peer")
	}
	return err
}

func TestManualDecideTreatsLandedRetryAsApplied(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: store.NewMemoryStore()}
	svcs, notifier := newTestServices(t, st, nil)

	approval, err := svcs.Approval.Create(ctx, "user-7", &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		ApproverEmail:  "finance@idlab.studio",
		Type:           "budget_increase",
	})
	require.NoError(t, err)

	decided, err := svcs.Approval.ManualDecide(ctx, approval.ID, &ManualDecisionRequest{Decision: "approve"}, "admin@idlab.studio")
	require.NoError(t, err)
	assert.True(t, st.tripped)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	assert.Len(t, notifier.MessagesTo("mercy@idlab.studio"), 1)
}

func budgetApproval() *CreateApprovalRequest {
	return &CreateApprovalRequest{
		RequesterEmail: "mercy@idlab.studio",
		ApproverEmail:  "finance@idlab.studio",
		Type:           "budget_increase",
	}
}

// claimsConfirmation matches the status update that decides an approval.
func claimsConfirmation(op string, set store.Fields) bool {
	_, claimed := set["notification_claimed_at"]
	return op == "update:approvals" && claimed
}

func TestDecisionCompletesAfterCallerCancels(t *testing.T) {
	st := &contextStore{Store: store.NewMemoryStore()}
	svcs, notifier := newTestServices(t, st, nil)

	var published []events.ApprovalUpdated
	svcs.Bus.Subscribe(events.TopicApprovalUpdated, "recorder", func(ctx context.Context, event events.Event) error {
		published = append(published, event.(events.ApprovalUpdated))
		return nil
	})

	approval, err := svcs.Approval.Create(context.Background(), "user-42", budgetApproval())
	require.NoError(t, err)
	token := linkToken(t, notifier.MessagesTo("finance@idlab.studio")[0])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.cancelAfter(cancel, claimsConfirmation)

	decided, err := svcs.Approval.DecideWithToken(ctx, approval.ID.String(), token, DecisionReject, "Budget is frozen")
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "context should have been cancelled by the decision")
	assert.Equal(t, models.ApprovalStatusRejected, decided.Status)
	assert.Equal(t, "Budget is frozen", decided.RejectionReason)
	assert.True(t, decided.NotificationEmailSent)

	confirmations := notifier.MessagesTo("mercy@idlab.studio")
	require.Len(t, confirmations, 1)
	assert.Contains(t, confirmations[0].HTML, "Budget is frozen")

	var stored models.Approval
	require.NoError(t, st.Get(context.Background(), &stored, approval.ID))
	assert.True(t, stored.NotificationEmailSent)

	require.Len(t, published, 1)
	assert.Equal(t, models.ApprovalStatusPending, published[0].Before.Status)
	assert.Equal(t, models.ApprovalStatusRejected, published[0].After.Status)

	// A second click reports the outcome and sends nothing more.
	_, err = svcs.Approval.DecideWithToken(context.Background(), approval.ID.String(), token, DecisionApprove, "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, notifier.MessagesTo("mercy@idlab.studio"), 1)
}

func TestDecisionRecordsFailureAfterCallerCancels(t *testing.T) {
	st := &contextStore{Store: store.NewMemoryStore()}
	svcs, notifier := newTestServices(t, st, nil)

	approval, err := svcs.Approval.Create(context.Background(), "user-42", budgetApproval())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.cancelAfter(cancel, claimsConfirmation)
	notifier.FailWith(errors.New("smtp: mailbox unavailable"))

	decided, err := svcs.Approval.ManualDecide(ctx, approval.ID, &ManualDecisionRequest{Decision: "approve"}, "admin@idlab.studio")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	assert.False(t, decided.NotificationEmailSent)

	total, err := st.Count(context.Background(), &models.EmailErrorLog{}, store.Fields{
		"type":        models.EmailErrorApprovalNotification,
		"approval_id": approval.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestCreateSendsLinksAfterCallerCancels(t *testing.T) {
	st := &contextStore{Store: store.NewMemoryStore()}
	svcs, notifier := newTestServices(t, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.cancelAfter(cancel, func(op string, set store.Fields) bool { return op == "create:approvals" })

	approval, err := svcs.Approval.Create(ctx, "user-42", budgetApproval())
	require.NoError(t, err)
	assert.True(t, approval.EmailSent)
	require.Len(t, notifier.MessagesTo("finance@idlab.studio"), 1)

	var stored models.Approval
	require.NoError(t, st.Get(context.Background(), &stored, approval.ID))
	assert.True(t, stored.EmailSent)
}
