// internal/models/approval.go
package models

import (
	"time"
)

// Approval is a generic request decided by an approver, usually through the
// signed links sent to them by e-mail.
type Approval struct {
	BaseModel
	RequesterID     string         `json:"requester_id" gorm:"size:255;not null;index"`
	RequesterEmail  string         `json:"requester_email" gorm:"size:255;not null"`
	RequesterName   string         `json:"requester_name" gorm:"size:255"`
	ApproverEmail   string         `json:"approver_email" gorm:"size:255;not null;index"`
	ApproverName    string         `json:"approver_name" gorm:"size:255"`
	Type            string         `json:"type" gorm:"size:100;not null;index"`
	Status          ApprovalStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Details         JSONB          `json:"details" gorm:"type:jsonb"`
	TokenHash       string         `json:"-" gorm:"size:64;not null"`
	ExpiresAt       time.Time      `json:"expires_at"`
	EmailSent       bool           `json:"email_sent" gorm:"default:false"`
	EmailSentAt     *time.Time     `json:"email_sent_at"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	ApprovedBy      string         `json:"approved_by,omitempty" gorm:"size:255"`
	RejectedAt      *time.Time     `json:"rejected_at"`
	RejectedBy      string         `json:"rejected_by,omitempty" gorm:"size:255"`
	RejectionReason string         `json:"rejection_reason,omitempty" gorm:"type:text"`

	// Confirmation e-mail gate, claimed together with the status change.
	NotificationClaimedAt   *time.Time `json:"notification_claimed_at"`
	NotificationEmailSent   bool       `json:"notification_email_sent" gorm:"default:false"`
	NotificationEmailSentAt *time.Time `json:"notification_email_sent_at"`
}

func (Approval) TableName() string { return "approvals" }

func (a *Approval) IsPending() bool {
	return a.Status == ApprovalStatusPending
}

func (a *Approval) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
