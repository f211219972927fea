// internal/models/payment.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Payment struct {
	BaseModel
	FullName          string        `json:"full_name" gorm:"size:255;not null"`
	Email             string        `json:"email" gorm:"size:255;not null;index"`
	Phone             string        `json:"phone" gorm:"size:50"`
	School            string        `json:"school" gorm:"size:255"`
	BusinessName      string        `json:"business_name" gorm:"size:255"`
	PackageType       string        `json:"package_type" gorm:"size:50"`
	DurationMonths    int           `json:"duration_months"`
	Amount            float64       `json:"amount" gorm:"type:decimal(12,2)"`
	PaymentMethod     string        `json:"payment_method" gorm:"size:50"`
	TransactionID     string        `json:"transaction_id" gorm:"size:255"`
	ProofOfPaymentURL string        `json:"proof_of_payment_url" gorm:"type:text"`
	Source            PaymentSource `json:"source" gorm:"type:varchar(20);default:'direct'"`
	LicenseRequestID  *uuid.UUID    `json:"license_request_id" gorm:"type:uuid;uniqueIndex"`
	Status            PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	SubmittedAt       time.Time     `json:"submitted_at"`
	ApprovedAt        *time.Time    `json:"approved_at"`
	ApprovedBy        string        `json:"approved_by,omitempty" gorm:"size:255"`
	RejectedAt        *time.Time    `json:"rejected_at"`
	RejectedBy        string        `json:"rejected_by,omitempty" gorm:"size:255"`
	RejectionReason   string        `json:"rejection_reason,omitempty" gorm:"type:text"`
	LicenseID         *uuid.UUID    `json:"license_id" gorm:"type:uuid"`
	LicenseKey        string        `json:"license_key,omitempty" gorm:"size:32"`

	// License e-mail bookkeeping. EmailAttemptedAt is claimed once, before
	// the first automatic send.
	EmailAttemptedAt   *time.Time `json:"email_attempted_at"`
	EmailSent          bool       `json:"email_sent" gorm:"default:false"`
	EmailSentAt        *time.Time `json:"email_sent_at"`
	EmailLastAttemptAt *time.Time `json:"email_last_attempt_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) Organization() string {
	if p.School != "" {
		return p.School
	}
	return p.BusinessName
}
