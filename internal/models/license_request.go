// internal/models/license_request.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseRequest is a customer's purchase submission awaiting review.
type LicenseRequest struct {
	BaseModel
	FullName         string        `json:"full_name" gorm:"size:255;not null"`
	Email            string        `json:"email" gorm:"size:255;not null;index"`
	Phone            string        `json:"phone" gorm:"size:50"`
	SchoolName       string        `json:"school_name" gorm:"size:255"`
	BusinessName     string        `json:"business_name" gorm:"size:255"`
	Province         string        `json:"province" gorm:"size:100"`
	LicenseType      string        `json:"license_type" gorm:"size:50"`
	HowHeard         string        `json:"how_heard" gorm:"size:100"`
	PackageType      string        `json:"package_type" gorm:"size:50;not null"`
	DurationMonths   int           `json:"duration_months"`
	Amount           float64       `json:"amount" gorm:"type:decimal(12,2)"`
	AmountPaid       float64       `json:"amount_paid" gorm:"type:decimal(12,2)"`
	PaymentMethod    string        `json:"payment_method" gorm:"size:50;not null"`
	PaymentReference string        `json:"payment_reference" gorm:"size:255"`
	PaymentProofURL  string        `json:"payment_proof_url" gorm:"type:text"`
	PaymentProofPath string        `json:"payment_proof_path" gorm:"type:text"`
	Status           RequestStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ApprovedAt       *time.Time    `json:"approved_at"`
	ApprovedBy       string        `json:"approved_by,omitempty" gorm:"size:255"`
	RejectedAt       *time.Time    `json:"rejected_at"`
	RejectedBy       string        `json:"rejected_by,omitempty" gorm:"size:255"`
	RejectionReason  string        `json:"rejection_reason,omitempty" gorm:"type:text"`
	LicenseKey       string        `json:"license_key,omitempty" gorm:"size:32"`
	LicenseID        *uuid.UUID    `json:"license_id" gorm:"type:uuid"`
	PaymentID        *uuid.UUID    `json:"payment_id" gorm:"type:uuid"`
}

func (LicenseRequest) TableName() string { return "license_requests" }

// Organization is the school or business name, whichever was given.
func (r *LicenseRequest) Organization() string {
	if r.SchoolName != "" {
		return r.SchoolName
	}
	return r.BusinessName
}
