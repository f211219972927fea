// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields. Records are never deleted, so there is no
// soft-delete column.
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported JSONB source type")
	}

	return json.Unmarshal(bytes, j)
}

// Clone returns a shallow copy of the top level map.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// Enums
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

type PaymentSource string

const (
	PaymentSourceDirect         PaymentSource = "direct"
	PaymentSourceLicenseRequest PaymentSource = "license_request"
)

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

type EmailErrorType string

const (
	EmailErrorLicenseEmail         EmailErrorType = "license_email"
	EmailErrorLicenseResend        EmailErrorType = "license_resend"
	EmailErrorApprovalRequest      EmailErrorType = "approval_request"
	EmailErrorApprovalNotification EmailErrorType = "approval_notification"
)

const PaymentMethodStripe = "stripe"
