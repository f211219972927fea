// internal/models/email_error.go
package models

import (
	"github.com/google/uuid"
)

// EmailErrorLog is an append-only record of a failed notification.
type EmailErrorLog struct {
	BaseModel
	Type       EmailErrorType `json:"type" gorm:"type:varchar(40);not null;index"`
	PaymentID  *uuid.UUID     `json:"payment_id" gorm:"type:uuid;index"`
	ApprovalID *uuid.UUID     `json:"approval_id" gorm:"type:uuid;index"`
	Email      string         `json:"email" gorm:"size:255"`
	Error      string         `json:"error" gorm:"type:text"`
}

func (EmailErrorLog) TableName() string { return "email_errors" }
