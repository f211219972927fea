// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type License struct {
	BaseModel
	Key              string     `json:"key" gorm:"size:32;not null;uniqueIndex"`
	UserEmail        string     `json:"user_email" gorm:"size:255;not null;index"`
	UserName         string     `json:"user_name" gorm:"size:255"`
	Organization     string     `json:"organization" gorm:"size:255"`
	Type             string     `json:"type" gorm:"size:50"`
	DurationMonths   int        `json:"duration_months"`
	ExpiresAt        time.Time  `json:"expires_at" gorm:"index"`
	IsActive         bool       `json:"is_active" gorm:"index"`
	MaxDevices       int        `json:"max_devices"`
	PaymentID        *uuid.UUID `json:"payment_id" gorm:"type:uuid;index"`
	LicenseRequestID *uuid.UUID `json:"license_request_id" gorm:"type:uuid;uniqueIndex"`
	DeactivatedAt    *time.Time `json:"deactivated_at"`
	DeactivatedBy    string     `json:"deactivated_by,omitempty" gorm:"size:255"`
}

func (License) TableName() string { return "licenses" }

func (l *License) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
