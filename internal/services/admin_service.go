// internal/services/admin_service.go
package services

import (
	"context"
	"time"

	"github.com/idlabstudio/idlab-backend/internal/models"
	"github.com/idlabstudio/idlab-backend/internal/store"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type AdminService struct {
	store store.Store
	now   func() time.Time
}

type AdminDashboardStats struct {
	TotalPayments          int64 `json:"total_payments"`
	PendingPayments        int64 `json:"pending_payments"`
	TotalLicenses          int64 `json:"total_licenses"`
	ActiveLicenses         int64 `json:"active_licenses"`
	PendingLicenseRequests int64 `json:"pending_license_requests"`
	PendingApprovals       int64 `json:"pending_approvals"`
	EmailErrors            int64 `json:"email_errors"`
}

func NewAdminService(st store.Store) *AdminService {
	return &AdminService{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	stats := &AdminDashboardStats{}

	counts := []struct {
		dest    *int64
		doc     store.Document
		filters store.Fields
	}{
		{&stats.TotalPayments, &models.Payment{}, nil},
		{&stats.PendingPayments, &models.Payment{}, store.Fields{"status": models.PaymentStatusPending}},
		{&stats.TotalLicenses, &models.License{}, nil},
		{&stats.PendingLicenseRequests, &models.LicenseRequest{}, store.Fields{"status": models.RequestStatusPending}},
		{&stats.PendingApprovals, &models.Approval{}, store.Fields{"status": models.ApprovalStatusPending}},
		{&stats.EmailErrors, &models.EmailErrorLog{}, nil},
	}
	for _, c := range counts {
		total, err := s.store.Count(ctx, c.doc, c.filters)
		if err != nil {
			return nil, internalError("failed to count "+c.doc.TableName(), err)
		}
		*c.dest = total
	}

	// Active licenses must also be unexpired.
	var active []models.License
	if err := s.store.Find(ctx, &active, store.Query{Filters: store.Fields{"is_active": true}}); err != nil {
		return nil, internalError("failed to list active licenses", err)
	}
	now := s.now()
	for i := range active {
		if !active[i].IsExpired(now) {
			stats.ActiveLicenses++
		}
	}

	return stats, nil
}

func (s *AdminService) ListEmailErrors(ctx context.Context, params utils.PaginationParams, kind string) ([]models.EmailErrorLog, int64, error) {
	filters := store.Fields{}
	if kind != "" {
		filters["type"] = kind
	}

	total, err := s.store.Count(ctx, &models.EmailErrorLog{}, filters)
	if err != nil {
		return nil, 0, internalError("failed to count email errors", err)
	}

	var entries []models.EmailErrorLog
	if err := s.store.Find(ctx, &entries, params.ToQuery(filters, []string{"created_at", "type"})); err != nil {
		return nil, 0, internalError("failed to list email errors", err)
	}
	return entries, total, nil
}
