// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/mailer"
	"github.com/idlabstudio/idlab-backend/internal/metrics"
	"github.com/idlabstudio/idlab-backend/internal/models"
	"github.com/idlabstudio/idlab-backend/internal/store"
)

// NotificationService renders and sends every customer facing e-mail and
// keeps the e-mail error log.
type NotificationService struct {
	store    store.Store
	notifier mailer.Notifier
	receipts *ReceiptRenderer
	brand    config.BrandConfig
	timeout  time.Duration
	now      func() time.Time
}

type EmailTemplate struct {
	Subject string
	Body    *template.Template
}

func NewNotificationService(st store.Store, notifier mailer.Notifier, receipts *ReceiptRenderer, cfg *config.Config) *NotificationService {
	timeout := cfg.Email.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NotificationService{
		store:    st,
		notifier: notifier,
		receipts: receipts,
		brand:    cfg.Brand,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// License notifications
func (s *NotificationService) SendLicenseEmail(ctx context.Context, payment *models.Payment, license *models.License, resend bool) error {
	receipt, err := s.receipts.Render(payment, license, s.now())
	if err != nil {
		return err
	}

	kind := "license_approved"
	if resend {
		kind = "license_resent"
	}
	tmpl := s.getEmailTemplate(kind)

	data := map[string]interface{}{
		"Brand":        s.brand,
		"Name":         firstNonEmpty(payment.FullName, "Customer"),
		"LicenseKey":   license.Key,
		"LicenseType":  license.Type,
		"MaxDevices":   license.MaxDevices,
		"Duration":     license.DurationMonths,
		"ExpiresAt":    license.ExpiresAt.UTC().Format("02 January 2006"),
		"Organization": license.Organization,
		"Amount":       s.receipts.formatAmount(payment.Amount),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	msg := mailer.Message{
		To:      payment.Email,
		Subject: s.subject(fmt.Sprintf(tmpl.Subject, s.brand.ProductName)),
		HTML:    body,
		Attachments: []mailer.Attachment{{
			Filename:    s.receipts.Filename(payment.ID),
			ContentType: "application/pdf",
			Data:        receipt,
		}},
	}
	err = s.send(ctx, msg)
	metrics.Notification(kind, err)
	return err
}

// Approval notifications
func (s *NotificationService) SendApprovalRequest(ctx context.Context, approval *models.Approval, approveURL, rejectURL string) error {
	tmpl := s.getEmailTemplate("approval_request")

	data := map[string]interface{}{
		"Brand":          s.brand,
		"ApproverName":   firstNonEmpty(approval.ApproverName, approval.ApproverEmail),
		"RequesterName":  firstNonEmpty(approval.RequesterName, approval.RequesterEmail),
		"RequesterEmail": approval.RequesterEmail,
		"Type":           humanize(approval.Type),
		"Details":        detailRows(approval.Details),
		"ApproveURL":     approveURL,
		"RejectURL":      rejectURL,
		"ExpiresAt":      approval.ExpiresAt.UTC().Format("02 January 2006 15:04 MST"),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	err = s.send(ctx, mailer.Message{
		To:      approval.ApproverEmail,
		Subject: s.subject(fmt.Sprintf(tmpl.Subject, humanize(approval.Type))),
		HTML:    body,
	})
	metrics.Notification("approval_request", err)
	return err
}

func (s *NotificationService) SendApprovalDecision(ctx context.Context, approval *models.Approval) error {
	tmpl := s.getEmailTemplate("approval_decision")

	decidedBy := approval.ApprovedBy
	if approval.Status == models.ApprovalStatusRejected {
		decidedBy = approval.RejectedBy
	}

	data := map[string]interface{}{
		"Brand":         s.brand,
		"RequesterName": firstNonEmpty(approval.RequesterName, approval.RequesterEmail),
		"Type":          humanize(approval.Type),
		"Approved":      approval.Status == models.ApprovalStatusApproved,
		"Status":        string(approval.Status),
		"DecidedBy":     firstNonEmpty(decidedBy, approval.ApproverEmail),
		"Reason":        approval.RejectionReason,
		"Details":       detailRows(approval.Details),
	}

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	err = s.send(ctx, mailer.Message{
		To:      approval.RequesterEmail,
		Subject: s.subject(fmt.Sprintf(tmpl.Subject, humanize(approval.Type), approval.Status)),
		HTML:    body,
	})
	metrics.Notification("approval_decision", err)
	return err
}

// RecordFailure appends to the e-mail error log. A failure to log is itself
// only logged.
func (s *NotificationService) RecordFailure(ctx context.Context, kind models.EmailErrorType, email string, paymentID, approvalID *uuid.UUID, cause error) {
	entry := &models.EmailErrorLog{
		Type:       kind,
		PaymentID:  paymentID,
		ApprovalID: approvalID,
		Email:      email,
		Error:      cause.Error(),
	}
	entry.CreatedAt = s.now()

	fields := logrus.Fields{"type": kind, "email": email}
	if paymentID != nil {
		fields["payment_id"] = paymentID.String()
	}
	if approvalID != nil {
		fields["approval_id"] = approvalID.String()
	}
	logrus.WithError(cause).WithFields(fields).Error("Email delivery failed")

	if err := s.store.Create(context.WithoutCancel(ctx), entry); err != nil {
		logrus.WithError(err).WithFields(fields).Error("Failed to record email error")
	}
}

// Helper methods
func (s *NotificationService) send(ctx context.Context, msg mailer.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.notifier.Send(ctx, msg)
}

func (s *NotificationService) subject(subject string) string {
	return strings.TrimSpace(subject)
}

func (s *NotificationService) renderTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	if tmpl, exists := emailTemplates[templateType]; exists {
		return tmpl
	}
	return EmailTemplate{Subject: "Notification", Body: template.Must(template.New("default").Parse("<p>{{.Message}}</p>"))}
}

type detailRow struct {
	Label string
	Value string
}

func detailRows(details models.JSONB) []detailRow {
	rows := make([]detailRow, 0, len(details))
	for _, key := range sortedKeys(details) {
		rows = append(rows, detailRow{Label: humanize(key), Value: fmt.Sprint(details[key])})
	}
	return rows
}

func sortedKeys(m models.JSONB) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// humanize turns "budget_increase" into "Budget Increase".
func humanize(s string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

const emailLayout = `{{define "header"}}<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background:#f4f6fb;font-family:Helvetica,Arial,sans-serif;color:#212529;">
<table width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:24px;">
<table width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
<tr><td style="background:#1e40af;color:#ffffff;padding:24px;font-size:22px;font-weight:bold;">{{.Brand.ProductName}}</td></tr>
<tr><td style="padding:24px;font-size:15px;line-height:1.6;">{{end}}
{{define "footer"}}</td></tr>
<tr><td style="padding:16px 24px;background:#f8f9fa;font-size:12px;color:#6c757d;">
{{.Brand.CompanyName}}{{if .Brand.SupportEmail}} &middot; <a href="mailto:{{.Brand.SupportEmail}}">{{.Brand.SupportEmail}}</a>{{end}}{{if .Brand.SupportPhone}} &middot; {{.Brand.SupportPhone}}{{end}}
</td></tr>
</table></td></tr></table>
</body>
</html>{{end}}`

var emailTemplates = map[string]EmailTemplate{
	"license_approved": {
		Subject: "Your %s license is ready",
		Body: mustEmailTemplate("license_approved", `{{template "header" .}}
<h2 style="margin-top:0;">Payment approved</h2>
<p>Hello {{.Name}},</p>
<p>Thank you for your payment of <strong>{{.Amount}}</strong>. Your {{.Brand.ProductName}} license is now active.</p>
<p style="text-align:center;margin:28px 0;">
<span style="display:inline-block;padding:14px 22px;border:2px dashed #1e40af;font-family:Courier,monospace;font-size:22px;letter-spacing:2px;">{{.LicenseKey}}</span>
</p>
<table cellpadding="4">
<tr><td><strong>License type</strong></td><td>{{.LicenseType}}</td></tr>
{{if .Organization}}<tr><td><strong>Organization</strong></td><td>{{.Organization}}</td></tr>{{end}}
<tr><td><strong>Duration</strong></td><td>{{.Duration}} months</td></tr>
<tr><td><strong>Valid until</strong></td><td>{{.ExpiresAt}}</td></tr>
<tr><td><strong>Devices</strong></td><td>up to {{.MaxDevices}}</td></tr>
</table>
<h3>Getting started</h3>
<ol>
<li>Download {{.Brand.ProductName}} from <a href="{{.Brand.DownloadURL}}">{{.Brand.DownloadURL}}</a>.</li>
<li>Open the application and choose <em>Activate license</em>.</li>
<li>Enter the license key above.</li>
</ol>
<p>Your payment receipt is attached to this e-mail.</p>
{{template "footer" .}}`),
	},
	"license_resent": {
		Subject: "Your %s license details",
		Body: mustEmailTemplate("license_resent", `{{template "header" .}}
<h2 style="margin-top:0;">Your license details</h2>
<p>Hello {{.Name}},</p>
<p>As requested, here are the details of your {{.Brand.ProductName}} license.</p>
<p style="text-align:center;margin:28px 0;">
<span style="display:inline-block;padding:14px 22px;border:2px dashed #1e40af;font-family:Courier,monospace;font-size:22px;letter-spacing:2px;">{{.LicenseKey}}</span>
</p>
<table cellpadding="4">
<tr><td><strong>License type</strong></td><td>{{.LicenseType}}</td></tr>
<tr><td><strong>Valid until</strong></td><td>{{.ExpiresAt}}</td></tr>
<tr><td><strong>Devices</strong></td><td>up to {{.MaxDevices}}</td></tr>
</table>
<p>Download the application from <a href="{{.Brand.DownloadURL}}">{{.Brand.DownloadURL}}</a>. Your receipt is attached again for your records.</p>
{{template "footer" .}}`),
	},
	"approval_request": {
		Subject: "Approval needed: %s",
		Body: mustEmailTemplate("approval_request", `{{template "header" .}}
<h2 style="margin-top:0;">Approval needed</h2>
<p>Hello {{.ApproverName}},</p>
<p>{{.RequesterName}} ({{.RequesterEmail}}) is asking for your approval of a <strong>{{.Type}}</strong> request.</p>
{{if .Details}}<table cellpadding="4" style="margin:16px 0;">
{{range .Details}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
<p style="margin:28px 0;">
<a href="{{.ApproveURL}}" style="background:#198754;color:#ffffff;padding:12px 24px;border-radius:6px;text-decoration:none;margin-right:12px;">Approve</a>
<a href="{{.RejectURL}}" style="background:#dc3545;color:#ffffff;padding:12px 24px;border-radius:6px;text-decoration:none;">Reject</a>
</p>
<p style="font-size:13px;color:#6c757d;">These links expire on {{.ExpiresAt}} and can be used once.</p>
{{template "footer" .}}`),
	},
	"approval_decision": {
		Subject: "Your %s request was %s",
		Body: mustEmailTemplate("approval_decision", `{{template "header" .}}
<h2 style="margin-top:0;">Request {{.Status}}</h2>
<p>Hello {{.RequesterName}},</p>
{{if .Approved}}<p>Your <strong>{{.Type}}</strong> request has been approved by {{.DecidedBy}}.</p>
{{else}}<p>Your <strong>{{.Type}}</strong> request has been rejected by {{.DecidedBy}}.</p>
{{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}{{end}}
{{if .Details}}<table cellpadding="4" style="margin:16px 0;">
{{range .Details}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>
{{end}}</table>{{end}}
{{template "footer" .}}`),
	},
}

func mustEmailTemplate(name, body string) *template.Template {
	tmpl := template.Must(template.New(name).Parse(emailLayout))
	return template.Must(tmpl.Parse(body))
}
