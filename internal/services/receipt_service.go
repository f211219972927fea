// internal/services/receipt_service.go
package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/models"
)

// ReceiptRenderer produces the PDF receipt attached to license e-mails.
type ReceiptRenderer struct {
	brand config.BrandConfig
}

func NewReceiptRenderer(brand config.BrandConfig) *ReceiptRenderer {
	return &ReceiptRenderer{brand: brand}
}

func (r *ReceiptRenderer) Filename(paymentID uuid.UUID) string {
	name := strings.ReplaceAll(r.brand.ProductName, " ", "")
	if name == "" {
		name = "IDLab"
	}
	return fmt.Sprintf("%s-Receipt-%s.pdf", name, paymentID)
}

func (r *ReceiptRenderer) Render(payment *models.Payment, license *models.License, issuedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.brand.ProductName+" Payment Receipt", true)
	pdf.SetAuthor(r.brand.CompanyName, true)
	pdf.SetCreator(r.brand.ProductName, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Header band
	pdf.SetFillColor(30, 64, 175)
	pdf.Rect(0, 0, 210, 38, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetXY(20, 11)
	pdf.Cell(100, 10, tr(r.brand.ProductName))
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(20, 22)
	pdf.Cell(100, 6, tr(r.brand.CompanyName))
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(120, 14)
	pdf.CellFormat(70, 10, "PAYMENT RECEIPT", "", 0, "R", false, 0, "")

	pdf.SetTextColor(33, 37, 41)
	pdf.SetXY(20, 48)

	section := func(title string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(30, 64, 175)
		pdf.CellFormat(0, 8, tr(title), "B", 1, "L", false, 0, "")
		pdf.SetTextColor(33, 37, 41)
		pdf.Ln(2)
	}
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(55, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}

	section("Receipt")
	row("Receipt number", payment.ID.String())
	row("Date issued", issuedAt.UTC().Format("02 January 2006"))
	if payment.ApprovedAt != nil {
		row("Payment approved", payment.ApprovedAt.UTC().Format("02 January 2006"))
	}

	section("Customer")
	row("Name", payment.FullName)
	row("Email", payment.Email)
	row("Phone", payment.Phone)
	row("Organization", payment.Organization())

	section("Payment")
	row("Package", payment.PackageType)
	row("Duration", fmt.Sprintf("%d months", license.DurationMonths))
	row("Payment method", payment.PaymentMethod)
	row("Transaction ID", payment.TransactionID)

	pdf.Ln(2)
	pdf.SetFillColor(239, 246, 255)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(55, 10, "Amount paid", "", 0, "L", true, 0, "")
	pdf.CellFormat(0, 10, tr(r.formatAmount(payment.Amount)), "", 1, "L", true, 0, "")

	section("License")
	pdf.SetFont("Courier", "B", 16)
	pdf.CellFormat(0, 12, license.Key, "1", 1, "C", false, 0, "")
	pdf.Ln(2)
	row("License type", license.Type)
	row("Maximum devices", fmt.Sprintf("%d", license.MaxDevices))
	row("Valid until", license.ExpiresAt.UTC().Format("02 January 2006"))

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(108, 117, 125)
	footer := "Thank you for choosing " + r.brand.ProductName + "."
	if r.brand.SupportEmail != "" {
		footer += " Questions? Contact " + r.brand.SupportEmail
		if r.brand.SupportPhone != "" {
			footer += " or " + r.brand.SupportPhone
		}
		footer += "."
	}
	pdf.MultiCell(0, 5, tr(footer), "", "C", false)

	if pdf.Err() {
		return nil, fmt.Errorf("failed to render receipt: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *ReceiptRenderer) formatAmount(amount float64) string {
	return fmt.Sprintf("%s%s", r.brand.CurrencySymbol, formatThousands(amount))
}

// formatThousands renders 150000 as "150,000.00".
func formatThousands(amount float64) string {
	s := fmt.Sprintf("%.2f", amount)
	intPart, frac, _ := strings.Cut(s, ".")
	negative := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String() + "." + frac
	if negative {
		out = "-" + out
	}
	return out
}
