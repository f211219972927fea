// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// GET /admin/payments
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), params)
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(payments, total, params))
}

// POST /admin/payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreatePaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentCreated),
		"payment": payment,
	})
}

// GET /admin/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, ok := parseID(c, "payment")
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.SuccessResponse(c, payment)
}

// PUT /admin/payments/:id/approve
func (h *PaymentHandler) ApprovePayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "payment")
	if !ok {
		return
	}

	payment, license, err := h.paymentService.ApprovePayment(c.Request.Context(), id, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentApproved),
		"payment": payment,
		"license": license,
	})
}

// PUT /admin/payments/:id/reject
func (h *PaymentHandler) RejectPayment(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "payment")
	if !ok {
		return
	}

	var req services.RejectRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.paymentService.RejectPayment(c.Request.Context(), id, req.Reason, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentRejected),
		"payment": payment,
	})
}

// POST /admin/payments/:id/resend
func (h *PaymentHandler) ResendEmail(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "payment")
	if !ok {
		return
	}

	payment, err := h.paymentService.ResendNotification(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "payment")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentEmailResent),
		"payment": payment,
	})
}
