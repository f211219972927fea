// internal/handlers/license_request.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type LicenseRequestHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseRequestHandler(licenseService *services.LicenseService) *LicenseRequestHandler {
	return &LicenseRequestHandler{
		licenseService: licenseService,
	}
}

// POST /license-requests
func (h *LicenseRequestHandler) SubmitRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.SubmitLicenseRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.licenseService.SubmitRequest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseRequestSubmitted),
		"request": request,
	})
}

// POST /license-requests/payment-proof
func (h *LicenseRequestHandler) UploadPaymentProof(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	header, err := c.FormFile("payment_proof")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileRequired), nil)
		return
	}

	file, err := header.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileRequired), err.Error())
		return
	}
	defer file.Close()

	result, err := h.licenseService.UploadPaymentProof(c.Request.Context(), file, header.Filename, header.Size)
	if err != nil {
		respondError(c, err, "file")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyPaymentProofStored),
		"file":    result,
	})
}

// GET /admin/license-requests
func (h *LicenseRequestHandler) ListRequests(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	requests, total, err := h.licenseService.ListRequests(c.Request.Context(), params)
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}

// GET /admin/license-requests/:id
func (h *LicenseRequestHandler) GetRequest(c *gin.Context) {
	id, ok := parseID(c, "license request")
	if !ok {
		return
	}

	request, err := h.licenseService.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.SuccessResponse(c, request)
}

// GET /admin/license-requests/:id/payment-proof
func (h *LicenseRequestHandler) GetPaymentProof(c *gin.Context) {
	id, ok := parseID(c, "license request")
	if !ok {
		return
	}

	url, err := h.licenseService.PaymentProofURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}

// PUT /admin/license-requests/:id/approve
func (h *LicenseRequestHandler) ApproveRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "license request")
	if !ok {
		return
	}

	result, err := h.licenseService.ApproveRequest(c.Request.Context(), id, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseRequestApproved),
		"request": result.Request,
		"payment": result.Payment,
		"license": result.License,
	})
}

// PUT /admin/license-requests/:id/reject
func (h *LicenseRequestHandler) RejectRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "license request")
	if !ok {
		return
	}

	var req services.RejectRequest
	if !bindJSON(c, &req) {
		return
	}

	request, err := h.licenseService.RejectRequest(c.Request.Context(), id, req.Reason, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "license_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseRequestRejected),
		"request": request,
	})
}
