// internal/handlers/approval.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

// ApprovalHandler serves the dashboard side of the approval workflow. The
// e-mail link pages live in ApprovalLinkHandler.
type ApprovalHandler struct {
	approvalService *services.ApprovalService
}

func NewApprovalHandler(approvalService *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{
		approvalService: approvalService,
	}
}

// GET /admin/approvals
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	approvals, total, err := h.approvalService.ListApprovals(c.Request.Context(), params, c.Query("type"))
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(approvals, total, params))
}

// POST /admin/approvals
func (h *ApprovalHandler) CreateApproval(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateApprovalRequest
	if !bindJSON(c, &req) {
		return
	}

	approval, err := h.approvalService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyApprovalCreated),
		"approval": approval,
	})
}

// GET /admin/approvals/:id
func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	id, ok := parseID(c, "approval")
	if !ok {
		return
	}

	approval, err := h.approvalService.GetApproval(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	utils.SuccessResponse(c, approval)
}

// PUT /admin/approvals/:id/decide
func (h *ApprovalHandler) DecideApproval(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "approval")
	if !ok {
		return
	}

	var req services.ManualDecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	approval, err := h.approvalService.ManualDecide(c.Request.Context(), id, &req, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "approval")
		return
	}

	messageKey := i18n.KeyApprovalApproved
	if services.Decision(req.Decision) == services.DecisionReject {
		messageKey = i18n.KeyApprovalRejected
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, messageKey),
		"approval": approval,
	})
}
