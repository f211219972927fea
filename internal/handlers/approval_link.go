// internal/handlers/approval_link.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/models"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

const rejectFormAction = "/v1/approvals/reject"

// ApprovalLinkHandler answers the approve and reject links e-mailed to
// approvers with plain HTML pages.
type ApprovalLinkHandler struct {
	approvalService *services.ApprovalService
	brand           config.BrandConfig
}

func NewApprovalLinkHandler(approvalService *services.ApprovalService, brand config.BrandConfig) *ApprovalLinkHandler {
	return &ApprovalLinkHandler{
		approvalService: approvalService,
		brand:           brand,
	}
}

// GET /approvals/approve
func (h *ApprovalLinkHandler) Approve(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	approval, err := h.approvalService.DecideWithToken(c.Request.Context(), c.Query("id"), c.Query("token"), services.DecisionApprove, "")
	if err != nil {
		h.renderError(c, approval, err)
		return
	}

	h.render(c, http.StatusOK, linkPage{
		Kind:    pageSuccess,
		Message: i18n.T(lang, i18n.KeyApprovalApproved),
	})
}

// GET /approvals/reject
func (h *ApprovalLinkHandler) RejectForm(c *gin.Context) {
	id, token := c.Query("id"), c.Query("token")

	approval, err := h.approvalService.CheckLink(c.Request.Context(), id, token)
	if err != nil {
		h.renderError(c, approval, err)
		return
	}

	h.renderForm(c, http.StatusOK, approval, id, token, "", "")
}

// POST /approvals/reject
func (h *ApprovalLinkHandler) Reject(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id := c.DefaultPostForm("id", c.Query("id"))
	token := c.DefaultPostForm("token", c.Query("token"))
	reason := strings.TrimSpace(c.PostForm("reason"))

	if reason == "" {
		approval, err := h.approvalService.CheckLink(c.Request.Context(), id, token)
		if err != nil {
			h.renderError(c, approval, err)
			return
		}
		h.renderForm(c, http.StatusBadRequest, approval, id, token, "", i18n.T(lang, i18n.KeyApprovalReasonRequired))
		return
	}

	approval, err := h.approvalService.DecideWithToken(c.Request.Context(), id, token, services.DecisionReject, reason)
	if err != nil {
		h.renderError(c, approval, err)
		return
	}

	h.render(c, http.StatusOK, linkPage{
		Kind:    pageSuccess,
		Message: i18n.T(lang, i18n.KeyApprovalRejected),
	})
}

func (h *ApprovalLinkHandler) renderForm(c *gin.Context, status int, approval *models.Approval, id, token, reason, formError string) {
	requester := approval.RequesterName
	if requester == "" {
		requester = approval.RequesterEmail
	}

	h.render(c, status, linkPage{
		Kind:  pageInfo,
		Title: "Reject this request",
		Form: &reasonForm{
			Action:    rejectFormAction,
			ID:        id,
			Token:     token,
			Type:      approval.Type,
			Requester: requester,
			Reason:    reason,
			Error:     formError,
		},
	})
}

// renderError shows only the category of a failure; the details go to the log.
func (h *ApprovalLinkHandler) renderError(c *gin.Context, approval *models.Approval, err error) {
	lang := utils.GetLangFromContext(c)

	status, kind, message := http.StatusInternalServerError, pageError, i18n.T(lang, i18n.KeyInternalError)
	switch services.CodeOf(err) {
	case services.CodeInvalidArgument:
		status, message = http.StatusBadRequest, i18n.T(lang, i18n.KeyApprovalInvalidLink)
	case services.CodeUnauthenticated, services.CodeUnauthorized:
		status, message = http.StatusUnauthorized, i18n.T(lang, i18n.KeyApprovalUnauthorized)
	case services.CodeExpired:
		status, message = http.StatusGone, i18n.T(lang, i18n.KeyApprovalExpired)
	case services.CodeAlreadyProcessed:
		outcome := "processed"
		if approval != nil {
			outcome = string(approval.Status)
		}
		status, kind, message = http.StatusOK, pageInfo, i18n.T(lang, i18n.KeyApprovalAlreadyProcessed, outcome)
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Approval link failed")
	}

	h.render(c, status, linkPage{Kind: kind, Message: message})
}

func (h *ApprovalLinkHandler) render(c *gin.Context, status int, page linkPage) {
	page.Product = h.brand.ProductName
	page.Support = h.brand.SupportEmail
	renderLinkPage(c, status, page)
}
