// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
}

func NewAdminHandler(adminService *services.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

// GET /admin/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "stats")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/email-errors
func (h *AdminHandler) GetEmailErrors(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	entries, total, err := h.adminService.ListEmailErrors(c.Request.Context(), params, c.Query("type"))
	if err != nil {
		respondError(c, err, "email_error")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(entries, total, params))
}
