// internal/handlers/license.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

// GET /admin/licenses
func (h *LicenseHandler) ListLicenses(c *gin.Context) {
	filter := services.LicenseFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Email:            c.Query("email"),
	}

	if active := c.Query("active"); active != "" {
		if value, err := strconv.ParseBool(active); err == nil {
			filter.Active = &value
		}
	}

	licenses, total, err := h.licenseService.ListLicenses(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "license")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(licenses, total, filter.PaginationParams))
}

// GET /admin/licenses/:id
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	id, ok := parseID(c, "license")
	if !ok {
		return
	}

	license, err := h.licenseService.GetLicense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "license")
		return
	}

	utils.SuccessResponse(c, license)
}

// PUT /admin/licenses/:id/deactivate
func (h *LicenseHandler) DeactivateLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c, "license")
	if !ok {
		return
	}

	license, err := h.licenseService.DeactivateLicense(c.Request.Context(), id, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err, "license")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseDeactivated),
		"license": license,
	})
}
