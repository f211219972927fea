// internal/handlers/errors.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

// respondError writes the JSON envelope for a service error. resource names
// the i18n prefix used for not-found messages.
func respondError(c *gin.Context, err error, resource string) {
	if details := utils.GetValidationErrors(err); len(details) > 0 {
		utils.ValidationErrorResponse(c, details)
		return
	}

	message := services.MessageOf(err)
	switch services.CodeOf(err) {
	case services.CodeInvalidArgument:
		utils.BadRequestResponse(c, message, nil)
	case services.CodeUnauthenticated, services.CodeUnauthorized:
		utils.UnauthorizedResponse(c, message)
	case services.CodeNotFound:
		utils.NotFoundResponse(c, resource)
	case services.CodeFailedPrecondition:
		utils.ConflictResponse(c, message)
	case services.CodeExpired:
		utils.GoneResponse(c, message)
	case services.CodeAlreadyProcessed:
		utils.ErrorResponse(c, http.StatusOK, "ALREADY_PROCESSED", message, nil)
	default:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err,
		}).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// parseID reads the :id path parameter, answering 400 when it is not a UUID.
func parseID(c *gin.Context, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, resource+" ID"), nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates a request body.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}
