// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/services"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

// respondError maps a service error onto the API envelope. resource names
// the entity for not-found messages ("broadcast" or "request").
func respondError(c *gin.Context, log *logrus.Logger, resource string, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.Is(err, services.ErrPrecondition):
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR",
			i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, "")
	// too-late wraps invalid-state, so it is matched first
	case errors.Is(err, services.ErrTooLateToQuote):
		utils.ConflictResponse(c, "TOO_LATE_TO_QUOTE", i18n.T(lang, i18n.KeyTooLateToQuote))
	case errors.Is(err, services.ErrInvalidState):
		utils.ConflictResponse(c, "INVALID_STATE", i18n.T(lang, i18n.KeyInvalidState))
	case errors.Is(err, services.ErrStaleQuote):
		utils.ConflictResponse(c, "STALE_QUOTE", i18n.T(lang, i18n.KeyStaleQuote))
	case errors.Is(err, services.ErrRaceLost):
		utils.ConflictResponse(c, "ALREADY_RESOLVED", i18n.T(lang, i18n.KeyAlreadyResolved))
	default:
		log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// currentActor reads the identity set by the auth middleware.
func currentActor(c *gin.Context) (services.Actor, bool) {
	userIDStr, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return services.Actor{}, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.UnauthorizedResponse(c, "")
		return services.Actor{}, false
	}
	userType, _ := utils.GetUserTypeFromContext(c)
	return services.Actor{ID: userID, Type: models.UserType(userType)}, true
}

func parseID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyInvalidID, resource), nil)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes and validates the body. An empty body is accepted for
// requests whose fields are all optional.
func bindJSON(c *gin.Context, req interface{}, allowEmpty bool) bool {
	lang := utils.GetLangFromContext(c)
	if allowEmpty && c.Request.ContentLength == 0 {
		return true
	}
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
