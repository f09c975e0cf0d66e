package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/api/middleware"
	"github.com/feral-file/ff-collection-bridge/internal/api/shared/errors"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, errors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, errors.NewNotFoundError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, errors.NewValidationError(message))
}

// respondError responds with the API error matching err. Server side errors are logged.
func respondError(c *gin.Context, err error, message string) {
	status, apiErr := errors.FromError(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), err,
			zap.String("message", message),
			zap.String("request_id", middleware.RequestIDFrom(c)),
		)
		apiErr.Message = message
	}
	c.JSON(status, apiErr)
}
