package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/dto"
)

// ErrorHandler is a middleware that handles errors and panics
func ErrorHandler(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"panic":      err,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString(RequestIDKey),
				}).Error("Recovered from panic")
				c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
					Error:   "Internal Server Error",
					Message: "An unexpected error occurred",
					Code:    "INTERNAL_ERROR",
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			statusCode, code := StatusForError(err)

			c.JSON(statusCode, dto.ErrorResponse{
				Error:   http.StatusText(statusCode),
				Message: err.Error(),
				Code:    code,
			})
		}
	}
}

// StatusForError maps a domain error to an HTTP status and error code
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrUnknownField):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, state.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, daginfo.ErrAlreadyTriggered):
		return http.StatusConflict, "ALREADY_TRIGGERED"
	case errors.Is(err, daginfo.ErrStatusConflict):
		return http.StatusConflict, "STATUS_CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// AbortWithDomainError aborts with the status StatusForError picks for err
func AbortWithDomainError(c *gin.Context, err error) {
	statusCode, code := StatusForError(err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "An unexpected error occurred"
	}
	AbortWithError(c, statusCode, code, message)
}

// AbortWithError is a helper function to abort with a specific error
func AbortWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
	})
	c.Abort()
}

// AbortWithErrorDetails is a helper function to abort with error details
func AbortWithErrorDetails(c *gin.Context, statusCode int, code, message string, details map[string]interface{}) {
	c.JSON(statusCode, dto.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
		Details: details,
	})
	c.Abort()
}
