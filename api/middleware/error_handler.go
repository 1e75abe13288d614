// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Annany2002/odkx-manager/api/models"
	"github.com/Annany2002/odkx-manager/internal/logger"
)

var customLog = logger.NewLogger()

// ErrorHandler creates a Gin middleware for centralized error handling.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// Only the last error decides the response.
		err := c.Errors.Last().Err
		customLog.Debugf("[ErrorHandler] Detected error: %v | Type: %T", err, err)

		var statusCode int
		var userMessage string

		var validationErrs validator.ValidationErrors
		switch {
		case errors.Is(err, models.ErrNoServerURL):
			statusCode = http.StatusBadRequest
			userMessage = "No server url provided"
		case errors.Is(err, models.ErrInvalidServerURL):
			statusCode = http.StatusBadRequest
			userMessage = models.ErrInvalidServerURL.Error()
		case errors.Is(err, models.ErrRateLimited):
			statusCode = http.StatusTooManyRequests
			userMessage = "Too many requests. Please wait."
		case errors.Is(err, models.ErrUpstreamTimeout):
			statusCode = http.StatusGatewayTimeout
			userMessage = models.ErrUpstreamTimeout.Error()
		case errors.Is(err, models.ErrUpstreamUnreachable):
			statusCode = http.StatusBadGateway
			userMessage = models.ErrUpstreamUnreachable.Error()
		case errors.As(err, &validationErrs):
			statusCode = http.StatusBadRequest
			userMessage = "Validation failed. Please check your input."
			for _, fe := range validationErrs {
				customLog.Debugf("Validation Error: Field %s failed on %s", fe.Field(), fe.Tag())
			}
		default:
			statusCode = http.StatusInternalServerError
			userMessage = "An unexpected internal server error occurred."
			customLog.Errorf("Unhandled error type: %T, Error: %v", err, err)
		}

		if !c.Writer.Written() {
			c.AbortWithStatusJSON(statusCode, models.Envelope{Status: statusCode, Message: userMessage})
		} else {
			customLog.Warnln("[ErrorHandler] Warning: Response already written before handling error.")
		}
	}
}
