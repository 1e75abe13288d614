package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Annany2002/odkx-manager/api/models"
	"github.com/Annany2002/odkx-manager/internal/transport"
)

// ServerURLKey is the context key holding the validated remote origin.
const ServerURLKey = "odkServerURL"

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequireServerURL rejects requests without a usable odkserverurl header.
func RequireServerURL() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(transport.ServerURLHeader))
		if raw == "" {
			_ = c.Error(models.ErrNoServerURL)
			c.Abort()
			return
		}

		if err := validate.Var(raw, "url"); err != nil {
			customLog.Warnf("RequireServerURL: rejected '%s': %v", raw, err)
			_ = c.Error(models.ErrInvalidServerURL)
			c.Abort()
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			_ = c.Error(models.ErrInvalidServerURL)
			c.Abort()
			return
		}

		c.Set(ServerURLKey, strings.TrimRight(raw, "/"))
		c.Next()
	}
}
