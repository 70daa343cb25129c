// internal/middleware/cron.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/broadcast-backend/internal/i18n"
	"github.com/javajoker/broadcast-backend/internal/utils"
)

// CronSecretRequired guards internal endpoints called by the scheduler. The
// bearer token is checked against a bcrypt hash. An empty hash rejects every
// call.
func CronSecretRequired(secretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || !utils.CheckSecret(secretHash, token) {
			utils.UnauthorizedResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyCronSecret))
			c.Abort()
			return
		}
		c.Next()
	}
}
