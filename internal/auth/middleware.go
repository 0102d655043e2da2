// Package auth protects the admin surface with a shared secret.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminSecret carries the admin secret on admin requests.
const HeaderAdminSecret = "X-Admin-Secret"

// RequireAdmin rejects requests whose X-Admin-Secret header does not match
// secret. An empty secret disables the check, which is only acceptable in
// development; production deployments must set ADMIN_SECRET.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(HeaderAdminSecret)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}

		c.Next()
	}
}
