package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
	"github.com/noah-isme/voxen-api/pkg/response"
)

// RBAC rejects callers whose role holds none of the capabilities. Record level
// scoping stays with the services.
func RBAC(caps ...models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, capability := range caps {
			if actor.Can(capability) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions"))
		c.Abort()
	}
}
