package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
	"github.com/noah-isme/voxen-api/pkg/response"
)

const actorKey = "auth_actor"

// TokenValidator resolves a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT admits requests carrying a valid access token and records the caller
// as an Actor for the handlers behind it.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var claims *models.JWTClaims
			if claims, err = tokens.ValidateToken(token); err == nil {
				Authenticate(c, claims)
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", `Bearer realm="voxen"`)
		response.Error(c, err)
		c.Abort()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return token, nil
}

// Authenticate attaches the caller described by validated claims.
func Authenticate(c *gin.Context, claims *models.JWTClaims) {
	c.Set(actorKey, claims.Actor())
}

// CurrentActor returns the caller resolved by JWT.
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := c.Value(actorKey).(models.Actor)
	return actor, ok && actor.UserID != ""
}
