package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

// actorFromContext resolves the authenticated actor placed by the JWT middleware.
func actorFromContext(c *gin.Context) (models.Actor, error) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	return actor, nil
}

func optionalBool(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Validation("invalid query parameters", fmt.Sprintf("%s must be true or false", key))
	}
	return &value, nil
}

func optionalInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Validation("invalid query parameters", fmt.Sprintf("%s must be a number", key))
	}
	return value, nil
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation, message)
}
