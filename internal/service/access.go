package service

import (
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

// Clock resolves "today" on the school calendar.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Today returns the current calendar date as midnight UTC.
func (c Clock) Today() time.Time {
	return billing.DateOf(c.now(), c.Location)
}

// Current returns the calendar month today falls in.
func (c Clock) Current() billing.Period {
	return billing.PeriodOf(c.Today())
}

// authorize resolves the scope an actor holds for a capability, failing with
// FORBIDDEN before any data is read.
func authorize(actor models.Actor, c models.Capability) (models.Scope, error) {
	scope, ok := actor.Scope(c)
	if !ok {
		return models.Scope{}, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	return scope, nil
}

// lookupError maps sql.ErrNoRows to NOT_FOUND and passes typed errors through.
func lookupError(err error, notFound, failure string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	return appErrors.Internal(err, failure)
}

// NewValidator returns a validator that reports fields by their JSON name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describeValidation flattens validator errors into one message per field.
func describeValidation(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	return lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		if fe.Param() != "" {
			return fe.Field() + " failed " + fe.Tag() + "=" + fe.Param()
		}
		return fe.Field() + " failed " + fe.Tag()
	})
}
