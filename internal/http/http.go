// Package http contains the admin JSON API handlers. Every handler in this
// package runs behind the session middleware except where noted; request
// bodies are validated with go-playground/validator before touching the
// database, and all list/show/update/delete queries are scoped to the
// session user.
package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/pkg/geo"
)

var validate = validator.New()

// resolver is the process-wide geolocation resolver, set during route mounting.
var resolver *geo.Resolver

// SetResolver installs the geolocation resolver used by the settings handlers.
func SetResolver(r *geo.Resolver) {
	resolver = r
}

// currentUserID returns the authenticated user's ID, or replies 401 and
// returns false when the session is missing.
func currentUserID(ctx *cartridge.Context) (uint, bool) {
	userID, authenticated := ctx.Session.GetUserID(ctx.Ctx)
	if !authenticated {
		_ = ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
		return 0, false
	}
	return userID, true
}

// paramID parses the :id route parameter as an unsigned integer.
func paramID(ctx *cartridge.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

// validationMessage flattens validator errors into a single readable string.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		switch fieldErr.Tag() {
		case "required":
			parts = append(parts, fieldErr.Field()+" is required")
		case "oneof":
			parts = append(parts, fieldErr.Field()+" must be one of: "+fieldErr.Param())
		case "min":
			parts = append(parts, fieldErr.Field()+" must be at least "+fieldErr.Param()+" characters")
		case "max":
			parts = append(parts, fieldErr.Field()+" must be at most "+fieldErr.Param()+" characters")
		default:
			parts = append(parts, fieldErr.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
