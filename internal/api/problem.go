package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	}, "application/problem+json")
}

func badRequest(c *fiber.Ctx, detail string) error {
	return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", detail)
}

// storeError maps a store error onto a problem response.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, jerrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, jerrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_request", "Bad Request", err.Error())
	case errors.Is(err, jerrors.ErrConflict):
		return problemResponse(c, fiber.StatusConflict, "conflict", "Conflict", err.Error())
	}
	return err
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		detail := err.Error()
		if code >= fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Int("status", code).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unhandled error")
			// Internal details stay in the log.
			detail = "An internal error occurred"
		}

		return problemResponse(c, code, "http_error", utils.StatusMessage(code), detail)
	}
}
