package handler

import (
	"errors"
	"log"

	"github.com/brothersgym/backoffice/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDuplicatePhone),
		errors.Is(err, domain.ErrDuplicateEmail):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrTokenInvalid):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrInconsistentState):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// respondError writes {"error": ...}. Internal errors are logged and not echoed.
// Inconsistent membership data is logged and still reported to the caller.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if errors.Is(err, domain.ErrInconsistentState) {
		log.Printf("[API] data integrity violation on %s %s: %v", c.Method(), c.Path(), err)
	}
	if status == fiber.StatusInternalServerError {
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
		msg = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
