package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
)

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"code":    apperr.KindInvalidInput,
		"errors":  errs,
	})
}

func ok(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// ErrorHandler renders every error returned by a handler as the JSON
// envelope. Causes of internal errors are logged and never sent.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		kind := apperr.KindInternal
		message := "internal server error"

		var ae *apperr.Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &ae):
			kind = ae.Kind
			status = kind.Status()
			message = apperr.MessageOf(ae)
		case errors.As(err, &fe):
			status = fe.Code
			message = fe.Message
			kind = kindForStatus(fe.Code)
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": message,
			"code":    kind,
		})
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case fiber.StatusUnauthorized:
		return apperr.KindUnauthorized
	case fiber.StatusForbidden:
		return apperr.KindForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case fiber.StatusConflict:
		return apperr.KindConflict
	case fiber.StatusUnsupportedMediaType:
		return apperr.KindInvalidFileType
	case fiber.StatusRequestEntityTooLarge:
		return apperr.KindTooLarge
	}
	if status >= 400 && status < 500 {
		return apperr.KindInvalidInput
	}
	return apperr.KindInternal
}
