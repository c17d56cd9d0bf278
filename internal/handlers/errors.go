package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"storefront/internal/models"
)

const internalErrorMessage = "internal server error"

// ErrorHandler is the fiber.Config ErrorHandler. It maps the error taxonomy
// to status codes and writes a models.ErrorResponse.
func ErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	logger = logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx, err error) error {
		status, resp := errorResponse(err)
		resp.RequestID = c.GetRespHeader(fiber.HeaderXRequestID)

		event := logger.Warn()
		if status >= fiber.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("request_id", resp.RequestID).
			Msg("request failed")

		return c.Status(status).JSON(resp)
	}
}

func errorResponse(err error) (int, models.ErrorResponse) {
	var fieldErrs models.FieldErrors
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &fieldErrs):
		return fiber.StatusBadRequest, models.ErrorResponse{
			Error:   models.ErrCodeValidation,
			Message: "validation failed",
			Fields:  fieldErrs,
		}
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest, models.ErrorResponse{Error: models.ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrForeignKey):
		return fiber.StatusBadRequest, models.ErrorResponse{Error: models.ErrCodeForeignKey, Message: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound, models.ErrorResponse{Error: models.ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrConflict):
		return fiber.StatusConflict, models.ErrorResponse{Error: models.ErrCodeConflict, Message: err.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusUnauthorized, models.ErrorResponse{Error: models.ErrCodeUnauthorized, Message: err.Error()}
	case errors.As(err, &fiberErr):
		if fiberErr.Code >= fiber.StatusInternalServerError {
			break
		}
		return fiberErr.Code, models.ErrorResponse{Error: codeForStatus(fiberErr.Code), Message: fiberErr.Message}
	}
	return fiber.StatusInternalServerError, models.ErrorResponse{Error: models.ErrCodeInternal, Message: internalErrorMessage}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return models.ErrCodeNotFound
	case fiber.StatusUnauthorized:
		return models.ErrCodeUnauthorized
	case fiber.StatusConflict:
		return models.ErrCodeConflict
	case fiber.StatusBadRequest:
		return models.ErrCodeValidation
	}
	return models.ErrCodeRequest
}
