package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RequestLogger logs every request with its status and timing. It runs
// after the error handler has written the response, so the status is final.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	logger = logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// let the app's error handler set the response before logging it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.IP()).
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Msg("http request")
		return nil
	}
}
