// Package middleware holds the fiber middleware shared by all routes.
package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the per-request id; an incoming value is reused.
const RequestIDHeader = "X-Request-ID"

// RequestObserver receives one call per finished request.
type RequestObserver interface {
	ObserveRequest(method, route, status string, elapsed time.Duration)
}

// Logging assigns a request id, logs one line per request and reports it to
// observer (which may be nil). Handler errors are rendered here through the
// app's ErrorHandler so the logged status is the one the client sees.
func Logging(log *zap.Logger, observer RequestObserver) fiber.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Locals("requestid", id)

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		elapsed := time.Since(start)
		status := c.Response().StatusCode()
		route := c.Route().Path

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= fiber.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}

		if observer != nil {
			observer.ObserveRequest(c.Method(), route, strconv.Itoa(status), elapsed)
		}
		return nil
	}
}
