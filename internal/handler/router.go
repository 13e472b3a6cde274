package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// RegisterRoutes mounts the API under /server, health probes at the root
// and, when metrics is non-nil, the Prometheus endpoint at /metrics.
func RegisterRoutes(app *fiber.App,
	cards *CardHandler,
	embeddings *EmbeddingHandler,
	health *HealthHandler,
	metrics http.Handler,
) {
	api := app.Group("/server")
	cards.Register(api)
	embeddings.Register(api)

	health.Register(app)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}
