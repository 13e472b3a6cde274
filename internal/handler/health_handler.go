package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything whose reachability /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/ping", h.ping)
	r.Get("/health", h.health)
}

func (h *HealthHandler) ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	store := h.checkStore(c.UserContext())
	if store == "error" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "store": store})
	}
	return c.JSON(fiber.Map{"status": "ok", "store": store})
}

func (h *HealthHandler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return "error"
	}
	return "connected"
}
