package handler

import (
	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// EmbeddingHandler exposes the embedding provider directly.
type EmbeddingHandler struct {
	embedder service.TextEmbedder
	validate *validator.Validate
}

func NewEmbeddingHandler(embedder service.TextEmbedder) *EmbeddingHandler {
	return &EmbeddingHandler{embedder: embedder, validate: validator.New()}
}

// Register mounts POST /generate-embedding.
func (h *EmbeddingHandler) Register(r fiber.Router) {
	r.Post("/generate-embedding", h.generate)
}

func (h *EmbeddingHandler) generate(c *fiber.Ctx) error {
	var req models.EmbeddingRequest
	if err := c.BodyParser(&req); err != nil || h.validate.Struct(req) != nil || *req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required and must be a string")
	}

	vec := h.embedder.Embed(c.UserContext(), *req.Text)
	if vec == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate embedding")
	}
	return c.JSON(fiber.Map{"embedding": vec})
}
