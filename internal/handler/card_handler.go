package handler

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/ahmednasr/oss-hub/server/internal/auth"
	"github.com/ahmednasr/oss-hub/server/internal/github"
	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const (
	msgCardAdded        = "Card added with GitHub issues"
	msgCardAddedHookSet = "Card added with GitHub issues; webhook already registered"
	msgTokenExpired     = "GitHub access token expired; please sign in again"
)

// CardHandler wires HTTP → CardService.
type CardHandler struct {
	svc      service.CardService
	verifier auth.TokenVerifier
	validate *validator.Validate
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(svc service.CardService, verifier auth.TokenVerifier) *CardHandler {
	return &CardHandler{svc: svc, verifier: verifier, validate: validator.New()}
}

// Register mounts the card routes on the supplied router group.
func (h *CardHandler) Register(r fiber.Router) {
	r.Post("/add-card", h.addCard)
	r.Get("/fetch-card", h.listCards)
	r.Get("/fetch-user-cards", h.listUserCards)
	r.Get("/fetch-card-des/:id", h.getCard)
}

// addCard handles POST /add-card
func (h *CardHandler) addCard(c *fiber.Ctx) error {
	var req models.AddCardRequest
	token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if err := c.BodyParser(&req); err != nil || h.validate.Struct(req) != nil || token == "" {
		return fiber.NewError(fiber.StatusBadRequest, service.ErrInvalidRequest.Error())
	}

	caller, err := h.verifier.Verify(token)
	if err != nil {
		return authError(err)
	}

	res, err := h.svc.AddCard(c.UserContext(), caller, req)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, github.ErrInvalidRepoURL):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid GitHub repository URL")
	case github.IsRateLimited(err):
		setRetryAfter(c, err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	switch res.Webhook {
	case models.WebhookAlreadyExists:
		return c.JSON(fiber.Map{"message": msgCardAddedHookSet, "issuesCount": res.IssuesCount})
	case models.WebhookCredentialExpired:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": msgTokenExpired, "issuesCount": res.IssuesCount})
	case models.WebhookFailed:
		msg := "webhook registration failed"
		if res.WebhookErr != nil {
			msg = res.WebhookErr.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg, "issuesCount": res.IssuesCount})
	default:
		return c.JSON(fiber.Map{"message": msgCardAdded, "issuesCount": res.IssuesCount})
	}
}

// listCards handles GET /fetch-card
func (h *CardHandler) listCards(c *fiber.Ctx) error {
	cards, err := h.svc.ListCards(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"data": nonNilCards(cards)})
}

// listUserCards handles GET /fetch-user-cards
func (h *CardHandler) listUserCards(c *fiber.Ctx) error {
	token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	caller, err := h.verifier.Verify(token)
	if err != nil {
		return authError(err)
	}

	cards, err := h.svc.ListCardsByEmail(c.UserContext(), caller.Email)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"data": nonNilCards(cards)})
}

// getCard handles GET /fetch-card-des/:id
func (h *CardHandler) getCard(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid ID format")
	}

	card, err := h.svc.GetCardWithIssues(c.UserContext(), id)
	if errors.Is(err, service.ErrCardNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Card not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"data": card})
}

func authError(err error) error {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return fiber.NewError(fiber.StatusUnauthorized, "Authorization token required")
	case errors.Is(err, auth.ErrExpiredToken):
		return fiber.NewError(fiber.StatusUnauthorized, "Token expired")
	default:
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}
}

// setRetryAfter tells the client when GitHub's quota resets.
func setRetryAfter(c *fiber.Ctx, err error) {
	var rl *github.RateLimitError
	if !errors.As(err, &rl) || rl.ResetAt.IsZero() {
		return
	}
	secs := int64(math.Ceil(time.Until(rl.ResetAt).Seconds()))
	c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(max(secs, 1), 10))
}

func nonNilCards(cards []models.Card) []models.Card {
	if cards == nil {
		return []models.Card{}
	}
	return cards
}
