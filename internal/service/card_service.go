package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmednasr/oss-hub/server/internal/auth"
	"github.com/ahmednasr/oss-hub/server/internal/github"
	"github.com/ahmednasr/oss-hub/server/internal/markdown"
	"github.com/ahmednasr/oss-hub/server/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidRequest is returned when an add-card request lacks a field.
	ErrInvalidRequest = errors.New("repo_url, product_description, tags, and auth token are required")
	// ErrCardNotFound is returned by stores when no card has the given id.
	ErrCardNotFound = errors.New("card not found")
)

// ---- Collaborator interfaces -----------------------------------------------

// CardRepository persists cards and their issues.
type CardRepository interface {
	// InsertCard stores card and returns the id assigned by the store.
	InsertCard(ctx context.Context, card *models.Card) (int64, error)
	// InsertIssues bulk-inserts issues of one card.
	InsertIssues(ctx context.Context, issues []models.Issue) error
	ListCards(ctx context.Context) ([]models.Card, error)
	ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error)
	// GetCard returns ErrCardNotFound when id is unknown.
	GetCard(ctx context.Context, id int64) (*models.Card, error)
	// ListIssuesByCard returns the card's issues ordered by id, newest first.
	ListIssuesByCard(ctx context.Context, cardID int64) ([]models.Issue, error)
	Ping(ctx context.Context) error
}

// GitHubAPI is the read side of the GitHub client.
type GitHubAPI interface {
	FetchRepoMetadata(ctx context.Context, owner, repo string) (github.RepoMetadata, error)
	FetchDominantLanguage(ctx context.Context, owner, repo string) (string, error)
	FetchAllIssues(ctx context.Context, owner, repo string) ([]github.Issue, error)
}

// WebhookRegistrar creates issue webhooks with a user's delegated token.
type WebhookRegistrar interface {
	CreateIssueWebhook(ctx context.Context, delegatedToken, owner, repo string, cfg github.WebhookConfig) (int64, error)
}

// TextEmbedder returns an embedding or nil when none could be produced.
// *EmbeddingProvider satisfies it.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// OnboardingObserver receives a summary of every persisted card.
type OnboardingObserver interface {
	ObserveOnboarding(issuesPersisted, embeddingFailures int, webhookOutcome string)
}

// ---- Service interface + implementation ------------------------------------

// CardService onboards repositories as cards and serves them back.
type CardService interface {
	AddCard(ctx context.Context, caller auth.Identity, req models.AddCardRequest) (models.AddCardResult, error)
	ListCards(ctx context.Context) ([]models.Card, error)
	ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error)
	GetCardWithIssues(ctx context.Context, id int64) (*models.CardWithIssues, error)
}

// CardServiceConfig carries the tunables of the onboarding workflow.
type CardServiceConfig struct {
	Webhook github.WebhookConfig
	// Concurrency bounds in-flight issue embedding calls.
	Concurrency int
}

type cardService struct {
	repo     CardRepository
	gh       GitHubAPI
	hooks    WebhookRegistrar
	embedder TextEmbedder
	observer OnboardingObserver
	cfg      CardServiceConfig
	log      *zap.Logger
}

// NewCardService returns a concrete implementation. observer may be nil.
func NewCardService(
	repo CardRepository,
	gh GitHubAPI,
	hooks WebhookRegistrar,
	embedder TextEmbedder,
	observer OnboardingObserver,
	cfg CardServiceConfig,
	log *zap.Logger,
) CardService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &cardService{
		repo:     repo,
		gh:       gh,
		hooks:    hooks,
		embedder: embedder,
		observer: observer,
		cfg:      cfg,
		log:      log.Named("cards"),
	}
}

// AddCard runs the onboarding workflow: resolve the repository, fetch its
// metadata and open issues, embed, persist, then register the issue webhook.
// Errors returned before the card is stored mean nothing was written. Once
// the card exists the result is always returned, with the webhook step's
// outcome recorded in it.
func (s *cardService) AddCard(ctx context.Context, caller auth.Identity, req models.AddCardRequest) (models.AddCardResult, error) {
	if strings.TrimSpace(req.RepoURL) == "" || strings.TrimSpace(req.ProductDescription) == "" || len(req.Tags) == 0 {
		return models.AddCardResult{}, ErrInvalidRequest
	}

	owner, name, err := github.ParseRepoURL(req.RepoURL)
	if err != nil {
		return models.AddCardResult{}, err
	}
	log := s.log.With(zap.String("repo", owner+"/"+name), zap.String("user", caller.Email))

	// 1. Repository facts.
	meta, err := s.gh.FetchRepoMetadata(ctx, owner, name)
	if err != nil {
		return models.AddCardResult{}, fmt.Errorf("fetch repository: %w", err)
	}
	language, err := s.gh.FetchDominantLanguage(ctx, owner, name)
	if err != nil {
		return models.AddCardResult{}, fmt.Errorf("fetch languages: %w", err)
	}
	raw, err := s.gh.FetchAllIssues(ctx, owner, name)
	if err != nil {
		return models.AddCardResult{}, err
	}
	issues := make([]github.Issue, 0, len(raw))
	for _, it := range raw {
		if !it.PullRequest {
			issues = append(issues, it)
		}
	}
	log.Info("fetched repository", zap.Int("issues", len(issues)), zap.Int("pull_requests", len(raw)-len(issues)))

	// 2. Card.
	card := &models.Card{
		CardName:           name,
		RepoURL:            req.RepoURL,
		Tags:               req.Tags,
		UserEmail:          caller.Email,
		UserName:           caller.Name,
		ProductDescription: req.ProductDescription,
		Stars:              meta.Stars,
		Forks:              meta.Forks,
		Language:           language,
		OpenIssues:         len(issues),
		Embedding:          s.embedder.Embed(ctx, name+"\n"+meta.Description+"\n"+req.ProductDescription),
	}
	failures := 0
	if card.Embedding == nil {
		failures++
		log.Warn("card stored without embedding")
	}

	cardID, err := s.repo.InsertCard(ctx, card)
	if err != nil {
		return models.AddCardResult{}, fmt.Errorf("insert card: %w", err)
	}
	if cardID == 0 {
		return models.AddCardResult{}, errors.New("insert card: store returned no id")
	}

	// 3. Issues.
	rows, failed := s.embedIssues(ctx, cardID, issues)
	failures += failed
	if len(rows) > 0 {
		if err := s.repo.InsertIssues(ctx, rows); err != nil {
			return models.AddCardResult{}, fmt.Errorf("insert issues: %w", err)
		}
	}

	// 4. Webhook.
	result := models.AddCardResult{CardID: cardID, IssuesCount: len(rows)}
	result.Webhook, result.WebhookErr = s.registerWebhook(ctx, caller.AccessToken, owner, name)

	log.Info("card onboarded",
		zap.Int64("card_id", cardID),
		zap.Int("issues_persisted", len(rows)),
		zap.Int("embedding_failures", failures),
		zap.Stringer("webhook", result.Webhook),
	)
	if s.observer != nil {
		s.observer.ObserveOnboarding(len(rows), failures, result.Webhook.String())
	}
	return result, nil
}

// embedIssues computes issue embeddings with at most cfg.Concurrency calls in
// flight and returns the rows that got one, in fetch order.
func (s *cardService) embedIssues(ctx context.Context, cardID int64, issues []github.Issue) ([]models.Issue, int) {
	vectors := make([][]float32, len(issues))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, it := range issues {
		g.Go(func() error {
			vectors[i] = s.embedder.Embed(ctx, it.Title+"\n"+it.Body)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	rows := make([]models.Issue, 0, len(issues))
	for i, it := range issues {
		if vectors[i] == nil {
			failed++
			continue
		}
		rows = append(rows, models.Issue{
			CardID:      cardID,
			GitHubID:    it.ID,
			Number:      it.Number,
			Title:       it.Title,
			Description: it.Body,
			Link:        it.HTMLURL,
			IssueTags:   it.Labels,
			Image:       markdown.FirstImage(it.Body),
			Embedding:   vectors[i],
		})
	}
	return rows, failed
}

func (s *cardService) registerWebhook(ctx context.Context, token, owner, name string) (models.WebhookOutcome, error) {
	if s.cfg.Webhook.URL == "" || s.hooks == nil {
		return models.WebhookSkipped, nil
	}

	_, err := s.hooks.CreateIssueWebhook(ctx, token, owner, name, s.cfg.Webhook)
	switch {
	case err == nil:
		return models.WebhookCreated, nil
	case errors.Is(err, github.ErrHookExists):
		return models.WebhookAlreadyExists, nil
	case github.IsUnauthorized(err):
		s.log.Info("webhook credential rejected", zap.Error(err))
		return models.WebhookCredentialExpired, err
	default:
		s.log.Error("webhook registration failed", zap.Error(err))
		return models.WebhookFailed, err
	}
}

// ---- Queries ----------------------------------------------------------------

func (s *cardService) ListCards(ctx context.Context) ([]models.Card, error) {
	return s.repo.ListCards(ctx)
}

func (s *cardService) ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error) {
	return s.repo.ListCardsByEmail(ctx, email)
}

// GetCardWithIssues returns the card merged with its issues, newest first.
func (s *cardService) GetCardWithIssues(ctx context.Context, id int64) (*models.CardWithIssues, error) {
	card, err := s.repo.GetCard(ctx, id)
	if err != nil {
		return nil, err
	}
	issues, err := s.repo.ListIssuesByCard(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	return &models.CardWithIssues{Card: *card, Issues: issues}, nil
}
