package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"github.com/supabase-community/postgrest-go"
)

const (
	cardColumns  = "id,card_name,repo_url,tags,user_email,user_name,product_description,stars,forks,language,open_issues,created_at"
	issueColumns = "id,card_id,github_id,number,title,description,link,issue_tags,image"
)

// PostgrestClient is the query entry point shared by *supabase.Client and
// *postgrest.Client.
type PostgrestClient interface {
	From(table string) *postgrest.QueryBuilder
}

// SupabaseCardRepository stores cards and issues through the Supabase REST
// (PostgREST) API. Embedding columns are written but never selected back.
type SupabaseCardRepository struct {
	client PostgrestClient
}

// NewSupabaseCardRepository wires the "cards" and "issues" tables.
func NewSupabaseCardRepository(client PostgrestClient) *SupabaseCardRepository {
	return &SupabaseCardRepository{client: client}
}

// cardRow is the insert payload; id and created_at are store defaults.
type cardRow struct {
	CardName           string    `json:"card_name"`
	RepoURL            string    `json:"repo_url"`
	Tags               []string  `json:"tags"`
	UserEmail          string    `json:"user_email"`
	UserName           string    `json:"user_name"`
	ProductDescription string    `json:"product_description"`
	Stars              int       `json:"stars"`
	Forks              int       `json:"forks"`
	Language           string    `json:"language"`
	OpenIssues         int       `json:"open_issues"`
	Embedding          []float32 `json:"embedding"`
}

type issueRow struct {
	CardID      int64     `json:"card_id"`
	GitHubID    int64     `json:"github_id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	IssueTags   []string  `json:"issue_tags"`
	Image       *string   `json:"image"`
	Embedding   []float32 `json:"embedding"`
}

// InsertCard inserts one row and returns the id PostgREST reports back.
func (r *SupabaseCardRepository) InsertCard(ctx context.Context, c *models.Card) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	row := cardRow{
		CardName:           c.CardName,
		RepoURL:            c.RepoURL,
		Tags:               c.Tags,
		UserEmail:          c.UserEmail,
		UserName:           c.UserName,
		ProductDescription: c.ProductDescription,
		Stars:              c.Stars,
		Forks:              c.Forks,
		Language:           c.Language,
		OpenIssues:         c.OpenIssues,
		Embedding:          c.Embedding,
	}

	var inserted []struct {
		ID        int64     `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	_, err := r.client.From("cards").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	if len(inserted) == 0 {
		return 0, errors.New("insert card: no row returned")
	}
	c.ID, c.CreatedAt = inserted[0].ID, inserted[0].CreatedAt
	return c.ID, nil
}

// InsertIssues writes all issues in a single request.
func (r *SupabaseCardRepository) InsertIssues(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]issueRow, len(issues))
	for i, it := range issues {
		rows[i] = issueRow{
			CardID:      it.CardID,
			GitHubID:    it.GitHubID,
			Number:      it.Number,
			Title:       it.Title,
			Description: it.Description,
			Link:        it.Link,
			IssueTags:   it.IssueTags,
			Image:       it.Image,
			Embedding:   it.Embedding,
		}
	}
	_, _, err := r.client.From("issues").
		Insert(rows, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert issues: %w", err)
	}
	return nil
}

func (r *SupabaseCardRepository) ListCards(ctx context.Context) ([]models.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cards := []models.Card{}
	_, err := r.client.From("cards").
		Select(cardColumns, "", false).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&cards)
	return cards, err
}

func (r *SupabaseCardRepository) ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cards := []models.Card{}
	_, err := r.client.From("cards").
		Select(cardColumns, "", false).
		Eq("user_email", email).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&cards)
	return cards, err
}

// GetCard returns service.ErrCardNotFound when no row matches.
func (r *SupabaseCardRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cards []models.Card
	_, err := r.client.From("cards").
		Select(cardColumns, "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		Limit(1, "").
		ExecuteTo(&cards)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, service.ErrCardNotFound
	}
	return &cards[0], nil
}

func (r *SupabaseCardRepository) ListIssuesByCard(ctx context.Context, cardID int64) ([]models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	issues := []models.Issue{}
	_, err := r.client.From("issues").
		Select(issueColumns, "", false).
		Eq("card_id", strconv.FormatInt(cardID, 10)).
		Order("id", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&issues)
	return issues, err
}

// Ping issues a head-only count on cards.
func (r *SupabaseCardRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := r.client.From("cards").
		Select("id", "exact", true).
		Limit(1, "").
		Execute()
	return err
}
