package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

//go:embed schema.sql
var schemaSQL string

// PostgresCardRepository talks to the same cards/issues schema directly over
// pgx, for deployments that run their own Postgres with pgvector.
type PostgresCardRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresCardRepository wraps pool. timeout bounds every statement; zero
// leaves the caller's context alone.
func NewPostgresCardRepository(pool *pgxpool.Pool, timeout time.Duration) *PostgresCardRepository {
	return &PostgresCardRepository{pool: pool, timeout: timeout}
}

// Migrate creates the tables and indexes if they do not exist.
func (r *PostgresCardRepository) Migrate(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *PostgresCardRepository) InsertCard(ctx context.Context, c *models.Card) (int64, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO cards (card_name, repo_url, tags, user_email, user_name, product_description,
		                   stars, forks, language, open_issues, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector)
		RETURNING id, created_at`,
		c.CardName, c.RepoURL, nonNil(c.Tags), c.UserEmail, c.UserName, c.ProductDescription,
		c.Stars, c.Forks, c.Language, c.OpenIssues, embeddingParam(c.Embedding),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return c.ID, nil
}

// InsertIssues writes all rows in one batch inside a transaction.
func (r *PostgresCardRepository) InsertIssues(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range issues {
			batch.Queue(`
				INSERT INTO issues (card_id, github_id, number, title, description, link, issue_tags, image, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector)`,
				it.CardID, it.GitHubID, it.Number, it.Title, it.Description, it.Link,
				nonNil(it.IssueTags), it.Image, embeddingParam(it.Embedding),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert issues: %w", err)
		}
		return nil
	})
}

const selectCards = `
	SELECT id, card_name, repo_url, tags, user_email, user_name, product_description,
	       stars, forks, language, open_issues, created_at
	FROM cards`

func (r *PostgresCardRepository) ListCards(ctx context.Context) ([]models.Card, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.queryCards(ctx, selectCards+` ORDER BY id`)
}

func (r *PostgresCardRepository) ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.queryCards(ctx, selectCards+` WHERE user_email = $1 ORDER BY id`, email)
}

func (r *PostgresCardRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	cards, err := r.queryCards(ctx, selectCards+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, service.ErrCardNotFound
	}
	return &cards[0], nil
}

func (r *PostgresCardRepository) ListIssuesByCard(ctx context.Context, cardID int64) ([]models.Issue, error) {
	ctx, cancel := r.opContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, card_id, github_id, number, title, description, link, issue_tags, image
		FROM issues
		WHERE card_id = $1
		ORDER BY id DESC`, cardID)
	if err != nil {
		return nil, err
	}
	issues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Issue, error) {
		var it models.Issue
		err := row.Scan(&it.ID, &it.CardID, &it.GitHubID, &it.Number, &it.Title,
			&it.Description, &it.Link, &it.IssueTags, &it.Image)
		return it, err
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *PostgresCardRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.opContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *PostgresCardRepository) queryCards(ctx context.Context, sql string, args ...any) ([]models.Card, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Card, error) {
		var c models.Card
		err := row.Scan(&c.ID, &c.CardName, &c.RepoURL, &c.Tags, &c.UserEmail, &c.UserName,
			&c.ProductDescription, &c.Stars, &c.Forks, &c.Language, &c.OpenIssues, &c.CreatedAt)
		return c, err
	})
	return cards, err
}

func (r *PostgresCardRepository) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// embeddingParam binds v as a pgvector value, or SQL NULL when there is none.
func embeddingParam(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
