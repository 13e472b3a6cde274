package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ahmednasr/oss-hub/server/internal/database"
	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMongo_RoundTrip runs against TEST_MONGODB_URI in a throwaway database.
func TestMongo_RoundTrip(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx := context.Background()

	client, err := database.NewMongo(ctx, uri)
	require.NoError(t, err)
	db := client.Database("osshub_test_" + time.Now().Format("150405"))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoCardRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	first, err := repo.InsertCard(ctx, &models.Card{CardName: "a", RepoURL: "u1", UserEmail: "ada@example.com", Embedding: []float32{1}})
	require.NoError(t, err)
	second, err := repo.InsertCard(ctx, &models.Card{CardName: "b", RepoURL: "u2", UserEmail: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	issues := []models.Issue{
		{CardID: first, GitHubID: 10, Title: "older", Embedding: []float32{1}},
		{CardID: first, GitHubID: 11, Title: "newer", Embedding: []float32{1}},
	}
	require.NoError(t, repo.InsertIssues(ctx, issues))
	assert.Equal(t, issues[0].ID+1, issues[1].ID)

	got, err := repo.GetCard(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "a", got.CardName)
	assert.Nil(t, got.Embedding)

	mine, err := repo.ListCardsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := repo.ListCards(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	listed, err := repo.ListIssuesByCard(ctx, first)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "newer", listed[0].Title)

	_, err = repo.GetCard(ctx, 9999)
	assert.ErrorIs(t, err, service.ErrCardNotFound)
	assert.NoError(t, repo.Ping(ctx))
}
