package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"GITHUB_PAT":           "ghp_test",
		"NEXTAUTH_SECRET":      "secret",
		"SUPABASE_URL":         "https://example.supabase.co",
		"SUPABASE_SESSION_KEY": "service-key",
		"GCP_PROJECT_ID":       "oss-hub",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, StoreSupabase, cfg.StoreDriver)
	assert.Equal(t, EmbeddingVertex, cfg.EmbeddingProvider)
	assert.Equal(t, "text-embedding-005", cfg.EmbeddingModel)
	assert.Equal(t, 768, cfg.EmbeddingDimensions)
	assert.Equal(t, 8, cfg.EmbeddingConcurrency)
	assert.Equal(t, "OSS-Hub-App", cfg.GitHubUserAgent)
	assert.Equal(t, 30*time.Second, cfg.GitHubTimeout)
	assert.Equal(t, "*", cfg.AllowedOrigins())
}

func TestLoadFrom_MissingRequired(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_PAT")
	assert.Contains(t, err.Error(), "NEXTAUTH_SECRET")
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}

func TestLoadFrom_StoreDrivers(t *testing.T) {
	t.Run("postgres requires DATABASE_URL", func(t *testing.T) {
		env := baseEnv()
		env["STORE_DRIVER"] = "postgres"
		_, err := LoadFrom(lookupFrom(env))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")

		env["DATABASE_URL"] = "postgres://localhost/oss_hub"
		cfg, err := LoadFrom(lookupFrom(env))
		require.NoError(t, err)
		assert.Equal(t, StorePostgres, cfg.StoreDriver)
	})

	t.Run("unknown driver is rejected", func(t *testing.T) {
		env := baseEnv()
		env["STORE_DRIVER"] = "sqlite"
		_, err := LoadFrom(lookupFrom(env))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORE_DRIVER")
	})
}

func TestLoadFrom_LocalEmbedderDefaults(t *testing.T) {
	env := baseEnv()
	delete(env, "GCP_PROJECT_ID")
	env["EMBEDDING_PROVIDER"] = "LOCAL"

	cfg, err := LoadFrom(lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, EmbeddingLocal, cfg.EmbeddingProvider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.EmbeddingModel)
	assert.Equal(t, 384, cfg.EmbeddingDimensions)
}

func TestLoadFrom_InvalidNumbers(t *testing.T) {
	env := baseEnv()
	env["EMBEDDING_CONCURRENCY"] = "many"
	_, err := LoadFrom(lookupFrom(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_CONCURRENCY")
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSOrigins: " https://a.dev , ,https://b.dev"}
	assert.Equal(t, "https://a.dev,https://b.dev", cfg.AllowedOrigins())
}
