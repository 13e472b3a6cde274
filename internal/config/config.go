// Package config centralises all environment / flag configuration for the API.
// It should be imported only by `cmd/server` (and test code). Business‑logic
// layers receive an already‑built Config instance via dependency‑injection.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by cmd/server.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Embedding providers understood by cmd/server.
const (
	EmbeddingVertex = "vertex"
	EmbeddingLocal  = "local"
	EmbeddingStatic = "static"
)

// Config holds every runtime option the server needs.
// Keep it flat: primitive types only, no nested structs.
type Config struct {
	// Network
	Port        string
	CORSOrigins string

	// Data stores
	StoreDriver    string
	SupabaseURL    string
	SupabaseKey    string
	DatabaseURL    string
	MongoURI       string
	MongoDB        string
	StoreOpTimeout time.Duration

	// External services
	GitHubToken     string
	GitHubUserAgent string
	GitHubTimeout   time.Duration
	GitHubRPS       float64
	WebhookURL      string
	WebhookSecret   string

	// Auth
	JWTSecret string

	// Embeddings
	EmbeddingProvider    string
	EmbeddingModel       string
	EmbeddingDimensions  int
	EmbeddingConcurrency int

	// ProjectID and Location (Vertex AI)
	ProjectID       string
	Location        string
	CredentialsFile string

	// Server tuning
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LogLevel     string
}

// Load parses the environment (and optional .env / .env.local files) into Config.
// Every missing critical variable is reported in a single error so
// mis‑configurations fail fast at startup.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env.local", ".env"}
	}
	// godotenv never overrides variables that are already set, so the first
	// file wins. Missing files are fine in production.
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds a Config from an arbitrary lookup function.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Port:        e.get("PORT", "4000"),
		CORSOrigins: e.get("CORS_ORIGINS", "*"),

		StoreDriver:    strings.ToLower(e.get("STORE_DRIVER", StoreSupabase)),
		MongoDB:        e.get("MONGODB_DB", "oss_hub"),
		StoreOpTimeout: e.duration("STORE_TIMEOUT_SEC", 10),

		GitHubToken:     e.must("GITHUB_PAT"),
		GitHubUserAgent: e.get("GITHUB_USER_AGENT", "OSS-Hub-App"),
		GitHubTimeout:   e.duration("GITHUB_TIMEOUT_SEC", 30),
		GitHubRPS:       e.number("GITHUB_RPS", 10),
		WebhookURL:      e.get("WEBHOOK_URL", ""),
		WebhookSecret:   e.get("WEBHOOK_SECRET", ""),

		JWTSecret: e.must("NEXTAUTH_SECRET"),

		EmbeddingProvider:    strings.ToLower(e.get("EMBEDDING_PROVIDER", EmbeddingVertex)),
		EmbeddingConcurrency: e.integer("EMBEDDING_CONCURRENCY", 8),

		Location:        e.get("GCP_LOCATION", "us-central1"),
		CredentialsFile: e.get("GOOGLE_APPLICATION_CREDENTIALS", ""),

		ReadTimeout:  e.duration("READ_TIMEOUT_SEC", 5),
		WriteTimeout: e.duration("WRITE_TIMEOUT_SEC", 120),
		LogLevel:     e.get("LOG_LEVEL", "info"),
	}

	switch cfg.StoreDriver {
	case StoreSupabase:
		cfg.SupabaseURL = e.must("SUPABASE_URL")
		cfg.SupabaseKey = e.must("SUPABASE_SESSION_KEY")
	case StorePostgres:
		cfg.DatabaseURL = e.must("DATABASE_URL")
	case StoreMongo:
		cfg.MongoURI = e.must("MONGODB_URI")
	default:
		e.fail("STORE_DRIVER=%q is not one of supabase|postgres|mongo", cfg.StoreDriver)
	}

	switch cfg.EmbeddingProvider {
	case EmbeddingVertex:
		cfg.ProjectID = e.must("GCP_PROJECT_ID")
		cfg.EmbeddingModel = e.get("EMBEDDING_MODEL", "text-embedding-005")
		cfg.EmbeddingDimensions = e.integer("EMBEDDING_DIMENSIONS", 768)
	case EmbeddingLocal:
		cfg.EmbeddingModel = e.get("EMBEDDING_MODEL", "BAAI/bge-small-en-v1.5")
		cfg.EmbeddingDimensions = e.integer("EMBEDDING_DIMENSIONS", 384)
	case EmbeddingStatic:
		cfg.EmbeddingModel = e.get("EMBEDDING_MODEL", "static")
		cfg.EmbeddingDimensions = e.integer("EMBEDDING_DIMENSIONS", 384)
	default:
		e.fail("EMBEDDING_PROVIDER=%q is not one of vertex|local|static", cfg.EmbeddingProvider)
	}

	if cfg.EmbeddingConcurrency < 1 {
		cfg.EmbeddingConcurrency = 1
	}

	if len(e.problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.problems, "; "))
	}
	return cfg, nil
}

// AllowedOrigins returns CORSOrigins normalised for the fiber cors middleware.
func (c Config) AllowedOrigins() string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "*"
	}
	return strings.Join(out, ",")
}

type env struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (e *env) fail(format string, args ...any) {
	e.problems = append(e.problems, fmt.Sprintf(format, args...))
}

// must fetches a required env var or records it as missing.
func (e *env) must(key string) string {
	val, _ := e.lookup(key)
	if val == "" {
		e.fail("env var %s is required", key)
	}
	return val
}

// get returns env[key] if set, otherwise defaultVal.
func (e *env) get(key, defaultVal string) string {
	if val, ok := e.lookup(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// duration reads an integer (seconds) from env, falling back to defaultSec.
func (e *env) duration(key string, defaultSec int) time.Duration {
	return time.Duration(e.integer(key, defaultSec)) * time.Second
}

func (e *env) integer(key string, defaultVal int) int {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail("invalid %s=%q: want an integer", key, v)
		return defaultVal
	}
	return n
}

func (e *env) number(key string, defaultVal float64) float64 {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail("invalid %s=%q: want a number", key, v)
		return defaultVal
	}
	return f
}
