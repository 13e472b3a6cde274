package models

// AddCardRequest is the payload for POST /server/add-card.
type AddCardRequest struct {
	RepoURL            string   `json:"repo_url"            validate:"required"`
	ProductDescription string   `json:"product_description" validate:"required"`
	Tags               []string `json:"tags"                validate:"required,min=1"`
}

// EmbeddingRequest is the payload for POST /server/generate-embedding.
type EmbeddingRequest struct {
	Text *string `json:"text" validate:"required"`
}

// AddCardResult reports what onboarding persisted and how the webhook step ended.
type AddCardResult struct {
	CardID      int64
	IssuesCount int
	Webhook     WebhookOutcome
	WebhookErr  error
}

// WebhookOutcome is the terminal state of the webhook registration step.
type WebhookOutcome int

const (
	WebhookSkipped WebhookOutcome = iota
	WebhookCreated
	WebhookAlreadyExists
	WebhookCredentialExpired
	WebhookFailed
)

func (o WebhookOutcome) String() string {
	switch o {
	case WebhookCreated:
		return "created"
	case WebhookAlreadyExists:
		return "already_exists"
	case WebhookCredentialExpired:
		return "credential_expired"
	case WebhookFailed:
		return "failed"
	default:
		return "skipped"
	}
}
