package models

import "time"

// Card is a tracked repository entry owned by the user that registered it.
type Card struct {
	ID                 int64     `bson:"_id"                 json:"id"`
	CardName           string    `bson:"card_name"           json:"card_name"` // repository name
	RepoURL            string    `bson:"repo_url"            json:"repo_url"`
	Tags               []string  `bson:"tags"                json:"tags"`
	UserEmail          string    `bson:"user_email"          json:"user_email"`
	UserName           string    `bson:"user_name"           json:"user_name"`
	ProductDescription string    `bson:"product_description" json:"product_description"`
	Stars              int       `bson:"stars"               json:"stars"`
	Forks              int       `bson:"forks"               json:"forks"`
	Language           string    `bson:"language"            json:"language"`
	OpenIssues         int       `bson:"open_issues"         json:"open_issues"`
	Embedding          []float32 `bson:"embedding,omitempty" json:"-"` // nil when the provider had no result
	CreatedAt          time.Time `bson:"created_at"          json:"created_at"`
}

// Issue is a snapshot of one open GitHub issue attached to a card.
type Issue struct {
	ID          int64     `bson:"_id"                 json:"id"`
	CardID      int64     `bson:"card_id"             json:"card_id"`
	GitHubID    int64     `bson:"github_id"           json:"github_id"`
	Number      int       `bson:"number"              json:"number"`
	Title       string    `bson:"title"               json:"title"`
	Description string    `bson:"description"         json:"description"`
	Link        string    `bson:"link"                json:"link"`
	IssueTags   []string  `bson:"issue_tags"          json:"issue_tags"`
	Image       *string   `bson:"image"               json:"image"`
	Embedding   []float32 `bson:"embedding,omitempty" json:"-"`
}

// CardWithIssues is the card detail payload: the card's own fields with its
// issues inlined, newest first.
type CardWithIssues struct {
	Card
	Issues []Issue `json:"issues"`
}
