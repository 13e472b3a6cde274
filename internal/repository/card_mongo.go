package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmednasr/oss-hub/server/internal/models"
	"github.com/ahmednasr/oss-hub/server/internal/service"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCardRepository keeps cards and issues as documents. Numeric ids come
// from a counters collection so the HTTP API looks the same on every store.
//
// Expected schema:
//
//	cards    { _id: int64, card_name, repo_url, tags, user_email, ..., embedding: []float32 }
//	issues   { _id: int64, card_id: int64, github_id, title, ..., embedding: []float32 }
//	counters { _id: "cards" | "issues", seq: int64 }
type MongoCardRepository struct {
	cardCol    *mongo.Collection
	issueCol   *mongo.Collection
	counterCol *mongo.Collection
}

// NewMongoCardRepository wires the collections.
func NewMongoCardRepository(db *mongo.Database) *MongoCardRepository {
	return &MongoCardRepository{
		cardCol:    db.Collection("cards"),
		issueCol:   db.Collection("issues"),
		counterCol: db.Collection("counters"),
	}
}

// EnsureIndexes creates the lookup indexes used by the queries.
func (r *MongoCardRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.cardCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_email", Value: 1}},
	}); err != nil {
		return fmt.Errorf("cards index: %w", err)
	}
	if _, err := r.issueCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "card_id", Value: 1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return fmt.Errorf("issues index: %w", err)
	}
	return nil
}

// nextIDs reserves n consecutive ids from the named counter and returns the first.
func (r *MongoCardRepository) nextIDs(ctx context.Context, name string, n int) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counterCol.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("reserve %s ids: %w", name, err)
	}
	return doc.Seq - int64(n) + 1, nil
}

func (r *MongoCardRepository) InsertCard(ctx context.Context, c *models.Card) (int64, error) {
	id, err := r.nextIDs(ctx, "cards", 1)
	if err != nil {
		return 0, err
	}
	c.ID = id
	c.CreatedAt = time.Now().UTC()
	if _, err := r.cardCol.InsertOne(ctx, c); err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return id, nil
}

func (r *MongoCardRepository) InsertIssues(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	first, err := r.nextIDs(ctx, "issues", len(issues))
	if err != nil {
		return err
	}
	docs := make([]interface{}, len(issues))
	for i := range issues {
		issues[i].ID = first + int64(i)
		docs[i] = issues[i]
	}
	if _, err := r.issueCol.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert issues: %w", err)
	}
	return nil
}

// withoutEmbedding omits the heavy field from reads.
var withoutEmbedding = bson.D{{Key: "embedding", Value: 0}}

func (r *MongoCardRepository) ListCards(ctx context.Context) ([]models.Card, error) {
	return r.findCards(ctx, bson.M{})
}

func (r *MongoCardRepository) ListCardsByEmail(ctx context.Context, email string) ([]models.Card, error) {
	return r.findCards(ctx, bson.M{"user_email": email})
}

func (r *MongoCardRepository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	var c models.Card
	err := r.cardCol.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutEmbedding)).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, service.ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MongoCardRepository) ListIssuesByCard(ctx context.Context, cardID int64) ([]models.Issue, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetProjection(withoutEmbedding)
	cur, err := r.issueCol.Find(ctx, bson.M{"card_id": cardID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	issues := []models.Issue{}
	if err := cur.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *MongoCardRepository) Ping(ctx context.Context) error {
	return r.cardCol.Database().Client().Ping(ctx, nil)
}

func (r *MongoCardRepository) findCards(ctx context.Context, filter bson.M) ([]models.Card, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(withoutEmbedding)
	cur, err := r.cardCol.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	cards := []models.Card{}
	if err := cur.All(ctx, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}
