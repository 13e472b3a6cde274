package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewMongo establishes a new MongoDB client and verifies it with a ping.
// ctx bounds the connection attempt only; a 10-second cap applies when ctx
// has no deadline.
//
// Typical usage:
//
//	client, err := database.NewMongo(ctx, cfg.MongoURI)
//	if err != nil { … }
//	defer client.Disconnect(context.Background())
func NewMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := withDefaultTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}

	// Verify the connection with a ping.
	if err := client.Ping(ctx, nil); err != nil {
		// Disconnect in case of ping failure to avoid leaking sockets.
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client, nil
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
