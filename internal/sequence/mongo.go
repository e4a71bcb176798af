package sequence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAllocator keeps one document per counter: {_id: name, seq: n}.
type MongoAllocator struct {
	client   *mongo.Client
	counters *mongo.Collection
}

type counterDoc struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// NewMongoAllocator connects to uri and uses the counters collection of database.
func NewMongoAllocator(ctx context.Context, uri, database string) (*MongoAllocator, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	return &MongoAllocator{
		client:   client,
		counters: client.Database(database).Collection("counters"),
	}, nil
}

// Allocate increments the counter document with $inc and returns the post-image.
func (a *MongoAllocator) Allocate(ctx context.Context, counterName string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc counterDoc
	err := a.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": counterName},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("mongo counter %s: %w", counterName, err)
	}
	return doc.Seq, nil
}

// Close disconnects from MongoDB
func (a *MongoAllocator) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
