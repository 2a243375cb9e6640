package persistence

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

const attemptCollection = "publish_attempts"

// AttemptLogRepository appends every platform attempt to MongoDB. Without a
// client it keeps the history in memory for the life of the process.
type AttemptLogRepository struct {
	collection *mongo.Collection

	mu     sync.Mutex
	memory map[int64][]model.PublishAttempt
}

func NewAttemptLogRepository(client *mongo.Client, dbName string) repository.IAttemptLog {
	r := &AttemptLogRepository{memory: make(map[int64][]model.PublishAttempt)}
	if client == nil {
		logger.GetLogger().Info("MongoDB client is nil - attempt log kept in memory")
		return r
	}
	r.collection = client.Database(dbName).Collection(attemptCollection)
	return r
}

// EnsureIndexes creates the (post_id, attempted_at) index used by ListByPost.
func (r *AttemptLogRepository) EnsureIndexes(ctx context.Context) error {
	if r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "attempted_at", Value: 1}},
	})
	return err
}

func (r *AttemptLogRepository) Append(ctx context.Context, attempt *model.PublishAttempt) error {
	if r.collection == nil {
		r.mu.Lock()
		r.memory[attempt.PostID] = append(r.memory[attempt.PostID], *attempt)
		r.mu.Unlock()
		return nil
	}
	_, err := r.collection.InsertOne(ctx, attempt)
	return err
}

func (r *AttemptLogRepository) ListByPost(ctx context.Context, postID int64) ([]model.PublishAttempt, error) {
	if r.collection == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make([]model.PublishAttempt, len(r.memory[postID]))
		copy(out, r.memory[postID])
		return out, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "attempted_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.D{{Key: "post_id", Value: postID}}, opts)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	var attempts []model.PublishAttempt
	for cursor.Next(ctx) {
		var a model.PublishAttempt
		if err := cursor.Decode(&a); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while decoding attempt")
			continue
		}
		attempts = append(attempts, a)
	}
	return attempts, cursor.Err()
}
