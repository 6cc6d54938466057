package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultSessionsCollection = "coordination_sessions"
	defaultMongoOpTimeout     = 5 * time.Second
)

// MongoOptions configures the Mongo session backend.
type MongoOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoBackend implements StorageBackend on a MongoDB collection. A TTL
// index on expires_at makes the server delete sessions once they expire.
type MongoBackend struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
}

// NewMongoBackend returns a backend bound to the configured collection and
// ensures its indexes exist.
func NewMongoBackend(ctx context.Context, opts MongoOptions) (*MongoBackend, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultSessionsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoOpTimeout
	}
	b := &MongoBackend{
		client:  opts.Client,
		coll:    opts.Client.Database(opts.Database).Collection(collection),
		timeout: timeout,
	}
	ictx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.ensureIndexes(ictx); err != nil {
		return nil, fmt.Errorf("ensure session indexes: %w", err)
	}
	return b, nil
}

func (b *MongoBackend) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "last_activity", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	for _, m := range models {
		if _, err := b.coll.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *MongoBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// CreateSession inserts a new session document.
func (b *MongoBackend) CreateSession(ctx context.Context, sess *Session) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if _, err := b.coll.InsertOne(ctx, sess); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindSession loads a session whose status is one of statuses.
func (b *MongoBackend) FindSession(ctx context.Context, sessionID string, statuses ...Status) (*Session, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var sess Session
	if err := b.coll.FindOne(ctx, findFilter(sessionID, statuses, time.Now())).Decode(&sess); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

// findFilter matches the session by ID and status. Documents past their
// expiry are excluded since the TTL monitor only runs periodically.
func findFilter(sessionID string, statuses []Status, now time.Time) bson.M {
	filter := bson.M{
		"session_id": sessionID,
		"expires_at": bson.M{"$gt": now},
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}

// SaveSession replaces the stored document.
func (b *MongoBackend) SaveSession(ctx context.Context, sess *Session) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	_, err := b.coll.ReplaceOne(ctx, bson.M{"session_id": sess.ID}, sess, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// statusPipeline groups the sessions still live at now by status with their
// mean log length. Expired documents may linger until the TTL monitor runs.
func statusPipeline(now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: now}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg_interactions", Value: bson.D{{Key: "$avg", Value: bson.D{
				{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$interactions", bson.A{}}}}},
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// CountByStatus runs the status aggregation.
func (b *MongoBackend) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	cur, err := b.coll.Aggregate(ctx, statusPipeline(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions: %w", err)
	}
	var out []StatusCount
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode session stats: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's sessions, newest activity first.
func (b *MongoBackend) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"user_id": userID, "expires_at": bson.M{"$gt": time.Now()}}
	cur, err := b.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var out []*Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return out, nil
}

// Ping checks connectivity with the primary.
func (b *MongoBackend) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.client.Ping(ctx, readpref.Primary())
}

// Close marks the backend closed. The shared client is owned by the caller.
func (b *MongoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *MongoBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}
