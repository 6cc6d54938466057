package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultTemplatesCollection = "prompt_templates"
	defaultMongoOpTimeout      = 5 * time.Second
)

// MongoOptions configures the Mongo template store.
type MongoOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoStore returns a store bound to the configured collection and
// ensures its indexes exist.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultTemplatesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMongoOpTimeout
	}
	s := &MongoStore{
		client:  opts.Client,
		coll:    opts.Client.Database(opts.Database).Collection(collection),
		timeout: timeout,
	}

	ictx, cancel := s.withTimeout(ctx)
	defer cancel()
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "template_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "status", Value: 1},
				{Key: "metrics.performance_score", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "applicability.agents", Value: 1}},
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ictx, models); err != nil {
		return nil, fmt.Errorf("ensure template indexes: %w", err)
	}
	return s, nil
}

// Create inserts a template document.
func (s *MongoStore) Create(ctx context.Context, t *Template) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := t.Clone()
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrTemplateExists
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// membership matches documents whose list field contains value, contains
// "all", is empty or is null/missing.
func membership(field, value string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: field, Value: value}},
		bson.D{{Key: field, Value: matchAll}},
		bson.D{{Key: field, Value: bson.D{{Key: "$size", Value: 0}}}},
		bson.D{{Key: field, Value: nil}},
	}}}
}

// findFilter translates q into a query document.
func findFilter(q Query) bson.D {
	clauses := bson.A{membership("applicability.agents", q.AgentName)}
	if q.TaskType != "" {
		clauses = append(clauses, membership("applicability.task_types", q.TaskType))
	}
	return bson.D{
		{Key: "status", Value: StatusActive},
		{Key: "category", Value: q.Category},
		{Key: "$and", Value: clauses},
	}
}

func findSort() bson.D {
	return bson.D{
		{Key: "metrics.performance_score", Value: -1},
		{Key: "metrics.success_rate", Value: -1},
	}
}

// Find runs the applicability query.
func (s *MongoStore) Find(ctx context.Context, q Query) ([]*Template, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, findFilter(q), options.Find().SetSort(findSort()))
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	var out []*Template
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return out, nil
}

// Count returns the number of template documents.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

// Get loads one template.
func (s *MongoStore) Get(ctx context.Context, id string) (*Template, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t Template
	if err := s.coll.FindOne(ctx, bson.D{{Key: "template_id", Value: id}}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// UpdateMetrics sets the metrics subdocument.
func (s *MongoStore) UpdateMetrics(ctx context.Context, id string, m Metrics) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "metrics", Value: m},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}}
	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "template_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("update template metrics: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Ping checks connectivity with the primary.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}
