package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements StorageBackend using Redis.
// Each session is one JSON value whose key expires at the session's
// ExpiresAt, so Redis performs the TTL deletion. User and global index sets
// are cleaned lazily when they point at expired keys.
type RedisBackend struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all session keys (default: "scuti:session:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

const defaultRedisPrefix = "scuti:session:"

// NewRedisBackend creates a new Redis storage backend.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackendFromClient(client, cfg.Prefix), nil
}

// NewRedisBackendFromClient creates a Redis backend from an existing client.
// This is useful for testing with miniredis.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
	}
}

// Key helpers
func (b *RedisBackend) sessionKey(sessionID string) string {
	return b.prefix + "doc:" + sessionID
}

func (b *RedisBackend) userIndexKey(userID string) string {
	return b.prefix + "user:" + userID
}

func (b *RedisBackend) allIndexKey() string {
	return b.prefix + "all"
}

func (b *RedisBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// CreateSession inserts a session, failing if the ID is already taken.
func (b *RedisBackend) CreateSession(ctx context.Context, sess *Session) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// NX and EXAT in one SET so the key never exists without its expiry.
	args := redis.SetArgs{Mode: "NX"}
	if !sess.ExpiresAt.IsZero() {
		args.ExpireAt = sess.ExpiresAt
	}
	if err := b.client.SetArgs(ctx, b.sessionKey(sess.ID), data, args).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrSessionExists
		}
		return fmt.Errorf("create session: %w", err)
	}

	pipe := b.client.Pipeline()
	b.index(ctx, pipe, sess)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// SaveSession replaces the session document and resets its expiry.
func (b *RedisBackend) SaveSession(ctx context.Context, sess *Session) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.sessionKey(sess.ID), data, 0)
	if !sess.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, b.sessionKey(sess.ID), sess.ExpiresAt)
	}
	b.index(ctx, pipe, sess)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// index queues the index set updates for sess.
func (b *RedisBackend) index(ctx context.Context, pipe redis.Pipeliner, sess *Session) {
	pipe.SAdd(ctx, b.allIndexKey(), sess.ID)
	if sess.UserID != "" {
		pipe.SAdd(ctx, b.userIndexKey(sess.UserID), sess.ID)
	}
}

// FindSession retrieves a session by ID restricted to statuses.
func (b *RedisBackend) FindSession(ctx context.Context, sessionID string, statuses ...Status) (*Session, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	sess, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !statusAllowed(sess.Status, statuses) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (b *RedisBackend) load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := b.client.Get(ctx, b.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// loadIndexed loads every session referenced by an index set and prunes IDs
// whose keys have expired.
func (b *RedisBackend) loadIndexed(ctx context.Context, indexKey string) ([]*Session, error) {
	ids, err := b.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := b.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// key expired, clean up index
				b.client.SRem(ctx, indexKey, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// CountByStatus aggregates all indexed sessions by status.
func (b *RedisBackend) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	sessions, err := b.loadIndexed(ctx, b.allIndexKey())
	if err != nil {
		return nil, err
	}
	return aggregate(sessions), nil
}

// ListByUser returns a user's sessions, newest activity first.
func (b *RedisBackend) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	sessions, err := b.loadIndexed(ctx, b.userIndexKey(userID))
	if err != nil {
		return nil, err
	}
	sortByActivity(sessions)
	return sessions, nil
}

// Close releases resources held by the backend.
func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.client.Close()
}

// Ping checks if the Redis connection is alive.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.client.Ping(ctx).Err()
}
