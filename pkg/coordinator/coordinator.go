// Package coordinator wires the session context cache and the prompt engine
// to their configured stores and exposes them to the agent layer.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/config"
	metrics "github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/observability"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/session"
)

// Version is reported by the health endpoint.
var Version = "dev"

// ActionPrompt is the interaction action logged by PromptForSession.
const ActionPrompt = "prompt"

// Coordinator owns the session manager, the template repository and the
// prompt engine built from one configuration.
type Coordinator struct {
	cfg      *config.Config
	sessions *session.Manager
	repo     *prompt.Repository
	engine   *prompt.Engine
	health   *metrics.HealthChecker
	mongo    *mongo.Client

	closeOnce sync.Once
	closeErr  error
}

// LogContext returns ctx carrying a clue logger configured from cfg.
func LogContext(ctx context.Context, cfg config.ObservabilityConfig) context.Context {
	format := log.FormatJSON
	switch cfg.LogFormat {
	case "text":
		format = log.FormatText
	case "terminal":
		format = log.FormatTerminal
	}
	// Entries are written as they happen instead of being held until an
	// error flushes them.
	ctx = log.Context(ctx, log.WithFormat(format), log.WithDisableBuffering(func(context.Context) bool { return true }))
	if cfg.Debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

// New connects the configured stores, builds the caches and seeds the
// default templates. ctx should carry the logger.
func New(ctx context.Context, cfg *config.Config) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.InitMetrics()

	c := &Coordinator{
		cfg:    cfg,
		health: metrics.NewHealthChecker(Version),
	}

	if cfg.Store == config.StoreMongo || cfg.TemplateBackend() == config.StoreMongo {
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		c.mongo = client
		c.verbose(ctx, "mongo client connected", log.KV{K: "database", V: cfg.Mongo.Database})
	}

	backend, err := c.sessionBackend(ctx)
	if err != nil {
		c.disconnect(ctx)
		return nil, err
	}
	c.sessions = session.NewManager(backend, session.WithConfig(cfg.Session))
	c.health.RegisterCheck(metrics.StoreCheck("session_store", backend.Ping, true))
	c.verbose(ctx, "session store ready", log.KV{K: "backend", V: cfg.Store})

	store, err := c.templateStore(ctx)
	if err != nil {
		_ = c.sessions.Close()
		c.disconnect(ctx)
		return nil, err
	}
	c.health.RegisterCheck(metrics.StoreCheck("template_store", store.Ping, false))

	c.repo, err = prompt.NewRepository(store, cfg.Prompt.CacheTTL)
	if err != nil {
		_ = c.sessions.Close()
		c.disconnect(ctx)
		return nil, fmt.Errorf("template repository: %w", err)
	}
	c.engine = prompt.NewEngine(c.repo, prompt.WithEngineConfig(cfg.Prompt))
	c.verbose(ctx, "template store ready", log.KV{K: "backend", V: cfg.TemplateBackend()})

	n, err := c.engine.SeedDefaults(ctx)
	if err != nil {
		// A failed seed leaves the engine on fallback prompts.
		log.Error(ctx, err, log.KV{K: "msg", V: "seed default templates"})
	} else {
		c.verbose(ctx, "template seeding done", log.KV{K: "inserted", V: n})
	}

	return c, nil
}

func (c *Coordinator) sessionBackend(ctx context.Context) (session.StorageBackend, error) {
	switch c.cfg.Store {
	case config.StoreFile:
		b, err := session.NewFileBackend(c.cfg.File.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("file session store: %w", err)
		}
		return b, nil
	case config.StoreRedis:
		b, err := session.NewRedisBackend(session.RedisConfig{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
			Prefix:   c.cfg.Redis.Prefix,
			PoolSize: c.cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		return b, nil
	case config.StoreMongo:
		b, err := session.NewMongoBackend(ctx, session.MongoOptions{
			Client:     c.mongo,
			Database:   c.cfg.Mongo.Database,
			Collection: c.cfg.Mongo.SessionsCollection,
			Timeout:    c.cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("mongo session store: %w", err)
		}
		return b, nil
	default:
		return session.NewMemoryBackend(), nil
	}
}

func (c *Coordinator) templateStore(ctx context.Context) (prompt.Store, error) {
	if c.cfg.TemplateBackend() != config.StoreMongo {
		return prompt.NewMemoryStore(), nil
	}
	s, err := prompt.NewMongoStore(ctx, prompt.MongoOptions{
		Client:     c.mongo,
		Database:   c.cfg.Mongo.Database,
		Collection: c.cfg.Mongo.TemplatesCollection,
		Timeout:    c.cfg.Mongo.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mongo template store: %w", err)
	}
	return s, nil
}

func (c *Coordinator) verbose(ctx context.Context, msg string, kvs ...log.KV) {
	if !c.cfg.VerboseInit {
		return
	}
	fields := make([]log.Fielder, 0, len(kvs)+1)
	fields = append(fields, log.KV{K: "msg", V: msg})
	for _, kv := range kvs {
		fields = append(fields, kv)
	}
	log.Info(ctx, fields...)
}

// Start begins the background cache sweep.
func (c *Coordinator) Start(ctx context.Context) {
	c.sessions.Start(ctx)
}

// Close stops the sweep and releases every store. It is safe to call more
// than once.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
		c.repo.Close()
		if err := c.disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func (c *Coordinator) disconnect(ctx context.Context) error {
	if c.mongo == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.mongo.Disconnect(dctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() *config.Config {
	return c.cfg
}

// Sessions returns the session context cache.
func (c *Coordinator) Sessions() *session.Manager {
	return c.sessions
}

// Prompts returns the prompt engine.
func (c *Coordinator) Prompts() *prompt.Engine {
	return c.engine
}

// Health returns the health checker with the store checks registered.
func (c *Coordinator) Health() *metrics.HealthChecker {
	return c.health
}

// PromptForSession renders a prompt for an agent working inside a session.
// The user role of the session is used when tc carries none, and the render
// is appended to the interaction log. An empty sessionID falls back to the
// session carried by ctx. An unknown session still gets a prompt.
func (c *Coordinator) PromptForSession(ctx context.Context, sessionID, agentName string, category prompt.Category, tc prompt.TaskContext) *prompt.Result {
	if sessionID == "" {
		sessionID, _ = session.SessionIDFromContext(ctx)
	}

	sess, ok := c.sessions.Get(ctx, sessionID)
	if ok && tc.UserRole == "" {
		tc.UserRole = sess.UserRole
	}

	start := time.Now()
	res := c.engine.Generate(ctx, agentName, category, tc)
	if !ok {
		return res
	}

	c.sessions.AddInteraction(ctx, sessionID, session.InteractionInput{
		Agent:  agentName,
		Action: ActionPrompt,
		Input: map[string]any{
			"category": string(category),
			"taskType": tc.Type,
		},
		Result: map[string]any{
			"template": res.Template,
			"fallback": res.Metadata.Fallback,
		},
		Duration: time.Since(start),
	})
	return res
}
