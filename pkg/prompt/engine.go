package prompt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/internal/observability"
	metrics "github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/observability"
)

// Metric actions accepted by UpdateMetrics.
const (
	ActionUsed    = "used"
	ActionSuccess = "success"
)

// Config holds engine settings from YAML.
type Config struct {
	// SeedDefaultTemplates inserts the starter set into an empty store.
	// Default: true.
	SeedDefaultTemplates *bool `yaml:"seed_default_templates"`

	// TemplatesFile is an optional YAML file of extra seed templates.
	TemplatesFile string `yaml:"templates_file"`

	// CacheTTL bounds the staleness of repository results.
	// Default: 30m.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SeedEnabled reports whether default seeding is on.
func (c Config) SeedEnabled() bool {
	return c.SeedDefaultTemplates == nil || *c.SeedDefaultTemplates
}

// Engine renders prompts from the templates of a Repository.
type Engine struct {
	repo *Repository
	cfg  Config
	now  func() time.Time

	mu         sync.RWMutex
	builders   map[string]Builder
	transforms map[string]Transform
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineConfig sets the engine configuration.
func WithEngineConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine reading templates through repo.
func NewEngine(repo *Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:       repo,
		now:        time.Now,
		builders:   builtinBuilders(),
		transforms: make(map[string]Transform, len(builtinTransforms)),
	}
	for name, fn := range builtinTransforms {
		e.transforms[name] = fn
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repository returns the template repository.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// RegisterBuilder installs b for a category or task type, replacing any
// builder registered under key.
func (e *Engine) RegisterBuilder(key string, b Builder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builders[key] = b
}

// RegisterTransform installs an adaptation transform under name.
func (e *Engine) RegisterTransform(name string, fn Transform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transforms[name] = fn
}

// builder returns the builder of the task type, else of the category.
func (e *Engine) builder(category Category, taskType string) Builder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if taskType != "" {
		if b, ok := e.builders[taskType]; ok {
			return b
		}
	}
	return e.builders[string(category)]
}

func (e *Engine) transform(name string) (Transform, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.transforms[name]
	return fn, ok
}

// Generate renders the best template of category for agentName. When no
// template applies, or the store fails, the fallback prompt of the category
// is returned instead. Generate never fails.
func (e *Engine) Generate(ctx context.Context, agentName string, category Category, tc TaskContext) *Result {
	ctx, span := observability.StartSpanWithOtel(ctx, "prompt.generate",
		trace.WithAttributes(observability.Attrs("agent", agentName, "category", string(category), "task_type", tc.Type)...))
	defer span.End()

	start := time.Now()
	templates, err := e.repo.FindApplicable(ctx, agentName, category, tc)
	if err != nil {
		span.RecordError(err)
		log.Error(ctx, err, log.KV{K: "msg", V: "find templates"}, log.KV{K: "agent", V: agentName}, log.KV{K: "category", V: string(category)})
	}
	if len(templates) == 0 {
		res := e.Fallback(agentName, category, tc)
		metrics.RecordPromptRender(category.metricLabel(), true, time.Since(start))
		return res
	}

	now := e.now()
	t := SelectBest(templates, tc, now)
	vars := e.PrepareVariables(t, agentName, tc)
	content, rendering := e.BuildPrompt(t, vars, tc)

	if err := e.UpdateMetrics(ctx, t.ID, ActionUsed, nil); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "record template usage"}, log.KV{K: "template_id", V: t.ID})
	}
	metrics.RecordPromptRender(category.metricLabel(), false, time.Since(start))

	return &Result{
		Content:    content,
		Template:   t.Name,
		TemplateID: t.ID,
		Variables:  vars,
		Metadata: Metadata{
			Category:    category,
			AgentName:   agentName,
			TaskType:    tc.Type,
			Variation:   rendering.Variation,
			Adaptations: rendering.Adaptations,
			GeneratedAt: now,
		},
	}
}

// BuildPrompt renders t with vars: it picks the highest priority variation
// whose condition matches tc, interpolates the variables, applies the
// matching auto-adaptations and runs the registered builder.
func (e *Engine) BuildPrompt(t *Template, vars map[string]string, tc TaskContext) (string, Rendering) {
	var rendering Rendering

	body := t.Content.BaseTemplate
	order := make([]int, len(t.Content.Variations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.Content.Variations[order[a]].Priority > t.Content.Variations[order[b]].Priority
	})
	for _, i := range order {
		if t.variationCondition(i).Matches(tc) {
			body = t.Content.Variations[i].Content
			rendering.Variation = t.Content.Variations[i].Name
			break
		}
	}

	text := Interpolate(body, vars)
	text, rendering.Adaptations = e.adapt(t, text, tc)

	if b := e.builder(t.Category, tc.Type); b != nil {
		text = b(text, t, vars, tc)
	}
	return text, rendering
}

// fallbackBodies are the prompts used when no template applies.
var fallbackBodies = map[Category]string{
	CategorySystem:     "Eres {agent_name}, un asistente especializado de {project_name}. Responde de forma clara, precisa y profesional, manteniendo siempre el contexto de la conversación.",
	CategoryTask:       "Realiza la siguiente tarea ({task_type}) con precisión y detalle. Sigue las mejores prácticas y entrega un resultado estructurado y accionable.",
	CategoryError:      "Ha ocurrido un error al procesar la solicitud. Explica el problema de forma clara y sencilla, y sugiere los pasos para resolverlo.",
	CategoryGreeting:   "¡Hola! Soy {agent_name}, el asistente de {project_name}. ¿En qué puedo ayudarte hoy?",
	CategoryConclusion: "Resume los puntos clave de la conversación, confirma los resultados obtenidos y sugiere los próximos pasos.",
}

// Fallback returns the fixed prompt of category. Categories without their
// own body use the task body.
func (e *Engine) Fallback(agentName string, category Category, tc TaskContext) *Result {
	body, ok := fallbackBodies[category]
	if !ok {
		body = fallbackBodies[CategoryTask]
	}
	vars := e.PrepareVariables(nil, agentName, tc)
	return &Result{
		Content:   Interpolate(body, vars),
		Template:  "fallback",
		Variables: vars,
		Metadata: Metadata{
			Fallback:    true,
			Category:    category,
			AgentName:   agentName,
			TaskType:    tc.Type,
			GeneratedAt: e.now(),
		},
	}
}

// UpdateMetrics records one use of the template. The "success" action also
// counts a success; a rating updates the running average. Success and rating
// feedback invalidate the repository cache; plain usage leaves cached
// results to expire with their TTL.
func (e *Engine) UpdateMetrics(ctx context.Context, templateID, action string, rating *float64) error {
	store := e.repo.Store()
	t, err := store.Get(ctx, templateID)
	if err != nil {
		metrics.RecordTemplateMetricsUpdate(action, "error")
		return fmt.Errorf("load template %s: %w", templateID, err)
	}

	m := t.Metrics
	m.UsageCount++
	m.LastUsed = e.now()
	if action == ActionSuccess {
		m.SuccessCount++
	}
	if m.UsageCount > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.UsageCount)
	}
	if rating != nil {
		m.AverageRating = (m.AverageRating*float64(m.UsageCount-1) + *rating) / float64(m.UsageCount)
	}

	if err := store.UpdateMetrics(ctx, templateID, m); err != nil {
		metrics.RecordTemplateMetricsUpdate(action, "error")
		return fmt.Errorf("update template %s: %w", templateID, err)
	}
	metrics.RecordTemplateMetricsUpdate(action, "ok")
	if action != ActionUsed || rating != nil {
		e.repo.Invalidate()
	}
	return nil
}

// SeedDefaults inserts the starter templates and those of the configured
// templates file when seeding is enabled and the store is empty. It returns
// the number of inserted templates.
func (e *Engine) SeedDefaults(ctx context.Context) (int, error) {
	if !e.cfg.SeedEnabled() {
		log.Debug(ctx, log.KV{K: "msg", V: "template seeding disabled"})
		return 0, nil
	}
	store := e.repo.Store()
	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	if n > 0 {
		log.Debug(ctx, log.KV{K: "msg", V: "template store not empty, skipping seed"}, log.KV{K: "count", V: n})
		return 0, nil
	}

	templates := DefaultTemplates()
	if e.cfg.TemplatesFile != "" {
		extra, err := LoadTemplatesFile(e.cfg.TemplatesFile)
		if err != nil {
			return 0, err
		}
		templates = append(templates, extra...)
	}

	inserted := 0
	for _, t := range templates {
		if err := store.Create(ctx, t); err != nil {
			if errors.Is(err, ErrTemplateExists) {
				continue
			}
			return inserted, fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		inserted++
	}
	e.repo.Invalidate()
	log.Info(ctx, log.KV{K: "msg", V: "seeded prompt templates"}, log.KV{K: "count", V: inserted})
	return inserted, nil
}
