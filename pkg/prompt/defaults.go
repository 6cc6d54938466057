package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTemplates returns the starter set seeded into an empty store.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			ID:          "system-persona-default",
			Name:        "Persona del sistema",
			Description: "Identidad base de los agentes de Web Scuti",
			Category:    CategorySystem,
			Applicability: Applicability{
				Agents: []string{matchAll},
			},
			Content: Content{
				BaseTemplate: "Eres {{agent_name}}, {{specialization}} de {{project_name}}. " +
					"Te comunicas con un tono {{communication_tone}} y un nivel de experiencia {{expertise_level}}. " +
					"Hoy es {{current_date}} y atiendes a un usuario con rol {{user_role}}.",
				Variations: []Variation{
					{
						Name:      "admin",
						Condition: "user_role in ['ADMIN','SUPER_ADMIN']",
						Content: "Eres {{agent_name}}, {{specialization}} de {{project_name}}. " +
							"Atiendes a un administrador: ofrece detalle operativo completo y métricas cuando existan. " +
							"Hoy es {{current_date}}.",
						Priority: 10,
					},
				},
				Variables: []Variable{
					{Name: "specialization", Type: TypeString, Default: "asistente especializado"},
					{Name: "communication_tone", Type: TypeString, Default: "profesional"},
					{Name: "expertise_level", Type: TypeString, Default: "experto"},
				},
			},
			Adaptation: Adaptation{
				ContextAware: true,
				RoleAware:    true,
				ToneAware:    true,
			},
			Metrics: Metrics{PerformanceScore: 80},
			Status:  StatusActive,
			Version: "1.0.0",
		},
		{
			ID:          "content-analysis-default",
			Name:        "Análisis de contenido",
			Description: "Evalúa la calidad, estructura y SEO de un contenido",
			Category:    CategoryTask,
			Applicability: Applicability{
				Agents:    []string{"BlogAgent", matchAll},
				TaskTypes: []string{TaskTypeContentAnalysis},
			},
			Content: Content{
				BaseTemplate: "Analiza el contenido \"{{content_title}}\" de la categoría {{category_name}}. " +
					"Evalúa su calidad, claridad y estructura, y entrega recomendaciones concretas.",
				Variations: []Variation{
					{
						Name:      "deep",
						Condition: "complexity: high, expert",
						Content: "Realiza un análisis exhaustivo del contenido \"{{content_title}}\" ({{content_length}} caracteres). " +
							"Incluye evaluación de argumentos, fuentes, estructura y oportunidades editoriales.",
						Priority: 5,
					},
				},
				Variables: []Variable{
					{Name: "content_title", Type: TypeString, Required: true},
					{Name: "category_name", Type: TypeString, Default: "general"},
				},
			},
			Adaptation: Adaptation{
				ContextAware: true,
				AutoAdaptations: []AutoAdaptation{
					{Condition: "complexity: high, expert", Transform: TransformAddTechnicalDetail},
					{Condition: "user_role: USER", Transform: TransformSimplifyLanguage},
				},
			},
			Metrics: Metrics{PerformanceScore: 75},
			Status:  StatusActive,
			Version: "1.0.0",
		},
		{
			ID:          "seo-optimization-default",
			Name:        "Optimización SEO",
			Description: "Propone mejoras SEO para un contenido",
			Category:    CategoryTask,
			Applicability: Applicability{
				Agents:    []string{"SEOAgent", "BlogAgent"},
				TaskTypes: []string{"seo_optimization", "keyword_research"},
			},
			Content: Content{
				BaseTemplate: "Optimiza para SEO el contenido \"{{content_title}}\". " +
					"Palabras clave objetivo: {{keywords}}. " +
					"Propón título, meta descripción, estructura de encabezados y enlaces internos.",
				Variables: []Variable{
					{Name: "content_title", Type: TypeString},
					{Name: "keywords", Type: TypeArray, Default: []any{"desarrollo web", "software"}},
				},
			},
			Adaptation: Adaptation{
				AutoAdaptations: []AutoAdaptation{
					{Condition: "user_role: ADMIN", Transform: TransformAddTechnicalDetail},
				},
			},
			Metrics: Metrics{PerformanceScore: 70},
			Status:  StatusActive,
			Version: "1.0.0",
		},
	}
}

// templateFile is the YAML document read by LoadTemplates.
type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// LoadTemplates decodes a YAML document of the form "templates: [...]".
// Templates without a status are active.
func LoadTemplates(r io.Reader) ([]*Template, error) {
	var doc templateFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for i, t := range doc.Templates {
		if t == nil {
			return nil, fmt.Errorf("template %d is empty", i)
		}
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("template %d: id and name are required", i)
		}
		if t.Category == "" {
			return nil, fmt.Errorf("template %s: category is required", t.ID)
		}
		if t.Content.BaseTemplate == "" {
			return nil, fmt.Errorf("template %s: base_template is required", t.ID)
		}
		if t.Status == "" {
			t.Status = StatusActive
		}
		a := &t.Applicability
		a.Agents = normalizeList(a.Agents)
		a.Domains = normalizeList(a.Domains)
		a.TaskTypes = normalizeList(a.TaskTypes)
		a.UserRoles = normalizeList(a.UserRoles)
		a.Contexts = normalizeList(a.Contexts)
	}
	return doc.Templates, nil
}

// LoadTemplatesFile reads templates from a YAML file.
func LoadTemplatesFile(path string) ([]*Template, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open templates file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadTemplates(f)
}
