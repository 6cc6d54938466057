package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransforms(t *testing.T) {
	tests := []struct {
		name      string
		transform string
		params    map[string]any
		in        string
		want      string
	}{
		{
			name:      "enthusiasm",
			transform: TransformAddEnthusiasm,
			in:        "Este es un trabajo importante para el equipo. Revisa los datos.",
			want:      "Este es un trabajo ¡muy importante! para el equipo! Revisa los datos!",
		},
		{
			name:      "enthusiasm keeps decimals",
			transform: TransformAddEnthusiasm,
			in:        "Usa la versión 1.5 del cliente.",
			want:      "Usa la versión 1.5 del cliente!",
		},
		{
			name:      "formal",
			transform: TransformMakeFormal,
			in:        "Oye, puedes revisar esto? ok",
			want:      "disculpe, puede revisar esto? de acuerdo",
		},
		{
			name:      "simplify",
			transform: TransformSimplifyLanguage,
			in:        "Debes utilizar la caché y optimizar el código.",
			want:      "Debes usar la caché y mejorar el código.",
		},
		{
			name:      "technical detail",
			transform: TransformAddTechnicalDetail,
			in:        "Texto",
			want:      "Texto\n\n" + defaultTechnicalDetailNotice,
		},
		{
			name:      "technical detail notice",
			transform: TransformAddTechnicalDetail,
			params:    map[string]any{"notice": "Incluye benchmarks."},
			in:        "Texto",
			want:      "Texto\n\nIncluye benchmarks.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := builtinTransforms[tt.transform]
			require.NotNil(t, fn)
			assert.Equal(t, tt.want, fn(tt.in, tt.params))
		})
	}
}

func TestBuildPrompt_Variations(t *testing.T) {
	e := newClockEngine(t)
	tpl := &Template{
		Category: CategoryGreeting,
		Content: Content{
			BaseTemplate: "base {{name}}",
			Variations: []Variation{
				{Name: "low", Condition: "user_role: ADMIN", Content: "low {{name}}", Priority: 1},
				{Name: "high", Condition: "user_role: ADMIN", Content: "high {{name}}", Priority: 5},
				{Name: "broken", Condition: "whatever", Content: "broken", Priority: 10},
			},
		},
	}
	tpl.Compile()
	vars := map[string]string{"name": "Ana"}

	text, r := e.BuildPrompt(tpl, vars, TaskContext{UserRole: "ADMIN"})
	assert.Equal(t, "high Ana", text)
	assert.Equal(t, "high", r.Variation)

	text, r = e.BuildPrompt(tpl, vars, TaskContext{UserRole: "USER"})
	assert.Equal(t, "base Ana", text)
	assert.Empty(t, r.Variation)
}

func TestBuildPrompt_Adaptations(t *testing.T) {
	e := newClockEngine(t)
	tpl := &Template{
		Category: CategoryConclusion,
		Content:  Content{BaseTemplate: "Debes utilizar esto."},
		Adaptation: Adaptation{AutoAdaptations: []AutoAdaptation{
			{Condition: "complexity: low", Transform: TransformSimplifyLanguage},
			{Condition: "complexity: low", Transform: "does_not_exist"},
			{Condition: "complexity: high", Transform: TransformAddTechnicalDetail},
			{Condition: "complexity: low", Transform: TransformAddEnthusiasm},
		}},
	}

	text, r := e.BuildPrompt(tpl, nil, TaskContext{Complexity: "low"})
	assert.Equal(t, "Debes usar esto!", text)
	assert.Equal(t, []string{TransformSimplifyLanguage, TransformAddEnthusiasm}, r.Adaptations)
}

func TestBuildPrompt_Builders(t *testing.T) {
	e := newClockEngine(t)
	vars := e.PrepareVariables(nil, "BlogAgent", TaskContext{Type: "analyze"})

	t.Run("system appends instructions", func(t *testing.T) {
		tpl := &Template{Category: CategorySystem, Content: Content{BaseTemplate: "Eres {{agent_name}}."}}
		text, _ := e.BuildPrompt(tpl, vars, TaskContext{Type: "analyze"})
		assert.True(t, strings.HasPrefix(text, "Eres BlogAgent."))
		assert.Contains(t, text, systemInstructionsHeader)
		assert.Contains(t, text, ProjectName)
	})

	t.Run("system keeps existing instructions", func(t *testing.T) {
		body := "Eres X.\n" + systemInstructionsHeader + "\n- nada"
		tpl := &Template{Category: CategorySystem, Content: Content{BaseTemplate: body}}
		text, _ := e.BuildPrompt(tpl, vars, TaskContext{})
		assert.Equal(t, body, text)
	})

	t.Run("task wraps body", func(t *testing.T) {
		tpl := &Template{Category: CategoryTask, Content: Content{BaseTemplate: "Haz algo."}}
		text, _ := e.BuildPrompt(tpl, vars, TaskContext{Type: "analyze"})
		assert.True(t, strings.HasPrefix(text, "=== TAREA: ANALYZE ===\n\nHaz algo."))
		assert.Contains(t, text, "=== FIN DE LA TAREA ===")
	})

	t.Run("error footer", func(t *testing.T) {
		tpl := &Template{Category: CategoryError, Content: Content{BaseTemplate: "Falló."}}
		text, _ := e.BuildPrompt(tpl, vars, TaskContext{})
		assert.True(t, strings.HasPrefix(text, "Falló.\n\n"))
		assert.Contains(t, text, CompanyName)
	})

	t.Run("content analysis overrides task", func(t *testing.T) {
		tc := TaskContext{
			Type:    TaskTypeContentAnalysis,
			Content: &ContentData{Title: "Go", Body: "abc", Tags: []string{"x"}},
		}
		v := e.PrepareVariables(nil, "BlogAgent", tc)
		tpl := &Template{Category: CategoryTask, Content: Content{BaseTemplate: "Analiza."}}
		text, _ := e.BuildPrompt(tpl, v, tc)
		assert.NotContains(t, text, "=== TAREA")
		assert.Contains(t, text, "- Título: Go")
		assert.Contains(t, text, "- Longitud: 3 caracteres")
		assert.Contains(t, text, "ENFOQUE DEL ANÁLISIS")
	})

	t.Run("registered builder", func(t *testing.T) {
		e.RegisterBuilder(string(CategoryGreeting), func(text string, _ *Template, _ map[string]string, _ TaskContext) string {
			return strings.ToUpper(text)
		})
		tpl := &Template{Category: CategoryGreeting, Content: Content{BaseTemplate: "hola"}}
		text, _ := e.BuildPrompt(tpl, vars, TaskContext{})
		assert.Equal(t, "HOLA", text)
	})
}

func TestRegisterTransform(t *testing.T) {
	e := newClockEngine(t)
	e.RegisterTransform("shout", func(text string, _ map[string]any) string { return strings.ToUpper(text) })
	tpl := &Template{
		Category: CategoryConclusion,
		Content:  Content{BaseTemplate: "fin"},
		Adaptation: Adaptation{AutoAdaptations: []AutoAdaptation{
			{Condition: "user_role: ADMIN", Transform: "shout"},
		}},
	}
	text, r := e.BuildPrompt(tpl, nil, TaskContext{UserRole: "ADMIN"})
	assert.Equal(t, "FIN", text)
	assert.Equal(t, []string{"shout"}, r.Adaptations)
}
