package prompt

import (
	"fmt"
	"strings"
)

// Builder post-processes a rendered prompt.
type Builder func(text string, t *Template, vars map[string]string, tc TaskContext) string

// TaskTypeContentAnalysis selects the content analysis builder.
const TaskTypeContentAnalysis = "content_analysis"

const systemInstructionsHeader = "INSTRUCCIONES GENERALES:"

const systemInstructions = systemInstructionsHeader + `
- Mantén coherencia con la identidad de {project_name}.
- Responde en el idioma del usuario de forma clara y estructurada.
- Si la información es insuficiente, indícalo y solicita los datos faltantes.
- No inventes datos ni cites fuentes inexistentes.`

const errorFooter = `Si el problema persiste, verifica los datos de entrada, intenta nuevamente y, de ser necesario, contacta al equipo de soporte de {company_name}.`

func buildSystem(text string, _ *Template, vars map[string]string, _ TaskContext) string {
	if strings.Contains(text, systemInstructionsHeader) {
		return text
	}
	return text + "\n\n" + Interpolate(systemInstructions, vars)
}

func buildTask(text string, _ *Template, vars map[string]string, _ TaskContext) string {
	taskType := vars["task_type"]
	if taskType == "" {
		taskType = "general"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== TAREA: %s ===\n\n", strings.ToUpper(taskType))
	b.WriteString(text)
	b.WriteString("\n\n=== FIN DE LA TAREA ===\nEntrega una respuesta estructurada, accionable y lista para usar.")
	return b.String()
}

func buildError(text string, _ *Template, vars map[string]string, _ TaskContext) string {
	return text + "\n\n" + Interpolate(errorFooter, vars)
}

func buildContentAnalysis(text string, _ *Template, vars map[string]string, tc TaskContext) string {
	var b strings.Builder
	b.WriteString(text)
	if tc.Content != nil {
		b.WriteString("\n\nINFORMACIÓN DEL CONTENIDO:\n")
		fmt.Fprintf(&b, "- Título: %s\n", vars["content_title"])
		fmt.Fprintf(&b, "- Longitud: %s caracteres\n", vars["content_length"])
		fmt.Fprintf(&b, "- Categoría: %s\n", vars["category_name"])
		fmt.Fprintf(&b, "- Etiquetas: %s", vars["tags"])
	}
	b.WriteString("\n\nENFOQUE DEL ANÁLISIS:\n")
	b.WriteString("1. Calidad y claridad del contenido\n")
	b.WriteString("2. Optimización SEO y palabras clave\n")
	b.WriteString("3. Estructura y legibilidad\n")
	b.WriteString("4. Oportunidades de mejora concretas")
	return b.String()
}

// builtinBuilders are keyed by category or task type.
func builtinBuilders() map[string]Builder {
	return map[string]Builder{
		string(CategorySystem):  buildSystem,
		string(CategoryTask):    buildTask,
		string(CategoryError):   buildError,
		TaskTypeContentAnalysis: buildContentAnalysis,
	}
}
