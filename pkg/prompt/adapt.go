package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform rewrites rendered text. params carries the adaptation's
// parameters and may be nil.
type Transform func(text string, params map[string]any) string

// Names of the built-in transforms.
const (
	TransformAddEnthusiasm       = "add_enthusiasm"
	TransformMakeFormal          = "make_formal"
	TransformAddTechnicalDetail  = "add_technical_detail"
	TransformSimplifyLanguage    = "simplify_language"
	defaultTechnicalDetailNotice = "Incluye detalles técnicos específicos, ejemplos concretos y referencias a buenas prácticas cuando sea relevante."
)

type substitution struct {
	re   *regexp.Regexp
	with string
}

func word(w, with string) substitution {
	return substitution{re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`), with: with}
}

var (
	sentenceEnd = regexp.MustCompile(`\.(\s|$)`)

	enthusiasticTerm = word("importante", "¡muy importante!")

	formalSubstitutions = []substitution{
		word("oye", "disculpe"),
		word("puedes", "puede"),
		word("tienes", "tiene"),
		word("quieres", "desea"),
		word("genial", "excelente"),
		word("ok", "de acuerdo"),
	}

	simpleSubstitutions = []substitution{
		word("utilizar", "usar"),
		word("implementar", "aplicar"),
		word("optimizar", "mejorar"),
		word("proporcionar", "dar"),
		word("realizar", "hacer"),
	}
)

func applyAll(text string, subs []substitution) string {
	for _, s := range subs {
		text = s.re.ReplaceAllString(text, s.with)
	}
	return text
}

// builtinTransforms are registered on every Engine.
var builtinTransforms = map[string]Transform{
	TransformAddEnthusiasm: func(text string, _ map[string]any) string {
		text = sentenceEnd.ReplaceAllString(text, "!$1")
		if loc := enthusiasticTerm.re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]] + enthusiasticTerm.with + text[loc[1]:]
		}
		return text
	},
	TransformMakeFormal: func(text string, _ map[string]any) string {
		return applyAll(text, formalSubstitutions)
	},
	TransformAddTechnicalDetail: func(text string, params map[string]any) string {
		notice := defaultTechnicalDetailNotice
		if v, ok := params["notice"]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				notice = s
			}
		}
		return text + "\n\n" + notice
	},
	TransformSimplifyLanguage: func(text string, _ map[string]any) string {
		return applyAll(text, simpleSubstitutions)
	},
}

// adapt applies every auto-adaptation of t whose condition matches tc and
// returns the text with the names of the transforms that ran. Unknown
// transforms are skipped.
func (e *Engine) adapt(t *Template, text string, tc TaskContext) (string, []string) {
	var applied []string
	for i, a := range t.Adaptation.AutoAdaptations {
		if !t.adaptationCondition(i).Matches(tc) {
			continue
		}
		fn, ok := e.transform(a.Transform)
		if !ok {
			continue
		}
		text = fn(text, a.Parameters)
		applied = append(applied, a.Transform)
	}
	return text, applied
}
