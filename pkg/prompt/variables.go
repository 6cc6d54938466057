package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Project identity constants exposed to every template.
const (
	ProjectName = "Web Scuti"
	CompanyName = "Scuti Company"
)

// dateLayout is the locale format of date variables.
const dateLayout = "02/01/2006"

// PrepareVariables collects the variables available to t when rendered for
// agentName. t may be nil, in which case only the derived variables are
// returned.
func (e *Engine) PrepareVariables(t *Template, agentName string, tc TaskContext) map[string]string {
	now := e.now()
	vars := map[string]string{
		"current_date": now.Format(dateLayout),
		"current_year": strconv.Itoa(now.Year()),
		"agent_name":   agentName,
		"user_role":    tc.UserRole,
		"task_type":    tc.Type,
		"complexity":   tc.Complexity,
		"project_name": ProjectName,
		"company_name": CompanyName,
	}

	if tc.PostID != "" {
		vars["post_id"] = tc.PostID
	}
	if tc.PostSlug != "" {
		vars["post_slug"] = tc.PostSlug
	}
	if tc.PostCategory != "" {
		vars["post_category"] = tc.PostCategory
	}

	if p := tc.AgentProfile; p != nil {
		// empty profile fields leave room for declared defaults
		setIf(vars, "specialization", p.Specialization)
		setIf(vars, "personality_name", p.PersonalityName)
		setIf(vars, "communication_tone", p.CommunicationTone)
		setIf(vars, "expertise_level", p.ExpertiseLevel)
	}

	if c := tc.Content; c != nil {
		vars["content_title"] = c.Title
		vars["content_length"] = strconv.Itoa(len([]rune(c.Body)))
		vars["category_name"] = c.CategoryName
		vars["tags"] = strings.Join(c.Tags, ", ")
	}

	declared := map[string]Variable{}
	if t != nil {
		for _, v := range t.Content.Variables {
			declared[v.Name] = v
		}
	}

	for name, value := range tc.Variables {
		if v, ok := declared[name]; ok {
			s := formatValue(value, v.Type)
			if v.Validation.accepts(s) {
				vars[name] = s
			}
			continue
		}
		vars[name] = formatValue(value, "")
	}

	if t != nil {
		for _, v := range t.Content.Variables {
			if _, ok := vars[v.Name]; ok {
				continue
			}
			if v.Default != nil {
				vars[v.Name] = formatValue(v.Default, v.Type)
				continue
			}
			vars[v.Name] = ""
		}
	}
	return vars
}

func setIf(vars map[string]string, name, value string) {
	if value != "" {
		vars[name] = value
	}
}

// formatValue renders value for interpolation. typ selects the formatting
// of declared variables; an empty typ infers it from the value.
func formatValue(value any, typ VariableType) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if typ == TypeDate {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts.Format(dateLayout)
			}
		}
		return v
	case time.Time:
		return v.Format(dateLayout)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.Format(dateLayout)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item, "")
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return prettyJSON(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	if typ == TypeObject {
		return prettyJSON(value)
	}
	return fmt.Sprint(value)
}

func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// placeholderPattern matches {{name}} before {name}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate replaces every {{name}} and {name} placeholder of body with
// its value. Placeholders without a value render as the empty string.
func Interpolate(body string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		m := placeholderPattern.FindStringSubmatch(match)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		return vars[name]
	})
}
