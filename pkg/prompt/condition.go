package prompt

import (
	"regexp"
	"strings"
)

// ConditionKind is the TaskContext field a condition tests.
type ConditionKind string

const (
	KindTaskType   ConditionKind = "task_type"
	KindUserRole   ConditionKind = "user_role"
	KindComplexity ConditionKind = "complexity"
)

// Clause is a membership test of one TaskContext field.
type Clause struct {
	Kind   ConditionKind
	Values []string
}

// Condition is a parsed condition string. It matches when any clause
// matches; a condition without clauses never matches.
type Condition struct {
	Clauses []Clause
}

var (
	clausePattern = regexp.MustCompile(`^(task_type|user_role|complexity)\s*(?:===|==|=|:|\s+in\b)\s*(.+)$`)
	orSeparator   = regexp.MustCompile(`\s*(?:\|\||\bor\b)\s*`)
)

// ParseCondition parses s. Accepted clause forms are "kind:a,b",
// "kind == 'a'" and "kind in ['a','b']" where kind is task_type, user_role
// or complexity. Clauses may be joined with "||" or "or". Clauses of any
// other form are dropped.
func ParseCondition(s string) Condition {
	var c Condition
	for _, part := range orSeparator.Split(strings.TrimSpace(s), -1) {
		m := clausePattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		values := parseValues(m[2])
		if len(values) == 0 {
			continue
		}
		c.Clauses = append(c.Clauses, Clause{Kind: ConditionKind(m[1]), Values: values})
	}
	return c
}

func parseValues(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.Trim(strings.TrimSpace(v), `'"`+"`")
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Valid reports whether the condition has at least one recognized clause.
func (c Condition) Valid() bool {
	return len(c.Clauses) > 0
}

// Matches evaluates the condition against tc.
func (c Condition) Matches(tc TaskContext) bool {
	for _, cl := range c.Clauses {
		var field string
		switch cl.Kind {
		case KindTaskType:
			field = tc.Type
		case KindUserRole:
			field = tc.UserRole
		case KindComplexity:
			field = tc.Complexity
		}
		if field == "" {
			continue
		}
		for _, v := range cl.Values {
			if strings.EqualFold(v, field) {
				return true
			}
		}
	}
	return false
}

// EvaluateCondition parses s and evaluates it against tc.
func EvaluateCondition(s string, tc TaskContext) bool {
	return ParseCondition(s).Matches(tc)
}
