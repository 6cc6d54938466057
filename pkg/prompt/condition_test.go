package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		name    string
		cond    string
		clauses []Clause
	}{
		{
			name:    "colon list",
			cond:    "task_type:blog_post,article",
			clauses: []Clause{{Kind: KindTaskType, Values: []string{"blog_post", "article"}}},
		},
		{
			name:    "equality",
			cond:    "user_role == 'ADMIN'",
			clauses: []Clause{{Kind: KindUserRole, Values: []string{"ADMIN"}}},
		},
		{
			name:    "in list",
			cond:    `complexity in ["high", "expert"]`,
			clauses: []Clause{{Kind: KindComplexity, Values: []string{"high", "expert"}}},
		},
		{
			name: "or of kinds",
			cond: "task_type === 'seo' || user_role === 'ADMIN'",
			clauses: []Clause{
				{Kind: KindTaskType, Values: []string{"seo"}},
				{Kind: KindUserRole, Values: []string{"ADMIN"}},
			},
		},
		{
			name:    "unknown clause dropped",
			cond:    "tone:casual or task_type:seo",
			clauses: []Clause{{Kind: KindTaskType, Values: []string{"seo"}}},
		},
		{name: "unknown kind", cond: "tone: casual"},
		{name: "missing values", cond: "task_type:"},
		{name: "empty", cond: ""},
		{name: "free text", cond: "when the user is happy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCondition(tt.cond)
			assert.Equal(t, tt.clauses, c.Clauses)
			assert.Equal(t, len(tt.clauses) > 0, c.Valid())
		})
	}
}

func TestEvaluateCondition(t *testing.T) {
	tc := TaskContext{Type: "blog_post", UserRole: "ADMIN", Complexity: "high"}

	tests := []struct {
		cond string
		want bool
	}{
		{"task_type:blog_post", true},
		{"task_type:article,blog_post", true},
		{"task_type == 'article'", false},
		{"user_role in ['ADMIN','SUPER_ADMIN']", true},
		{"user_role:USER", false},
		{"complexity: HIGH", true},
		{"complexity: low || user_role: ADMIN", true},
		// no substring matching
		{"task_type: blog_post_extended", false},
		{"task_type: blog", false},
		{"tone: casual", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCondition(tt.cond, tc))
		})
	}
}

func TestConditionEmptyField(t *testing.T) {
	assert.False(t, EvaluateCondition("user_role: ADMIN", TaskContext{}))
}
