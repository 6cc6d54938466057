// Package prompt implements the dynamic prompt template engine used by the
// coordinated agents. Templates live in a durable Store, are filtered by
// applicability and cached by a Repository, ranked by SelectBest and
// rendered by an Engine that fills variables, picks conditional variations
// and applies automatic adaptations.
package prompt

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// Category groups templates by their role in a conversation.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryTask        Category = "task"
	CategoryGreeting    Category = "greeting"
	CategoryError       Category = "error"
	CategoryConclusion  Category = "conclusion"
	CategorySpecialized Category = "specialized"
)

// Categories lists every known category.
var Categories = []Category{
	CategorySystem, CategoryTask, CategoryGreeting,
	CategoryError, CategoryConclusion, CategorySpecialized,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// metricLabel bounds the category label of render metrics.
func (c Category) metricLabel() string {
	if !c.Valid() {
		return "other"
	}
	return string(c)
}

// Status is the lifecycle state of a template. Only active templates are
// selectable.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusTesting    Status = "testing"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// VariableType declares how a template variable is formatted.
type VariableType string

const (
	TypeString  VariableType = "string"
	TypeNumber  VariableType = "number"
	TypeBoolean VariableType = "boolean"
	TypeArray   VariableType = "array"
	TypeObject  VariableType = "object"
	TypeDate    VariableType = "date"
)

// matchAll is the list entry that matches any value.
const matchAll = "all"

// Applicability restricts where a template may be used. An empty list or
// one containing "all" matches anything.
type Applicability struct {
	Agents    []string `json:"agents,omitempty" bson:"agents" yaml:"agents"`
	Domains   []string `json:"domains,omitempty" bson:"domains" yaml:"domains"`
	TaskTypes []string `json:"taskTypes,omitempty" bson:"task_types" yaml:"task_types"`
	UserRoles []string `json:"userRoles,omitempty" bson:"user_roles" yaml:"user_roles"`
	Contexts  []string `json:"contexts,omitempty" bson:"contexts" yaml:"contexts"`
}

// listMatches reports whether value is admitted by list.
func listMatches(list []string, value string) bool {
	return len(list) == 0 || slices.Contains(list, matchAll) || slices.Contains(list, value)
}

// MatchesAgent reports whether the template applies to agentName.
func (a Applicability) MatchesAgent(agentName string) bool {
	return listMatches(a.Agents, agentName)
}

// MatchesTaskType reports whether the template applies to taskType. An empty
// task type matches every template.
func (a Applicability) MatchesTaskType(taskType string) bool {
	return taskType == "" || listMatches(a.TaskTypes, taskType)
}

// Variation is an alternate body chosen when its condition matches.
type Variation struct {
	Name      string `json:"name" bson:"name" yaml:"name"`
	Condition string `json:"condition" bson:"condition" yaml:"condition"`
	Content   string `json:"content" bson:"content" yaml:"content"`
	Priority  int    `json:"priority" bson:"priority" yaml:"priority"`
}

// Validation constrains runtime values of a variable. Rejected values fall
// back to the declared default.
type Validation struct {
	Pattern   string   `json:"pattern,omitempty" bson:"pattern,omitempty" yaml:"pattern"`
	Enum      []string `json:"enum,omitempty" bson:"enum,omitempty" yaml:"enum"`
	MaxLength int      `json:"maxLength,omitempty" bson:"max_length,omitempty" yaml:"max_length"`
}

func (v *Validation) accepts(s string) bool {
	if v == nil {
		return true
	}
	if v.MaxLength > 0 && len([]rune(s)) > v.MaxLength {
		return false
	}
	if len(v.Enum) > 0 && !slices.Contains(v.Enum, s) {
		return false
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			// unusable pattern, ignore it
			return true
		}
		return re.MatchString(s)
	}
	return true
}

// Variable declares a placeholder of the template body.
type Variable struct {
	Name        string       `json:"name" bson:"name" yaml:"name"`
	Type        VariableType `json:"type" bson:"type" yaml:"type"`
	Required    bool         `json:"required" bson:"required" yaml:"required"`
	Default     any          `json:"default,omitempty" bson:"default,omitempty" yaml:"default"`
	Description string       `json:"description,omitempty" bson:"description,omitempty" yaml:"description"`
	Validation  *Validation  `json:"validation,omitempty" bson:"validation,omitempty" yaml:"validation"`
}

// Content is the renderable part of a template.
type Content struct {
	BaseTemplate string      `json:"baseTemplate" bson:"base_template" yaml:"base_template"`
	Variations   []Variation `json:"variations,omitempty" bson:"variations" yaml:"variations"`
	Variables    []Variable  `json:"variables,omitempty" bson:"variables" yaml:"variables"`
}

// AutoAdaptation is a text transform applied when its condition matches.
type AutoAdaptation struct {
	Condition  string         `json:"condition" bson:"condition" yaml:"condition"`
	Transform  string         `json:"transform" bson:"transform" yaml:"transform"`
	Parameters map[string]any `json:"parameters,omitempty" bson:"parameters,omitempty" yaml:"parameters"`
}

// Adaptation holds the awareness flags and automatic transforms.
type Adaptation struct {
	ContextAware    bool             `json:"contextAware" bson:"context_aware" yaml:"context_aware"`
	RoleAware       bool             `json:"roleAware" bson:"role_aware" yaml:"role_aware"`
	ToneAware       bool             `json:"toneAware" bson:"tone_aware" yaml:"tone_aware"`
	LanguageAware   bool             `json:"languageAware" bson:"language_aware" yaml:"language_aware"`
	AutoAdaptations []AutoAdaptation `json:"autoAdaptations,omitempty" bson:"auto_adaptations" yaml:"auto_adaptations"`
}

// Metrics tracks the usage of a template.
type Metrics struct {
	UsageCount       int       `json:"usageCount" bson:"usage_count" yaml:"usage_count"`
	SuccessCount     int       `json:"successCount" bson:"success_count" yaml:"success_count"`
	SuccessRate      float64   `json:"successRate" bson:"success_rate" yaml:"success_rate"`
	AverageRating    float64   `json:"averageRating" bson:"average_rating" yaml:"average_rating"`
	LastUsed         time.Time `json:"lastUsed,omitzero" bson:"last_used,omitempty" yaml:"last_used"`
	PerformanceScore float64   `json:"performanceScore" bson:"performance_score" yaml:"performance_score"`
}

// Template is a parameterized prompt body with its applicability, adaptation
// rules and usage metrics.
type Template struct {
	ID            string        `json:"id" bson:"template_id" yaml:"id"`
	Name          string        `json:"name" bson:"name" yaml:"name"`
	Description   string        `json:"description,omitempty" bson:"description" yaml:"description"`
	Category      Category      `json:"category" bson:"category" yaml:"category"`
	Applicability Applicability `json:"applicability" bson:"applicability" yaml:"applicability"`
	Content       Content       `json:"content" bson:"content" yaml:"content"`
	Adaptation    Adaptation    `json:"adaptation" bson:"adaptation" yaml:"adaptation"`
	Metrics       Metrics       `json:"metrics" bson:"metrics" yaml:"metrics"`
	Status        Status        `json:"status" bson:"status" yaml:"status"`
	Version       string        `json:"version,omitempty" bson:"version" yaml:"version"`
	CreatedAt     time.Time     `json:"createdAt" bson:"created_at" yaml:"-"`
	UpdatedAt     time.Time     `json:"updatedAt" bson:"updated_at" yaml:"-"`

	compiled *compiled
}

// compiled holds the parsed conditions of a template.
type compiled struct {
	variations  []Condition
	adaptations []Condition
}

// Compile parses every variation and adaptation condition once. Templates
// returned by a Repository are already compiled.
func (t *Template) Compile() {
	c := &compiled{
		variations:  make([]Condition, len(t.Content.Variations)),
		adaptations: make([]Condition, len(t.Adaptation.AutoAdaptations)),
	}
	for i, v := range t.Content.Variations {
		c.variations[i] = ParseCondition(v.Condition)
	}
	for i, a := range t.Adaptation.AutoAdaptations {
		c.adaptations[i] = ParseCondition(a.Condition)
	}
	t.compiled = c
}

func (t *Template) variationCondition(i int) Condition {
	if t.compiled != nil && i < len(t.compiled.variations) {
		return t.compiled.variations[i]
	}
	return ParseCondition(t.Content.Variations[i].Condition)
}

func (t *Template) adaptationCondition(i int) Condition {
	if t.compiled != nil && i < len(t.compiled.adaptations) {
		return t.compiled.adaptations[i]
	}
	return ParseCondition(t.Adaptation.AutoAdaptations[i].Condition)
}

// Clone returns a copy of t whose slices can be modified independently.
func (t *Template) Clone() *Template {
	out := *t
	out.Applicability = Applicability{
		Agents:    slices.Clone(t.Applicability.Agents),
		Domains:   slices.Clone(t.Applicability.Domains),
		TaskTypes: slices.Clone(t.Applicability.TaskTypes),
		UserRoles: slices.Clone(t.Applicability.UserRoles),
		Contexts:  slices.Clone(t.Applicability.Contexts),
	}
	out.Content.Variations = slices.Clone(t.Content.Variations)
	out.Content.Variables = slices.Clone(t.Content.Variables)
	out.Adaptation.AutoAdaptations = slices.Clone(t.Adaptation.AutoAdaptations)
	return &out
}

// AgentProfile describes the agent a prompt is rendered for.
type AgentProfile struct {
	Specialization    string `json:"specialization,omitempty"`
	PersonalityName   string `json:"personalityName,omitempty"`
	CommunicationTone string `json:"communicationTone,omitempty"`
	ExpertiseLevel    string `json:"expertiseLevel,omitempty"`
}

// ContentData describes the content an agent works on.
type ContentData struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	CategoryName string   `json:"categoryName,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// TaskContext is the request-side input of a render.
type TaskContext struct {
	Type         string         `json:"type,omitempty"`
	UserRole     string         `json:"userRole,omitempty"`
	Complexity   string         `json:"complexity,omitempty"`
	PostID       string         `json:"postId,omitempty"`
	PostSlug     string         `json:"postSlug,omitempty"`
	PostCategory string         `json:"postCategory,omitempty"`
	AgentProfile *AgentProfile  `json:"agentProfile,omitempty"`
	Content      *ContentData   `json:"content,omitempty"`
	Variables    map[string]any `json:"variables,omitempty"`
}

// Metadata describes how a Result was produced.
type Metadata struct {
	Fallback    bool      `json:"fallback"`
	Category    Category  `json:"category"`
	AgentName   string    `json:"agentName"`
	TaskType    string    `json:"taskType,omitempty"`
	Variation   string    `json:"variation,omitempty"`
	Adaptations []string  `json:"adaptations,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Result is a rendered prompt.
type Result struct {
	Content    string            `json:"content"`
	Template   string            `json:"template"`
	TemplateID string            `json:"templateId,omitempty"`
	Variables  map[string]string `json:"variables"`
	Metadata   Metadata          `json:"metadata"`
}

// Rendering reports the choices made by BuildPrompt.
type Rendering struct {
	Variation   string
	Adaptations []string
}

// normalizeList trims entries and drops empty ones.
func normalizeList(list []string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
