package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func activeTemplate(id string, category Category, agents []string, taskTypes []string) *Template {
	return &Template{
		ID:            id,
		Name:          id,
		Category:      category,
		Applicability: Applicability{Agents: agents, TaskTypes: taskTypes},
		Content:       Content{BaseTemplate: "body of " + id},
		Status:        StatusActive,
	}
}

func ids(templates []*Template) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t.ID
	}
	return out
}

func TestApplicability(t *testing.T) {
	open := Applicability{}
	assert.True(t, open.MatchesAgent("SEOAgent"))
	assert.True(t, open.MatchesTaskType("anything"))

	blog := Applicability{Agents: []string{"BlogAgent"}}
	assert.True(t, blog.MatchesAgent("BlogAgent"))
	assert.False(t, blog.MatchesAgent("SEOAgent"))

	all := Applicability{Agents: []string{"all"}, TaskTypes: []string{"seo"}}
	assert.True(t, all.MatchesAgent("SEOAgent"))
	assert.True(t, all.MatchesTaskType(""))
	assert.True(t, all.MatchesTaskType("seo"))
	assert.False(t, all.MatchesTaskType("blog"))
}

func TestMemoryStore_Find(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	everyone := activeTemplate("everyone", CategoryTask, nil, nil)
	blogOnly := activeTemplate("blog-only", CategoryTask, []string{"BlogAgent"}, nil)
	seoTask := activeTemplate("seo-task", CategoryTask, []string{"all"}, []string{"seo"})
	system := activeTemplate("system", CategorySystem, nil, nil)
	draft := activeTemplate("draft", CategoryTask, nil, nil)
	draft.Status = StatusDraft

	for _, tpl := range []*Template{everyone, blogOnly, seoTask, system, draft} {
		require.NoError(t, store.Create(ctx, tpl))
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"seo agent", Query{AgentName: "SEOAgent", Category: CategoryTask}, []string{"everyone", "seo-task"}},
		{"blog agent", Query{AgentName: "BlogAgent", Category: CategoryTask}, []string{"everyone", "blog-only", "seo-task"}},
		{"task type", Query{AgentName: "SEOAgent", Category: CategoryTask, TaskType: "seo"}, []string{"everyone", "seo-task"}},
		{"other task type", Query{AgentName: "SEOAgent", Category: CategoryTask, TaskType: "blog"}, []string{"everyone"}},
		{"category", Query{AgentName: "SEOAgent", Category: CategorySystem}, []string{"system"}},
		{"no match", Query{AgentName: "SEOAgent", Category: CategoryError}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Find(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStore_FindOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	low := activeTemplate("low", CategoryTask, nil, nil)
	low.Metrics = Metrics{PerformanceScore: 10, SuccessRate: 0.9}
	tieLow := activeTemplate("tie-low", CategoryTask, nil, nil)
	tieLow.Metrics = Metrics{PerformanceScore: 50, SuccessRate: 0.2}
	tieHigh := activeTemplate("tie-high", CategoryTask, nil, nil)
	tieHigh.Metrics = Metrics{PerformanceScore: 50, SuccessRate: 0.8}

	for _, tpl := range []*Template{low, tieLow, tieHigh} {
		require.NoError(t, store.Create(ctx, tpl))
	}

	got, err := store.Find(ctx, Query{AgentName: "x", Category: CategoryTask})
	require.NoError(t, err)
	assert.Equal(t, []string{"tie-high", "tie-low", "low"}, ids(got))
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tpl := activeTemplate("a", CategoryTask, []string{"BlogAgent"}, nil)

	require.NoError(t, store.Create(ctx, tpl))
	assert.ErrorIs(t, store.Create(ctx, tpl), ErrTemplateExists)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	got.Applicability.Agents[0] = "changed"

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "BlogAgent", again.Applicability.Agents[0])

	require.NoError(t, store.UpdateMetrics(ctx, "a", Metrics{UsageCount: 3}))
	again, _ = store.Get(ctx, "a")
	assert.Equal(t, 3, again.Metrics.UsageCount)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.ErrorIs(t, store.UpdateMetrics(ctx, "missing", Metrics{}), ErrTemplateNotFound)
	assert.NoError(t, store.Ping(ctx))
}

func TestMongoFindFilter(t *testing.T) {
	filter := findFilter(Query{AgentName: "SEOAgent", Category: CategoryTask})
	assert.Equal(t, bson.E{Key: "status", Value: StatusActive}, filter[0])
	assert.Equal(t, bson.E{Key: "category", Value: CategoryTask}, filter[1])
	and, ok := filter[2].Value.(bson.A)
	require.True(t, ok)
	assert.Len(t, and, 1)

	agents := and[0].(bson.D)[0].Value.(bson.A)
	assert.Contains(t, agents, bson.D{{Key: "applicability.agents", Value: "SEOAgent"}})
	assert.Contains(t, agents, bson.D{{Key: "applicability.agents", Value: "all"}})
	assert.Contains(t, agents, bson.D{{Key: "applicability.agents", Value: nil}})

	withType := findFilter(Query{AgentName: "SEOAgent", Category: CategoryTask, TaskType: "seo"})
	assert.Len(t, withType[2].Value.(bson.A), 2)

	assert.Equal(t, "metrics.performance_score", findSort()[0].Key)
	assert.Equal(t, "metrics.success_rate", findSort()[1].Key)
}

func TestTemplateBSONTags(t *testing.T) {
	tpl := activeTemplate("a", CategoryTask, []string{"BlogAgent"}, []string{"seo"})
	raw, err := bson.Marshal(tpl)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "a", doc["template_id"])
	assert.Contains(t, doc, "applicability")
	assert.Contains(t, doc, "metrics")
	assert.NotContains(t, doc, "compiled")
}
