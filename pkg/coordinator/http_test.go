package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/config"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/security"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/session"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_SessionLifecycle(t *testing.T) {
	c := newTestCoordinator(t, nil)
	h := c.Routes()

	rec := do(t, h, http.MethodPost, "/v1/sessions", `{"userId":"u1","userRole":"ADMIN","globalContext":{"currentGoal":"blog"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created session.Created
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "Web Scuti", created.Session.GlobalContext.ProjectName)

	rec = do(t, h, http.MethodPost, "/v1/prompts",
		`{"sessionId":"`+created.SessionID+`","agent":"BlogAgent","category":"task","context":{"type":"content_analysis","content":{"title":"Go","body":"texto"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res prompt.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "content-analysis-default", res.TemplateID)
	assert.Equal(t, "ADMIN", res.Variables["user_role"])

	rec = do(t, h, http.MethodGet, "/v1/sessions/"+created.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.InteractionCount)

	rec = do(t, h, http.MethodGet, "/v1/sessions/"+created.SessionID+"/context?agent=BlogAgent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ec session.EnrichedContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ec))
	assert.Len(t, ec.AgentHistory, 1)

	rec = do(t, h, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats session.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ActiveInCache)
}

func TestRoutes_Errors(t *testing.T) {
	c := newTestCoordinator(t, nil)
	h := c.Routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"missing user", http.MethodPost, "/v1/sessions", `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/sessions", `{`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/prompts", `{"agent":"A","category":"task","x":1}`, http.StatusBadRequest},
		{"missing category", http.MethodPost, "/v1/prompts", `{"agent":"A"}`, http.StatusBadRequest},
		{"unknown category", http.MethodPost, "/v1/prompts", `{"agent":"A","category":"zz1"}`, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/v1/sessions/nope", "", http.StatusNotFound},
		{"unknown context", http.MethodGet, "/v1/sessions/nope/context", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/v1/prompts", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestRoutes_PromptWithoutSession(t *testing.T) {
	c := newTestCoordinator(t, nil)

	rec := do(t, c.Routes(), http.MethodPost, "/v1/prompts", `{"agent":"SupportAgent","category":"greeting"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res prompt.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Metadata.Fallback)
	assert.Contains(t, res.Content, "SupportAgent")
}

func TestRoutes_PromptSessionHeader(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, nil)
	created, err := c.Sessions().Create(ctx, session.CreateOptions{UserID: "u1", UserRole: "ADMIN"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/prompts", strings.NewReader(`{"agent":"BlogAgent","category":"system"}`))
	req.Header.Set(SessionHeader, created.SessionID)
	rec := httptest.NewRecorder()
	c.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	sess, ok := c.Sessions().Get(ctx, created.SessionID)
	require.True(t, ok)
	assert.Len(t, sess.Interactions, 1)
}

func TestHandler_RateLimited(t *testing.T) {
	c := newTestCoordinator(t, func(cfg *config.Config) {
		cfg.RateLimit = security.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}
	})
	h := c.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/stats", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/v1/stats", "").Code)
}
