package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"goa.design/clue/log"

	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/prompt"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/security"
	"github.com/jonathanEDR/web-scuticompany-back-sub007/pkg/session"
)

const maxRequestBody = 1 << 20

// SessionHeader names the session of a prompt request when the body does not.
const SessionHeader = "X-Session-ID"

// PromptRequest is the body of POST /v1/prompts.
type PromptRequest struct {
	SessionID string             `json:"sessionId,omitempty"`
	Agent     string             `json:"agent"`
	Category  prompt.Category    `json:"category"`
	Context   prompt.TaskContext `json:"context"`
}

// SessionRequest is the body of POST /v1/sessions.
type SessionRequest struct {
	UserID   string                `json:"userId"`
	UserRole string                `json:"userRole,omitempty"`
	Context  session.GlobalContext `json:"globalContext"`
}

// Routes returns the coordinator API mounted next to the health endpoints.
func (c *Coordinator) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/prompts", c.handlePrompt)
	mux.HandleFunc("POST /v1/sessions", c.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", c.handleGetSession)
	mux.HandleFunc("GET /v1/sessions/{id}/context", c.handleEnrichedContext)
	mux.HandleFunc("GET /v1/stats", c.handleStats)
	return mux
}

// Handler returns Routes behind the configured rate limiter.
func (c *Coordinator) Handler() http.Handler {
	routes := c.Routes()
	if !c.cfg.RateLimit.Enabled() {
		return routes
	}
	return security.NewRateLimiter(c.cfg.RateLimit).Middleware(routes)
}

func (c *Coordinator) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Agent == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, errors.New("agent and category are required"))
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown category %q", req.Category))
		return
	}
	ctx := r.Context()
	if id := r.Header.Get(SessionHeader); id != "" {
		ctx = session.ContextWithSessionID(ctx, id)
	}
	res := c.PromptForSession(ctx, req.SessionID, req.Agent, req.Category, req.Context)
	writeJSON(w, http.StatusOK, res)
}

func (c *Coordinator) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errors.New("userId is required"))
		return
	}
	created, err := c.sessions.Create(r.Context(), session.CreateOptions{
		UserID:   req.UserID,
		UserRole: req.UserRole,
		Context:  req.Context,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (c *Coordinator) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.sessions.Get(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Sanitize())
}

func (c *Coordinator) handleEnrichedContext(w http.ResponseWriter, r *http.Request) {
	ec := c.sessions.EnrichedContext(r.Context(), r.PathValue("id"), r.URL.Query().Get("agent"))
	if ec.IsZero() {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ec)
}

func (c *Coordinator) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.sessions.Stats(r.Context())
	if err != nil {
		log.Error(r.Context(), err, log.KV{K: "msg", V: "session stats"})
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
