// Package session provides the session context cache shared by the
// coordinated agents. Sessions hold the global conversation context, a
// bounded interaction log and a key/value table every agent can read and
// write. A Manager keeps recently used sessions in process and writes every
// mutation through to a durable StorageBackend.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a session that is in use.
	StatusActive Status = "active"
	// StatusIdle marks a session nobody touched recently.
	StatusIdle Status = "idle"
	// StatusCompleted marks a session closed by the caller. Completed
	// sessions are reactivated on the next access.
	StatusCompleted Status = "completed"
	// StatusExpired marks a session past its expiry. It is never returned.
	StatusExpired Status = "expired"
)

// LiveStatuses lists the statuses a lookup may resolve.
var LiveStatuses = []Status{StatusActive, StatusIdle, StatusCompleted}

// Tone is the communication register requested for a session.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneTechnical    Tone = "technical"
)

// Valid reports whether t is one of the known tones.
func (t Tone) Valid() bool {
	switch t {
	case ToneProfessional, ToneCasual, ToneFriendly, ToneTechnical:
		return true
	}
	return false
}

// GlobalContext is the project-level context shared by all agents.
type GlobalContext struct {
	ProjectName string `json:"projectName" bson:"project_name"`
	CurrentGoal string `json:"currentGoal,omitempty" bson:"current_goal,omitempty"`
	Language    string `json:"language" bson:"language"`
	Tone        Tone   `json:"tone" bson:"tone"`
}

// normalize fills defaults for empty fields.
func (g GlobalContext) normalize() GlobalContext {
	if g.ProjectName == "" {
		g.ProjectName = "Web Scuti"
	}
	if g.Language == "" {
		g.Language = "es"
	}
	if !g.Tone.Valid() {
		g.Tone = ToneProfessional
	}
	return g
}

// PayloadSchema is the current schema version written into payloads.
const PayloadSchema = 1

// Payload is an opaque JSON document tagged with a schema version. Interaction
// inputs and results and shared data values are stored as payloads so every
// backend persists the same bytes.
type Payload struct {
	Schema int             `json:"schema" bson:"schema"`
	Data   json.RawMessage `json:"data,omitempty" bson:"data,omitempty"`
}

// NewPayload serializes v. A Payload argument is returned unchanged.
func NewPayload(v any) (Payload, error) {
	switch p := v.(type) {
	case Payload:
		return p, nil
	case *Payload:
		if p == nil {
			return Payload{Schema: PayloadSchema}, nil
		}
		return *p, nil
	case nil:
		return Payload{Schema: PayloadSchema}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encode payload: %w", err)
	}
	return Payload{Schema: PayloadSchema, Data: data}, nil
}

// IsZero reports whether the payload carries no data.
func (p Payload) IsZero() bool {
	return len(p.Data) == 0 || bytes.Equal(p.Data, []byte("null"))
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	if p.IsZero() {
		return nil
	}
	if p.Schema > PayloadSchema {
		return fmt.Errorf("payload schema %d is newer than supported %d", p.Schema, PayloadSchema)
	}
	return json.Unmarshal(p.Data, v)
}

// Equal reports whether both payloads hold the same bytes.
func (p Payload) Equal(o Payload) bool {
	return p.Schema == o.Schema && bytes.Equal(p.Data, o.Data)
}

func (p Payload) clone() Payload {
	if p.Data == nil {
		return p
	}
	return Payload{Schema: p.Schema, Data: append(json.RawMessage(nil), p.Data...)}
}

// Interaction is one logged agent invocation.
type Interaction struct {
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Agent      string    `json:"agent" bson:"agent"`
	Action     string    `json:"action" bson:"action"`
	Input      Payload   `json:"input" bson:"input"`
	Result     Payload   `json:"result" bson:"result"`
	DurationMs int64     `json:"durationMs" bson:"duration_ms"`
	Success    bool      `json:"success" bson:"success"`
}

func (i Interaction) clone() Interaction {
	i.Input = i.Input.clone()
	i.Result = i.Result.clone()
	return i
}

// SharedEntry is one row of the shared data table.
type SharedEntry struct {
	Key   string  `json:"key" bson:"key"`
	Value Payload `json:"value" bson:"value"`
}

// SharedData is an ordered key/value table. Keys keep their first insertion
// position; updating a key replaces its value in place.
type SharedData []SharedEntry

// Get returns the value stored under key.
func (d SharedData) Get(key string) (Payload, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Payload{}, false
}

// Set stores value under key and returns the updated table.
func (d SharedData) Set(key string, value Payload) SharedData {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, SharedEntry{Key: key, Value: value})
}

// Keys returns the keys in table order.
func (d SharedData) Keys() []string {
	keys := make([]string, 0, len(d))
	for _, e := range d {
		keys = append(keys, e.Key)
	}
	return keys
}

// Map decodes every value into a plain map. Values that fail to decode are
// skipped.
func (d SharedData) Map() map[string]any {
	out := make(map[string]any, len(d))
	for _, e := range d {
		var v any
		if err := e.Value.Decode(&v); err != nil {
			continue
		}
		out[e.Key] = v
	}
	return out
}

func (d SharedData) clone() SharedData {
	if d == nil {
		return nil
	}
	out := make(SharedData, len(d))
	for i, e := range d {
		out[i] = SharedEntry{Key: e.Key, Value: e.Value.clone()}
	}
	return out
}

// Session is the durable record of one coordinated conversation.
type Session struct {
	ID            string        `json:"sessionId" bson:"session_id"`
	UserID        string        `json:"userId" bson:"user_id"`
	UserRole      string        `json:"userRole" bson:"user_role"`
	GlobalContext GlobalContext `json:"globalContext" bson:"global_context"`
	Interactions  []Interaction `json:"interactions" bson:"interactions"`
	SharedData    SharedData    `json:"sharedData" bson:"shared_data"`
	Status        Status        `json:"status" bson:"status"`
	CreatedAt     time.Time     `json:"createdAt" bson:"created_at"`
	LastActivity  time.Time     `json:"lastActivity" bson:"last_activity"`
	ExpiresAt     time.Time     `json:"expiresAt" bson:"expires_at"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Interactions != nil {
		out.Interactions = make([]Interaction, len(s.Interactions))
		for i, in := range s.Interactions {
			out.Interactions[i] = in.clone()
		}
	}
	out.SharedData = s.SharedData.clone()
	return &out
}

// Touch records activity at now and rolls the expiry forward by ttl.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivity = now
	s.ExpiresAt = now.Add(ttl)
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.Status == StatusExpired || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// appendInteraction adds in to the log and keeps at most limit entries.
func (s *Session) appendInteraction(in Interaction, limit int) {
	if limit > 0 && len(s.Interactions) >= limit {
		// drop overflow plus one slot for the new entry
		drop := len(s.Interactions) - limit + 1
		s.Interactions = append(s.Interactions[:0:0], s.Interactions[drop:]...)
	}
	s.Interactions = append(s.Interactions, in)
}

// View is the sanitized projection returned on creation.
type View struct {
	SessionID        string        `json:"sessionId"`
	UserID           string        `json:"userId"`
	UserRole         string        `json:"userRole"`
	GlobalContext    GlobalContext `json:"globalContext"`
	Status           Status        `json:"status"`
	InteractionCount int           `json:"interactionCount"`
	LastInteraction  *Interaction  `json:"lastInteraction,omitempty"`
	SharedDataKeys   []string      `json:"sharedDataKeys"`
	CreatedAt        time.Time     `json:"createdAt"`
	LastActivity     time.Time     `json:"lastActivity"`
	ExpiresAt        time.Time     `json:"expiresAt"`
}

// Sanitize builds the View of s.
func (s *Session) Sanitize() View {
	v := View{
		SessionID:        s.ID,
		UserID:           s.UserID,
		UserRole:         s.UserRole,
		GlobalContext:    s.GlobalContext,
		Status:           s.Status,
		InteractionCount: len(s.Interactions),
		SharedDataKeys:   s.SharedData.Keys(),
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.LastActivity,
		ExpiresAt:        s.ExpiresAt,
	}
	if n := len(s.Interactions); n > 0 {
		last := s.Interactions[n-1].clone()
		v.LastInteraction = &last
	}
	return v
}

// EnrichedContext is the read-only view of a session built for one agent.
type EnrichedContext struct {
	SessionID          string         `json:"sessionId,omitempty"`
	UserID             string         `json:"userId,omitempty"`
	UserRole           string         `json:"userRole,omitempty"`
	GlobalContext      GlobalContext  `json:"globalContext"`
	SharedData         map[string]any `json:"sharedData,omitempty"`
	RecentInteractions []Interaction  `json:"recentInteractions,omitempty"`
	AgentHistory       []Interaction  `json:"agentHistory,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	LastActivity       time.Time      `json:"lastActivity"`
}

// IsZero reports whether the context was built from no session.
func (e EnrichedContext) IsZero() bool {
	return e.SessionID == ""
}

// StatusCount aggregates sessions sharing a status.
type StatusCount struct {
	Status          Status  `json:"status" bson:"_id"`
	Count           int     `json:"count" bson:"count"`
	AvgInteractions float64 `json:"avgInteractions" bson:"avg_interactions"`
}

// Stats summarizes the cache and the store.
type Stats struct {
	ActiveInCache int           `json:"activeInCache"`
	ByStatus      []StatusCount `json:"byStatus"`
}
