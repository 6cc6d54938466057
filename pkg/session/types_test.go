package session

import (
	"testing"
	"time"
)

func TestNewPayload(t *testing.T) {
	p, err := NewPayload(map[string]string{"query": "seo"})
	if err != nil {
		t.Fatalf("NewPayload() error = %v", err)
	}
	if p.Schema != PayloadSchema || string(p.Data) != `{"query":"seo"}` {
		t.Errorf("NewPayload() = %+v", p)
	}

	same, _ := NewPayload(p)
	if !same.Equal(p) {
		t.Error("NewPayload(Payload) re-encoded the payload")
	}

	empty, _ := NewPayload(nil)
	if !empty.IsZero() {
		t.Error("NewPayload(nil) is not zero")
	}
	var dst map[string]any
	if err := empty.Decode(&dst); err != nil || dst != nil {
		t.Errorf("Decode() of zero payload = %v, %v", dst, err)
	}
}

func TestPayloadDecode_NewerSchema(t *testing.T) {
	p := Payload{Schema: PayloadSchema + 1, Data: []byte(`1`)}
	var n int
	if err := p.Decode(&n); err == nil {
		t.Error("Decode() accepted a newer schema")
	}
}

func TestSharedDataOrder(t *testing.T) {
	var d SharedData
	d = d.Set("b", Payload{Schema: 1, Data: []byte(`1`)})
	d = d.Set("a", Payload{Schema: 1, Data: []byte(`2`)})
	d = d.Set("b", Payload{Schema: 1, Data: []byte(`3`)})

	if keys := d.Keys(); len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("Keys() = %v", keys)
	}
	if v, _ := d.Get("b"); string(v.Data) != "3" {
		t.Errorf("Get(b) = %s", v.Data)
	}
	if m := d.Map(); m["a"] != float64(2) {
		t.Errorf("Map() = %v", m)
	}
}

func TestSessionSanitize(t *testing.T) {
	now := time.Now()
	s := testSession("s", "u", StatusActive, now)
	s.Interactions = []Interaction{{Agent: "first"}, {Agent: "last"}}
	s.SharedData = s.SharedData.Set("k", Payload{Schema: 1, Data: []byte(`{"big":"blob"}`)})

	v := s.Sanitize()
	if v.InteractionCount != 2 || v.LastInteraction == nil || v.LastInteraction.Agent != "last" {
		t.Errorf("Sanitize() interactions = %+v", v)
	}
	if len(v.SharedDataKeys) != 1 || v.SharedDataKeys[0] != "k" {
		t.Errorf("Sanitize() keys = %v", v.SharedDataKeys)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := testSession("s", "u", StatusActive, now)
	if s.Expired(now) {
		t.Error("fresh session expired")
	}
	if !s.Expired(now.Add(time.Hour)) {
		t.Error("session not expired at ExpiresAt")
	}
	s.Status = StatusExpired
	if !s.Expired(now) {
		t.Error("expired status ignored")
	}
}
