package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name   string
		checks []*HealthCheck
		want   HealthStatus
	}{
		{
			name: "no checks",
			want: HealthStatusHealthy,
		},
		{
			name: "all passing",
			checks: []*HealthCheck{
				StoreCheck("sessions", func(context.Context) error { return nil }, true),
				StoreCheck("templates", func(context.Context) error { return nil }, false),
			},
			want: HealthStatusHealthy,
		},
		{
			name: "non critical failure degrades",
			checks: []*HealthCheck{
				StoreCheck("sessions", func(context.Context) error { return nil }, true),
				StoreCheck("templates", func(context.Context) error { return errors.New("down") }, false),
			},
			want: HealthStatusDegraded,
		},
		{
			name: "critical failure",
			checks: []*HealthCheck{
				StoreCheck("sessions", func(context.Context) error { return errors.New("down") }, true),
				StoreCheck("templates", func(context.Context) error { return errors.New("down") }, false),
			},
			want: HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("test")
			for _, c := range tt.checks {
				hc.RegisterCheck(c)
			}
			resp := hc.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck(&HealthCheck{
		Name: "slow",
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Timeout:  10 * time.Millisecond,
		Critical: true,
	})

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline")
}

func TestHealthChecker_DefaultTimeout(t *testing.T) {
	hc := NewHealthChecker("test")
	check := &HealthCheck{Name: "x", CheckFunc: func(context.Context) error { return nil }}
	hc.RegisterCheck(check)
	assert.Equal(t, 5*time.Second, check.Timeout)
	assert.Equal(t, []string{"x"}, hc.Names())
}

func TestServerRoutes(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck(StoreCheck("sessions", func(context.Context) error { return errors.New("down") }, true))
	srv := NewServer(0, hc)
	srv.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusServiceUnavailable},
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/extra", http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "down", resp.Checks["sessions"].Message)
}
