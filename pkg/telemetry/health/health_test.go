package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantStatus: StatusReady,
			wantChecks: map[string]string{},
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"stages":   func(context.Context) error { return nil },
				"recorder": func(context.Context) error { return nil },
			},
			wantStatus: StatusReady,
			wantChecks: map[string]string{"stages": StatusOK, "recorder": StatusOK},
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"stages":   func(context.Context) error { return errors.New("no stage set loaded") },
				"recorder": func(context.Context) error { return nil },
			},
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"stages": StatusUnhealthy, "recorder": StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, fn := range tt.checks {
				c.Register(name, fn)
			}

			report := c.Readiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", report.Status, tt.wantStatus)
			}
			got := make(map[string]string, len(report.Checks))
			for name, res := range report.Checks {
				got[name] = res.Status
			}
			if diff := cmp.Diff(tt.wantChecks, got); diff != "" {
				t.Errorf("checks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := c.Readiness(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", report.Status)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.Register("stages", func(context.Context) error { return errors.New("missing") })
	mux := http.NewServeMux()
	c.Mount(mux)

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusMethodNotAllowed {
				var report Report
				if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
					t.Errorf("body is not a report: %v", err)
				}
			}
		})
	}
}

func TestChecker_Names(t *testing.T) {
	c := New(0)
	c.Register("stages", nil)
	c.Register("recorder", nil)
	if diff := cmp.Diff([]string{"recorder", "stages"}, c.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}
