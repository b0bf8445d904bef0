package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/rentwheel/api/internal/domain"
	"github.com/rentwheel/api/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func probe(t *testing.T, handler http.HandlerFunc, path string) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", path, rr.Body.String(), err)
	}
	return rr.Code, body
}

func TestHealthzReportsBuild(t *testing.T) {
	started := time.Date(2025, 2, 10, 4, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "3.1.0", CommitSHA: "d41d8cd", Environment: "prod", StartedAt: started}),
		WithHealthClock(func() time.Time { return started.Add(2 * time.Minute) }),
	)

	code, body := probe(t, h.Healthz, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	want := map[string]string{
		"status":      domain.HealthStatusOK,
		"version":     "3.1.0",
		"commit_sha":  "d41d8cd",
		"environment": "prod",
		"uptime":      "2m0s",
		"timestamp":   "2025-02-10T04:02:00Z",
	}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("%s: expected %q, got %v", key, value, body[key])
		}
	}
}

func TestReadyzStatusCodes(t *testing.T) {
	checkedAt := time.Date(2025, 2, 10, 4, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		status   string
		checks   map[string]domain.SystemHealthCheck
		wantCode int
		details  []string
	}{
		{
			name:   "all ok",
			status: domain.HealthStatusOK,
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 12 * time.Millisecond, CheckedAt: checkedAt},
			},
			wantCode: http.StatusOK,
		},
		{
			name:   "broker degraded",
			status: domain.HealthStatusDegraded,
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, CheckedAt: checkedAt},
				"broker":    {Status: domain.HealthStatusDegraded, Error: "dial failed", CheckedAt: checkedAt},
			},
			wantCode: http.StatusServiceUnavailable,
			details:  []string{"broker: dial failed"},
		},
		{
			name:   "store and secrets down",
			status: domain.HealthStatusError,
			checks: map[string]domain.SystemHealthCheck{
				"secretManager": {Status: domain.HealthStatusError, Error: "timeout", CheckedAt: checkedAt},
				"firestore":     {Status: domain.HealthStatusError, Error: "unavailable", CheckedAt: checkedAt},
			},
			wantCode: http.StatusServiceUnavailable,
			details:  []string{"firestore: unavailable", "secretManager: timeout"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
				Status:      tc.status,
				Checks:      tc.checks,
				Version:     "3.1.0",
				GeneratedAt: checkedAt,
			}}))

			code, body := probe(t, h.Readyz, "/readyz")
			if code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, code)
			}
			if body["status"] != tc.status || body["version"] != "3.1.0" {
				t.Fatalf("unexpected body %v", body)
			}
			checks, ok := body["checks"].(map[string]any)
			if !ok || len(checks) != len(tc.checks) {
				t.Fatalf("expected %d checks, got %v", len(tc.checks), body["checks"])
			}
			details, _ := body["details"].([]any)
			if len(details) != len(tc.details) {
				t.Fatalf("expected details %v, got %v", tc.details, details)
			}
			for i, detail := range tc.details {
				if details[i] != detail {
					t.Fatalf("detail %d: expected %q, got %v", i, detail, details[i])
				}
			}
		})
	}
}

func TestReadyzCheckPayload(t *testing.T) {
	checkedAt := time.Date(2025, 2, 10, 4, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 42 * time.Millisecond, CheckedAt: checkedAt},
		},
	}}))

	_, body := probe(t, h.Readyz, "/readyz")
	firestore := body["checks"].(map[string]any)["firestore"].(map[string]any)
	if firestore["latency_ms"] != float64(42) || firestore["checked_at"] != "2025-02-10T04:00:00Z" {
		t.Fatalf("unexpected check payload %v", firestore)
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	code, body := probe(t, NewHealthHandlers().Readyz, "/readyz")
	if code != http.StatusOK || body["status"] != domain.HealthStatusOK {
		t.Fatalf("expected ok readiness, got %d %v", code, body)
	}
}

func TestReadyzServiceError(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: services.ErrDependency}))
	code, body := probe(t, h.Readyz, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["error"] != "dependency_unavailable" {
		t.Fatalf("expected dependency_unavailable, got %v", body["error"])
	}

	h = NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("boom")}))
	if code, _ := probe(t, h.Readyz, "/readyz"); code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unclassified failure, got %d", code)
	}
}
