package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

func TestHealthz_ReportsBuildInfo(t *testing.T) {
	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "prod", StartedAt: started}),
		WithHealthClock(func() time.Time { return started.Add(90 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["version"] != "1.2.3" || body["commitSha"] != "abc123" || body["environment"] != "prod" {
		t.Fatalf("unexpected payload %v", body)
	}
	if body["uptime"] != "1m30s" {
		t.Fatalf("unexpected uptime %v", body["uptime"])
	}
}

func TestReadyz_StatusMapping(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		report     services.SystemHealthReport
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name: "ok",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{"database": {Status: domain.HealthStatusOK}},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "degraded stays in rotation",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"database":        {Status: domain.HealthStatusOK},
					"weekly_capacity": {Status: domain.HealthStatusDegraded, Error: "timeout"},
				},
			},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
		},
		{
			name: "error",
			report: services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{"database": {Status: domain.HealthStatusError, Error: "connection refused"}},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "error",
		},
		{
			name:       "report failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandlers(
				WithHealthSystemService(&stubSystemService{report: tc.report, err: tc.err}),
				WithHealthClock(func() time.Time { return now }),
			)
			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			body := decodeBody(t, rr)
			if body["status"] != tc.wantBody {
				t.Fatalf("expected status %q, got %v", tc.wantBody, body["status"])
			}
		})
	}
}

func TestReadyz_ListsCheckErrors(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"redis":    {Status: domain.HealthStatusDegraded, Error: "dial tcp: refused"},
			"database": {Status: domain.HealthStatusError, Error: "connection refused"},
		},
	}}))
	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	body := decodeBody(t, rr)
	details, _ := body["details"].([]any)
	if len(details) != 2 || details[0] != "database: connection refused" || details[1] != "redis: dial tcp: refused" {
		t.Fatalf("unexpected details %v", body["details"])
	}
	checks, _ := body["checks"].(map[string]any)
	if db, _ := checks["database"].(map[string]any); db["status"] != "error" {
		t.Fatalf("unexpected checks %v", checks)
	}
}
