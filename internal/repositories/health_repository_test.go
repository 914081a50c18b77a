package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
)

func TestProbeHealthRepositoryCollectSuccess(t *testing.T) {
	probes := []DependencyProbe{
		{
			Name:     "database",
			Required: true,
			Ping: func(ctx context.Context) error {
				select {
				case <-time.After(10 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name: "redis",
			Ping: func(context.Context) error { return nil },
		},
	}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewProbeHealthRepository(probes, WithProbeClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK || !check.CheckedAt.Equal(now) {
			t.Fatalf("unexpected check %s: %+v", name, check)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestProbeHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	boom := errors.New("connection refused")
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{Name: "database", Required: true, Ping: func(context.Context) error { return nil }},
		{Name: "pubsub", Ping: func(context.Context) error { return boom }},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusDegraded || check.Error != boom.Error() || check.Detail != "unreachable" {
		t.Fatalf("unexpected pubsub check %+v", check)
	}
}

func TestProbeHealthRepositoryRequiredTimeoutIsError(t *testing.T) {
	repo, err := NewProbeHealthRepository([]DependencyProbe{
		{
			Name:     "database",
			Required: true,
			Timeout:  5 * time.Millisecond,
			Ping: func(ctx context.Context) error {
				select {
				case <-time.After(200 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{Name: "redis", Ping: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewProbeHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", report.Status)
	}
	if check := report.Checks["database"]; check.Detail != "timeout" || check.Status != domain.HealthStatusError {
		t.Fatalf("unexpected database check %+v", check)
	}
}

func TestNewProbeHealthRepositoryValidation(t *testing.T) {
	cases := map[string][]DependencyProbe{
		"empty":     nil,
		"no name":   {{Ping: func(context.Context) error { return nil }}},
		"no ping":   {{Name: "database"}},
		"duplicate": {{Name: "db", Ping: func(context.Context) error { return nil }}, {Name: "db", Ping: func(context.Context) error { return nil }}},
	}
	for name, probes := range cases {
		if _, err := NewProbeHealthRepository(probes); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
