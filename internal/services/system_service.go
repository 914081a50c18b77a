package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const (
	capacityHealthCheck   = "weekly_capacity"
	capacityProbeDeadline = 2 * time.Second
)

// BuildInfo is stamped onto every health report.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// Capacity is optional; when set the report carries the current week's admission state.
	Capacity CapacityService
	Clock    func() time.Time
	Build    BuildInfo
}

type systemService struct {
	probes   repositories.HealthRepository
	capacity CapacityService
	now      func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		probes:   deps.HealthRepository,
		capacity: deps.Capacity,
		now:      func() time.Time { return clock().UTC() },
		build:    deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport runs the dependency probes and, when wired, a capacity read. The capacity read
// only ever degrades the report: admission fails open, so a studio with an unreachable capacity
// store is still serving.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.probes.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	now := s.now()
	s.stamp(&report, now)

	if s.capacity != nil {
		report.Checks[capacityHealthCheck] = s.probeCapacity(ctx, now)
	}

	overall := worstStatus(report.Checks)
	if report.Status == "" || severity(overall) > severity(report.Status) {
		report.Status = overall
	}
	return report, nil
}

// stamp fills build metadata the probes left empty.
func (s *systemService) stamp(report *SystemHealthReport, now time.Time) {
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.CommitSHA) == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = make(map[string]domain.SystemHealthCheck)
	}
}

func (s *systemService) probeCapacity(ctx context.Context, now time.Time) domain.SystemHealthCheck {
	ctx, cancel := context.WithTimeout(ctx, capacityProbeDeadline)
	defer cancel()

	started := time.Now()
	status, err := s.capacity.CheckAvailability(ctx, now)
	check := domain.SystemHealthCheck{Latency: time.Since(started), CheckedAt: now}

	switch {
	case err != nil:
		check.Status = domain.HealthStatusDegraded
		check.Detail = "unavailable"
		check.Error = err.Error()
	case status.Degraded:
		check.Status = domain.HealthStatusDegraded
		check.Detail = "capacity store unreachable, admitting orders"
	default:
		check.Status = domain.HealthStatusOK
		check.Detail = fmt.Sprintf("week of %s: %d of %d reserved",
			status.WeekStart.Format(time.DateOnly), status.OrdersCount, status.Capacity)
		if !status.Available {
			check.Detail += ", full"
		} else if status.AlmostFull {
			check.Detail += ", almost full"
		}
	}
	return check
}

func severity(status domain.SystemHealthStatus) int {
	switch status {
	case domain.HealthStatusError:
		return 2
	case domain.HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

func worstStatus(checks map[string]domain.SystemHealthCheck) domain.SystemHealthStatus {
	worst := domain.HealthStatusOK
	for _, check := range checks {
		if severity(check.Status) > severity(worst) {
			worst = check.Status
		}
	}
	return worst
}
