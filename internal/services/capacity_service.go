package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

const (
	defaultWeeklyCapacity      = 50
	defaultAlmostFullThreshold = 3
	defaultCapacityMaxRetries  = 5
)

var (
	// ErrCapacityFull indicates the week has admitted its configured number of orders.
	ErrCapacityFull = newKindError(ErrConflict, "capacity: week is full")
	// ErrCapacityContended indicates every conditional increment attempt lost to a concurrent reservation.
	ErrCapacityContended = newKindError(ErrConflict, "capacity: reservation contended, retry")
	// ErrCapacityInvalidInput indicates an invalid capacity adjustment.
	ErrCapacityInvalidInput = newKindError(ErrValidation, "capacity: invalid input")
	// ErrCapacityUnavailable is returned by admin operations when the repository is unreachable.
	ErrCapacityUnavailable = newKindError(ErrUpstream, "capacity: repository unavailable")
)

// CapacityServiceDeps bundles collaborators required to construct the capacity service.
type CapacityServiceDeps struct {
	Repository          repositories.CapacityRepository
	DefaultCapacity     int
	AlmostFullThreshold int
	MaxRetries          int
	Location            *time.Location
	Clock               func() time.Time
	Logger              func(ctx context.Context, event string, fields map[string]any)
	Meter               metric.Meter
}

type capacityService struct {
	repo            repositories.CapacityRepository
	defaultCapacity int
	almostFull      int
	maxRetries      int
	location        *time.Location
	clock           func() time.Time
	logger          func(context.Context, string, map[string]any)
	failOpenCount   metric.Int64Counter
}

// NewCapacityService constructs the weekly admission gate.
func NewCapacityService(deps CapacityServiceDeps) (CapacityService, error) {
	if deps.Repository == nil {
		return nil, errors.New("capacity service: repository is required")
	}
	defaultCapacity := deps.DefaultCapacity
	if defaultCapacity <= 0 {
		defaultCapacity = defaultWeeklyCapacity
	}
	threshold := deps.AlmostFullThreshold
	if threshold <= 0 {
		threshold = defaultAlmostFullThreshold
	}
	retries := deps.MaxRetries
	if retries <= 0 {
		retries = defaultCapacityMaxRetries
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter("capacity.fail_open",
		metric.WithDescription("Capacity checks admitted because the capacity store was unreachable"))
	if err != nil {
		return nil, fmt.Errorf("capacity service: create counter: %w", err)
	}

	return &capacityService{
		repo:            deps.Repository,
		defaultCapacity: defaultCapacity,
		almostFull:      threshold,
		maxRetries:      retries,
		location:        loc,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:        logger,
		failOpenCount: counter,
	}, nil
}

// WeekStart returns the Monday of the week containing reference in the studio timezone,
// as a UTC midnight timestamp of that calendar date. Sundays roll back six days.
func (s *capacityService) WeekStart(reference time.Time) time.Time {
	local := reference.In(s.location)
	offset := (int(local.Weekday()) + 6) % 7
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, time.UTC)
}

func (s *capacityService) CheckAvailability(ctx context.Context, reference time.Time) (CapacityStatus, error) {
	week := s.WeekStart(s.referenceOrNow(reference))
	row, err := s.repo.GetOrCreate(ctx, week, s.defaultCapacity)
	if err != nil {
		return s.failOpen(ctx, week, "check", err), nil
	}
	return s.statusFor(row.WeekStart, row.Capacity, row.OrdersCount), nil
}

// CheckAndReserve admits one order into the reference week with a conditional increment.
// A full week returns the current status together with ErrCapacityFull. Store outages fail open.
func (s *capacityService) CheckAndReserve(ctx context.Context, reference time.Time) (CapacityStatus, error) {
	week := s.WeekStart(s.referenceOrNow(reference))

	var last CapacityStatus
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		row, err := s.repo.GetOrCreate(ctx, week, s.defaultCapacity)
		if err != nil {
			return s.failOpen(ctx, week, "reserve", err), nil
		}
		last = s.statusFor(row.WeekStart, row.Capacity, row.OrdersCount)
		if row.OrdersCount >= row.Capacity {
			s.logger(ctx, "capacity.full", map[string]any{
				"weekStart": week.Format(time.DateOnly),
				"capacity":  row.Capacity,
			})
			return last, ErrCapacityFull
		}

		ok, err := s.repo.IncrementIfUnchanged(ctx, week, row.OrdersCount)
		if err != nil {
			return s.failOpen(ctx, week, "reserve", err), nil
		}
		if ok {
			status := s.statusFor(row.WeekStart, row.Capacity, row.OrdersCount+1)
			status.Available = true
			s.logger(ctx, "capacity.reserved", map[string]any{
				"weekStart":   week.Format(time.DateOnly),
				"ordersCount": status.OrdersCount,
				"remaining":   status.Remaining,
				"attempt":     attempt,
			})
			return status, nil
		}
	}

	s.logger(ctx, "capacity.reserve.contended", map[string]any{
		"weekStart": week.Format(time.DateOnly),
		"attempts":  s.maxRetries,
	})
	return last, ErrCapacityContended
}

func (s *capacityService) SetWeeklyCapacity(ctx context.Context, reference time.Time, capacity int) (CapacityStatus, error) {
	if capacity < 1 {
		return CapacityStatus{}, fmt.Errorf("%w: capacity must be at least 1", ErrCapacityInvalidInput)
	}
	week := s.WeekStart(s.referenceOrNow(reference))
	row, err := s.repo.SetCapacity(ctx, week, capacity)
	if err != nil {
		return CapacityStatus{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "capacity.updated", map[string]any{
		"weekStart": week.Format(time.DateOnly),
		"capacity":  row.Capacity,
	})
	return s.statusFor(row.WeekStart, row.Capacity, row.OrdersCount), nil
}

func (s *capacityService) statusFor(week time.Time, capacity, orders int) CapacityStatus {
	remaining := capacity - orders
	if remaining < 0 {
		remaining = 0
	}
	return CapacityStatus{
		Available:     orders < capacity,
		Remaining:     remaining,
		Capacity:      capacity,
		OrdersCount:   orders,
		WeekStart:     week,
		NextWeekStart: week.AddDate(0, 0, 7),
		AlmostFull:    remaining > 0 && remaining <= s.almostFull,
	}
}

func (s *capacityService) failOpen(ctx context.Context, week time.Time, op string, err error) CapacityStatus {
	s.failOpenCount.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	s.logger(ctx, "capacity.fail_open", map[string]any{
		"weekStart": week.Format(time.DateOnly),
		"op":        op,
		"error":     err.Error(),
	})
	return CapacityStatus{
		Available:     true,
		Degraded:      true,
		WeekStart:     week,
		NextWeekStart: week.AddDate(0, 0, 7),
	}
}

func (s *capacityService) referenceOrNow(reference time.Time) time.Time {
	if reference.IsZero() {
		return s.clock()
	}
	return reference
}

func (s *capacityService) mapRepositoryError(err error) error {
	var capErr *repositories.CapacityError
	if errors.As(err, &capErr) && capErr.Code == repositories.CapacityErrorInvalidInput {
		return fmt.Errorf("%w: %s", ErrCapacityInvalidInput, capErr.Message)
	}
	if repositories.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrCapacityUnavailable, err)
	}
	return fmt.Errorf("capacity service: %w", err)
}
