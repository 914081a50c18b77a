package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	domain "github.com/shorebytelabs/nailsbyabri-sub001/internal/domain"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
)

type memoryCapacityRepo struct {
	mu        sync.Mutex
	weeks     map[string]domain.WeeklyCapacity
	err       error
	stealNext int
}

func newMemoryCapacityRepo() *memoryCapacityRepo {
	return &memoryCapacityRepo{weeks: map[string]domain.WeeklyCapacity{}}
}

func weekKey(t time.Time) string { return t.Format(time.DateOnly) }

func (r *memoryCapacityRepo) GetOrCreate(_ context.Context, weekStart time.Time, defaultCapacity int) (domain.WeeklyCapacity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.WeeklyCapacity{}, r.err
	}
	key := weekKey(weekStart)
	if row, ok := r.weeks[key]; ok {
		return row, nil
	}
	capacity := defaultCapacity
	keys := make([]string, 0, len(r.weeks))
	for k := range r.weeks {
		if k < key {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		capacity = r.weeks[keys[len(keys)-1]].Capacity
	}
	row := domain.WeeklyCapacity{WeekStart: weekStart, Capacity: capacity}
	r.weeks[key] = row
	return row, nil
}

func (r *memoryCapacityRepo) IncrementIfUnchanged(_ context.Context, weekStart time.Time, expected int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	key := weekKey(weekStart)
	row, ok := r.weeks[key]
	if !ok {
		return false, nil
	}
	if r.stealNext > 0 {
		r.stealNext--
		row.OrdersCount++
		r.weeks[key] = row
		return false, nil
	}
	if row.OrdersCount != expected || row.OrdersCount >= row.Capacity {
		return false, nil
	}
	row.OrdersCount++
	r.weeks[key] = row
	return true, nil
}

func (r *memoryCapacityRepo) SetCapacity(_ context.Context, weekStart time.Time, capacity int) (domain.WeeklyCapacity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.WeeklyCapacity{}, r.err
	}
	if capacity < 1 {
		return domain.WeeklyCapacity{}, repositories.NewCapacityError("set", repositories.CapacityErrorInvalidInput, "capacity must be positive", nil)
	}
	key := weekKey(weekStart)
	row := r.weeks[key]
	row.WeekStart = weekStart
	row.Capacity = capacity
	r.weeks[key] = row
	return row, nil
}

func newTestCapacityService(t *testing.T, repo repositories.CapacityRepository, recorder *eventRecorder, defaultCapacity int) CapacityService {
	t.Helper()
	deps := CapacityServiceDeps{
		Repository:      repo,
		DefaultCapacity: defaultCapacity,
		Clock:           func() time.Time { return time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC) },
	}
	if recorder != nil {
		deps.Logger = recorder.log
	}
	svc, err := NewCapacityService(deps)
	if err != nil {
		t.Fatalf("NewCapacityService error: %v", err)
	}
	return svc
}

func TestCapacityService_WeekStart(t *testing.T) {
	svc := newTestCapacityService(t, newMemoryCapacityRepo(), nil, 0)
	monday := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	cases := []time.Time{
		time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 15, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 5, 18, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 19, 22, 0, 0, 0, time.UTC), // Sunday rolls back
	}
	for _, ref := range cases {
		if got := svc.WeekStart(ref); !got.Equal(monday) {
			t.Fatalf("WeekStart(%v) = %v, want %v", ref, got, monday)
		}
	}
	if got := svc.WeekStart(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)); !got.Equal(monday.AddDate(0, 0, 7)) {
		t.Fatalf("next Monday should start a new week, got %v", got)
	}
}

func TestCapacityService_WeekStartUsesStudioTimezone(t *testing.T) {
	loc := time.FixedZone("PDT", -7*3600)
	svc, err := NewCapacityService(CapacityServiceDeps{Repository: newMemoryCapacityRepo(), Location: loc})
	if err != nil {
		t.Fatalf("NewCapacityService error: %v", err)
	}
	// Monday 02:00 UTC is still Sunday evening in the studio.
	got := svc.WeekStart(time.Date(2024, 5, 20, 2, 0, 0, 0, time.UTC))
	want := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCapacityService_ReserveUntilFull(t *testing.T) {
	repo := newMemoryCapacityRepo()
	svc := newTestCapacityService(t, repo, nil, 5)
	ref := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		status, err := svc.CheckAndReserve(context.Background(), ref)
		if err != nil {
			t.Fatalf("reservation %d: %v", i, err)
		}
		if !status.Available || status.OrdersCount != i || status.Remaining != 5-i {
			t.Fatalf("reservation %d: unexpected status %+v", i, status)
		}
		if wantAlmost := 5-i > 0 && 5-i <= 3; status.AlmostFull != wantAlmost {
			t.Fatalf("reservation %d: almostFull=%v", i, status.AlmostFull)
		}
	}

	status, err := svc.CheckAndReserve(context.Background(), ref)
	if !errors.Is(err, ErrCapacityFull) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected capacity full conflict, got %v", err)
	}
	if status.Available || status.Remaining != 0 {
		t.Fatalf("expected unavailable status, got %+v", status)
	}

	check, err := svc.CheckAvailability(context.Background(), ref)
	if err != nil || check.Available {
		t.Fatalf("expected availability check to report full, got %+v %v", check, err)
	}
	if !check.NextWeekStart.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next week start %v", check.NextWeekStart)
	}
}

func TestCapacityService_NewWeekInheritsCapacity(t *testing.T) {
	repo := newMemoryCapacityRepo()
	svc := newTestCapacityService(t, repo, nil, 0)
	first := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	status, err := svc.CheckAvailability(context.Background(), first)
	if err != nil || status.Capacity != 50 {
		t.Fatalf("expected default capacity 50, got %+v %v", status, err)
	}
	if _, err := svc.SetWeeklyCapacity(context.Background(), first, 12); err != nil {
		t.Fatalf("SetWeeklyCapacity error: %v", err)
	}
	if _, err := svc.CheckAndReserve(context.Background(), first); err != nil {
		t.Fatalf("CheckAndReserve error: %v", err)
	}

	next, err := svc.CheckAvailability(context.Background(), first.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if next.Capacity != 12 || next.OrdersCount != 0 {
		t.Fatalf("expected inherited capacity with reset count, got %+v", next)
	}
}

func TestCapacityService_RetriesLostIncrement(t *testing.T) {
	repo := newMemoryCapacityRepo()
	repo.stealNext = 2
	svc := newTestCapacityService(t, repo, nil, 10)

	status, err := svc.CheckAndReserve(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("CheckAndReserve error: %v", err)
	}
	if status.OrdersCount != 3 {
		t.Fatalf("expected our reservation after two concurrent ones, got %+v", status)
	}
}

func TestCapacityService_ContentionExhaustsRetries(t *testing.T) {
	repo := newMemoryCapacityRepo()
	repo.stealNext = 100
	svc := newTestCapacityService(t, repo, nil, 1000)

	_, err := svc.CheckAndReserve(context.Background(), time.Time{})
	if !errors.Is(err, ErrCapacityContended) {
		t.Fatalf("expected contended error, got %v", err)
	}
}

func TestCapacityService_ConcurrentReservationsNeverExceedCapacity(t *testing.T) {
	repo := newMemoryCapacityRepo()
	svc, err := NewCapacityService(CapacityServiceDeps{Repository: repo, DefaultCapacity: 7, MaxRetries: 50})
	if err != nil {
		t.Fatalf("NewCapacityService error: %v", err)
	}
	ref := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, full := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckAndReserve(context.Background(), ref)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrCapacityFull):
				full++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if admitted != 7 || full != 13 {
		t.Fatalf("expected 7 admitted and 13 full, got %d and %d", admitted, full)
	}
}

func TestCapacityService_FailsOpen(t *testing.T) {
	repo := newMemoryCapacityRepo()
	repo.err = &stubRepoError{unavailable: true}
	recorder := &eventRecorder{}
	svc := newTestCapacityService(t, repo, recorder, 5)

	status, err := svc.CheckAndReserve(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("expected fail open, got %v", err)
	}
	if !status.Available || !status.Degraded {
		t.Fatalf("expected degraded availability, got %+v", status)
	}
	check, err := svc.CheckAvailability(context.Background(), time.Time{})
	if err != nil || !check.Available || !check.Degraded {
		t.Fatalf("expected degraded availability check, got %+v %v", check, err)
	}
	if !recorder.has("capacity.fail_open") {
		t.Fatalf("expected fail open event")
	}

	if _, err := svc.SetWeeklyCapacity(context.Background(), time.Time{}, 10); !errors.Is(err, ErrCapacityUnavailable) {
		t.Fatalf("admin updates must not fail open, got %v", err)
	}
}

func TestCapacityService_SetWeeklyCapacityValidation(t *testing.T) {
	svc := newTestCapacityService(t, newMemoryCapacityRepo(), nil, 5)
	if _, err := svc.SetWeeklyCapacity(context.Background(), time.Time{}, 0); !errors.Is(err, ErrCapacityInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
