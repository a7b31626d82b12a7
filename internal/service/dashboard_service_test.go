package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type fakeInstructorCounter struct {
	count int
	err   error
}

func (f fakeInstructorCounter) CountActive(context.Context) (int, error) {
	return f.count, f.err
}

type fakeTrend struct {
	months int
	points []models.TrendPoint
}

func (f *fakeTrend) Trend(_ context.Context, _ models.Scope, _ time.Time, months int) ([]models.TrendPoint, error) {
	f.months = months
	return f.points, nil
}

type memoryCacheRepo struct {
	entries map[string]interface{}
	deleted []string
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	value, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	stats, ok := value.(models.DashboardStats)
	if !ok {
		return errors.New("unexpected cached value")
	}
	*(dest.(*models.DashboardStats)) = stats
	return nil
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	m.entries = map[string]interface{}{}
	return nil
}

func newDashboardForTest(students []models.Student, records []models.PaymentRecord, cache *CacheService) *DashboardService {
	return NewDashboardService(DashboardServiceParams{
		Students:    &stubActiveStudents{students: students},
		Payments:    &stubPaymentRecords{records: records, count: len(records), revenue: decimal.RequireFromString("600")},
		Instructors: fakeInstructorCounter{count: 3},
		Trend:       &fakeTrend{},
		Cache:       cache,
		Clock:       fixedClock(2024, time.June, 10),
	})
}

func TestDashboardServiceStats(t *testing.T) {
	pendingApproval := studentFixture("s4", 20, june2024)
	pendingApproval.Approved = false
	students := []models.Student{
		studentFixture("s1", 10, june2024),
		studentFixture("s2", 5, june2024),
		studentFixture("s3", 5, june2024),
		pendingApproval,
	}
	records := []models.PaymentRecord{
		paymentFixture("p3", "s3", june2024, billing.PaymentApproved, 5),
	}
	svc := newDashboardForTest(students, records, nil)

	stats, hit, err := svc.Stats(context.Background(), adminActor())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, stats.TotalActiveStudents)
	assert.Equal(t, 3, stats.ApprovedCount)
	assert.Equal(t, 1, stats.PendingApprovalCount)
	assert.Equal(t, 1, stats.DueTodayCount)
	assert.Equal(t, 1, stats.OverdueCount)
	assert.Equal(t, 1, stats.TotalPayments)
	assert.Equal(t, 3, stats.TotalInstructors)
	assert.True(t, decimal.RequireFromString("600").Equal(stats.MonthlyRevenue))
	assert.Equal(t, june2024, stats.Period)
}

func TestDashboardServiceCountsOnlyEligibleStudents(t *testing.T) {
	svc := newDashboardForTest(nil, nil, nil)

	stats, _, err := svc.Stats(context.Background(), adminActor())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActiveStudents)
	assert.Zero(t, stats.OverdueCount)
}

func TestDashboardServiceServesCachedStats(t *testing.T) {
	repo := &memoryCacheRepo{entries: map[string]interface{}{}}
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := newDashboardForTest([]models.Student{studentFixture("s1", 10, june2024)}, nil, cache)

	first, hit, err := svc.Stats(context.Background(), adminActor())
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, repo.entries, 1)

	second, hit, err := svc.Stats(context.Background(), adminActor())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.TotalActiveStudents, second.TotalActiveStudents)

	require.NoError(t, cache.Invalidate(context.Background(), DashboardCachePattern()))
	assert.Equal(t, []string{DashboardCachePattern()}, repo.deleted)
}

func TestDashboardServiceForbidsStudents(t *testing.T) {
	svc := newDashboardForTest(nil, nil, nil)

	_, _, err := svc.Stats(context.Background(), models.Actor{UserID: "u", Role: models.RoleStudent, StudentID: "s1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDashboardServiceTrendClampsMonths(t *testing.T) {
	trend := &fakeTrend{points: []models.TrendPoint{{Period: "2024-06", ActiveStudents: 12}}}
	svc := NewDashboardService(DashboardServiceParams{Trend: trend, Clock: fixedClock(2024, time.June, 10)})

	points, err := svc.Trend(context.Background(), adminActor(), 0)
	require.NoError(t, err)
	assert.Len(t, points, 1)
	assert.Equal(t, defaultTrendMonths, trend.months)

	_, err = svc.Trend(context.Background(), adminActor(), 120)
	require.NoError(t, err)
	assert.Equal(t, maxTrendMonths, trend.months)
}
