package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/cache"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

const (
	defaultTrendMonths = 12
	maxTrendMonths     = 36
)

type dashboardPaymentReader interface {
	List(ctx context.Context, q models.PaymentQuery) ([]models.PaymentRecord, error)
	Count(ctx context.Context, scope models.Scope, today time.Time) (int, error)
	SumApproved(ctx context.Context, scope models.Scope, period billing.Period, today time.Time) (decimal.Decimal, error)
}

type dashboardInstructorCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type trendReader interface {
	Trend(ctx context.Context, scope models.Scope, today time.Time, months int) ([]models.TrendPoint, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService computes billing health figures for the current month.
type DashboardService struct {
	students    billingStudentReader
	payments    dashboardPaymentReader
	instructors dashboardInstructorCounter
	trend       trendReader
	cache       *CacheService
	logger      *zap.Logger
	clock       Clock
	cfg         DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Students    billingStudentReader
	Payments    dashboardPaymentReader
	Instructors dashboardInstructorCounter
	Trend       trendReader
	Cache       *CacheService
	Logger      *zap.Logger
	Clock       Clock
	Config      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		students:    params.Students,
		payments:    params.Payments,
		instructors: params.Instructors,
		trend:       params.Trend,
		cache:       params.Cache,
		logger:      logger,
		clock:       params.Clock,
		cfg:         cfg,
	}
}

// DashboardCachePattern matches every cached dashboard payload.
func DashboardCachePattern() string {
	return cache.Key("dashboard", "*")
}

// Stats returns the dashboard figures for the actor's scope and reports
// whether they were served from cache.
func (s *DashboardService) Stats(ctx context.Context, actor models.Actor) (*models.DashboardStats, bool, error) {
	scope, err := authorize(actor, models.CapReadDashboard)
	if err != nil {
		return nil, false, err
	}
	today := s.clock.Today()
	key := cache.Key("dashboard", "stats", scopeKey(scope), today.Format("2006-01-02"))

	stats, hit, err := cached(ctx, s.cache, key, s.cfg.CacheTTL, func(ctx context.Context) (models.DashboardStats, error) {
		computed, err := s.compute(ctx, scope, today)
		if err != nil {
			return models.DashboardStats{}, err
		}
		return *computed, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &stats, hit, nil
}

func (s *DashboardService) compute(ctx context.Context, scope models.Scope, today time.Time) (*models.DashboardStats, error) {
	current := billing.PeriodOf(today)
	stats := &models.DashboardStats{Period: current, MonthlyRevenue: decimal.Zero, GeneratedAt: time.Now().UTC()}

	students, err := s.students.ListActive(ctx, scope, today)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list active students")
	}
	var chosen map[string]models.PaymentRecord
	if len(students) > 0 {
		records, err := s.payments.List(ctx, models.PaymentQuery{
			Scope:      scope,
			Period:     &current,
			StudentIDs: lo.Map(students, func(st models.Student, _ int) string { return st.ID }),
			Today:      today,
		})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list payments")
		}
		chosen = choosePayments(records)
	}

	stats.TotalActiveStudents = len(students)
	for _, student := range students {
		if student.Approved {
			stats.ApprovedCount++
		} else {
			stats.PendingApprovalCount++
		}
		if student.NextDueDate().Equal(today) {
			stats.DueTodayCount++
		}
		var stored *billing.PaymentStatus
		if record, ok := chosen[student.ID]; ok {
			stored = &record.Status
		}
		if status, ok := billing.ComputeStatus(stored, student.DueDateFor(current), today); ok && status == billing.StatusOverdue {
			stats.OverdueCount++
		}
	}

	if stats.MonthlyRevenue, err = s.payments.SumApproved(ctx, scope, current, today); err != nil {
		return nil, appErrors.Internal(err, "failed to sum revenue")
	}
	if stats.TotalPayments, err = s.payments.Count(ctx, scope, today); err != nil {
		return nil, appErrors.Internal(err, "failed to count payments")
	}
	if stats.TotalInstructors, err = s.instructors.CountActive(ctx); err != nil {
		return nil, appErrors.Internal(err, "failed to count instructors")
	}
	return stats, nil
}

// Trend returns the number of enrolled students at the end of each of the last
// months, oldest first.
func (s *DashboardService) Trend(ctx context.Context, actor models.Actor, months int) ([]models.TrendPoint, error) {
	scope, err := authorize(actor, models.CapReadDashboard)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		months = defaultTrendMonths
	}
	if months > maxTrendMonths {
		months = maxTrendMonths
	}
	points, err := s.trend.Trend(ctx, scope, s.clock.Today(), months)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollment trend")
	}
	return points, nil
}

func scopeKey(scope models.Scope) string {
	switch {
	case scope.StudentID != "":
		return "student-" + scope.StudentID
	case scope.InstructorID != "":
		return "instructor-" + scope.InstructorID
	default:
		return "all"
	}
}
