package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
)

type fakeDashboardSrv struct {
	stats      *models.DashboardStats
	hit        bool
	err        error
	points     []models.TrendPoint
	lastActor  models.Actor
	lastMonths int
}

func (f *fakeDashboardSrv) Stats(_ context.Context, actor models.Actor) (*models.DashboardStats, bool, error) {
	f.lastActor = actor
	return f.stats, f.hit, f.err
}

func (f *fakeDashboardSrv) Trend(_ context.Context, actor models.Actor, months int) ([]models.TrendPoint, error) {
	f.lastActor = actor
	f.lastMonths = months
	return f.points, f.err
}

func TestDashboardHandlerStatsRequiresActor(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{})
	c, rec := newTestContext(http.MethodGet, "/dashboard/stats", nil, nil)

	handler.Stats(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerStatsSuccess(t *testing.T) {
	service := &fakeDashboardSrv{
		stats: &models.DashboardStats{
			Period:              billing.Period{Month: 6, Year: 2024},
			TotalActiveStudents: 4,
			MonthlyRevenue:      decimal.RequireFromString("1200"),
		},
		hit: true,
	}
	handler := NewDashboardHandler(service)
	c, rec := newTestContext(http.MethodGet, "/dashboard/stats", nil, instructorClaims("i1"))

	handler.Stats(c)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope.Data, &stats))
	assert.EqualValues(t, 4, stats["total_active_students"])
	assert.Equal(t, "1200", stats["monthly_revenue"])
	assert.Equal(t, models.Actor{UserID: "u-i1", Role: models.RoleInstructor, InstructorID: "i1"}, service.lastActor)
}

func TestDashboardHandlerTrend(t *testing.T) {
	service := &fakeDashboardSrv{points: []models.TrendPoint{{Period: "2024-06", ActiveStudents: 12}}}
	handler := NewDashboardHandler(service)

	c, rec := newTestContext(http.MethodGet, "/dashboard/enrollment-trend?months=6", nil, adminClaims())
	handler.Trend(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, service.lastMonths)

	c, rec = newTestContext(http.MethodGet, "/dashboard/enrollment-trend?months=six", nil, adminClaims())
	handler.Trend(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
