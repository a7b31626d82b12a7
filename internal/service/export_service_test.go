package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voxen-api/internal/billing"
	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type stubPaymentLister struct {
	rows       []models.PaymentRow
	lastFilter models.PaymentFilter
}

func (s *stubPaymentLister) ListPayments(_ context.Context, _ models.Actor, filter models.PaymentFilter) ([]models.PaymentRow, error) {
	s.lastFilter = filter
	return s.rows, nil
}

func exportRows() []models.PaymentRow {
	approved := billing.PaymentApproved
	paid := decimal.RequireFromString("300")
	due := decimal.RequireFromString("300")
	paidOn := time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC)
	return []models.PaymentRow{
		{
			ID:            "p1",
			StudentName:   "Marina Costa",
			RefMonth:      6,
			RefYear:       2024,
			DueDate:       time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC),
			Status:        billing.StatusPaid,
			PaymentStatus: &approved,
			AmountPaid:    &paid,
			AmountDue:     &due,
			PaidOn:        &paidOn,
		},
		{
			ID:          "unpaid:s2:2024-06",
			StudentName: "Pedro Alves",
			RefMonth:    6,
			RefYear:     2024,
			DueDate:     time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC),
			Status:      billing.StatusOverdue,
			Synthetic:   true,
		},
	}
}

func TestExportServicePaymentsCSV(t *testing.T) {
	lister := &stubPaymentLister{rows: exportRows()}
	svc := NewExportService(lister, fixedClock(2024, time.June, 20), nil)

	filter := models.PaymentFilter{Month: 6, Year: 2024}
	file, err := svc.Payments(context.Background(), adminActor(), filter, "")
	require.NoError(t, err)
	assert.Equal(t, "payments-20240620.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, 2, file.Rows)
	assert.Equal(t, filter, lister.lastFilter)

	records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Student", "Period", "Due date", "Status", "Review", "Paid", "Due", "Paid on"}, records[0])
	assert.Equal(t, []string{"Marina Costa", "2024-06", "2024-06-10", "paid", "approved", "300.00", "300.00", "2024-06-09"}, records[1])
	assert.Equal(t, []string{"Pedro Alves", "2024-06", "2024-06-05", "overdue", "", "", "", ""}, records[2])
}

func TestExportServicePaymentsPDF(t *testing.T) {
	svc := NewExportService(&stubPaymentLister{rows: exportRows()}, fixedClock(2024, time.June, 20), nil)

	file, err := svc.Payments(context.Background(), adminActor(), models.PaymentFilter{}, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportServiceRejectsUnknownFormatAndStudents(t *testing.T) {
	svc := NewExportService(&stubPaymentLister{}, fixedClock(2024, time.June, 20), nil)

	_, err := svc.Payments(context.Background(), adminActor(), models.PaymentFilter{}, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	student := models.Actor{UserID: "u", Role: models.RoleStudent, StudentID: "s1"}
	_, err = svc.Payments(context.Background(), student, models.PaymentFilter{}, "csv")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
