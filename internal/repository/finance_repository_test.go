package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-api/internal/models"
)

func TestFinanceRepositoryCreateReceiptAssignsDailyNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM fees_receipts WHERE date = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectExec("INSERT INTO fees_receipts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	receipt := &models.FeesReceipt{
		StudentID: "s1",
		CourseID:  "c1",
		Amount:    5000,
		Mode:      models.PaymentModeCash,
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateReceipt(context.Background(), receipt))
	assert.Equal(t, "RCPT-20260302-0012", receipt.ReceiptNo)
	assert.NotEmpty(t, receipt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositorySumPaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM fees_receipts WHERE student_id = $1 AND course_id = $2")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7500.0))

	total, err := repo.SumPaid(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 7500.0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositoryCourseAggregate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(DISTINCT e.student_id\\)").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "collected"}).AddRow(5, 32000.0))

	enrolled, collected, err := repo.CourseAggregate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, enrolled)
	assert.Equal(t, 32000.0, collected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositoryIncomeExpenseTotals(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT SUM\(amount\) FROM fees_receipts WHERE date >= \$1`).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"income", "expense"}).AddRow(90000.0, 35000.0))

	income, expense, err := repo.IncomeExpenseTotals(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, 90000.0, income)
	assert.Equal(t, 35000.0, expense)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositoryMonthlyIncomeExpense(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	mock.ExpectQuery(`FULL OUTER JOIN`).
		WithArgs(12).
		WillReturnRows(sqlmock.NewRows([]string{"month", "income", "expense"}).
			AddRow("2026-02", 15000.0, 18000.0).
			AddRow("2026-01", 20000.0, 8000.0))

	rows, err := repo.MonthlyIncomeExpense(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// rows come back newest first and are flipped for charting
	assert.Equal(t, "2026-01", rows[0].Month)
	assert.Equal(t, "2026-02", rows[1].Month)
	assert.Equal(t, 20000.0, rows[0].Income)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceRepositorySetReceiptLocked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFinanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE fees_receipts SET locked = $2 WHERE id = $1")).
		WithArgs("r1", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SetReceiptLocked(context.Background(), "r1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
