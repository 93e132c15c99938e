package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type mockFinanceRepo struct {
	receipts  map[string]*models.FeesReceipt
	details   map[string]*models.FeesReceiptDetail
	paid      float64
	enrolled  int
	collected float64
	listed    []models.FeesReceiptDetail
	created   []*models.FeesReceipt
	locked    []string
	expenses  []*models.Expense
	income    float64
	expense   float64
	monthly   []models.MonthlyFinance
}

func (m *mockFinanceRepo) FindReceiptByID(ctx context.Context, id string) (*models.FeesReceipt, error) {
	if r, ok := m.receipts[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFinanceRepo) FindReceiptDetailByID(ctx context.Context, id string) (*models.FeesReceiptDetail, error) {
	if d, ok := m.details[id]; ok {
		cp := *d
		return &cp, nil
	}
	return &models.FeesReceiptDetail{FeesReceipt: models.FeesReceipt{ID: id}}, nil
}

func (m *mockFinanceRepo) CreateReceipt(ctx context.Context, receipt *models.FeesReceipt) error {
	if receipt.ID == "" {
		receipt.ID = "r-1"
	}
	receipt.ReceiptNo = "RCPT-20260302-0001"
	m.created = append(m.created, receipt)
	return nil
}

func (m *mockFinanceRepo) SetReceiptLocked(ctx context.Context, id string, locked bool) error {
	m.locked = append(m.locked, id)
	return nil
}

func (m *mockFinanceRepo) SetReceiptPDFPath(ctx context.Context, id, path string) error {
	return nil
}

func (m *mockFinanceRepo) ListReceipts(ctx context.Context, filter models.FeesReceiptFilter) ([]models.FeesReceiptDetail, int, error) {
	return m.listed, len(m.listed), nil
}

func (m *mockFinanceRepo) SumPaid(ctx context.Context, studentID, courseID string) (float64, error) {
	return m.paid, nil
}

func (m *mockFinanceRepo) CourseAggregate(ctx context.Context, courseID string) (int, float64, error) {
	return m.enrolled, m.collected, nil
}

func (m *mockFinanceRepo) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = "exp-1"
	}
	m.expenses = append(m.expenses, expense)
	return nil
}

func (m *mockFinanceRepo) ListExpenses(ctx context.Context, from, to *time.Time) ([]models.Expense, error) {
	return nil, nil
}

func (m *mockFinanceRepo) IncomeExpenseTotals(ctx context.Context, from, to *time.Time) (float64, float64, error) {
	return m.income, m.expense, nil
}

func (m *mockFinanceRepo) MonthlyIncomeExpense(ctx context.Context, months int) ([]models.MonthlyFinance, error) {
	return m.monthly, nil
}

func newFinanceServiceForTest(repo *mockFinanceRepo, students *mockStudentReader, courses *mockCourseReader) *FinanceService {
	return NewFinanceService(repo, students, courses, nil, nil, validator.New(), zap.NewNop())
}

func TestOutstandingComputesDue(t *testing.T) {
	repo := &mockFinanceRepo{paid: 3000}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", TotalFees: 10000}}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, courses)

	balance, err := svc.Outstanding(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, balance.TotalFees)
	assert.Equal(t, 3000.0, balance.TotalPaid)
	assert.Equal(t, 7000.0, balance.Due)
}

func TestOutstandingClampsOverpayment(t *testing.T) {
	repo := &mockFinanceRepo{paid: 12000}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", TotalFees: 10000}}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, courses)

	balance, err := svc.Outstanding(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance.Due)
	assert.Equal(t, 12000.0, balance.TotalPaid)
}

func TestCourseOutstandingAggregates(t *testing.T) {
	repo := &mockFinanceRepo{enrolled: 5, collected: 32000}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", Title: "Course One", TotalFees: 10000}}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, courses)

	agg, err := svc.CourseOutstanding(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, agg.EnrolledStudents)
	assert.Equal(t, 50000.0, agg.ExpectedFees)
	assert.Equal(t, 18000.0, agg.Outstanding)
}

func TestCreateReceipt(t *testing.T) {
	repo := &mockFinanceRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := newFinanceServiceForTest(repo, students, courses)

	_, err := svc.CreateReceipt(context.Background(), CreateReceiptRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Amount:    2500,
		Mode:      models.PaymentModeUPI,
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, 2500.0, repo.created[0].Amount)
}

type recordingPaymentChecker struct {
	calls [][2]string
}

func (m *recordingPaymentChecker) CheckAfterPayment(ctx context.Context, studentID, courseID string) {
	m.calls = append(m.calls, [2]string{studentID, courseID})
}

func TestCreateReceiptTriggersReminderCheck(t *testing.T) {
	repo := &mockFinanceRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1"}}}
	svc := newFinanceServiceForTest(repo, students, courses)
	checker := &recordingPaymentChecker{}
	svc.AttachReminderCheck(checker)

	_, err := svc.CreateReceipt(context.Background(), CreateReceiptRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Amount:    2500,
		Mode:      models.PaymentModeCash,
	})
	require.NoError(t, err)
	require.Len(t, checker.calls, 1)
	assert.Equal(t, [2]string{"s1", "c1"}, checker.calls[0])
}

func TestCreateReceiptInvalidMode(t *testing.T) {
	repo := &mockFinanceRepo{}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	_, err := svc.CreateReceipt(context.Background(), CreateReceiptRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Amount:    100,
		Mode:      "cheque",
	})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
	assert.Empty(t, repo.created)
}

func TestCreateReceiptRejectsNonPositiveAmount(t *testing.T) {
	repo := &mockFinanceRepo{}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	_, err := svc.CreateReceipt(context.Background(), CreateReceiptRequest{
		StudentID: "s1",
		CourseID:  "c1",
		Amount:    0,
		Mode:      models.PaymentModeCash,
	})
	require.Error(t, err)
	assert.Empty(t, repo.created)
}

func TestLockReceiptOneWay(t *testing.T) {
	repo := &mockFinanceRepo{receipts: map[string]*models.FeesReceipt{
		"r-1": {ID: "r-1", ReceiptNo: "RCPT-20260302-0001"},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	_, err := svc.LockReceipt(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-1"}, repo.locked)
}

func TestLockReceiptAlreadyLocked(t *testing.T) {
	repo := &mockFinanceRepo{receipts: map[string]*models.FeesReceipt{
		"r-1": {ID: "r-1", Locked: true},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	_, err := svc.LockReceipt(context.Background(), "r-1")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrReceiptLocked.Code, apiErr.Code)
	assert.Empty(t, repo.locked)
}

type mockSigner struct {
	err error
}

func (m *mockSigner) Generate(docID, relPath string) (string, time.Time, error) {
	if m.err != nil {
		return "", time.Time{}, m.err
	}
	return docID + ".token", time.Now().Add(time.Hour), nil
}

func TestReceiptDownloadLink(t *testing.T) {
	pdfPath := "RCPT-20260302-0001.pdf"
	repo := &mockFinanceRepo{receipts: map[string]*models.FeesReceipt{
		"r-1": {ID: "r-1", ReceiptNo: "RCPT-20260302-0001", PDFPath: &pdfPath},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})
	svc.AttachSigner(&mockSigner{})

	link, err := svc.ReceiptDownloadLink(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1.token", link.Token)
	assert.Equal(t, "/files/r-1.token", link.URL)
	assert.False(t, link.ExpiresAt.IsZero())
}

func TestReceiptDownloadLinkPDFPending(t *testing.T) {
	repo := &mockFinanceRepo{receipts: map[string]*models.FeesReceipt{
		"r-1": {ID: "r-1", ReceiptNo: "RCPT-20260302-0001"},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})
	svc.AttachSigner(&mockSigner{})

	_, err := svc.ReceiptDownloadLink(context.Background(), "r-1")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
}

func TestExportReceiptsCSV(t *testing.T) {
	repo := &mockFinanceRepo{listed: []models.FeesReceiptDetail{
		{
			FeesReceipt: models.FeesReceipt{
				ReceiptNo: "RCPT-20260302-0001",
				Amount:    5000,
				Mode:      models.PaymentModeUPI,
				Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			},
			StudentName:  "Asha Verma",
			StudentRegNo: "STU2026-001",
			CourseTitle:  "Tailoring Basics",
		},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	data, filename, contentType, err := svc.ExportReceipts(context.Background(), models.FeesReceiptFilter{}, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasSuffix(filename, ".csv"))
	body := string(data)
	assert.Contains(t, body, "Receipt No")
	assert.Contains(t, body, "RCPT-20260302-0001")
	assert.Contains(t, body, "Asha Verma")
	assert.Contains(t, body, "5000.00")
}

func TestFinanceSummary(t *testing.T) {
	repo := &mockFinanceRepo{income: 90000, expense: 35000}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	summary, err := svc.Summary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 90000.0, summary.TotalIncome)
	assert.Equal(t, 35000.0, summary.TotalExpense)
	assert.Equal(t, 55000.0, summary.NetProfit)
}

func TestIncomeExpenseTrendComputesNetProfit(t *testing.T) {
	repo := &mockFinanceRepo{monthly: []models.MonthlyFinance{
		{Month: "2026-01", Income: 20000, Expense: 8000},
		{Month: "2026-02", Income: 15000, Expense: 18000},
	}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, &mockCourseReader{})

	trend, err := svc.IncomeExpenseTrend(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, 12000.0, trend[0].NetProfit)
	assert.Equal(t, -3000.0, trend[1].NetProfit)
}

func TestCourseIncome(t *testing.T) {
	repo := &mockFinanceRepo{enrolled: 8, collected: 64000}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", Title: "Course One"}}}
	svc := newFinanceServiceForTest(repo, &mockStudentReader{}, courses)

	summary, err := svc.CourseIncome(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Course One", summary.CourseTitle)
	assert.Equal(t, 64000.0, summary.TotalIncome)
	assert.Equal(t, 8, summary.ActiveStudents)
}

func TestCourseIncomeUnknownCourse(t *testing.T) {
	svc := newFinanceServiceForTest(&mockFinanceRepo{}, &mockStudentReader{}, &mockCourseReader{})

	_, err := svc.CourseIncome(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, apiErr.Code)
}

func TestExportReceiptsUnsupportedFormat(t *testing.T) {
	svc := newFinanceServiceForTest(&mockFinanceRepo{}, &mockStudentReader{}, &mockCourseReader{})

	_, _, _, err := svc.ExportReceipts(context.Background(), models.FeesReceiptFilter{}, "xlsx")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
}
