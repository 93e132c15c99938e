package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/export"
	"github.com/noah-isme/ims-api/pkg/jobs"
)

type financeRepository interface {
	FindReceiptByID(ctx context.Context, id string) (*models.FeesReceipt, error)
	FindReceiptDetailByID(ctx context.Context, id string) (*models.FeesReceiptDetail, error)
	CreateReceipt(ctx context.Context, receipt *models.FeesReceipt) error
	SetReceiptLocked(ctx context.Context, id string, locked bool) error
	SetReceiptPDFPath(ctx context.Context, id, path string) error
	ListReceipts(ctx context.Context, filter models.FeesReceiptFilter) ([]models.FeesReceiptDetail, int, error)
	SumPaid(ctx context.Context, studentID, courseID string) (float64, error)
	CourseAggregate(ctx context.Context, courseID string) (int, float64, error)
	CreateExpense(ctx context.Context, expense *models.Expense) error
	ListExpenses(ctx context.Context, from, to *time.Time) ([]models.Expense, error)
	IncomeExpenseTotals(ctx context.Context, from, to *time.Time) (float64, float64, error)
	MonthlyIncomeExpense(ctx context.Context, months int) ([]models.MonthlyFinance, error)
}

// CreateReceiptRequest describes a fee payment posting.
type CreateReceiptRequest struct {
	StudentID string             `json:"student_id" validate:"required"`
	CourseID  string             `json:"course_id" validate:"required"`
	BatchID   *string            `json:"batch_id"`
	Amount    float64            `json:"amount" validate:"required,gt=0"`
	Mode      models.PaymentMode `json:"mode" validate:"required"`
	TxnID     string             `json:"txn_id"`
	PostedBy  *string            `json:"-"`
}

// CreateExpenseRequest describes an expense entry.
type CreateExpenseRequest struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description" validate:"required"`
	Category    string    `json:"category" validate:"required"`
	Amount      float64   `json:"amount" validate:"required,gt=0"`
	AddedBy     *string   `json:"-"`
}

// FinanceService posts receipts and derives fee balances. Total fees come
// from the course; the due figure is always recomputed, never stored.
type FinanceService struct {
	repo      financeRepository
	students  studentReader
	courses   courseReader
	renderer  *export.DocumentRenderer
	store     certificateStore
	signer    documentSigner
	pdfQueue  *jobs.Queue
	reminders postPaymentChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// postPaymentChecker is notified after every posted receipt so an overdue
// reminder can go out when a balance remains. Failures never surface to the
// caller.
type postPaymentChecker interface {
	CheckAfterPayment(ctx context.Context, studentID, courseID string)
}

// NewFinanceService constructs FinanceService.
func NewFinanceService(repo financeRepository, students studentReader, courses courseReader, renderer *export.DocumentRenderer, store certificateStore, validate *validator.Validate, logger *zap.Logger) *FinanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceService{repo: repo, students: students, courses: courses, renderer: renderer, store: store, validator: validate, logger: logger}
}

// AttachPDFQueue wires the background queue used for receipt PDFs.
func (s *FinanceService) AttachPDFQueue(q *jobs.Queue) {
	s.pdfQueue = q
}

// AttachSigner wires the signer used for download links.
func (s *FinanceService) AttachSigner(signer documentSigner) {
	s.signer = signer
}

// AttachReminderCheck wires the post-payment overdue check. Attached after
// construction because the reminder service itself depends on this one for
// balance figures.
func (s *FinanceService) AttachReminderCheck(checker postPaymentChecker) {
	s.reminders = checker
}

// Outstanding computes the fee position for a student on a course. The due
// figure is clamped at zero; overpayment shows through total_paid.
func (s *FinanceService) Outstanding(ctx context.Context, studentID, courseID string) (*models.OutstandingBalance, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	paid, err := s.repo.SumPaid(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	due := course.TotalFees - paid
	if due < 0 {
		due = 0
	}
	return &models.OutstandingBalance{
		StudentID: studentID,
		CourseID:  courseID,
		TotalFees: course.TotalFees,
		TotalPaid: paid,
		Due:       due,
	}, nil
}

// CourseOutstanding aggregates the fee position across a course.
func (s *FinanceService) CourseOutstanding(ctx context.Context, courseID string) (*models.CourseOutstanding, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	enrolled, collected, err := s.repo.CourseAggregate(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate course fees")
	}
	expected := course.TotalFees * float64(enrolled)
	outstanding := expected - collected
	if outstanding < 0 {
		outstanding = 0
	}
	return &models.CourseOutstanding{
		CourseID:         courseID,
		CourseTitle:      course.Title,
		EnrolledStudents: enrolled,
		ExpectedFees:     expected,
		CollectedFees:    collected,
		Outstanding:      outstanding,
	}, nil
}

// CreateReceipt posts a payment and queues the receipt PDF.
func (s *FinanceService) CreateReceipt(ctx context.Context, req CreateReceiptRequest) (*models.FeesReceiptDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid receipt payload")
	}
	if !req.Mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment mode: "+string(req.Mode))
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	receipt := &models.FeesReceipt{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		BatchID:   req.BatchID,
		Amount:    req.Amount,
		Mode:      req.Mode,
		TxnID:     req.TxnID,
		PostedBy:  req.PostedBy,
	}
	if err := s.repo.CreateReceipt(ctx, receipt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create receipt")
	}

	if s.pdfQueue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: "receipt_pdf", Payload: receipt.ID}
		if err := s.pdfQueue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue receipt pdf", zap.String("receipt_id", receipt.ID), zap.Error(err))
		}
	}

	s.logger.Info("receipt posted",
		zap.String("receipt_id", receipt.ID),
		zap.String("receipt_no", receipt.ReceiptNo),
		zap.String("student_id", receipt.StudentID),
		zap.Float64("amount", receipt.Amount))

	if s.reminders != nil {
		s.reminders.CheckAfterPayment(ctx, receipt.StudentID, receipt.CourseID)
	}
	return s.repo.FindReceiptDetailByID(ctx, receipt.ID)
}

// GetReceipt returns one receipt with its joined detail.
func (s *FinanceService) GetReceipt(ctx context.Context, id string) (*models.FeesReceiptDetail, error) {
	detail, err := s.repo.FindReceiptDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load receipt")
	}
	return detail, nil
}

// ListReceipts returns receipts with pagination metadata.
func (s *FinanceService) ListReceipts(ctx context.Context, filter models.FeesReceiptFilter) ([]models.FeesReceiptDetail, *models.Pagination, error) {
	receipts, total, err := s.repo.ListReceipts(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list receipts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return receipts, pagination, nil
}

// ReceiptDownloadLink returns a signed, expiring token for the receipt PDF.
func (s *FinanceService) ReceiptDownloadLink(ctx context.Context, id string) (*DownloadLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "downloads are not configured")
	}
	receipt, err := s.repo.FindReceiptByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load receipt")
	}
	if receipt.PDFPath == nil || *receipt.PDFPath == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "receipt pdf is not generated yet")
	}
	token, expiresAt, err := s.signer.Generate(receipt.ID, *receipt.PDFPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &DownloadLink{Token: token, URL: "/files/" + token, ExpiresAt: expiresAt}, nil
}

// ExportReceipts renders the filtered receipt list as a CSV or PDF document.
// Pagination does not apply; the export always covers the full filter window
// up to the repository cap.
func (s *FinanceService) ExportReceipts(ctx context.Context, filter models.FeesReceiptFilter, format string) ([]byte, string, string, error) {
	filter.Page = 1
	filter.PageSize = 100
	receipts, _, err := s.repo.ListReceipts(ctx, filter)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list receipts")
	}

	dataset := export.Dataset{
		Headers: []string{"Receipt No", "Date", "Student", "Reg No", "Course", "Mode", "Amount", "Txn ID"},
	}
	for _, r := range receipts {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Receipt No": r.ReceiptNo,
			"Date":       r.Date.Format("2006-01-02"),
			"Student":    r.StudentName,
			"Reg No":     r.StudentRegNo,
			"Course":     r.CourseTitle,
			"Mode":       string(r.Mode),
			"Amount":     fmt.Sprintf("%.2f", r.Amount),
			"Txn ID":     r.TxnID,
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "", "csv":
		data, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "receipts-" + stamp + ".csv", "text/csv", nil
	case "pdf":
		data, err := export.NewPDFExporter().Render(dataset, "Fee Receipts")
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "receipts-" + stamp + ".pdf", "application/pdf", nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}

// LockReceipt makes a receipt immutable. Locking is one-way; a locked
// receipt cannot be locked again or unlocked.
func (s *FinanceService) LockReceipt(ctx context.Context, id string) (*models.FeesReceiptDetail, error) {
	receipt, err := s.repo.FindReceiptByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load receipt")
	}
	if receipt.Locked {
		return nil, appErrors.Clone(appErrors.ErrReceiptLocked, "receipt is already locked")
	}
	if err := s.repo.SetReceiptLocked(ctx, id, true); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock receipt")
	}
	s.logger.Info("receipt locked", zap.String("receipt_id", id), zap.String("receipt_no", receipt.ReceiptNo))
	return s.repo.FindReceiptDetailByID(ctx, id)
}

// CreateExpense records an operational expense.
func (s *FinanceService) CreateExpense(ctx context.Context, req CreateExpenseRequest) (*models.Expense, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}
	expense := &models.Expense{
		Date:        req.Date,
		Description: req.Description,
		Category:    req.Category,
		Amount:      req.Amount,
		AddedBy:     req.AddedBy,
	}
	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expense")
	}
	return expense, nil
}

// ListExpenses returns expenses in a date window.
func (s *FinanceService) ListExpenses(ctx context.Context, from, to *time.Time) ([]models.Expense, error) {
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}
	return expenses, nil
}

// Summary totals income against expenses over an optional date window.
func (s *FinanceService) Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error) {
	income, expense, err := s.repo.IncomeExpenseTotals(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute finance summary")
	}
	return &models.FinanceSummary{
		TotalIncome:  income,
		TotalExpense: expense,
		NetProfit:    income - expense,
	}, nil
}

// IncomeExpenseTrend returns the per-month income-versus-expense series for
// the trailing window, oldest month first.
func (s *FinanceService) IncomeExpenseTrend(ctx context.Context, months int) ([]models.MonthlyFinance, error) {
	rows, err := s.repo.MonthlyIncomeExpense(ctx, months)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute income-expense trend")
	}
	for i := range rows {
		rows[i].NetProfit = rows[i].Income - rows[i].Expense
	}
	if rows == nil {
		rows = []models.MonthlyFinance{}
	}
	return rows, nil
}

// CourseIncome summarises collections and the enrolled head count for one
// course.
func (s *FinanceService) CourseIncome(ctx context.Context, courseID string) (*models.CourseIncome, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	enrolled, collected, err := s.repo.CourseAggregate(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate course income")
	}
	return &models.CourseIncome{
		CourseID:       course.ID,
		CourseTitle:    course.Title,
		TotalIncome:    collected,
		ActiveStudents: enrolled,
	}, nil
}

// GenerateReceiptPDF renders a receipt PDF and records its storage path.
func (s *FinanceService) GenerateReceiptPDF(ctx context.Context, receiptID string) error {
	if s.renderer == nil || s.store == nil {
		return nil
	}
	detail, err := s.repo.FindReceiptDetailByID(ctx, receiptID)
	if err != nil {
		return fmt.Errorf("load receipt %s: %w", receiptID, err)
	}
	balance, err := s.Outstanding(ctx, detail.StudentID, detail.CourseID)
	if err != nil {
		return fmt.Errorf("compute balance for receipt %s: %w", receiptID, err)
	}
	data, err := s.renderer.RenderReceipt(export.ReceiptDocument{
		ReceiptNo:    detail.ReceiptNo,
		StudentName:  detail.StudentName,
		StudentRegNo: detail.StudentRegNo,
		CourseTitle:  detail.CourseTitle,
		Amount:       detail.Amount,
		Mode:         string(detail.Mode),
		TxnID:        detail.TxnID,
		Date:         detail.Date,
		TotalPaid:    balance.TotalPaid,
		Due:          balance.Due,
	})
	if err != nil {
		return fmt.Errorf("render receipt %s: %w", receiptID, err)
	}
	path, err := s.store.Save(detail.ReceiptNo+".pdf", data)
	if err != nil {
		return fmt.Errorf("store receipt %s: %w", receiptID, err)
	}
	if err := s.repo.SetReceiptPDFPath(ctx, receiptID, path); err != nil {
		return fmt.Errorf("record receipt pdf path %s: %w", receiptID, err)
	}
	return nil
}

// HandlePDFJob adapts GenerateReceiptPDF to the queue handler signature.
func (s *FinanceService) HandlePDFJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected pdf job payload %T", job.Payload)
	}
	return s.GenerateReceiptPDF(ctx, id)
}
