package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// FinanceRepository persists fee receipts and expenses.
type FinanceRepository struct {
	db *sqlx.DB
}

// NewFinanceRepository constructs the repository.
func NewFinanceRepository(db *sqlx.DB) *FinanceRepository {
	return &FinanceRepository{db: db}
}

const receiptDetailSelect = `SELECT fr.id, fr.receipt_no, fr.student_id, fr.course_id, fr.batch_id, fr.amount,
        fr.mode, fr.txn_id, fr.date, fr.posted_by, fr.locked, fr.pdf_path,
        s.full_name AS student_name, s.reg_no AS student_reg_no, co.title AS course_title
        FROM fees_receipts fr
        JOIN students s ON s.id = fr.student_id
        JOIN courses co ON co.id = fr.course_id`

// FindReceiptByID returns a single receipt.
func (r *FinanceRepository) FindReceiptByID(ctx context.Context, id string) (*models.FeesReceipt, error) {
	const query = `SELECT id, receipt_no, student_id, course_id, batch_id, amount, mode, txn_id, date, posted_by, locked, pdf_path
        FROM fees_receipts WHERE id = $1`
	var receipt models.FeesReceipt
	if err := r.db.GetContext(ctx, &receipt, query, id); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindReceiptDetailByID returns a receipt with student and course names.
func (r *FinanceRepository) FindReceiptDetailByID(ctx context.Context, id string) (*models.FeesReceiptDetail, error) {
	query := receiptDetailSelect + ` WHERE fr.id = $1`
	var detail models.FeesReceiptDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateReceipt assigns the daily-sequential receipt number and inserts the
// row in one transaction. Receipts are never deleted afterwards.
func (r *FinanceRepository) CreateReceipt(ctx context.Context, receipt *models.FeesReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.Date.IsZero() {
		receipt.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin receipt tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if receipt.ReceiptNo == "" {
		var issuedToday int
		if err := tx.GetContext(ctx, &issuedToday, `SELECT COUNT(*) FROM fees_receipts WHERE date = $1`, receipt.Date); err != nil {
			return fmt.Errorf("count receipts issued today: %w", err)
		}
		receipt.ReceiptNo = fmt.Sprintf("RCPT-%s-%04d", receipt.Date.Format("20060102"), issuedToday+1)
	}

	const query = `INSERT INTO fees_receipts (id, receipt_no, student_id, course_id, batch_id, amount, mode, txn_id, date, posted_by, locked, pdf_path)
        VALUES (:id, :receipt_no, :student_id, :course_id, :batch_id, :amount, :mode, :txn_id, :date, :posted_by, :locked, :pdf_path)`
	if _, err := tx.NamedExecContext(ctx, query, receipt); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit receipt tx: %w", err)
	}
	return nil
}

// SetReceiptLocked marks a receipt as locked. Locking is one-way in the
// service layer; the repository stays a dumb switch.
func (r *FinanceRepository) SetReceiptLocked(ctx context.Context, id string, locked bool) error {
	const query = `UPDATE fees_receipts SET locked = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, locked); err != nil {
		return fmt.Errorf("set receipt locked: %w", err)
	}
	return nil
}

// SetReceiptPDFPath records the generated PDF's storage path.
func (r *FinanceRepository) SetReceiptPDFPath(ctx context.Context, id, path string) error {
	const query = `UPDATE fees_receipts SET pdf_path = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path); err != nil {
		return fmt.Errorf("set receipt pdf path: %w", err)
	}
	return nil
}

// ListReceipts returns receipts matching the filter with a total count.
func (r *FinanceRepository) ListReceipts(ctx context.Context, filter models.FeesReceiptFilter) ([]models.FeesReceiptDetail, int, error) {
	base := `FROM fees_receipts fr
JOIN students s ON s.id = fr.student_id
JOIN courses co ON co.id = fr.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Mode != "" {
		conditions = append(conditions, fmt.Sprintf("fr.mode = $%d", len(args)+1))
		args = append(args, filter.Mode)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("fr.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("fr.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT fr.id, fr.receipt_no, fr.student_id, fr.course_id, fr.batch_id, fr.amount,
        fr.mode, fr.txn_id, fr.date, fr.posted_by, fr.locked, fr.pdf_path,
        s.full_name AS student_name, s.reg_no AS student_reg_no, co.title AS course_title
        %s ORDER BY fr.date DESC, fr.receipt_no DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var receipts []models.FeesReceiptDetail
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count receipts: %w", err)
	}
	return receipts, total, nil
}

// SumPaid returns the total amount receipted for a student on a course.
func (r *FinanceRepository) SumPaid(ctx context.Context, studentID, courseID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM fees_receipts WHERE student_id = $1 AND course_id = $2`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("sum paid: %w", err)
	}
	return total, nil
}

// CourseAggregate returns the distinct active-or-completed enrolled head count
// and the collected total for a course in one round trip.
func (r *FinanceRepository) CourseAggregate(ctx context.Context, courseID string) (enrolled int, collected float64, err error) {
	const query = `SELECT
        (SELECT COUNT(DISTINCT e.student_id) FROM enrollments e
            JOIN batches b ON b.id = e.batch_id
            WHERE b.course_id = $1 AND e.status IN ('active', 'completed')) AS enrolled,
        COALESCE((SELECT SUM(fr.amount) FROM fees_receipts fr WHERE fr.course_id = $1), 0) AS collected`
	row := r.db.QueryRowxContext(ctx, query, courseID)
	if err := row.Scan(&enrolled, &collected); err != nil {
		return 0, 0, fmt.Errorf("course fee aggregate: %w", err)
	}
	return enrolled, collected, nil
}

// IncomeExpenseTotals sums receipts and expenses over an optional date window.
func (r *FinanceRepository) IncomeExpenseTotals(ctx context.Context, from, to *time.Time) (income, expense float64, err error) {
	var conditions []string
	var args []interface{}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT
        COALESCE((SELECT SUM(amount) FROM fees_receipts%s), 0) AS income,
        COALESCE((SELECT SUM(amount) FROM expenses%s), 0) AS expense`, clause, clause)
	row := r.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&income, &expense); err != nil {
		return 0, 0, fmt.Errorf("income expense totals: %w", err)
	}
	return income, expense, nil
}

// MonthlyIncomeExpense returns per-month income and expense sums over the
// trailing window, oldest month first. Months with activity on only one side
// still appear with the other side at zero.
func (r *FinanceRepository) MonthlyIncomeExpense(ctx context.Context, months int) ([]models.MonthlyFinance, error) {
	if months <= 0 {
		months = 12
	}
	const query = `SELECT COALESCE(i.month, x.month) AS month,
        COALESCE(i.income, 0) AS income,
        COALESCE(x.expense, 0) AS expense
        FROM (SELECT to_char(date_trunc('month', date), 'YYYY-MM') AS month, SUM(amount) AS income
            FROM fees_receipts GROUP BY 1) i
        FULL OUTER JOIN (SELECT to_char(date_trunc('month', date), 'YYYY-MM') AS month, SUM(amount) AS expense
            FROM expenses GROUP BY 1) x ON x.month = i.month
        ORDER BY month DESC LIMIT $1`
	var rows []models.MonthlyFinance
	if err := r.db.SelectContext(ctx, &rows, query, months); err != nil {
		return nil, fmt.Errorf("monthly income expense: %w", err)
	}
	// reverse into chronological order for charting
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// CreateExpense inserts an expense entry.
func (r *FinanceRepository) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}
	const query = `INSERT INTO expenses (id, date, description, category, amount, added_by)
        VALUES (:id, :date, :description, :category, :amount, :added_by)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

// ListExpenses returns expenses in a date window, newest first.
func (r *FinanceRepository) ListExpenses(ctx context.Context, from, to *time.Time) ([]models.Expense, error) {
	query := `SELECT id, date, description, category, amount, added_by FROM expenses`
	var conditions []string
	var args []interface{}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC"

	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}
