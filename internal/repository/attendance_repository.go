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

// AttendanceRepository persists attendance sheets and their entries.
// Sheet plus entries always commit as a single transaction.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// SheetExists reports whether a sheet already exists for the batch and date.
func (r *AttendanceRepository) SheetExists(ctx context.Context, batchID string, date time.Time) (bool, error) {
	const query = `SELECT 1 FROM attendance_sheets WHERE batch_id = $1 AND date = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, batchID, date); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check sheet: %w", err)
	}
	return true, nil
}

// FindSheetByID returns a sheet by its ID.
func (r *AttendanceRepository) FindSheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	const query = `SELECT id, batch_id, date, taken_by, remarks, created_at FROM attendance_sheets WHERE id = $1`
	var sheet models.AttendanceSheet
	if err := r.db.GetContext(ctx, &sheet, query, id); err != nil {
		return nil, err
	}
	return &sheet, nil
}

// CreateSheetWithEntries inserts the sheet and all entries as one
// all-or-nothing unit.
func (r *AttendanceRepository) CreateSheetWithEntries(ctx context.Context, sheet *models.AttendanceSheet, entries []models.AttendanceEntry) error {
	if sheet.ID == "" {
		sheet.ID = uuid.NewString()
	}
	sheet.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sheet tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const sheetQuery = `INSERT INTO attendance_sheets (id, batch_id, date, taken_by, remarks, created_at)
        VALUES (:id, :batch_id, :date, :taken_by, :remarks, :created_at)`
	if _, err := tx.NamedExecContext(ctx, sheetQuery, sheet); err != nil {
		return fmt.Errorf("insert sheet: %w", err)
	}

	if err := insertEntries(ctx, tx, sheet.ID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sheet tx: %w", err)
	}
	return nil
}

// ReplaceEntries deletes all prior entries for the sheet and inserts the new
// set in one transaction. Last writer wins.
func (r *AttendanceRepository) ReplaceEntries(ctx context.Context, sheetID string, entries []models.AttendanceEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_entries WHERE sheet_id = $1`, sheetID); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}

	if err := insertEntries(ctx, tx, sheetID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sqlx.Tx, sheetID string, entries []models.AttendanceEntry) error {
	const entryQuery = `INSERT INTO attendance_entries (id, sheet_id, student_id, status)
        VALUES (:id, :sheet_id, :student_id, :status)`
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		entries[i].SheetID = sheetID
		if _, err := tx.NamedExecContext(ctx, entryQuery, entries[i]); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return nil
}

// ListEntries returns the entries of a sheet with student context.
func (r *AttendanceRepository) ListEntries(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error) {
	const query = `SELECT ae.id, ae.sheet_id, ae.student_id, ae.status,
        s.full_name AS student_name, s.reg_no AS student_reg_no
        FROM attendance_entries ae
        JOIN students s ON s.id = ae.student_id
        WHERE ae.sheet_id = $1 ORDER BY s.full_name ASC`
	var entries []models.AttendanceEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, sheetID); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// Summary aggregates the P/A/L breakdown of a sheet.
func (r *AttendanceRepository) Summary(ctx context.Context, sheetID string) (*models.AttendanceSummary, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status = 'P') AS present,
        COUNT(*) FILTER (WHERE status = 'A') AS absent,
        COUNT(*) FILTER (WHERE status = 'L') AS leave
        FROM attendance_entries WHERE sheet_id = $1`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, sheetID); err != nil {
		return nil, fmt.Errorf("sheet summary: %w", err)
	}
	return &summary, nil
}

// ListSheets returns sheets matching the filter with a total count.
func (r *AttendanceRepository) ListSheets(ctx context.Context, filter models.AttendanceSheetFilter) ([]models.AttendanceSheet, int, error) {
	base := `FROM attendance_sheets sh JOIN batches b ON b.id = sh.batch_id`
	var conditions []string
	var args []interface{}

	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("sh.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("sh.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("sh.date <= $%d", len(args)+1))
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

	query := fmt.Sprintf(`SELECT sh.id, sh.batch_id, sh.date, sh.taken_by, sh.remarks, sh.created_at
        %s ORDER BY sh.date DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var sheets []models.AttendanceSheet
	if err := r.db.SelectContext(ctx, &sheets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sheets: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sheets: %w", err)
	}
	return sheets, total, nil
}
