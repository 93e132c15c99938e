package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// ReminderRepository persists fee reminders.
type ReminderRepository struct {
	db *sqlx.DB
}

// NewReminderRepository constructs the repository.
func NewReminderRepository(db *sqlx.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create inserts a reminder row.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.SentAt.IsZero() {
		reminder.SentAt = time.Now().UTC()
	}
	const query = `INSERT INTO reminders (id, student_id, course_id, batch_id, message, sent_at, sent_by, status)
        VALUES (:id, :student_id, :course_id, :batch_id, :message, :sent_at, :sent_by, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// LastSentAt returns the timestamp of the most recent reminder for the
// student and course pair. Returns (zero, nil) when none exists.
func (r *ReminderRepository) LastSentAt(ctx context.Context, studentID, courseID string) (time.Time, error) {
	const query = `SELECT COALESCE(MAX(sent_at), 'epoch'::timestamptz) FROM reminders WHERE student_id = $1 AND course_id = $2`
	var last time.Time
	if err := r.db.GetContext(ctx, &last, query, studentID, courseID); err != nil {
		return time.Time{}, fmt.Errorf("last reminder sent at: %w", err)
	}
	if last.Unix() <= 0 {
		return time.Time{}, nil
	}
	return last, nil
}

// UpdateStatus records the delivery outcome of a reminder.
func (r *ReminderRepository) UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error {
	const query = `UPDATE reminders SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update reminder status: %w", err)
	}
	return nil
}

// List returns reminders matching the filter with a total count.
func (r *ReminderRepository) List(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, int, error) {
	base := `FROM reminders`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf(`SELECT id, student_id, course_id, batch_id, message, sent_at, sent_by, status
        %s ORDER BY sent_at DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var reminders []models.Reminder
	if err := r.db.SelectContext(ctx, &reminders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reminders: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count reminders: %w", err)
	}
	return reminders, total, nil
}
