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

// EnrollmentRepository handles persistence of enrollments and the
// attendance-derived completion state.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.batch_id, e.enrolled_on, e.completion_date, e.status,
        s.full_name AS student_name, s.reg_no AS student_reg_no, b.code AS batch_code,
        b.course_id AS course_id, c.title AS course_title, c.required_attendance_days AS required_days,
        t.full_name AS trainer_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN batches b ON b.id = e.batch_id
        JOIN courses c ON c.id = b.course_id
        LEFT JOIN trainers t ON t.id = b.trainer_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN batches b ON b.id = e.batch_id
JOIN courses c ON c.id = b.course_id
LEFT JOIN trainers t ON t.id = b.trainer_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("e.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_on":  "e.enrolled_on",
		"student_name": "s.full_name",
		"batch_code":   "b.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_on"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.batch_id, e.enrolled_on, e.completion_date, e.status,
        s.full_name AS student_name, s.reg_no AS student_reg_no, b.code AS batch_code,
        b.course_id AS course_id, c.title AS course_title, c.required_attendance_days AS required_days,
        t.full_name AS trainer_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, (page-1)*size)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, batch_id, enrolled_on, completion_date, status FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks for any enrollment of the student in the batch, enforcing
// the unique (student, batch) invariant at the application level.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, batchID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND batch_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, batchID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledOn.IsZero() {
		enrollment.EnrolledOn = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, batch_id, enrolled_on, completion_date, status)
        VALUES (:id, :student_id, :batch_id, :enrolled_on, :completion_date, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates status and completion_date for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, completionDate *time.Time) error {
	const query = `UPDATE enrollments SET status = $2, completion_date = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, completionDate); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// MarkCompleted flips an active enrollment to completed, persisting only the
// status and completion date. The status guard in the WHERE clause keeps the
// operation idempotent under repeated checks.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, id string, completionDate time.Time) error {
	const query = `UPDATE enrollments SET status = $2, completion_date = $3 WHERE id = $1 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCompleted, completionDate, models.EnrollmentStatusActive); err != nil {
		return fmt.Errorf("mark enrollment completed: %w", err)
	}
	return nil
}

// ListActiveByStudent returns all active enrollments of a student together
// with course context. A student re-enrolled after dropping can hold more
// than one active enrollment for the same course; callers treat each row
// independently.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND e.status = $2`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// FindActiveByStudentAndCourse returns the student's active enrollments for
// a course, across any of the course's batches.
func (r *EnrollmentRepository) FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 AND b.course_id = $2 AND e.status = $3`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("find active enrollments for course: %w", err)
	}
	return enrollments, nil
}

// ExistsCompleted checks whether the student has a completed enrollment for
// the course in any batch.
func (r *EnrollmentRepository) ExistsCompleted(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments e JOIN batches b ON b.id = e.batch_id
        WHERE e.student_id = $1 AND b.course_id = $2 AND e.status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusCompleted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check completed enrollment: %w", err)
	}
	return true, nil
}

// PresentDayCount counts present marks for the student across every batch of
// the course. Attendance progress deliberately follows the course, not the
// batch, so moving a student between batches keeps their progress.
func (r *EnrollmentRepository) PresentDayCount(ctx context.Context, studentID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_entries ae
        JOIN attendance_sheets sh ON sh.id = ae.sheet_id
        JOIN batches b ON b.id = sh.batch_id
        WHERE ae.student_id = $1 AND b.course_id = $2 AND ae.status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID, models.AttendanceStatusPresent); err != nil {
		return 0, fmt.Errorf("count present days: %w", err)
	}
	return count, nil
}

// CompletionProgress returns the present/required day counts for a student
// with an active enrollment on the course. Returns sql.ErrNoRows when no
// active enrollment exists.
func (r *EnrollmentRepository) CompletionProgress(ctx context.Context, studentID, courseID string) (int, int, error) {
	const query = `SELECT co.required_attendance_days,
        (SELECT COUNT(*) FROM attendance_entries ae
            JOIN attendance_sheets sh ON sh.id = ae.sheet_id
            JOIN batches ab ON ab.id = sh.batch_id
            WHERE ae.student_id = $1 AND ab.course_id = $2 AND ae.status = $3) AS present
        FROM enrollments e
        JOIN batches b ON b.id = e.batch_id
        JOIN courses co ON co.id = b.course_id
        WHERE e.student_id = $1 AND b.course_id = $2 AND e.status = $4
        LIMIT 1`
	var row struct {
		Required int `db:"required_attendance_days"`
		Present  int `db:"present"`
	}
	if err := r.db.GetContext(ctx, &row, query, studentID, courseID, models.AttendanceStatusPresent, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("completion progress: %w", err)
	}
	return row.Present, row.Required, nil
}

// ListActiveForSweep returns every active enrollment with course context,
// used by the overdue-fee sweep.
func (r *EnrollmentRepository) ListActiveForSweep(ctx context.Context) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + ` WHERE e.status = $1 ORDER BY e.enrolled_on ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list enrollments for sweep: %w", err)
	}
	return enrollments, nil
}
