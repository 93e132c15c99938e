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

// StudentRepository handles persistence of students, their measurements and
// pre-admission enquiries.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, user_id, reg_no, full_name, guardian_name, guardian_phone, email, phone, address, admission_date, active, created_at, updated_at`

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRegNo returns a student by registration number.
func (r *StudentRepository) FindByRegNo(ctx context.Context, regNo string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE reg_no = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, regNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching the filter with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := `FROM students WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(reg_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":      "full_name",
		"reg_no":         "reg_no",
		"admission_date": "admission_date",
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "admission_date"
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, base, orderBy, order, size, (page-1)*size)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Count returns the total number of students regardless of status.
// Used to seed registration numbers.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students`); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return total, nil
}

// Create persists a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.AdmissionDate.IsZero() {
		student.AdmissionDate = now
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, reg_no, full_name, guardian_name, guardian_phone, email, phone, address, admission_date, active, created_at, updated_at)
        VALUES (:id, :user_id, :reg_no, :full_name, :guardian_name, :guardian_phone, :email, :phone, :address, :admission_date, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists mutable profile fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, guardian_name = :guardian_name, guardian_phone = :guardian_phone,
        email = :email, phone = :phone, address = :address, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SetActive toggles the soft-deactivation flag. Students are never hard
// deleted while attendance or financial history references them.
func (r *StudentRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE students SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set student active: %w", err)
	}
	return nil
}

// CreateMeasurement appends a measurement record for a student.
func (r *StudentRepository) CreateMeasurement(ctx context.Context, m *models.StudentMeasurement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.DateTaken.IsZero() {
		m.DateTaken = time.Now().UTC()
	}
	const query = `INSERT INTO student_measurements (id, student_id, date_taken, neck, chest, waist, hips, sleeve_length, inseam, notes)
        VALUES (:id, :student_id, :date_taken, :neck, :chest, :waist, :hips, :sleeve_length, :inseam, :notes)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("create measurement: %w", err)
	}
	return nil
}

// ListMeasurements returns a student's measurement history, newest first.
func (r *StudentRepository) ListMeasurements(ctx context.Context, studentID string) ([]models.StudentMeasurement, error) {
	const query = `SELECT id, student_id, date_taken, neck, chest, waist, hips, sleeve_length, inseam, notes
        FROM student_measurements WHERE student_id = $1 ORDER BY date_taken DESC`
	var measurements []models.StudentMeasurement
	if err := r.db.SelectContext(ctx, &measurements, query, studentID); err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return measurements, nil
}

// CreateEnquiry records a pre-admission enquiry.
func (r *StudentRepository) CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	if enquiry.ID == "" {
		enquiry.ID = uuid.NewString()
	}
	if enquiry.Status == "" {
		enquiry.Status = models.EnquiryStatusNew
	}
	enquiry.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO enquiries (id, name, phone, email, course_interest, source, status, notes, created_at)
        VALUES (:id, :name, :phone, :email, :course_interest, :source, :status, :notes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enquiry); err != nil {
		return fmt.Errorf("create enquiry: %w", err)
	}
	return nil
}

// FindEnquiryByID returns a single enquiry.
func (r *StudentRepository) FindEnquiryByID(ctx context.Context, id string) (*models.Enquiry, error) {
	const query = `SELECT id, name, phone, email, course_interest, source, status, notes, created_at FROM enquiries WHERE id = $1`
	var enquiry models.Enquiry
	if err := r.db.GetContext(ctx, &enquiry, query, id); err != nil {
		return nil, err
	}
	return &enquiry, nil
}

// UpdateEnquiryStatus moves an enquiry through the funnel.
func (r *StudentRepository) UpdateEnquiryStatus(ctx context.Context, id string, status models.EnquiryStatus, notes string) error {
	const query = `UPDATE enquiries SET status = $2, notes = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, notes); err != nil {
		return fmt.Errorf("update enquiry: %w", err)
	}
	return nil
}

// ListEnquiries returns enquiries matching the filter with a total count.
func (r *StudentRepository) ListEnquiries(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	base := `FROM enquiries WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(course_interest) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT id, name, phone, email, course_interest, source, status, notes, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, size, (page-1)*size)

	var enquiries []models.Enquiry
	if err := r.db.SelectContext(ctx, &enquiries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enquiries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count enquiries: %w", err)
	}
	return enquiries, total, nil
}
