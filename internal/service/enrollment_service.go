package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, studentID, batchID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, completionDate *time.Time) error
	MarkCompleted(ctx context.Context, id string, completionDate time.Time) error
	FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.EnrollmentDetail, error)
	PresentDayCount(ctx context.Context, studentID, courseID string) (int, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type batchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	EnrolledCount(ctx context.Context, batchID string) (int, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
}

// CourseProgress reports a student's attendance progress toward completing a
// course, counted across every batch of that course.
type CourseProgress struct {
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	PresentDays  int    `json:"present_days"`
	RequiredDays int    `json:"required_days"`
	Completed    bool   `json:"completed"`
}

// EnrollmentService orchestrates enrollment workflows and the
// attendance-driven completion state machine.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	batches   batchReader
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, batches batchReader, courses courseReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, batches: batches, courses: courses, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns one enrollment with its joined detail.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student into a batch.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
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
	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	exists, err := s.repo.Exists(ctx, req.StudentID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in batch")
	}
	if batch.Capacity > 0 {
		enrolled, err := s.batches.EnrolledCount(ctx, req.BatchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count batch enrollment")
		}
		if enrolled >= batch.Capacity {
			return nil, appErrors.Clone(appErrors.ErrBatchFull, "batch capacity reached")
		}
	}
	enrollment := &models.Enrollment{StudentID: req.StudentID, BatchID: req.BatchID, EnrolledOn: time.Now().UTC(), Status: models.EnrollmentStatusActive}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Drop marks an active enrollment as dropped. Dropped enrollments never
// transition to completed.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment not active")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusDropped, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Progress reports present days against the course requirement for a
// student. Present days are counted course-wide, across every batch the
// student attended for the course.
func (s *EnrollmentService) Progress(ctx context.Context, studentID, courseID string) (*CourseProgress, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	present, err := s.repo.PresentDayCount(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count present days")
	}
	return &CourseProgress{
		StudentID:    studentID,
		CourseID:     courseID,
		PresentDays:  present,
		RequiredDays: course.RequiredAttendanceDays,
		Completed:    course.RequiredAttendanceDays > 0 && present >= course.RequiredAttendanceDays,
	}, nil
}

// CheckAndUpdateStatus re-evaluates a student's completion for a course and
// promotes every active enrollment to completed when the present-day count
// has reached the course requirement. The transition is one-way and
// idempotent: already-completed rows are untouched, and a requirement of
// zero disables auto-completion.
func (s *EnrollmentService) CheckAndUpdateStatus(ctx context.Context, studentID, courseID string) (bool, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.RequiredAttendanceDays <= 0 {
		return false, nil
	}
	present, err := s.repo.PresentDayCount(ctx, studentID, courseID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count present days")
	}
	if present < course.RequiredAttendanceDays {
		return false, nil
	}
	active, err := s.repo.FindActiveByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active enrollments")
	}
	if len(active) == 0 {
		return false, nil
	}
	completionDate := time.Now().UTC()
	completed := false
	for _, enrollment := range active {
		if err := s.repo.MarkCompleted(ctx, enrollment.ID, completionDate); err != nil {
			return completed, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollment completed")
		}
		completed = true
		s.logger.Info("enrollment completed",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("student_id", studentID),
			zap.String("course_id", courseID),
			zap.Int("present_days", present),
			zap.Int("required_days", course.RequiredAttendanceDays))
	}
	return completed, nil
}
