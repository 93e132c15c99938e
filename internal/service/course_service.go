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

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	FindTrainerByID(ctx context.Context, id string) (*models.Trainer, error)
	ListTrainers(ctx context.Context) ([]models.Trainer, error)
	CreateTrainer(ctx context.Context, trainer *models.Trainer) error
}

// CreateCourseRequest describes a new course.
type CreateCourseRequest struct {
	Code                   string  `json:"code" validate:"required"`
	Title                  string  `json:"title" validate:"required"`
	DurationWeeks          int     `json:"duration_weeks" validate:"gte=0"`
	TotalFees              float64 `json:"total_fees" validate:"gte=0"`
	RequiredAttendanceDays int     `json:"required_attendance_days" validate:"gte=0"`
	Syllabus               string  `json:"syllabus"`
}

// UpdateCourseRequest describes course changes. A changed attendance
// requirement only affects future completion checks.
type UpdateCourseRequest struct {
	Title                  string  `json:"title" validate:"required"`
	DurationWeeks          int     `json:"duration_weeks" validate:"gte=0"`
	TotalFees              float64 `json:"total_fees" validate:"gte=0"`
	RequiredAttendanceDays int     `json:"required_attendance_days" validate:"gte=0"`
	Syllabus               string  `json:"syllabus"`
	Active                 *bool   `json:"active"`
}

// CreateTrainerRequest describes a new trainer.
type CreateTrainerRequest struct {
	EmpNo    string    `json:"emp_no" validate:"required"`
	FullName string    `json:"full_name" validate:"required"`
	JoinDate time.Time `json:"join_date"`
}

// CourseService manages the course catalogue and trainers.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// Create adds a course to the catalogue.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		Code:                   req.Code,
		Title:                  req.Title,
		DurationWeeks:          req.DurationWeeks,
		TotalFees:              req.TotalFees,
		RequiredAttendanceDays: req.RequiredAttendanceDays,
		Syllabus:               req.Syllabus,
		Active:                 true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Update modifies a course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Title = req.Title
	course.DurationWeeks = req.DurationWeeks
	course.TotalFees = req.TotalFees
	course.RequiredAttendanceDays = req.RequiredAttendanceDays
	course.Syllabus = req.Syllabus
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// CreateTrainer registers a trainer.
func (s *CourseService) CreateTrainer(ctx context.Context, req CreateTrainerRequest) (*models.Trainer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainer payload")
	}
	join := req.JoinDate
	if join.IsZero() {
		join = time.Now().UTC()
	}
	trainer := &models.Trainer{EmpNo: req.EmpNo, FullName: req.FullName, JoinDate: join, Active: true}
	if err := s.repo.CreateTrainer(ctx, trainer); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "employee number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create trainer")
	}
	return trainer, nil
}

// GetTrainer returns one trainer.
func (s *CourseService) GetTrainer(ctx context.Context, id string) (*models.Trainer, error) {
	trainer, err := s.repo.FindTrainerByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
	}
	return trainer, nil
}

// ListTrainers returns all trainers.
func (s *CourseService) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	trainers, err := s.repo.ListTrainers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainers")
	}
	return trainers, nil
}
