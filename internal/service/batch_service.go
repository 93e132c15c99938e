package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type batchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	FindDetailByID(ctx context.Context, id string) (*models.BatchDetail, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error)
	Create(ctx context.Context, batch *models.Batch) error
	EnrolledCount(ctx context.Context, batchID string) (int, error)
}

type trainerReader interface {
	FindTrainerByID(ctx context.Context, id string) (*models.Trainer, error)
}

// CreateBatchRequest describes a new batch for a course.
type CreateBatchRequest struct {
	CourseID  string          `json:"course_id" validate:"required"`
	TrainerID *string         `json:"trainer_id"`
	Code      string          `json:"code" validate:"required"`
	StartDate time.Time       `json:"start_date" validate:"required"`
	EndDate   time.Time       `json:"end_date" validate:"required"`
	Capacity  int             `json:"capacity" validate:"gte=0"`
	Schedule  json.RawMessage `json:"schedule"`
}

// BatchService manages course batches.
type BatchService struct {
	repo      batchRepository
	courses   courseReader
	trainers  trainerReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs BatchService.
func NewBatchService(repo batchRepository, courses courseReader, trainers trainerReader, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, courses: courses, trainers: trainers, validator: validate, logger: logger}
}

// Create opens a batch under a course.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.BatchDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is inactive")
	}
	if req.TrainerID != nil {
		if _, err := s.trainers.FindTrainerByID(ctx, *req.TrainerID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trainer")
		}
	}
	batch := &models.Batch{
		CourseID:  req.CourseID,
		TrainerID: req.TrainerID,
		Code:      req.Code,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Capacity:  req.Capacity,
		Schedule:  req.Schedule,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "batch code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return s.repo.FindDetailByID(ctx, batch.ID)
}

// Get returns one batch with its course, trainer and enrolled count.
func (s *BatchService) Get(ctx context.Context, id string) (*models.BatchDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return detail, nil
}

// List returns batches with pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
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
	return batches, pagination, nil
}
