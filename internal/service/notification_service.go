package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, a *models.Announcement) error
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	MarkRead(ctx context.Context, announcementID, studentID string) error
	ListReceipts(ctx context.Context, announcementID string) ([]models.AnnouncementReceipt, error)
}

// CreateAnnouncementRequest describes a broadcast to students.
type CreateAnnouncementRequest struct {
	Title     string                      `json:"title" validate:"required"`
	Body      string                      `json:"body" validate:"required"`
	Audience  models.AnnouncementAudience `json:"audience" validate:"required"`
	BatchID   *string                     `json:"batch_id"`
	CreatedBy *string                     `json:"-"`
}

// NotificationService publishes announcements and tracks read receipts.
type NotificationService struct {
	repo      notificationRepository
	batches   batchReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationRepository, batches batchReader, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, batches: batches, validator: validate, logger: logger}
}

// Create publishes an announcement. Batch-scoped announcements must name an
// existing batch; institute-wide ones must not name one.
func (s *NotificationService) Create(ctx context.Context, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	switch req.Audience {
	case models.AudienceAll:
		if req.BatchID != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id is not allowed for an institute-wide announcement")
		}
	case models.AudienceBatch:
		if req.BatchID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch_id is required for a batch announcement")
		}
		if _, err := s.batches.FindByID(ctx, *req.BatchID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid audience: "+string(req.Audience))
	}

	announcement := &models.Announcement{
		Title:     req.Title,
		Body:      req.Body,
		Audience:  req.Audience,
		BatchID:   req.BatchID,
		CreatedBy: req.CreatedBy,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	return announcement, nil
}

// List returns announcements visible to the filter with pagination metadata.
func (s *NotificationService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, *models.Pagination, error) {
	announcements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
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
	return announcements, pagination, nil
}

// MarkRead records that a student saw an announcement. Idempotent.
func (s *NotificationService) MarkRead(ctx context.Context, announcementID, studentID string) error {
	if _, err := s.repo.FindByID(ctx, announcementID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	if err := s.repo.MarkRead(ctx, announcementID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark announcement read")
	}
	return nil
}

// Receipts returns the read receipts for an announcement.
func (s *NotificationService) Receipts(ctx context.Context, announcementID string) ([]models.AnnouncementReceipt, error) {
	if _, err := s.repo.FindByID(ctx, announcementID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	receipts, err := s.repo.ListReceipts(ctx, announcementID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list receipts")
	}
	return receipts, nil
}
