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

type attendanceRepository interface {
	SheetExists(ctx context.Context, batchID string, date time.Time) (bool, error)
	FindSheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error)
	CreateSheetWithEntries(ctx context.Context, sheet *models.AttendanceSheet, entries []models.AttendanceEntry) error
	ReplaceEntries(ctx context.Context, sheetID string, entries []models.AttendanceEntry) error
	ListEntries(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error)
	Summary(ctx context.Context, sheetID string) (*models.AttendanceSummary, error)
	ListSheets(ctx context.Context, filter models.AttendanceSheetFilter) ([]models.AttendanceSheet, int, error)
}

type completionChecker interface {
	CheckAndUpdateStatus(ctx context.Context, studentID, courseID string) (bool, error)
}

// AttendanceEntryInput is one student's mark in a sheet payload.
type AttendanceEntryInput struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// CreateSheetRequest describes a new attendance sheet.
type CreateSheetRequest struct {
	BatchID string                 `json:"batch_id" validate:"required"`
	Date    time.Time              `json:"date" validate:"required"`
	Remarks string                 `json:"remarks"`
	TakenBy *string                `json:"-"`
	Entries []AttendanceEntryInput `json:"entries" validate:"required,min=1,dive"`
}

// ReplaceEntriesRequest describes a full replacement of a sheet's entries.
type ReplaceEntriesRequest struct {
	Entries []AttendanceEntryInput `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService records attendance sheets and drives the enrollment
// completion re-check after every write.
type AttendanceService struct {
	repo       attendanceRepository
	batches    batchReader
	completion completionChecker
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, batches batchReader, completion completionChecker, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, batches: batches, completion: completion, validator: validate, logger: logger}
}

// validateEntries rejects unknown statuses and duplicate students, and
// returns the normalized entry rows.
func validateEntries(inputs []AttendanceEntryInput) ([]models.AttendanceEntry, error) {
	seen := make(map[string]struct{}, len(inputs))
	entries := make([]models.AttendanceEntry, 0, len(inputs))
	for _, in := range inputs {
		if !in.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status: "+string(in.Status))
		}
		if _, dup := seen[in.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrDuplicateStudentEntry, "duplicate student in entries: "+in.StudentID)
		}
		seen[in.StudentID] = struct{}{}
		entries = append(entries, models.AttendanceEntry{StudentID: in.StudentID, Status: in.Status})
	}
	return entries, nil
}

// CreateSheet atomically records a sheet and its entries. A sheet already
// existing for the batch and date is a conflict; the caller replaces entries
// on the existing sheet instead.
func (s *AttendanceService) CreateSheet(ctx context.Context, req CreateSheetRequest) (*models.AttendanceSheetDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	entries, err := validateEntries(req.Entries)
	if err != nil {
		return nil, err
	}
	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	date := req.Date.UTC().Truncate(24 * time.Hour)
	exists, err := s.repo.SheetExists(ctx, req.BatchID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing sheet")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateSheet, "attendance sheet already exists for batch and date")
	}
	sheet := &models.AttendanceSheet{BatchID: req.BatchID, Date: date, TakenBy: req.TakenBy, Remarks: req.Remarks}
	if err := s.repo.CreateSheetWithEntries(ctx, sheet, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attendance sheet")
	}
	s.recheckCompletion(ctx, batch.CourseID, entries)
	return s.sheetDetail(ctx, sheet)
}

// ReplaceEntries swaps a sheet's entries wholesale in one transaction.
func (s *AttendanceService) ReplaceEntries(ctx context.Context, sheetID string, req ReplaceEntriesRequest) (*models.AttendanceSheetDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	entries, err := validateEntries(req.Entries)
	if err != nil {
		return nil, err
	}
	sheet, err := s.repo.FindSheetByID(ctx, sheetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance sheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}
	batch, err := s.batches.FindByID(ctx, sheet.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if err := s.repo.ReplaceEntries(ctx, sheetID, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace attendance entries")
	}
	s.recheckCompletion(ctx, batch.CourseID, entries)
	return s.sheetDetail(ctx, sheet)
}

// GetSheet returns a sheet with entries and its P/A/L summary.
func (s *AttendanceService) GetSheet(ctx context.Context, sheetID string) (*models.AttendanceSheetDetail, error) {
	sheet, err := s.repo.FindSheetByID(ctx, sheetID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance sheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance sheet")
	}
	return s.sheetDetail(ctx, sheet)
}

// ListSheets returns sheets matching the filter with pagination metadata.
func (s *AttendanceService) ListSheets(ctx context.Context, filter models.AttendanceSheetFilter) ([]models.AttendanceSheet, *models.Pagination, error) {
	sheets, total, err := s.repo.ListSheets(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance sheets")
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
	return sheets, pagination, nil
}

// recheckCompletion re-evaluates completion once per distinct student on the
// sheet. Entries rewritten away from present can pull a count back below the
// threshold, so every student is rechecked, not just the present ones. The
// attendance write has already committed; failures here are logged and
// swallowed, the next write or the sweep catches up.
func (s *AttendanceService) recheckCompletion(ctx context.Context, courseID string, entries []models.AttendanceEntry) {
	if s.completion == nil {
		return
	}
	// validateEntries already guarantees one entry per student
	for _, entry := range entries {
		if _, err := s.completion.CheckAndUpdateStatus(ctx, entry.StudentID, courseID); err != nil {
			s.logger.Warn("completion re-check failed",
				zap.String("student_id", entry.StudentID),
				zap.String("course_id", courseID),
				zap.Error(err))
		}
	}
}

func (s *AttendanceService) sheetDetail(ctx context.Context, sheet *models.AttendanceSheet) (*models.AttendanceSheetDetail, error) {
	entries, err := s.repo.ListEntries(ctx, sheet.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance entries")
	}
	summary, err := s.repo.Summary(ctx, sheet.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance summary")
	}
	detail := &models.AttendanceSheetDetail{AttendanceSheet: *sheet, Entries: entries, Summary: *summary}
	if batch, err := s.batches.FindByID(ctx, sheet.BatchID); err == nil {
		detail.BatchCode = batch.Code
	}
	return detail, nil
}
