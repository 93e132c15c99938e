package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/mailer"
)

type reminderRepository interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	LastSentAt(ctx context.Context, studentID, courseID string) (time.Time, error)
	UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error
	List(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, int, error)
}

type outstandingCalculator interface {
	Outstanding(ctx context.Context, studentID, courseID string) (*models.OutstandingBalance, error)
}

type sweepSource interface {
	ListActiveForSweep(ctx context.Context) ([]models.EnrollmentDetail, error)
}

type reminderMailer interface {
	Enabled() bool
	Send(msg mailer.Message) error
}

// SendReminderRequest describes a manual fee reminder.
type SendReminderRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	CourseID  string  `json:"course_id" validate:"required"`
	BatchID   *string `json:"batch_id"`
	Message   string  `json:"message"`
	SentBy    *string `json:"-"`
}

// ReminderService sends throttled fee reminders, manually and via the
// scheduled sweep.
type ReminderService struct {
	repo         reminderRepository
	enrollments  sweepSource
	students     studentReader
	balances     outstandingCalculator
	mail         reminderMailer
	throttleDays int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewReminderService constructs ReminderService.
func NewReminderService(repo reminderRepository, enrollments sweepSource, students studentReader, balances outstandingCalculator, mail reminderMailer, throttleDays int, validate *validator.Validate, logger *zap.Logger) *ReminderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if throttleDays <= 0 {
		throttleDays = 7
	}
	return &ReminderService{repo: repo, enrollments: enrollments, students: students, balances: balances, mail: mail, throttleDays: throttleDays, validator: validate, logger: logger}
}

// throttled reports whether a reminder went out inside the throttle window.
func (s *ReminderService) throttled(ctx context.Context, studentID, courseID string, now time.Time) (bool, error) {
	last, err := s.repo.LastSentAt(ctx, studentID, courseID)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return now.Sub(last) < time.Duration(s.throttleDays)*24*time.Hour, nil
}

// Send creates a reminder for an outstanding balance and delivers it by
// mail. A reminder inside the throttle window is a conflict; delivery
// failure is recorded on the row, not surfaced as a request error.
func (s *ReminderService) Send(ctx context.Context, req SendReminderRequest) (*models.Reminder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reminder payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	balance, err := s.balances.Outstanding(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if balance.Due <= 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no outstanding balance")
	}
	now := time.Now().UTC()
	recent, err := s.throttled(ctx, req.StudentID, req.CourseID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reminder history")
	}
	if recent {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a reminder was already sent within the last %d days", s.throttleDays))
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Dear %s, a fee balance of %.2f is outstanding. Kindly arrange payment.", student.FullName, balance.Due)
	}
	reminder := &models.Reminder{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		BatchID:   req.BatchID,
		Message:   message,
		SentAt:    now,
		SentBy:    req.SentBy,
		Status:    models.ReminderStatusPending,
	}
	if err := s.repo.Create(ctx, reminder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reminder")
	}

	s.deliver(ctx, reminder, student)
	return reminder, nil
}

// deliver attempts mail delivery and records the outcome on the row.
func (s *ReminderService) deliver(ctx context.Context, reminder *models.Reminder, student *models.Student) {
	status := models.ReminderStatusSent
	if s.mail == nil || !s.mail.Enabled() || student.Email == "" {
		// Nothing to deliver through; the row itself is the reminder.
		reminder.Status = status
		if err := s.repo.UpdateStatus(ctx, reminder.ID, status); err != nil {
			s.logger.Warn("failed to update reminder status", zap.String("reminder_id", reminder.ID), zap.Error(err))
		}
		return
	}
	err := s.mail.Send(mailer.Message{
		ToName:    student.FullName,
		ToAddress: student.Email,
		Subject:   "Fee payment reminder",
		Body:      reminder.Message,
	})
	if err != nil {
		status = models.ReminderStatusFailed
		s.logger.Warn("reminder delivery failed",
			zap.String("reminder_id", reminder.ID),
			zap.String("student_id", reminder.StudentID),
			zap.Error(err))
	}
	reminder.Status = status
	if err := s.repo.UpdateStatus(ctx, reminder.ID, status); err != nil {
		s.logger.Warn("failed to update reminder status", zap.String("reminder_id", reminder.ID), zap.Error(err))
	}
}

// CheckAfterPayment creates a reminder when the student still owes on the
// course after posting a receipt. A cleared balance or a reminder inside the
// throttle window are normal outcomes and stay silent; failures are logged
// and swallowed so the receipt itself is never affected.
func (s *ReminderService) CheckAfterPayment(ctx context.Context, studentID, courseID string) {
	balance, err := s.balances.Outstanding(ctx, studentID, courseID)
	if err != nil {
		s.logger.Warn("post-payment reminder: balance check failed", zap.String("student_id", studentID), zap.String("course_id", courseID), zap.Error(err))
		return
	}
	if balance.Due <= 0 {
		return
	}
	now := time.Now().UTC()
	recent, err := s.throttled(ctx, studentID, courseID, now)
	if err != nil {
		s.logger.Warn("post-payment reminder: throttle check failed", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	if recent {
		return
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("post-payment reminder: student load failed", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	reminder := &models.Reminder{
		StudentID: studentID,
		CourseID:  courseID,
		Message:   fmt.Sprintf("Dear %s, a fee balance of %.2f remains outstanding after your recent payment. Kindly arrange the balance.", student.FullName, balance.Due),
		SentAt:    now,
		Status:    models.ReminderStatusPending,
	}
	if err := s.repo.Create(ctx, reminder); err != nil {
		s.logger.Warn("post-payment reminder: create failed", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	s.deliver(ctx, reminder, student)
}

// List returns reminders with pagination metadata.
func (s *ReminderService) List(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, *models.Pagination, error) {
	reminders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reminders")
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
	return reminders, pagination, nil
}

// Sweep walks active enrollments and reminds every student carrying an
// outstanding balance who has not been reminded inside the throttle
// window. Per-student failures are logged and skipped so one bad row never
// stops the run. Returns the number of reminders created.
func (s *ReminderService) Sweep(ctx context.Context) (int, error) {
	enrollments, err := s.enrollments.ListActiveForSweep(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments for sweep")
	}
	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(enrollments))
	created := 0
	for _, enrollment := range enrollments {
		key := enrollment.StudentID + ":" + enrollment.CourseID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		balance, err := s.balances.Outstanding(ctx, enrollment.StudentID, enrollment.CourseID)
		if err != nil {
			s.logger.Warn("sweep: balance check failed", zap.String("student_id", enrollment.StudentID), zap.String("course_id", enrollment.CourseID), zap.Error(err))
			continue
		}
		if balance.Due <= 0 {
			continue
		}
		recent, err := s.throttled(ctx, enrollment.StudentID, enrollment.CourseID, now)
		if err != nil {
			s.logger.Warn("sweep: throttle check failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
			continue
		}
		if recent {
			continue
		}
		student, err := s.students.FindByID(ctx, enrollment.StudentID)
		if err != nil {
			s.logger.Warn("sweep: student load failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
			continue
		}
		reminder := &models.Reminder{
			StudentID: enrollment.StudentID,
			CourseID:  enrollment.CourseID,
			Message:   fmt.Sprintf("Dear %s, a fee balance of %.2f is outstanding for %s. Kindly arrange payment.", student.FullName, balance.Due, enrollment.CourseTitle),
			SentAt:    now,
			Status:    models.ReminderStatusPending,
		}
		if err := s.repo.Create(ctx, reminder); err != nil {
			s.logger.Warn("sweep: reminder create failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
			continue
		}
		s.deliver(ctx, reminder, student)
		created++
	}
	s.logger.Info("reminder sweep finished", zap.Int("created", created), zap.Int("enrollments", len(enrollments)))
	return created, nil
}
