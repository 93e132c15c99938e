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
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegNo(ctx context.Context, regNo string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SetActive(ctx context.Context, id string, active bool) error
	CreateMeasurement(ctx context.Context, m *models.StudentMeasurement) error
	ListMeasurements(ctx context.Context, studentID string) ([]models.StudentMeasurement, error)
	CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error
	FindEnquiryByID(ctx context.Context, id string) (*models.Enquiry, error)
	UpdateEnquiryStatus(ctx context.Context, id string, status models.EnquiryStatus, notes string) error
	ListEnquiries(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error)
}

// CreateStudentRequest describes a new admission.
type CreateStudentRequest struct {
	FullName      string    `json:"full_name" validate:"required"`
	GuardianName  string    `json:"guardian_name"`
	GuardianPhone string    `json:"guardian_phone"`
	Email         string    `json:"email" validate:"omitempty,email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	AdmissionDate time.Time `json:"admission_date"`
}

// UpdateStudentRequest describes profile changes. The registration number is
// immutable once assigned.
type UpdateStudentRequest struct {
	FullName      string `json:"full_name" validate:"required"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

// RecordMeasurementRequest captures one tailoring measurement session.
type RecordMeasurementRequest struct {
	DateTaken    time.Time `json:"date_taken"`
	Neck         *float64  `json:"neck"`
	Chest        *float64  `json:"chest"`
	Waist        *float64  `json:"waist"`
	Hips         *float64  `json:"hips"`
	SleeveLength *float64  `json:"sleeve_length"`
	Inseam       *float64  `json:"inseam"`
	Notes        string    `json:"notes"`
}

// CreateEnquiryRequest describes a walk-in or phone enquiry.
type CreateEnquiryRequest struct {
	Name           string `json:"name" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	Email          string `json:"email" validate:"omitempty,email"`
	CourseInterest string `json:"course_interest"`
	Source         string `json:"source"`
	Notes          string `json:"notes"`
}

// UpdateEnquiryRequest moves an enquiry along the funnel.
type UpdateEnquiryRequest struct {
	Status models.EnquiryStatus `json:"status" validate:"required"`
	Notes  string               `json:"notes"`
}

// StudentService manages admissions, measurements and the enquiry funnel.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// nextRegNo derives the next registration number as STU{year}-NNN seeded
// from the total student count. Collisions from concurrent admissions are
// caught by the unique constraint and retried once by the caller.
func (s *StudentService) nextRegNo(ctx context.Context, year int) (string, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("STU%d-%03d", year, count+1), nil
}

// Create admits a student, assigning the registration number.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	admission := req.AdmissionDate
	if admission.IsZero() {
		admission = time.Now().UTC()
	}
	regNo, err := s.nextRegNo(ctx, admission.Year())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate registration number")
	}
	student := &models.Student{
		RegNo:         regNo,
		FullName:      req.FullName,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		AdmissionDate: admission,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if isUniqueViolation(err) {
			// Concurrent admission took the number; reseed once.
			regNo, rerr := s.nextRegNo(ctx, admission.Year())
			if rerr != nil {
				return nil, appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate registration number")
			}
			student.RegNo = regNo
			if err := s.repo.Create(ctx, student); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
			}
		} else {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
	}
	s.logger.Info("student admitted", zap.String("student_id", student.ID), zap.String("reg_no", student.RegNo))
	return student, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// Update modifies profile fields.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student.FullName = req.FullName
	student.GuardianName = req.GuardianName
	student.GuardianPhone = req.GuardianPhone
	student.Email = req.Email
	student.Phone = req.Phone
	student.Address = req.Address
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate soft-deletes a student. History is never removed.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

// Reactivate restores a deactivated student.
func (s *StudentService) Reactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate student")
	}
	return nil
}

// RecordMeasurement appends a measurement session. Corrections are new rows.
func (s *StudentService) RecordMeasurement(ctx context.Context, studentID string, req RecordMeasurementRequest) (*models.StudentMeasurement, error) {
	if _, err := s.Get(ctx, studentID); err != nil {
		return nil, err
	}
	taken := req.DateTaken
	if taken.IsZero() {
		taken = time.Now().UTC()
	}
	m := &models.StudentMeasurement{
		StudentID:    studentID,
		DateTaken:    taken,
		Neck:         req.Neck,
		Chest:        req.Chest,
		Waist:        req.Waist,
		Hips:         req.Hips,
		SleeveLength: req.SleeveLength,
		Inseam:       req.Inseam,
		Notes:        req.Notes,
	}
	if err := s.repo.CreateMeasurement(ctx, m); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record measurement")
	}
	return m, nil
}

// ListMeasurements returns a student's measurement history, newest first.
func (s *StudentService) ListMeasurements(ctx context.Context, studentID string) ([]models.StudentMeasurement, error) {
	if _, err := s.Get(ctx, studentID); err != nil {
		return nil, err
	}
	measurements, err := s.repo.ListMeasurements(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list measurements")
	}
	return measurements, nil
}

// CreateEnquiry logs a new admission enquiry.
func (s *StudentService) CreateEnquiry(ctx context.Context, req CreateEnquiryRequest) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enquiry payload")
	}
	enquiry := &models.Enquiry{
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		CourseInterest: req.CourseInterest,
		Source:         req.Source,
		Notes:          req.Notes,
		Status:         models.EnquiryStatusNew,
	}
	if err := s.repo.CreateEnquiry(ctx, enquiry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enquiry")
	}
	return enquiry, nil
}

// UpdateEnquiry moves an enquiry along the funnel. Closed enquiries are final.
func (s *StudentService) UpdateEnquiry(ctx context.Context, id string, req UpdateEnquiryRequest) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enquiry payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enquiry status: "+string(req.Status))
	}
	enquiry, err := s.repo.FindEnquiryByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enquiry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enquiry")
	}
	if enquiry.Status == models.EnquiryStatusClosed || enquiry.Status == models.EnquiryStatusConverted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enquiry is already finalized")
	}
	if err := s.repo.UpdateEnquiryStatus(ctx, id, req.Status, req.Notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enquiry")
	}
	return s.repo.FindEnquiryByID(ctx, id)
}

// ListEnquiries returns enquiries with pagination metadata.
func (s *StudentService) ListEnquiries(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, *models.Pagination, error) {
	enquiries, total, err := s.repo.ListEnquiries(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enquiries")
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
	return enquiries, pagination, nil
}
