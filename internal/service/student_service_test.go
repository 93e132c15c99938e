package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type mockStudentRepo struct {
	students      map[string]*models.Student
	enquiries     map[string]*models.Enquiry
	count         int
	createAttempt int
	failFirst     bool
	measurements  []*models.StudentMeasurement
	activeSets    map[string]bool
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByRegNo(ctx context.Context, regNo string) (*models.Student, error) {
	for _, s := range m.students {
		if s.RegNo == regNo {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return nil, 0, nil
}

func (m *mockStudentRepo) Count(ctx context.Context) (int, error) {
	return m.count, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.createAttempt++
	if m.failFirst && m.createAttempt == 1 {
		// simulate a concurrent admission taking the number
		m.count++
		return &pq.Error{Code: "23505"}
	}
	if student.ID == "" {
		student.ID = fmt.Sprintf("stu-%d", m.createAttempt)
	}
	if m.students == nil {
		m.students = make(map[string]*models.Student)
	}
	cp := *student
	m.students[student.ID] = &cp
	m.count++
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	cp := *student
	m.students[student.ID] = &cp
	return nil
}

func (m *mockStudentRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.activeSets == nil {
		m.activeSets = make(map[string]bool)
	}
	m.activeSets[id] = active
	return nil
}

func (m *mockStudentRepo) CreateMeasurement(ctx context.Context, measurement *models.StudentMeasurement) error {
	if measurement.ID == "" {
		measurement.ID = "m-1"
	}
	m.measurements = append(m.measurements, measurement)
	return nil
}

func (m *mockStudentRepo) ListMeasurements(ctx context.Context, studentID string) ([]models.StudentMeasurement, error) {
	return nil, nil
}

func (m *mockStudentRepo) CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	if enquiry.ID == "" {
		enquiry.ID = "enq-1"
	}
	if m.enquiries == nil {
		m.enquiries = make(map[string]*models.Enquiry)
	}
	cp := *enquiry
	m.enquiries[enquiry.ID] = &cp
	return nil
}

func (m *mockStudentRepo) FindEnquiryByID(ctx context.Context, id string) (*models.Enquiry, error) {
	if e, ok := m.enquiries[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) UpdateEnquiryStatus(ctx context.Context, id string, status models.EnquiryStatus, notes string) error {
	if e, ok := m.enquiries[id]; ok {
		e.Status = status
		e.Notes = notes
	}
	return nil
}

func (m *mockStudentRepo) ListEnquiries(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	return nil, 0, nil
}

func newStudentServiceForTest(repo *mockStudentRepo) *StudentService {
	return NewStudentService(repo, validator.New(), zap.NewNop())
}

func TestStudentCreateAssignsRegNo(t *testing.T) {
	repo := &mockStudentRepo{count: 41}
	svc := newStudentServiceForTest(repo)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		FullName:      "Student One",
		AdmissionDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "STU2026-042", student.RegNo)
	assert.True(t, student.Active)
}

func TestStudentCreateRetriesOnRegNoCollision(t *testing.T) {
	repo := &mockStudentRepo{count: 5, failFirst: true}
	svc := newStudentServiceForTest(repo)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		FullName:      "Student One",
		AdmissionDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.createAttempt)
	assert.Equal(t, "STU2026-007", student.RegNo)
}

func TestStudentCreateRequiresName(t *testing.T) {
	svc := newStudentServiceForTest(&mockStudentRepo{})

	_, err := svc.Create(context.Background(), CreateStudentRequest{})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
}

func TestStudentDeactivateSoftDelete(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	svc := newStudentServiceForTest(repo)

	require.NoError(t, svc.Deactivate(context.Background(), "s1"))
	active, ok := repo.activeSets["s1"]
	require.True(t, ok)
	assert.False(t, active)
}

func TestStudentRecordMeasurementAppends(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	svc := newStudentServiceForTest(repo)

	chest := 96.5
	_, err := svc.RecordMeasurement(context.Background(), "s1", RecordMeasurementRequest{Chest: &chest})
	require.NoError(t, err)
	_, err = svc.RecordMeasurement(context.Background(), "s1", RecordMeasurementRequest{Chest: &chest})
	require.NoError(t, err)
	assert.Len(t, repo.measurements, 2)
}

func TestEnquiryUpdateFinalizedRejected(t *testing.T) {
	repo := &mockStudentRepo{enquiries: map[string]*models.Enquiry{
		"enq-1": {ID: "enq-1", Status: models.EnquiryStatusConverted},
	}}
	svc := newStudentServiceForTest(repo)

	_, err := svc.UpdateEnquiry(context.Background(), "enq-1", UpdateEnquiryRequest{Status: models.EnquiryStatusFollowUp})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
}

func TestEnquiryCreateStartsNew(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentServiceForTest(repo)

	enquiry, err := svc.CreateEnquiry(context.Background(), CreateEnquiryRequest{Name: "Walk-in", Phone: "555-0100"})
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryStatusNew, enquiry.Status)
}
