package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	items        map[string]*models.Enrollment
	details      map[string]*models.EnrollmentDetail
	exists       bool
	presentDays  int
	active       []models.EnrollmentDetail
	completedIDs []string
	createErr    error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.items[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := m.details[id]; ok {
		cp := *d
		return &cp, nil
	}
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: id}}, nil
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, batchID string) (bool, error) {
	return m.exists, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "generated"
	}
	if m.items == nil {
		m.items = make(map[string]*models.Enrollment)
	}
	cp := *enrollment
	m.items[enrollment.ID] = &cp
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, completionDate *time.Time) error {
	if e, ok := m.items[id]; ok {
		e.Status = status
		e.CompletionDate = completionDate
	}
	return nil
}

func (m *mockEnrollmentRepo) MarkCompleted(ctx context.Context, id string, completionDate time.Time) error {
	m.completedIDs = append(m.completedIDs, id)
	return nil
}

func (m *mockEnrollmentRepo) FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.EnrollmentDetail, error) {
	return m.active, nil
}

func (m *mockEnrollmentRepo) PresentDayCount(ctx context.Context, studentID, courseID string) (int, error) {
	return m.presentDays, nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockBatchReader struct {
	batches  map[string]*models.Batch
	enrolled int
}

func (m *mockBatchReader) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchReader) EnrolledCount(ctx context.Context, batchID string) (int, error) {
	return m.enrolled, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func newEnrollmentServiceForTest(repo *mockEnrollmentRepo, students *mockStudentReader, batches *mockBatchReader, courses *mockCourseReader) *EnrollmentService {
	return NewEnrollmentService(repo, students, batches, courses, validator.New(), zap.NewNop())
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", Capacity: 10}}}
	svc := newEnrollmentServiceForTest(repo, students, batches, &mockCourseReader{})

	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)
	assert.NotNil(t, detail)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, models.EnrollmentStatusActive, repo.items["generated"].Status)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{exists: true}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1"}}}
	svc := newEnrollmentServiceForTest(repo, students, batches, &mockCourseReader{})

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", BatchID: "b1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrConflict.Code, apiErr.Code)
}

func TestEnrollmentServiceEnrollBatchFull(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: true}}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", Capacity: 2}}, enrolled: 2}
	svc := newEnrollmentServiceForTest(repo, students, batches, &mockCourseReader{})

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", BatchID: "b1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrBatchFull.Code, apiErr.Code)
}

func TestEnrollmentServiceEnrollInactiveStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: false}}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1"}}}
	svc := newEnrollmentServiceForTest(repo, students, batches, &mockCourseReader{})

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", BatchID: "b1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
}

func TestEnrollmentServiceDropNonActive(t *testing.T) {
	repo := &mockEnrollmentRepo{items: map[string]*models.Enrollment{
		"e1": {ID: "e1", Status: models.EnrollmentStatusCompleted},
	}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, &mockCourseReader{})

	_, err := svc.Drop(context.Background(), "e1")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
}

func TestCheckAndUpdateStatusPromotesAllActive(t *testing.T) {
	repo := &mockEnrollmentRepo{
		presentDays: 30,
		active: []models.EnrollmentDetail{
			{Enrollment: models.Enrollment{ID: "e1"}},
			{Enrollment: models.Enrollment{ID: "e2"}},
		},
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", RequiredAttendanceDays: 30}}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, courses)

	completed, err := svc.CheckAndUpdateStatus(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, []string{"e1", "e2"}, repo.completedIDs)
}

func TestCheckAndUpdateStatusBelowThreshold(t *testing.T) {
	repo := &mockEnrollmentRepo{presentDays: 29, active: []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e1"}}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", RequiredAttendanceDays: 30}}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, courses)

	completed, err := svc.CheckAndUpdateStatus(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Empty(t, repo.completedIDs)
}

func TestCheckAndUpdateStatusZeroRequirementDisabled(t *testing.T) {
	repo := &mockEnrollmentRepo{presentDays: 100, active: []models.EnrollmentDetail{{Enrollment: models.Enrollment{ID: "e1"}}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", RequiredAttendanceDays: 0}}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, courses)

	completed, err := svc.CheckAndUpdateStatus(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Empty(t, repo.completedIDs)
}

func TestCheckAndUpdateStatusNoActiveEnrollments(t *testing.T) {
	repo := &mockEnrollmentRepo{presentDays: 30}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", RequiredAttendanceDays: 30}}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, courses)

	completed, err := svc.CheckAndUpdateStatus(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestProgressCountsCourseWide(t *testing.T) {
	repo := &mockEnrollmentRepo{presentDays: 12}
	courses := &mockCourseReader{courses: map[string]*models.Course{"c1": {ID: "c1", RequiredAttendanceDays: 30}}}
	svc := newEnrollmentServiceForTest(repo, &mockStudentReader{}, &mockBatchReader{}, courses)

	progress, err := svc.Progress(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 12, progress.PresentDays)
	assert.Equal(t, 30, progress.RequiredDays)
	assert.False(t, progress.Completed)
}
