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

type mockAttendanceRepo struct {
	sheets      map[string]*models.AttendanceSheet
	sheetExists bool
	created     []models.AttendanceEntry
	replaced    []models.AttendanceEntry
}

func (m *mockAttendanceRepo) SheetExists(ctx context.Context, batchID string, date time.Time) (bool, error) {
	return m.sheetExists, nil
}

func (m *mockAttendanceRepo) FindSheetByID(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	if sheet, ok := m.sheets[id]; ok {
		cp := *sheet
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) CreateSheetWithEntries(ctx context.Context, sheet *models.AttendanceSheet, entries []models.AttendanceEntry) error {
	if sheet.ID == "" {
		sheet.ID = "sheet-1"
	}
	m.created = entries
	return nil
}

func (m *mockAttendanceRepo) ReplaceEntries(ctx context.Context, sheetID string, entries []models.AttendanceEntry) error {
	m.replaced = entries
	return nil
}

func (m *mockAttendanceRepo) ListEntries(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) Summary(ctx context.Context, sheetID string) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{}, nil
}

func (m *mockAttendanceRepo) ListSheets(ctx context.Context, filter models.AttendanceSheetFilter) ([]models.AttendanceSheet, int, error) {
	return nil, 0, nil
}

type mockCompletionChecker struct {
	checked []string
	err     error
}

func (m *mockCompletionChecker) CheckAndUpdateStatus(ctx context.Context, studentID, courseID string) (bool, error) {
	m.checked = append(m.checked, studentID)
	return false, m.err
}

func newAttendanceServiceForTest(repo *mockAttendanceRepo, batches *mockBatchReader, completion *mockCompletionChecker) *AttendanceService {
	return NewAttendanceService(repo, batches, completion, validator.New(), zap.NewNop())
}

func TestAttendanceCreateSheet(t *testing.T) {
	repo := &mockAttendanceRepo{}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", CourseID: "c1", Code: "B-01"}}}
	completion := &mockCompletionChecker{}
	svc := newAttendanceServiceForTest(repo, batches, completion)

	detail, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Entries: []AttendanceEntryInput{
			{StudentID: "s1", Status: models.AttendanceStatusPresent},
			{StudentID: "s2", Status: models.AttendanceStatusAbsent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "B-01", detail.BatchCode)
	assert.Len(t, repo.created, 2)
	// every distinct student is rechecked, whatever the marked status
	assert.Equal(t, []string{"s1", "s2"}, completion.checked)
}

func TestAttendanceCreateSheetDuplicateDate(t *testing.T) {
	repo := &mockAttendanceRepo{sheetExists: true}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1"}}}
	svc := newAttendanceServiceForTest(repo, batches, &mockCompletionChecker{})

	_, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Now(),
		Entries: []AttendanceEntryInput{{StudentID: "s1", Status: models.AttendanceStatusPresent}},
	})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrDuplicateSheet.Code, apiErr.Code)
}

func TestAttendanceCreateSheetDuplicateStudent(t *testing.T) {
	repo := &mockAttendanceRepo{}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1"}}}
	svc := newAttendanceServiceForTest(repo, batches, &mockCompletionChecker{})

	_, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Now(),
		Entries: []AttendanceEntryInput{
			{StudentID: "s1", Status: models.AttendanceStatusPresent},
			{StudentID: "s1", Status: models.AttendanceStatusAbsent},
		},
	})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrDuplicateStudentEntry.Code, apiErr.Code)
}

func TestAttendanceCreateSheetInvalidStatus(t *testing.T) {
	repo := &mockAttendanceRepo{}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1"}}}
	svc := newAttendanceServiceForTest(repo, batches, &mockCompletionChecker{})

	_, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Now(),
		Entries: []AttendanceEntryInput{{StudentID: "s1", Status: "X"}},
	})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrValidation.Code, apiErr.Code)
}

func TestAttendanceReplaceEntries(t *testing.T) {
	repo := &mockAttendanceRepo{sheets: map[string]*models.AttendanceSheet{
		"sheet-1": {ID: "sheet-1", BatchID: "b1"},
	}}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", CourseID: "c1"}}}
	completion := &mockCompletionChecker{}
	svc := newAttendanceServiceForTest(repo, batches, completion)

	_, err := svc.ReplaceEntries(context.Background(), "sheet-1", ReplaceEntriesRequest{
		Entries: []AttendanceEntryInput{
			{StudentID: "s1", Status: models.AttendanceStatusLeave},
			{StudentID: "s2", Status: models.AttendanceStatusPresent},
		},
	})
	require.NoError(t, err)
	assert.Len(t, repo.replaced, 2)
	// rewriting a student away from present can undo completion, so both
	// students are rechecked
	assert.Equal(t, []string{"s1", "s2"}, completion.checked)
}

func TestAttendanceRecheckAllStatuses(t *testing.T) {
	repo := &mockAttendanceRepo{}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", CourseID: "c1"}}}
	completion := &mockCompletionChecker{}
	svc := newAttendanceServiceForTest(repo, batches, completion)

	_, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Now(),
		Entries: []AttendanceEntryInput{
			{StudentID: "s1", Status: models.AttendanceStatusLeave},
			{StudentID: "s2", Status: models.AttendanceStatusAbsent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, completion.checked)
}

func TestAttendanceRecheckFailureDoesNotFailWrite(t *testing.T) {
	repo := &mockAttendanceRepo{}
	batches := &mockBatchReader{batches: map[string]*models.Batch{"b1": {ID: "b1", CourseID: "c1"}}}
	completion := &mockCompletionChecker{err: errors.New("boom")}
	svc := newAttendanceServiceForTest(repo, batches, completion)

	_, err := svc.CreateSheet(context.Background(), CreateSheetRequest{
		BatchID: "b1",
		Date:    time.Now(),
		Entries: []AttendanceEntryInput{{StudentID: "s1", Status: models.AttendanceStatusPresent}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, completion.checked)
}
