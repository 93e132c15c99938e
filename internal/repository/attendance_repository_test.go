package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-api/internal/models"
)

func TestAttendanceRepositoryCreateSheetWithEntries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sheets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	takenBy := "u1"
	sheet := &models.AttendanceSheet{
		BatchID: "b1",
		Date:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		TakenBy: &takenBy,
	}
	entries := []models.AttendanceEntry{
		{StudentID: "s1", Status: models.AttendanceStatusPresent},
		{StudentID: "s2", Status: models.AttendanceStatusAbsent},
	}
	require.NoError(t, repo.CreateSheetWithEntries(context.Background(), sheet, entries))
	assert.NotEmpty(t, sheet.ID)
	assert.Equal(t, sheet.ID, entries[0].SheetID)
	assert.Equal(t, sheet.ID, entries[1].SheetID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSheetRollsBackOnEntryFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_sheets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	sheet := &models.AttendanceSheet{BatchID: "b1", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	err := repo.CreateSheetWithEntries(context.Background(), sheet, []models.AttendanceEntry{{StudentID: "s1", Status: models.AttendanceStatusPresent}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryReplaceEntries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_entries WHERE sheet_id = $1")).
		WithArgs("sheet-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceEntries(context.Background(), "sheet-1", []models.AttendanceEntry{{StudentID: "s1", Status: models.AttendanceStatusLeave}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySheetExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM attendance_sheets WHERE batch_id = $1 AND date = $2 LIMIT 1")).
		WithArgs("b1", date).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err := repo.SheetExists(context.Background(), "b1", date)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
