package models

import "time"

// AttendanceStatus is the per-student mark on a sheet.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "P"
	AttendanceStatusAbsent  AttendanceStatus = "A"
	AttendanceStatusLeave   AttendanceStatus = "L"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLeave:
		return true
	default:
		return false
	}
}

// AttendanceSheet groups the entries taken for a batch on a date.
// Unique per (batch_id, date).
type AttendanceSheet struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	Date      time.Time `db:"date" json:"date"`
	TakenBy   *string   `db:"taken_by" json:"taken_by,omitempty"`
	Remarks   string    `db:"remarks" json:"remarks"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceEntry marks one student on one sheet. Unique per (sheet_id, student_id).
type AttendanceEntry struct {
	ID        string           `db:"id" json:"id"`
	SheetID   string           `db:"sheet_id" json:"sheet_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
}

// AttendanceEntryDetail adds the student's name for listings.
type AttendanceEntryDetail struct {
	AttendanceEntry
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
}

// AttendanceSheetDetail bundles a sheet with its entries and summary.
type AttendanceSheetDetail struct {
	AttendanceSheet
	BatchCode string                  `db:"batch_code" json:"batch_code"`
	Entries   []AttendanceEntryDetail `json:"entries"`
	Summary   AttendanceSummary       `json:"summary"`
}

// AttendanceSummary is the P/A/L breakdown of a sheet.
type AttendanceSummary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Leave   int `json:"leave"`
}

// AttendanceSheetFilter scopes sheet listings.
type AttendanceSheetFilter struct {
	BatchID  string
	CourseID string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
