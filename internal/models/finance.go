package models

import "time"

// PaymentMode enumerates accepted payment channels.
type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cash"
	PaymentModeUPI  PaymentMode = "upi"
	PaymentModeBank PaymentMode = "bank"
	PaymentModeCard PaymentMode = "card"
)

// Valid reports whether the mode is a supported value.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeUPI, PaymentModeBank, PaymentModeCard:
		return true
	default:
		return false
	}
}

// FeesReceipt records a single fee payment. Receipts are an append-only
// ledger; a locked receipt can no longer be edited or deleted.
type FeesReceipt struct {
	ID        string      `db:"id" json:"id"`
	ReceiptNo string      `db:"receipt_no" json:"receipt_no"`
	StudentID string      `db:"student_id" json:"student_id"`
	CourseID  string      `db:"course_id" json:"course_id"`
	BatchID   *string     `db:"batch_id" json:"batch_id,omitempty"`
	Amount    float64     `db:"amount" json:"amount"`
	Mode      PaymentMode `db:"mode" json:"mode"`
	TxnID     string      `db:"txn_id" json:"txn_id"`
	Date      time.Time   `db:"date" json:"date"`
	PostedBy  *string     `db:"posted_by" json:"posted_by,omitempty"`
	Locked    bool        `db:"locked" json:"locked"`
	PDFPath   *string     `db:"pdf_path" json:"pdf_path,omitempty"`
}

// FeesReceiptDetail enriches a receipt with student and course names.
type FeesReceiptDetail struct {
	FeesReceipt
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// FeesReceiptFilter scopes receipt listings.
type FeesReceiptFilter struct {
	StudentID string
	CourseID  string
	Mode      PaymentMode
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// OutstandingBalance is the derived fee position for a student and course.
// Due is clamped at zero for display; TotalPaid keeps the raw sum.
type OutstandingBalance struct {
	StudentID string  `json:"student_id"`
	CourseID  string  `json:"course_id"`
	TotalFees float64 `json:"total_fees"`
	TotalPaid float64 `json:"total_paid"`
	Due       float64 `json:"due"`
}

// CourseOutstanding aggregates the fee position across a whole course.
type CourseOutstanding struct {
	CourseID         string  `json:"course_id"`
	CourseTitle      string  `json:"course_title"`
	EnrolledStudents int     `json:"enrolled_students"`
	ExpectedFees     float64 `json:"expected_fees"`
	CollectedFees    float64 `json:"collected_fees"`
	Outstanding      float64 `json:"outstanding"`
}

// Expense is an operational expense entry.
type Expense struct {
	ID          string    `db:"id" json:"id"`
	Date        time.Time `db:"date" json:"date"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Amount      float64   `db:"amount" json:"amount"`
	AddedBy     *string   `db:"added_by" json:"added_by,omitempty"`
}

// ReminderStatus tracks reminder delivery.
type ReminderStatus string

const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSent    ReminderStatus = "sent"
	ReminderStatusFailed  ReminderStatus = "failed"
)

// Reminder logs a fee reminder for a student, created manually or by the sweep.
type Reminder struct {
	ID        string         `db:"id" json:"id"`
	StudentID string         `db:"student_id" json:"student_id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	BatchID   *string        `db:"batch_id" json:"batch_id,omitempty"`
	Message   string         `db:"message" json:"message"`
	SentAt    time.Time      `db:"sent_at" json:"sent_at"`
	SentBy    *string        `db:"sent_by" json:"sent_by,omitempty"`
	Status    ReminderStatus `db:"status" json:"status"`
}

// ReminderFilter scopes reminder listings.
type ReminderFilter struct {
	StudentID string
	CourseID  string
	Status    ReminderStatus
	Page      int
	PageSize  int
}
