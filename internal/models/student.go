package models

import "time"

// Student represents a registered learner at the institute.
type Student struct {
	ID            string    `db:"id" json:"id"`
	UserID        *string   `db:"user_id" json:"user_id,omitempty"`
	RegNo         string    `db:"reg_no" json:"reg_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	Address       string    `db:"address" json:"address"`
	AdmissionDate time.Time `db:"admission_date" json:"admission_date"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter scopes student listings.
type StudentFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StudentMeasurement stores tailoring measurements taken on a date.
// Records are append-only; corrections are new rows.
type StudentMeasurement struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	DateTaken    time.Time `db:"date_taken" json:"date_taken"`
	Neck         *float64  `db:"neck" json:"neck,omitempty"`
	Chest        *float64  `db:"chest" json:"chest,omitempty"`
	Waist        *float64  `db:"waist" json:"waist,omitempty"`
	Hips         *float64  `db:"hips" json:"hips,omitempty"`
	SleeveLength *float64  `db:"sleeve_length" json:"sleeve_length,omitempty"`
	Inseam       *float64  `db:"inseam" json:"inseam,omitempty"`
	Notes        string    `db:"notes" json:"notes"`
}

// EnquiryStatus tracks the pre-admission funnel.
type EnquiryStatus string

const (
	EnquiryStatusNew       EnquiryStatus = "new"
	EnquiryStatusFollowUp  EnquiryStatus = "follow_up"
	EnquiryStatusConverted EnquiryStatus = "converted"
	EnquiryStatusClosed    EnquiryStatus = "closed"
)

// Valid reports whether the status is a supported value.
func (s EnquiryStatus) Valid() bool {
	switch s {
	case EnquiryStatusNew, EnquiryStatusFollowUp, EnquiryStatusConverted, EnquiryStatusClosed:
		return true
	default:
		return false
	}
}

// Enquiry is a prospective student's enquiry before admission.
type Enquiry struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Phone          string        `db:"phone" json:"phone"`
	Email          string        `db:"email" json:"email"`
	CourseInterest string        `db:"course_interest" json:"course_interest"`
	Source         string        `db:"source" json:"source"`
	Status         EnquiryStatus `db:"status" json:"status"`
	Notes          string        `db:"notes" json:"notes"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// EnquiryFilter scopes enquiry listings.
type EnquiryFilter struct {
	Status   EnquiryStatus
	Search   string
	Page     int
	PageSize int
}
