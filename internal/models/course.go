package models

import (
	"encoding/json"
	"time"
)

// Course represents a course offered at the institute.
type Course struct {
	ID                     string    `db:"id" json:"id"`
	Code                   string    `db:"code" json:"code"`
	Title                  string    `db:"title" json:"title"`
	DurationWeeks          int       `db:"duration_weeks" json:"duration_weeks"`
	TotalFees              float64   `db:"total_fees" json:"total_fees"`
	RequiredAttendanceDays int       `db:"required_attendance_days" json:"required_attendance_days"`
	Syllabus               string    `db:"syllabus" json:"syllabus"`
	Active                 bool      `db:"active" json:"active"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter scopes course listings.
type CourseFilter struct {
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Trainer is an instructor on the institute payroll.
type Trainer struct {
	ID       string    `db:"id" json:"id"`
	UserID   *string   `db:"user_id" json:"user_id,omitempty"`
	EmpNo    string    `db:"emp_no" json:"emp_no"`
	FullName string    `db:"full_name" json:"full_name"`
	JoinDate time.Time `db:"join_date" json:"join_date"`
	Active   bool      `db:"active" json:"active"`
}

// Batch is a course offering a group of students attends together.
type Batch struct {
	ID        string          `db:"id" json:"id"`
	CourseID  string          `db:"course_id" json:"course_id"`
	TrainerID *string         `db:"trainer_id" json:"trainer_id,omitempty"`
	Code      string          `db:"code" json:"code"`
	StartDate time.Time       `db:"start_date" json:"start_date"`
	EndDate   time.Time       `db:"end_date" json:"end_date"`
	Capacity  int             `db:"capacity" json:"capacity"`
	Schedule  json.RawMessage `db:"schedule" json:"schedule,omitempty"`
}

// BatchDetail enriches Batch with course and trainer names.
type BatchDetail struct {
	Batch
	CourseTitle string  `db:"course_title" json:"course_title"`
	CourseCode  string  `db:"course_code" json:"course_code"`
	TrainerName *string `db:"trainer_name" json:"trainer_name,omitempty"`
	Enrolled    int     `db:"enrolled" json:"enrolled"`
}

// BatchFilter scopes batch listings.
type BatchFilter struct {
	CourseID  string
	TrainerID string
	Page      int
	PageSize  int
}
