package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// Enrollment captures a student's registration to a batch.
// CompletionDate is set exactly when status becomes completed.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	BatchID        string           `db:"batch_id" json:"batch_id"`
	EnrolledOn     time.Time        `db:"enrolled_on" json:"enrolled_on"`
	CompletionDate *time.Time       `db:"completion_date" json:"completion_date,omitempty"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student, batch and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string  `db:"student_name" json:"student_name"`
	StudentRegNo string  `db:"student_reg_no" json:"student_reg_no"`
	BatchCode    string  `db:"batch_code" json:"batch_code"`
	CourseID     string  `db:"course_id" json:"course_id"`
	CourseTitle  string  `db:"course_title" json:"course_title"`
	PresentDays  *int    `db:"present_days" json:"present_days,omitempty"`
	RequiredDays *int    `db:"required_days" json:"required_days,omitempty"`
	TrainerName  *string `db:"trainer_name" json:"trainer_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	BatchID   string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
