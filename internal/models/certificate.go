package models

import "time"

// Certificate is a completion certificate issued to a student for a course.
// At most one non-revoked certificate may exist per (student, course); the
// database enforces this with a partial unique index as the final backstop.
type Certificate struct {
	ID            string    `db:"id" json:"id"`
	CertificateNo string    `db:"certificate_no" json:"certificate_no"`
	StudentID     string    `db:"student_id" json:"student_id"`
	CourseID      string    `db:"course_id" json:"course_id"`
	IssueDate     time.Time `db:"issue_date" json:"issue_date"`
	QRHash        string    `db:"qr_hash" json:"qr_hash"`
	Remarks       string    `db:"remarks" json:"remarks"`
	Revoked       bool      `db:"revoked" json:"revoked"`
	PDFPath       *string   `db:"pdf_path" json:"pdf_path,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CertificateDetail enriches Certificate with student and course info.
type CertificateDetail struct {
	Certificate
	StudentName  string `db:"student_name" json:"student_name"`
	StudentRegNo string `db:"student_reg_no" json:"student_reg_no"`
	CourseTitle  string `db:"course_title" json:"course_title"`
}

// CertificateFilter scopes certificate listings.
type CertificateFilter struct {
	StudentID string
	CourseID  string
	Revoked   *bool
	Page      int
	PageSize  int
}

// CertificateVerification is the public view returned by hash lookup.
// Unknown and revoked hashes both come back with Valid=false so the
// endpoint never leaks existence beyond the boolean.
type CertificateVerification struct {
	Valid         bool       `json:"valid"`
	CertificateNo string     `json:"certificate_no,omitempty"`
	StudentName   string     `json:"student_name,omitempty"`
	CourseTitle   string     `json:"course_title,omitempty"`
	IssueDate     *time.Time `json:"issue_date,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
}
