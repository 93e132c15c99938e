package models

import "time"

// AnnouncementAudience selects who receives an announcement.
type AnnouncementAudience string

const (
	AudienceAll   AnnouncementAudience = "all"
	AudienceBatch AnnouncementAudience = "batch"
)

// Announcement is a broadcast notification to students.
type Announcement struct {
	ID        string               `db:"id" json:"id"`
	Title     string               `db:"title" json:"title"`
	Body      string               `db:"body" json:"body"`
	Audience  AnnouncementAudience `db:"audience" json:"audience"`
	BatchID   *string              `db:"batch_id" json:"batch_id,omitempty"`
	CreatedBy *string              `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// AnnouncementReceipt records that a student saw an announcement.
type AnnouncementReceipt struct {
	ID             string    `db:"id" json:"id"`
	AnnouncementID string    `db:"announcement_id" json:"announcement_id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	ReadAt         time.Time `db:"read_at" json:"read_at"`
}

// AnnouncementFilter scopes announcement listings.
type AnnouncementFilter struct {
	BatchID  string
	Page     int
	PageSize int
}
