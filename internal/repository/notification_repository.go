package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// NotificationRepository persists announcements and read receipts.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts an announcement.
func (r *NotificationRepository) Create(ctx context.Context, a *models.Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO announcements (id, title, body, audience, batch_id, created_by, created_at)
        VALUES (:id, :title, :body, :audience, :batch_id, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

// FindByID returns an announcement.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	const query = `SELECT id, title, body, audience, batch_id, created_by, created_at FROM announcements WHERE id = $1`
	var a models.Announcement
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns announcements matching the filter with a total count.
func (r *NotificationRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	base := `FROM announcements`
	var conditions []string
	var args []interface{}

	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("(audience = 'all' OR batch_id = $%d)", len(args)+1))
		args = append(args, filter.BatchID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT id, title, body, audience, batch_id, created_by, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// MarkRead upserts a read receipt for a student. Re-reading is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, announcementID, studentID string) error {
	const query = `INSERT INTO announcement_receipts (id, announcement_id, student_id, read_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (announcement_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), announcementID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark announcement read: %w", err)
	}
	return nil
}

// ListReceipts returns the read receipts for an announcement.
func (r *NotificationRepository) ListReceipts(ctx context.Context, announcementID string) ([]models.AnnouncementReceipt, error) {
	const query = `SELECT id, announcement_id, student_id, read_at
        FROM announcement_receipts WHERE announcement_id = $1 ORDER BY read_at ASC`
	var receipts []models.AnnouncementReceipt
	if err := r.db.SelectContext(ctx, &receipts, query, announcementID); err != nil {
		return nil, fmt.Errorf("list announcement receipts: %w", err)
	}
	return receipts, nil
}
