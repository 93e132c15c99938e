package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// BatchRepository handles persistence of batches.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID returns a batch by its ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, course_id, trainer_id, code, start_date, end_date, capacity, schedule FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindDetailByID returns a batch with course and trainer context.
func (r *BatchRepository) FindDetailByID(ctx context.Context, id string) (*models.BatchDetail, error) {
	const query = `SELECT b.id, b.course_id, b.trainer_id, b.code, b.start_date, b.end_date, b.capacity, b.schedule,
        c.title AS course_title, c.code AS course_code, t.full_name AS trainer_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.batch_id = b.id AND e.status <> 'dropped') AS enrolled
        FROM batches b
        JOIN courses c ON c.id = b.course_id
        LEFT JOIN trainers t ON t.id = b.trainer_id
        WHERE b.id = $1`
	var detail models.BatchDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns batches matching the filter with a total count.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.BatchDetail, int, error) {
	base := `FROM batches b
JOIN courses c ON c.id = b.course_id
LEFT JOIN trainers t ON t.id = b.trainer_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("b.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TrainerID != "" {
		conditions = append(conditions, fmt.Sprintf("b.trainer_id = $%d", len(args)+1))
		args = append(args, filter.TrainerID)
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

	query := fmt.Sprintf(`SELECT b.id, b.course_id, b.trainer_id, b.code, b.start_date, b.end_date, b.capacity, b.schedule,
        c.title AS course_title, c.code AS course_code, t.full_name AS trainer_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.batch_id = b.id AND e.status <> 'dropped') AS enrolled
        %s ORDER BY b.start_date DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var batches []models.BatchDetail
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// Create persists a new batch.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	const query = `INSERT INTO batches (id, course_id, trainer_id, code, start_date, end_date, capacity, schedule)
        VALUES (:id, :course_id, :trainer_id, :code, :start_date, :end_date, :capacity, :schedule)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// EnrolledCount returns the number of non-dropped enrollments in a batch.
func (r *BatchRepository) EnrolledCount(ctx context.Context, batchID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM enrollments WHERE batch_id = $1 AND status <> 'dropped'`
	if err := r.db.GetContext(ctx, &count, query, batchID); err != nil {
		return 0, fmt.Errorf("count batch enrollments: %w", err)
	}
	return count, nil
}
