package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// CertificateRepository persists certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateDetailSelect = `SELECT c.id, c.certificate_no, c.student_id, c.course_id, c.issue_date, c.qr_hash,
        c.remarks, c.revoked, c.pdf_path, c.created_at,
        s.full_name AS student_name, s.reg_no AS student_reg_no, co.title AS course_title
        FROM certificates c
        JOIN students s ON s.id = c.student_id
        JOIN courses co ON co.id = c.course_id`

// FindByID returns a certificate by its ID.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	const query = `SELECT id, certificate_no, student_id, course_id, issue_date, qr_hash, remarks, revoked, pdf_path, created_at
        FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindDetailByQRHash returns the certificate behind a QR hash with student
// and course context, regardless of revocation state.
func (r *CertificateRepository) FindDetailByQRHash(ctx context.Context, qrHash string) (*models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE c.qr_hash = $1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, qrHash); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindDetailByID returns a certificate with student and course context.
func (r *CertificateRepository) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE c.id = $1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActive checks for a non-revoked certificate for the pair. Revoked
// certificates free the slot for re-issuance.
func (r *CertificateRepository) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM certificates WHERE student_id = $1 AND course_id = $2 AND NOT revoked LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active certificate: %w", err)
	}
	return true, nil
}

// Issue assigns the daily-sequential certificate number and inserts the row
// in one transaction. Counting and inserting in the same transaction narrows
// the sequence race but does not eliminate it; the partial unique index on
// (student_id, course_id) WHERE NOT revoked is the hard backstop, and
// qr_hash stays the authoritative unique identifier.
func (r *CertificateRepository) Issue(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssueDate.IsZero() {
		cert.IssueDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	cert.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if cert.CertificateNo == "" {
		var issuedToday int
		if err := tx.GetContext(ctx, &issuedToday, `SELECT COUNT(*) FROM certificates WHERE issue_date = $1`, cert.IssueDate); err != nil {
			return fmt.Errorf("count certificates issued today: %w", err)
		}
		cert.CertificateNo = fmt.Sprintf("CERT-%s-%04d", cert.IssueDate.Format("20060102"), issuedToday+1)
	}

	const query = `INSERT INTO certificates (id, certificate_no, student_id, course_id, issue_date, qr_hash, remarks, revoked, pdf_path, created_at)
        VALUES (:id, :certificate_no, :student_id, :course_id, :issue_date, :qr_hash, :remarks, :revoked, :pdf_path, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit issue tx: %w", err)
	}
	return nil
}

// SetRevoked toggles the revoked flag. Rows are never deleted; the issuance
// history is an audit trail.
func (r *CertificateRepository) SetRevoked(ctx context.Context, id string, revoked bool) error {
	const query = `UPDATE certificates SET revoked = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revoked); err != nil {
		return fmt.Errorf("set certificate revoked: %w", err)
	}
	return nil
}

// SetPDFPath records the generated PDF's storage path.
func (r *CertificateRepository) SetPDFPath(ctx context.Context, id, path string) error {
	const query = `UPDATE certificates SET pdf_path = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path); err != nil {
		return fmt.Errorf("set certificate pdf path: %w", err)
	}
	return nil
}

// List returns certificates matching the filter with a total count.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	base := `FROM certificates c
JOIN students s ON s.id = c.student_id
JOIN courses co ON co.id = c.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("c.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("c.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Revoked != nil {
		conditions = append(conditions, fmt.Sprintf("c.revoked = $%d", len(args)+1))
		args = append(args, *filter.Revoked)
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

	query := fmt.Sprintf(`SELECT c.id, c.certificate_no, c.student_id, c.course_id, c.issue_date, c.qr_hash,
        c.remarks, c.revoked, c.pdf_path, c.created_at,
        s.full_name AS student_name, s.reg_no AS student_reg_no, co.title AS course_title
        %s ORDER BY c.issue_date DESC, c.certificate_no DESC LIMIT %d OFFSET %d`, base+clause, size, (page-1)*size)

	var certs []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	return certs, total, nil
}
