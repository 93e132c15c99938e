package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/export"
	"github.com/noah-isme/ims-api/pkg/jobs"
)

type certificateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
	FindDetailByQRHash(ctx context.Context, qrHash string) (*models.CertificateDetail, error)
	ExistsActive(ctx context.Context, studentID, courseID string) (bool, error)
	Issue(ctx context.Context, cert *models.Certificate) error
	SetRevoked(ctx context.Context, id string, revoked bool) error
	SetPDFPath(ctx context.Context, id, path string) error
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error)
}

type completionReader interface {
	ExistsCompleted(ctx context.Context, studentID, courseID string) (bool, error)
	CompletionProgress(ctx context.Context, studentID, courseID string) (int, int, error)
}

type verificationCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type certificateStore interface {
	Save(filename string, data []byte) (string, error)
}

type documentSigner interface {
	Generate(docID, relPath string) (string, time.Time, error)
}

// DownloadLink is a short-lived signed reference to a generated PDF.
type DownloadLink struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueCertificateRequest describes an issuance request.
type IssueCertificateRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	Remarks   string `json:"remarks"`
}

// IssuanceCheck reports whether a certificate can be issued and why not.
type IssuanceCheck struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"`
}

// CertificateService issues, revokes and verifies completion certificates.
type CertificateService struct {
	repo        certificateRepository
	enrollments completionReader
	cache       verificationCache
	renderer    *export.DocumentRenderer
	store       certificateStore
	signer      documentSigner
	pdfQueue    *jobs.Queue
	verifyTTL   time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService. The pdf queue is
// attached later via AttachPDFQueue so queue and service can reference each
// other at wiring time.
func NewCertificateService(repo certificateRepository, enrollments completionReader, cache verificationCache, renderer *export.DocumentRenderer, store certificateStore, verifyTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if verifyTTL <= 0 {
		verifyTTL = 5 * time.Minute
	}
	return &CertificateService{repo: repo, enrollments: enrollments, cache: cache, renderer: renderer, store: store, verifyTTL: verifyTTL, validator: validate, logger: logger}
}

// AttachPDFQueue wires the background queue used for PDF generation.
func (s *CertificateService) AttachPDFQueue(q *jobs.Queue) {
	s.pdfQueue = q
}

// AttachSigner wires the signer used for download links.
func (s *CertificateService) AttachSigner(signer documentSigner) {
	s.signer = signer
}

func verifyCacheKey(qrHash string) string {
	return "cert:verify:" + qrHash
}

// notCompletedMessage appends the present/required day counts from the
// student's active enrollment when one exists.
func (s *CertificateService) notCompletedMessage(ctx context.Context, studentID, courseID string) string {
	const base = "student has not completed this course"
	present, required, err := s.enrollments.CompletionProgress(ctx, studentID, courseID)
	if err != nil {
		return base
	}
	return fmt.Sprintf("%s (attendance %d/%d days)", base, present, required)
}

// CheckIssuance reports eligibility without side effects.
func (s *CertificateService) CheckIssuance(ctx context.Context, studentID, courseID string) (*IssuanceCheck, error) {
	check := &IssuanceCheck{Eligible: true}
	completed, err := s.enrollments.ExistsCompleted(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check completion")
	}
	if !completed {
		check.Eligible = false
		check.Reasons = append(check.Reasons, s.notCompletedMessage(ctx, studentID, courseID))
	}
	issued, err := s.repo.ExistsActive(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}
	if issued {
		check.Eligible = false
		check.Reasons = append(check.Reasons, "a valid certificate already exists")
	}
	return check, nil
}

// Issue creates a certificate for a completed enrollment. The QR hash is a
// fresh UUID and is the authoritative unique identifier; PDF generation is
// queued in the background so issuance never blocks on rendering.
func (s *CertificateService) Issue(ctx context.Context, req IssueCertificateRequest) (*models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}
	completed, err := s.enrollments.ExistsCompleted(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check completion")
	}
	if !completed {
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, s.notCompletedMessage(ctx, req.StudentID, req.CourseID))
	}
	issued, err := s.repo.ExistsActive(ctx, req.StudentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}
	if issued {
		return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "a valid certificate already exists for this student and course")
	}

	cert := &models.Certificate{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		QRHash:    uuid.NewString(),
		Remarks:   req.Remarks,
	}
	if err := s.repo.Issue(ctx, cert); err != nil {
		// The partial unique index catches the race two concurrent issuers
		// lose to each other; surface it as the domain conflict.
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "a valid certificate already exists for this student and course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue certificate")
	}

	detail, err := s.repo.FindDetailByID(ctx, cert.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate detail")
	}

	if s.pdfQueue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: "certificate_pdf", Payload: cert.ID}
		if err := s.pdfQueue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue certificate pdf", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}

	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("certificate_no", cert.CertificateNo),
		zap.String("student_id", cert.StudentID),
		zap.String("course_id", cert.CourseID))
	return detail, nil
}

// Get returns one certificate with its joined detail.
func (s *CertificateService) Get(ctx context.Context, id string) (*models.CertificateDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return detail, nil
}

// List returns certificates with pagination metadata.
func (s *CertificateService) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, *models.Pagination, error) {
	certs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return certs, pagination, nil
}

// Revoke marks a certificate revoked. The row is kept for audit; its hash
// verifies as invalid from now on.
func (s *CertificateService) Revoke(ctx context.Context, id string) (*models.CertificateDetail, error) {
	return s.setRevoked(ctx, id, true)
}

// Unrevoke restores a revoked certificate, provided no other valid
// certificate has been issued for the pair in the meantime.
func (s *CertificateService) Unrevoke(ctx context.Context, id string) (*models.CertificateDetail, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if !cert.Revoked {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate is not revoked")
	}
	issued, err := s.repo.ExistsActive(ctx, cert.StudentID, cert.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing certificate")
	}
	if issued {
		return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "another valid certificate exists for this student and course")
	}
	return s.setRevoked(ctx, id, false)
}

func (s *CertificateService) setRevoked(ctx context.Context, id string, revoked bool) (*models.CertificateDetail, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if err := s.repo.SetRevoked(ctx, id, revoked); err != nil {
		if revoked == false && isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyIssued, "another valid certificate exists for this student and course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update certificate")
	}
	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Invalidate(ctx, verifyCacheKey(cert.QRHash)); err != nil {
			s.logger.Warn("failed to invalidate verification cache", zap.String("certificate_id", id), zap.Error(err))
		}
	}
	s.logger.Info("certificate revocation updated",
		zap.String("certificate_id", id),
		zap.Bool("revoked", revoked))
	return s.repo.FindDetailByID(ctx, id)
}

// Verify resolves a QR hash to its public verification view. Unknown and
// revoked hashes both come back Valid=false with no error so the public
// endpoint always answers 200.
func (s *CertificateService) Verify(ctx context.Context, qrHash string) (*models.CertificateVerification, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.CertificateVerification
		if hit, err := s.cache.Get(ctx, verifyCacheKey(qrHash), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	detail, err := s.repo.FindDetailByQRHash(ctx, qrHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.CertificateVerification{Valid: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify certificate")
	}

	result := &models.CertificateVerification{Valid: !detail.Revoked}
	if result.Valid {
		issueDate := detail.IssueDate
		result.CertificateNo = detail.CertificateNo
		result.StudentName = detail.StudentName
		result.CourseTitle = detail.CourseTitle
		result.IssueDate = &issueDate
		result.Remarks = detail.Remarks
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, verifyCacheKey(qrHash), result, s.verifyTTL); err != nil {
			s.logger.Warn("failed to cache verification", zap.Error(err))
		}
	}
	return result, nil
}

// DownloadLink returns a signed, expiring token for the certificate's PDF.
// The PDF is generated in the background, so a freshly issued certificate may
// not have one yet.
func (s *CertificateService) DownloadLink(ctx context.Context, id string) (*DownloadLink, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "downloads are not configured")
	}
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if cert.PDFPath == nil || *cert.PDFPath == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate pdf is not generated yet")
	}
	token, expiresAt, err := s.signer.Generate(cert.ID, *cert.PDFPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &DownloadLink{Token: token, URL: "/files/" + token, ExpiresAt: expiresAt}, nil
}

// GeneratePDF renders a certificate PDF and records its storage path. Runs
// on the background queue handler.
func (s *CertificateService) GeneratePDF(ctx context.Context, certificateID string) error {
	if s.renderer == nil || s.store == nil {
		return nil
	}
	detail, err := s.repo.FindDetailByID(ctx, certificateID)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", certificateID, err)
	}
	data, err := s.renderer.RenderCertificate(export.CertificateDocument{
		CertificateNo: detail.CertificateNo,
		StudentName:   detail.StudentName,
		StudentRegNo:  detail.StudentRegNo,
		CourseTitle:   detail.CourseTitle,
		IssueDate:     detail.IssueDate,
		Remarks:       detail.Remarks,
	})
	if err != nil {
		return fmt.Errorf("render certificate %s: %w", certificateID, err)
	}
	path, err := s.store.Save(detail.CertificateNo+".pdf", data)
	if err != nil {
		return fmt.Errorf("store certificate %s: %w", certificateID, err)
	}
	if err := s.repo.SetPDFPath(ctx, certificateID, path); err != nil {
		return fmt.Errorf("record certificate pdf path %s: %w", certificateID, err)
	}
	s.logger.Info("certificate pdf generated", zap.String("certificate_id", certificateID), zap.String("path", path))
	return nil
}

// HandlePDFJob adapts GeneratePDF to the queue handler signature.
func (s *CertificateService) HandlePDFJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected pdf job payload %T", job.Payload)
	}
	return s.GeneratePDF(ctx, id)
}
