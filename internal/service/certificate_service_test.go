package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type mockCertificateRepo struct {
	certs       map[string]*models.Certificate
	details     map[string]*models.CertificateDetail
	byHash      map[string]*models.CertificateDetail
	existsAct   bool
	issueErr    error
	issued      []*models.Certificate
	revokedSets map[string]bool
}

func (m *mockCertificateRepo) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	if c, ok := m.certs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	if d, ok := m.details[id]; ok {
		cp := *d
		return &cp, nil
	}
	return &models.CertificateDetail{Certificate: models.Certificate{ID: id}}, nil
}

func (m *mockCertificateRepo) FindDetailByQRHash(ctx context.Context, qrHash string) (*models.CertificateDetail, error) {
	if d, ok := m.byHash[qrHash]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateRepo) ExistsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.existsAct, nil
}

func (m *mockCertificateRepo) Issue(ctx context.Context, cert *models.Certificate) error {
	if m.issueErr != nil {
		return m.issueErr
	}
	if cert.ID == "" {
		cert.ID = "cert-1"
	}
	cert.CertificateNo = "CERT-20260302-0001"
	m.issued = append(m.issued, cert)
	return nil
}

func (m *mockCertificateRepo) SetRevoked(ctx context.Context, id string, revoked bool) error {
	if m.revokedSets == nil {
		m.revokedSets = make(map[string]bool)
	}
	m.revokedSets[id] = revoked
	return nil
}

func (m *mockCertificateRepo) SetPDFPath(ctx context.Context, id, path string) error {
	return nil
}

func (m *mockCertificateRepo) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	return nil, 0, nil
}

type mockCompletionReader struct {
	completed bool
	active    bool
	present   int
	required  int
}

func (m *mockCompletionReader) ExistsCompleted(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.completed, nil
}

func (m *mockCompletionReader) CompletionProgress(ctx context.Context, studentID, courseID string) (int, int, error) {
	if !m.active {
		return 0, 0, sql.ErrNoRows
	}
	return m.present, m.required, nil
}

type mockVerificationCache struct {
	enabled     bool
	store       map[string]models.CertificateVerification
	invalidated []string
}

func (m *mockVerificationCache) Enabled() bool { return m.enabled }

func (m *mockVerificationCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := m.store[key]
	if !ok {
		return false, nil
	}
	*(dest.(*models.CertificateVerification)) = v
	return true, nil
}

func (m *mockVerificationCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string]models.CertificateVerification)
	}
	m.store[key] = *(value.(*models.CertificateVerification))
	return nil
}

func (m *mockVerificationCache) Invalidate(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	delete(m.store, pattern)
	return nil
}

func newCertificateServiceForTest(repo *mockCertificateRepo, completion *mockCompletionReader, cache *mockVerificationCache) *CertificateService {
	return NewCertificateService(repo, completion, cache, nil, nil, time.Minute, validator.New(), zap.NewNop())
}

func TestCertificateIssue(t *testing.T) {
	repo := &mockCertificateRepo{}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{completed: true}, &mockVerificationCache{})

	_, err := svc.Issue(context.Background(), IssueCertificateRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	require.Len(t, repo.issued, 1)
	assert.NotEmpty(t, repo.issued[0].QRHash)
	assert.Equal(t, "s1", repo.issued[0].StudentID)
}

func TestCertificateIssueNotCompleted(t *testing.T) {
	repo := &mockCertificateRepo{}
	completion := &mockCompletionReader{completed: false, active: true, present: 12, required: 24}
	svc := newCertificateServiceForTest(repo, completion, &mockVerificationCache{})

	_, err := svc.Issue(context.Background(), IssueCertificateRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrNotCompleted.Code, apiErr.Code)
	assert.Contains(t, apiErr.Message, "attendance 12/24 days")
	assert.Empty(t, repo.issued)
}

func TestCertificateIssueNotCompletedNoActiveEnrollment(t *testing.T) {
	repo := &mockCertificateRepo{}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{completed: false}, &mockVerificationCache{})

	_, err := svc.Issue(context.Background(), IssueCertificateRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrNotCompleted.Code, apiErr.Code)
	assert.Equal(t, "student has not completed this course", apiErr.Message)
}

func TestCertificateIssueAlreadyIssued(t *testing.T) {
	repo := &mockCertificateRepo{existsAct: true}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{completed: true}, &mockVerificationCache{})

	_, err := svc.Issue(context.Background(), IssueCertificateRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrAlreadyIssued.Code, apiErr.Code)
}

func TestCertificateIssueUniqueViolationRace(t *testing.T) {
	repo := &mockCertificateRepo{issueErr: &pq.Error{Code: "23505"}}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{completed: true}, &mockVerificationCache{})

	_, err := svc.Issue(context.Background(), IssueCertificateRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrAlreadyIssued.Code, apiErr.Code)
}

func TestCertificateCheckIssuanceReasons(t *testing.T) {
	repo := &mockCertificateRepo{existsAct: true}
	completion := &mockCompletionReader{completed: false, active: true, present: 5, required: 24}
	svc := newCertificateServiceForTest(repo, completion, &mockVerificationCache{})

	check, err := svc.CheckIssuance(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.False(t, check.Eligible)
	require.Len(t, check.Reasons, 2)
	assert.Contains(t, check.Reasons[0], "attendance 5/24 days")
}

func TestCertificateRevokeInvalidatesCache(t *testing.T) {
	repo := &mockCertificateRepo{certs: map[string]*models.Certificate{
		"cert-1": {ID: "cert-1", StudentID: "s1", CourseID: "c1", QRHash: "hash-1"},
	}}
	cache := &mockVerificationCache{enabled: true}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, cache)

	_, err := svc.Revoke(context.Background(), "cert-1")
	require.NoError(t, err)
	assert.True(t, repo.revokedSets["cert-1"])
	assert.Equal(t, []string{"cert:verify:hash-1"}, cache.invalidated)
}

func TestCertificateUnrevokeRequiresRevoked(t *testing.T) {
	repo := &mockCertificateRepo{certs: map[string]*models.Certificate{
		"cert-1": {ID: "cert-1", Revoked: false},
	}}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, &mockVerificationCache{})

	_, err := svc.Unrevoke(context.Background(), "cert-1")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
}

func TestCertificateUnrevokeBlockedByNewerCertificate(t *testing.T) {
	repo := &mockCertificateRepo{
		certs: map[string]*models.Certificate{
			"cert-1": {ID: "cert-1", StudentID: "s1", CourseID: "c1", Revoked: true},
		},
		existsAct: true,
	}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, &mockVerificationCache{})

	_, err := svc.Unrevoke(context.Background(), "cert-1")
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrAlreadyIssued.Code, apiErr.Code)
}

func TestCertificateVerifyUnknownHash(t *testing.T) {
	repo := &mockCertificateRepo{}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, &mockVerificationCache{})

	result, err := svc.Verify(context.Background(), "no-such-hash")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Empty(t, result.CertificateNo)
}

func TestCertificateVerifyRevoked(t *testing.T) {
	repo := &mockCertificateRepo{byHash: map[string]*models.CertificateDetail{
		"hash-1": {Certificate: models.Certificate{ID: "cert-1", QRHash: "hash-1", Revoked: true}},
	}}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, &mockVerificationCache{})

	result, err := svc.Verify(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestCertificateVerifyCachesResult(t *testing.T) {
	repo := &mockCertificateRepo{byHash: map[string]*models.CertificateDetail{
		"hash-1": {
			Certificate: models.Certificate{ID: "cert-1", CertificateNo: "CERT-20260302-0001", QRHash: "hash-1", IssueDate: time.Now()},
			StudentName: "Student One",
			CourseTitle: "Course One",
		},
	}}
	cache := &mockVerificationCache{enabled: true}
	svc := newCertificateServiceForTest(repo, &mockCompletionReader{}, cache)

	result, err := svc.Verify(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "CERT-20260302-0001", result.CertificateNo)
	assert.Contains(t, cache.store, "cert:verify:hash-1")

	// second call is served from cache even after the row disappears
	delete(repo.byHash, "hash-1")
	cached, err := svc.Verify(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.True(t, cached.Valid)
}
