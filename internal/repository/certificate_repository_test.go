package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ims-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCertificateRepositoryIssueAssignsDailyNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM certificates WHERE issue_date = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO certificates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cert := &models.Certificate{
		StudentID: "s1",
		CourseID:  "c1",
		QRHash:    "hash-1",
		IssueDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Issue(context.Background(), cert))
	assert.Equal(t, "CERT-20260302-0003", cert.CertificateNo)
	assert.NotEmpty(t, cert.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryIssueKeepsGivenNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO certificates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cert := &models.Certificate{
		CertificateNo: "CERT-20260101-0009",
		StudentID:     "s1",
		CourseID:      "c1",
		QRHash:        "hash-1",
		IssueDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Issue(context.Background(), cert))
	assert.Equal(t, "CERT-20260101-0009", cert.CertificateNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates WHERE student_id = $1 AND course_id = $2 AND NOT revoked LIMIT 1")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates WHERE student_id = $1 AND course_id = $2 AND NOT revoked LIMIT 1")).
		WithArgs("s2", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.ExistsActive(context.Background(), "s2", "c1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositorySetRevoked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET revoked = $2 WHERE id = $1")).
		WithArgs("cert-1", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SetRevoked(context.Background(), "cert-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
