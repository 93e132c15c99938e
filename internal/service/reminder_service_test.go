package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/mailer"
)

type mockReminderRepo struct {
	lastSent time.Time
	created  []*models.Reminder
	statuses map[string]models.ReminderStatus
}

func (m *mockReminderRepo) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = "rem-1"
	}
	m.created = append(m.created, reminder)
	return nil
}

func (m *mockReminderRepo) LastSentAt(ctx context.Context, studentID, courseID string) (time.Time, error) {
	return m.lastSent, nil
}

func (m *mockReminderRepo) UpdateStatus(ctx context.Context, id string, status models.ReminderStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.ReminderStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockReminderRepo) List(ctx context.Context, filter models.ReminderFilter) ([]models.Reminder, int, error) {
	return nil, 0, nil
}

type mockOutstanding struct {
	due map[string]float64
}

func (m *mockOutstanding) Outstanding(ctx context.Context, studentID, courseID string) (*models.OutstandingBalance, error) {
	due := m.due[studentID+":"+courseID]
	return &models.OutstandingBalance{StudentID: studentID, CourseID: courseID, Due: due}, nil
}

type mockSweepSource struct {
	enrollments []models.EnrollmentDetail
}

func (m *mockSweepSource) ListActiveForSweep(ctx context.Context) ([]models.EnrollmentDetail, error) {
	return m.enrollments, nil
}

type mockMailer struct {
	enabled bool
	sendErr error
	sent    []mailer.Message
}

func (m *mockMailer) Enabled() bool { return m.enabled }

func (m *mockMailer) Send(msg mailer.Message) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newReminderServiceForTest(repo *mockReminderRepo, sweep *mockSweepSource, students *mockStudentReader, balances *mockOutstanding, mail *mockMailer) *ReminderService {
	return NewReminderService(repo, sweep, students, balances, mail, 7, validator.New(), zap.NewNop())
}

func TestReminderSend(t *testing.T) {
	repo := &mockReminderRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", FullName: "Student One", Email: "s1@example.com"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 5000}}
	mail := &mockMailer{enabled: true}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, mail)

	reminder, err := svc.Send(context.Background(), SendReminderRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusSent, reminder.Status)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "s1@example.com", mail.sent[0].ToAddress)
	assert.Contains(t, reminder.Message, "5000.00")
}

func TestReminderSendNoBalance(t *testing.T) {
	repo := &mockReminderRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1"}}}
	balances := &mockOutstanding{}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, &mockMailer{})

	_, err := svc.Send(context.Background(), SendReminderRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, apiErr.Code)
	assert.Empty(t, repo.created)
}

func TestReminderSendThrottled(t *testing.T) {
	repo := &mockReminderRepo{lastSent: time.Now().Add(-48 * time.Hour)}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 5000}}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, &mockMailer{})

	_, err := svc.Send(context.Background(), SendReminderRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	var apiErr *appErrors.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, appErrors.ErrConflict.Code, apiErr.Code)
}

func TestReminderSendOutsideThrottleWindow(t *testing.T) {
	repo := &mockReminderRepo{lastSent: time.Now().Add(-8 * 24 * time.Hour)}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", FullName: "Student One"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 100}}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, &mockMailer{})

	reminder, err := svc.Send(context.Background(), SendReminderRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
	// mail disabled: the row itself is the reminder
	assert.Equal(t, models.ReminderStatusSent, reminder.Status)
}

func TestReminderDeliveryFailureRecordedNotSurfaced(t *testing.T) {
	repo := &mockReminderRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Email: "s1@example.com"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 100}}
	mail := &mockMailer{enabled: true, sendErr: errors.New("smtp down")}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, mail)

	reminder, err := svc.Send(context.Background(), SendReminderRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReminderStatusFailed, reminder.Status)
	assert.Equal(t, models.ReminderStatusFailed, repo.statuses[reminder.ID])
}

func TestReminderCheckAfterPaymentCreatesWhenBalanceRemains(t *testing.T) {
	repo := &mockReminderRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", FullName: "Student One"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 3000}}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, &mockMailer{})

	svc.CheckAfterPayment(context.Background(), "s1", "c1")
	require.Len(t, repo.created, 1)
	assert.Contains(t, repo.created[0].Message, "3000.00")
}

func TestReminderCheckAfterPaymentSkipsClearedBalance(t *testing.T) {
	repo := &mockReminderRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1"}}}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, &mockOutstanding{}, &mockMailer{})

	svc.CheckAfterPayment(context.Background(), "s1", "c1")
	assert.Empty(t, repo.created)
}

func TestReminderCheckAfterPaymentRespectsThrottle(t *testing.T) {
	repo := &mockReminderRepo{lastSent: time.Now().Add(-48 * time.Hour)}
	students := &mockStudentReader{students: map[string]*models.Student{"s1": {ID: "s1"}}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 3000}}
	svc := newReminderServiceForTest(repo, &mockSweepSource{}, students, balances, &mockMailer{})

	svc.CheckAfterPayment(context.Background(), "s1", "c1")
	assert.Empty(t, repo.created)
}

func TestReminderSweep(t *testing.T) {
	repo := &mockReminderRepo{}
	sweep := &mockSweepSource{enrollments: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "e1", StudentID: "s1"}, CourseID: "c1", CourseTitle: "Course One"},
		{Enrollment: models.Enrollment{ID: "e2", StudentID: "s2"}, CourseID: "c1", CourseTitle: "Course One"},
		// duplicate pair from a second batch is skipped
		{Enrollment: models.Enrollment{ID: "e3", StudentID: "s1"}, CourseID: "c1", CourseTitle: "Course One"},
	}}
	students := &mockStudentReader{students: map[string]*models.Student{
		"s1": {ID: "s1", FullName: "Student One"},
		"s2": {ID: "s2", FullName: "Student Two"},
	}}
	balances := &mockOutstanding{due: map[string]float64{"s1:c1": 5000}}
	svc := newReminderServiceForTest(repo, sweep, students, balances, &mockMailer{})

	created, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	// only s1 carries a balance; s2 is paid up
	assert.Equal(t, 1, created)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "s1", repo.created[0].StudentID)
}
