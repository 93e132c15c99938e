package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/ims-api/internal/models"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
)

type messagingRepository interface {
	FindConversationByStudent(ctx context.Context, studentID string) (*models.Conversation, error)
	FindConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context) ([]models.ConversationDetail, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	MarkRead(ctx context.Context, conversationID string, side models.SenderType) error
}

// SendMessageRequest describes one message in a student's conversation.
type SendMessageRequest struct {
	Body         string            `json:"body" validate:"required"`
	Sender       models.SenderType `json:"-"`
	SenderUserID *string           `json:"-"`
}

// MessagingService runs the single per-student conversation with the admin
// team.
type MessagingService struct {
	repo      messagingRepository
	students  studentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessagingService constructs MessagingService.
func NewMessagingService(repo messagingRepository, students studentReader, validate *validator.Validate, logger *zap.Logger) *MessagingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingService{repo: repo, students: students, validator: validate, logger: logger}
}

// conversationFor returns the student's conversation, creating it on first
// use. A concurrent create loses to the unique index and re-reads.
func (s *MessagingService) conversationFor(ctx context.Context, studentID string) (*models.Conversation, error) {
	conv, err := s.repo.FindConversationByStudent(ctx, studentID)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	conv = &models.Conversation{StudentID: studentID, StudentRead: true, AdminRead: true}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		if isUniqueViolation(err) {
			existing, rerr := s.repo.FindConversationByStudent(ctx, studentID)
			if rerr != nil {
				return nil, appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
			}
			return existing, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create conversation")
	}
	return conv, nil
}

// Send appends a message to the student's conversation, creating the
// conversation on first contact.
func (s *MessagingService) Send(ctx context.Context, studentID string, req SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if req.Sender != models.SenderStudent && req.Sender != models.SenderAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid sender")
	}
	conv, err := s.conversationFor(ctx, studentID)
	if err != nil {
		return nil, err
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         req.Sender,
		SenderUserID:   req.SenderUserID,
		Body:           req.Body,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return msg, nil
}

// Thread returns the student's conversation and its messages, marking the
// reader's side as read.
func (s *MessagingService) Thread(ctx context.Context, studentID string, reader models.SenderType) (*models.Conversation, []models.Message, error) {
	conv, err := s.conversationFor(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if err := s.repo.MarkRead(ctx, conv.ID, reader); err != nil {
		s.logger.Warn("failed to mark conversation read", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return conv, msgs, nil
}

// ListConversations returns every conversation for the admin inbox.
func (s *MessagingService) ListConversations(ctx context.Context) ([]models.ConversationDetail, error) {
	convs, err := s.repo.ListConversations(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	return convs, nil
}
