package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ims-api/internal/models"
)

// MessagingRepository persists conversations and messages.
type MessagingRepository struct {
	db *sqlx.DB
}

// NewMessagingRepository constructs the repository.
func NewMessagingRepository(db *sqlx.DB) *MessagingRepository {
	return &MessagingRepository{db: db}
}

// FindConversationByStudent returns the student's conversation.
func (r *MessagingRepository) FindConversationByStudent(ctx context.Context, studentID string) (*models.Conversation, error) {
	const query = `SELECT id, student_id, created_at, last_message_at, student_read, admin_read
        FROM conversations WHERE student_id = $1`
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, studentID); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindConversationByID returns a conversation by its ID.
func (r *MessagingRepository) FindConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	const query = `SELECT id, student_id, created_at, last_message_at, student_read, admin_read
        FROM conversations WHERE id = $1`
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation inserts the student's conversation. The unique index on
// student_id makes concurrent creation a conflict rather than a duplicate.
func (r *MessagingRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.LastMessageAt = now
	const query = `INSERT INTO conversations (id, student_id, created_at, last_message_at, student_read, admin_read)
        VALUES (:id, :student_id, :created_at, :last_message_at, :student_read, :admin_read)`
	if _, err := r.db.NamedExecContext(ctx, query, conv); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// ListConversations returns all conversations newest-activity first.
func (r *MessagingRepository) ListConversations(ctx context.Context) ([]models.ConversationDetail, error) {
	const query = `SELECT c.id, c.student_id, c.created_at, c.last_message_at, c.student_read, c.admin_read,
        s.full_name AS student_name, s.reg_no AS student_reg_no
        FROM conversations c
        JOIN students s ON s.id = c.student_id
        ORDER BY c.last_message_at DESC`
	var convs []models.ConversationDetail
	if err := r.db.SelectContext(ctx, &convs, query); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (r *MessagingRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const query = `SELECT id, conversation_id, sender, sender_user_id, body, sent_at
        FROM messages WHERE conversation_id = $1 ORDER BY sent_at ASC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// CreateMessage inserts a message and bumps the conversation's activity
// timestamp and read flags in the same transaction. The sending side is
// marked read, the receiving side unread.
func (r *MessagingRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO messages (id, conversation_id, sender, sender_user_id, body, sent_at)
        VALUES (:id, :conversation_id, :sender, :sender_user_id, :body, :sent_at)`
	if _, err := tx.NamedExecContext(ctx, insert, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	studentRead := msg.Sender == models.SenderStudent
	const update = `UPDATE conversations SET last_message_at = $2, student_read = $3, admin_read = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, msg.ConversationID, msg.SentAt, studentRead, !studentRead); err != nil {
		return fmt.Errorf("update conversation activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message tx: %w", err)
	}
	return nil
}

// MarkRead sets the read flag for one side of a conversation.
func (r *MessagingRepository) MarkRead(ctx context.Context, conversationID string, side models.SenderType) error {
	column := "admin_read"
	if side == models.SenderStudent {
		column = "student_read"
	}
	query := fmt.Sprintf(`UPDATE conversations SET %s = TRUE WHERE id = $1`, column)
	if _, err := r.db.ExecContext(ctx, query, conversationID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}
